// Package replay persists the inputs of every completed step so a session
// can be re-simulated offline and checked for determinism.
//
// Layout: the "sessions" bucket holds one nested bucket per recording, keyed
// by a random UUID. Each recording bucket has a "meta" JSON value and a
// "steps" bucket keyed by big-endian step index. A step value is the
// InputState wire encoding of the step's inputs followed by the 4-byte
// world checksum.
package replay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/sim"
	"github.com/1ureka/lockstep/internal/util"
)

var (
	bucketSessions = []byte("sessions")
	bucketSteps    = []byte("steps")
	keyMeta        = []byte("meta")
)

var (
	ErrNotFound = errors.New("replay: recording not found")
	ErrCorrupt  = errors.New("replay: corrupt step record")
	ErrDesync   = errors.New("replay: checksum mismatch")
)

// FlushEvery is how many steps a Recorder buffers before writing.
const FlushEvery = 64

// Meta describes one recording.
type Meta struct {
	ID           string    `json:"id"`
	Role         string    `json:"role"`
	Participants int       `json:"participants"`
	LocalIndex   int       `json:"local_index"`
	Started      time.Time `json:"started"`
	Steps        int32     `json:"steps"`
}

// Step is one recorded step.
type Step struct {
	Index    int32
	Inputs   []protocol.InputRecord
	Checksum uint32
}

// Store is a bbolt database of recordings.
type Store struct {
	db *bolt.DB
}

// Open opens (or creates) the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("replay: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("replay: init: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Begin creates a new recording and returns its recorder.
func (s *Store) Begin(role string, participants, localIndex int) (*Recorder, error) {
	meta := Meta{
		ID:           uuid.NewString(),
		Role:         role,
		Participants: participants,
		LocalIndex:   localIndex,
		Started:      time.Now().UTC(),
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketSessions).CreateBucket([]byte(meta.ID))
		if err != nil {
			return err
		}
		if _, err := b.CreateBucket(bucketSteps); err != nil {
			return err
		}
		return putMeta(b, meta)
	})
	if err != nil {
		return nil, fmt.Errorf("replay: begin: %w", err)
	}
	util.LogInfo("recording session %s", meta.ID)
	return &Recorder{store: s, meta: meta}, nil
}

// Sessions lists every recording, oldest first.
func (s *Store) Sessions() ([]Meta, error) {
	var out []Meta
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessions).ForEachBucket(func(k []byte) error {
			meta, err := getMeta(tx.Bucket(bucketSessions).Bucket(k))
			if err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
			out = append(out, meta)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("replay: list: %w", err)
	}
	slices.SortFunc(out, func(a, b Meta) int { return a.Started.Compare(b.Started) })
	return out, nil
}

// Load reads a full recording. id may be a unique prefix.
func (s *Store) Load(id string) (Meta, []Step, error) {
	var (
		meta  Meta
		steps []Step
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b, err := findSession(tx, id)
		if err != nil {
			return err
		}
		if meta, err = getMeta(b); err != nil {
			return err
		}
		return b.Bucket(bucketSteps).ForEach(func(k, v []byte) error {
			st, err := decodeStep(k, v)
			if err != nil {
				return err
			}
			steps = append(steps, st)
			return nil
		})
	})
	if err != nil {
		return Meta{}, nil, err
	}
	return meta, steps, nil
}

// Verify re-simulates steps from a fresh world and checks every recorded
// checksum. It returns the final world.
func Verify(meta Meta, steps []Step) (*sim.World, error) {
	w := sim.NewWorld(meta.Participants)
	for i, st := range steps {
		if st.Index != int32(i) {
			return w, fmt.Errorf("%w: step %d recorded at position %d", ErrCorrupt, st.Index, i)
		}
		if err := w.Apply(st.Inputs); err != nil {
			return w, fmt.Errorf("replay: step %d: %w", st.Index, err)
		}
		if got := w.Checksum(); got != st.Checksum {
			return w, fmt.Errorf("%w at step %d: recorded %08x, replayed %08x", ErrDesync, st.Index, st.Checksum, got)
		}
	}
	return w, nil
}

// ---------------------------------------------------------------------------
// Recorder
// ---------------------------------------------------------------------------

// Recorder appends steps to one recording. It buffers FlushEvery steps per
// write transaction and is not safe for concurrent use.
type Recorder struct {
	store   *Store
	meta    Meta
	pending []Step
}

func (r *Recorder) ID() string { return r.meta.ID }

// Record buffers one step, flushing when the buffer is full.
func (r *Recorder) Record(step int32, inputs []protocol.InputRecord, checksum uint32) error {
	cp := append([]protocol.InputRecord(nil), inputs...)
	r.pending = append(r.pending, Step{Index: step, Inputs: cp, Checksum: checksum})
	if len(r.pending) >= FlushEvery {
		return r.Flush()
	}
	return nil
}

// Flush writes every buffered step and updates the step count.
func (r *Recorder) Flush() error {
	if len(r.pending) == 0 {
		return nil
	}
	err := r.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSessions).Bucket([]byte(r.meta.ID))
		if b == nil {
			return ErrNotFound
		}
		steps := b.Bucket(bucketSteps)
		for _, st := range r.pending {
			v, err := encodeStep(st)
			if err != nil {
				return err
			}
			if err := steps.Put(stepKey(st.Index), v); err != nil {
				return err
			}
		}
		r.meta.Steps = r.pending[len(r.pending)-1].Index + 1
		return putMeta(b, r.meta)
	})
	if err != nil {
		return fmt.Errorf("replay: flush %s: %w", r.meta.ID, err)
	}
	r.pending = r.pending[:0]
	return nil
}

func (r *Recorder) Close() error {
	return r.Flush()
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func stepKey(step int32) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(step))
}

func encodeStep(st Step) ([]byte, error) {
	buf, err := protocol.Encode(make([]byte, 0, protocol.BufferSize), protocol.InputState{Records: st.Inputs})
	if err != nil {
		return nil, err
	}
	return binary.BigEndian.AppendUint32(buf, st.Checksum), nil
}

func decodeStep(k, v []byte) (Step, error) {
	if len(k) != 4 || len(v) < 4 {
		return Step{}, ErrCorrupt
	}
	msg, err := protocol.Decode(v[:len(v)-4])
	if err != nil {
		return Step{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	state, ok := msg.(protocol.InputState)
	if !ok {
		return Step{}, fmt.Errorf("%w: %s", ErrCorrupt, msg.Kind())
	}
	return Step{
		Index:    int32(binary.BigEndian.Uint32(k)),
		Inputs:   state.Records,
		Checksum: binary.BigEndian.Uint32(v[len(v)-4:]),
	}, nil
}

func putMeta(b *bolt.Bucket, meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return b.Put(keyMeta, data)
}

func getMeta(b *bolt.Bucket) (Meta, error) {
	var meta Meta
	data := b.Get(keyMeta)
	if data == nil {
		return meta, ErrCorrupt
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return meta, nil
}

// findSession resolves an exact ID or a unique ID prefix.
func findSession(tx *bolt.Tx, id string) (*bolt.Bucket, error) {
	root := tx.Bucket(bucketSessions)
	if b := root.Bucket([]byte(id)); b != nil {
		return b, nil
	}

	var match []byte
	c := root.Cursor()
	for k, _ := c.Seek([]byte(id)); k != nil && len(k) >= len(id) && string(k[:len(id)]) == id; k, _ = c.Next() {
		if match != nil {
			return nil, fmt.Errorf("replay: %q is ambiguous", id)
		}
		match = k
	}
	if match == nil || id == "" {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return root.Bucket(match), nil
}
