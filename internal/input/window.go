// Package input holds the per-step input state of a lockstep session: the
// local participant's recent input window and the remote inputs collected
// for the step currently awaited.
package input

import (
	"github.com/1ureka/lockstep/internal/protocol"
)

// DefaultWindowSize is how many recent local records are retained and sent
// with every InputState. A record lost in one datagram is recovered from the
// next one while it is still inside the window.
const DefaultWindowSize = 2

// Window is a fixed-capacity ring of the most recent local input records,
// ordered by strictly increasing step.
type Window struct {
	records []protocol.InputRecord
	size    int
}

// NewWindow creates a window retaining size records (DefaultWindowSize if
// size is not positive).
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{
		records: make([]protocol.InputRecord, 0, size),
		size:    size,
	}
}

// Record appends rec, evicting the oldest record once the window is full.
// A record whose step is not newer than the latest retained step is
// ignored and Record returns false.
func (w *Window) Record(rec protocol.InputRecord) bool {
	if n := len(w.records); n > 0 && rec.Step <= w.records[n-1].Step {
		return false
	}
	if len(w.records) == w.size {
		copy(w.records, w.records[1:])
		w.records = w.records[:w.size-1]
	}
	w.records = append(w.records, rec)
	return true
}

// Records returns a copy of the retained records, oldest first.
func (w *Window) Records() []protocol.InputRecord {
	out := make([]protocol.InputRecord, len(w.records))
	copy(out, w.records)
	return out
}

// Lookup returns the retained record for step.
func (w *Window) Lookup(step int32) (protocol.InputRecord, bool) {
	for _, r := range w.records {
		if r.Step == step {
			return r, true
		}
	}
	return protocol.InputRecord{}, false
}

// Latest returns the newest retained record.
func (w *Window) Latest() (protocol.InputRecord, bool) {
	if len(w.records) == 0 {
		return protocol.InputRecord{}, false
	}
	return w.records[len(w.records)-1], true
}

func (w *Window) Len() int  { return len(w.records) }
func (w *Window) Size() int { return w.size }

// Message returns the whole retained window as an InputState.
func (w *Window) Message() protocol.InputState {
	return protocol.InputState{Records: w.Records()}
}
