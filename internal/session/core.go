package session

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/1ureka/lockstep/internal/directory"
	"github.com/1ureka/lockstep/internal/input"
	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/transport"
	"github.com/1ureka/lockstep/internal/util"
)

// core is the state shared by Host and Peer: the directory, the local input
// window, the collected remote inputs and the encode buffer.
type core struct {
	role string
	cfg  Config
	tr   transport.Transport
	dir  *directory.Directory

	phase      Phase
	awaiting   int32
	localIndex int

	window  *input.Window
	pending *input.Pending // nil until InGame

	buf    [protocol.BufferSize]byte
	closed bool

	onChat  func(from netip.AddrPort, text string)
	onPhase func(Phase)
}

func newCore(role string, tr transport.Transport, cfg Config) core {
	return core{
		role:   role,
		cfg:    cfg,
		tr:     tr,
		dir:    directory.New(cfg.MaxPeers),
		window: input.NewWindow(cfg.WindowSize),
	}
}

func (c *core) Phase() Phase              { return c.phase }
func (c *core) LocalIndex() int           { return c.localIndex }
func (c *core) Participants() int         { return c.dir.Len() + 1 }
func (c *core) Peers() []netip.AddrPort   { return c.dir.All() }
func (c *core) LocalAddr() netip.AddrPort { return c.tr.LocalAddr() }

func (c *core) OnPhaseChange(fn func(Phase)) { c.onPhase = fn }

func (c *core) OnChat(fn func(from netip.AddrPort, text string)) { c.onChat = fn }

func (c *core) setPhase(p Phase) {
	if p <= c.phase {
		return
	}
	util.LogDebug("[%s] %s → %s", c.role, c.phase, p)
	c.phase = p
	if c.onPhase != nil {
		c.onPhase(p)
	}
}

// enterGame allocates one pending slot per remote participant.
func (c *core) enterGame() {
	c.pending = input.NewPending(c.dir.Len())
	c.pending.Await(c.awaiting)
	util.LogSuccess("[%s] in game: %d participants, local index %d", c.role, c.Participants(), c.localIndex)
	c.setPhase(InGame)
}

// ---------------------------------------------------------------------------
// Wire helpers
// ---------------------------------------------------------------------------

// encode serializes msg into the session buffer. Overflow is logged and the
// send is skipped.
func (c *core) encode(msg protocol.Message) ([]byte, bool) {
	data, err := protocol.Encode(c.buf[:0], msg)
	if err != nil {
		util.LogError("[%s] failed to serialize %s: %v", c.role, msg.Kind(), err)
		return nil, false
	}
	return data, true
}

func (c *core) send(msg protocol.Message, to netip.AddrPort) {
	data, ok := c.encode(msg)
	if !ok {
		return
	}
	if err := c.tr.Send(data, to); err != nil {
		util.LogWarning("[%s] send %s to %s: %v", c.role, msg.Kind(), to, err)
	}
}

func (c *core) broadcast(msg protocol.Message) error {
	data, ok := c.encode(msg)
	if !ok {
		return fmt.Errorf("%s: %w", msg.Kind(), protocol.ErrOverflow)
	}
	return transport.Broadcast(c.tr, data, c.dir.All())
}

// drain hands every queued datagram to handle until the transport is empty.
// Undecodable datagrams are logged and dropped.
func (c *core) drain(handle func(from netip.AddrPort, msg protocol.Message)) {
	for {
		d, ok := c.tr.TryReceive()
		if !ok {
			return
		}
		msg, err := protocol.Decode(d.Data)
		if err != nil {
			util.LogDebug("[%s] drop datagram from %s: %v", c.role, d.From, err)
			continue
		}
		handle(directory.Canonical(d.From), msg)
	}
}

// handleCommon processes the kinds every role treats alike. It reports
// whether msg was consumed.
func (c *core) handleCommon(from netip.AddrPort, msg protocol.Message) bool {
	switch m := msg.(type) {
	case protocol.InputState:
		slot, known := c.dir.SlotOf(from)
		if !known {
			util.LogDebug("[%s] input from unknown sender %s", c.role, from)
			return true
		}
		if c.phase != InGame {
			return true
		}
		c.pending.Ingest(int(slot), m, c.awaiting)
		return true

	case protocol.Chat:
		if !c.dir.Contains(from) {
			util.LogDebug("[%s] chat from unknown sender %s", c.role, from)
			return true
		}
		if c.onChat != nil {
			c.onChat(from, m.Text)
		}
		return true
	}
	return false
}

// beginPoll records the awaited step.
func (c *core) beginPoll(step int32) error {
	if c.closed {
		return transport.ErrClosed
	}
	c.awaiting = step
	if c.pending != nil {
		c.pending.Await(step)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Driver API
// ---------------------------------------------------------------------------

func (c *core) SubmitLocalInput(rec protocol.InputRecord) error {
	if c.phase != InGame {
		return fmt.Errorf("%w: submit input in %s", ErrWrongPhase, c.phase)
	}
	c.window.Record(rec)
	return c.broadcast(c.window.Message())
}

func (c *core) IsReadyToAdvance() bool {
	if c.phase != InGame || !c.pending.Filled() {
		return false
	}
	_, ok := c.window.Lookup(c.awaiting)
	return ok
}

func (c *core) Waiting() []netip.AddrPort {
	if c.pending == nil {
		return nil
	}
	var out []netip.AddrPort
	for i, addr := range c.dir.All() {
		if !c.pending.Has(i) {
			out = append(out, addr)
		}
	}
	return out
}

func (c *core) LastInput() (protocol.InputRecord, bool) { return c.window.Latest() }

// CollectStepInputs merges the local record into the remote ones at the
// local participant's canonical index.
func (c *core) CollectStepInputs() ([]protocol.InputRecord, error) {
	if !c.IsReadyToAdvance() {
		return nil, fmt.Errorf("%w: step %d", ErrNotReady, c.awaiting)
	}
	local, _ := c.window.Lookup(c.awaiting)
	remote, err := c.pending.ConsumeAndClear()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}

	out := make([]protocol.InputRecord, 0, len(remote)+1)
	out = append(out, remote[:c.localIndex]...)
	out = append(out, local)
	out = append(out, remote[c.localIndex:]...)
	return out, nil
}

// SendChat broadcasts text to every known participant.
func (c *core) SendChat(text string) error {
	return c.broadcast(protocol.Chat{Text: text})
}

func (c *core) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.tr.Close(); err != nil && !errors.Is(err, transport.ErrClosed) {
		return fmt.Errorf("session: close transport: %w", err)
	}
	return nil
}
