package session

import (
	"net/netip"
	"testing"
	"time"

	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/transport"
)

type fakeClock struct{ now time.Time }

func newFakeClock() *fakeClock { return &fakeClock{now: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

const testInterval = 50 * time.Millisecond

func testConfig(clk *fakeClock) Config {
	return Config{RetryInterval: testInterval, Now: clk.Now}
}

// raw is a hand-driven participant that speaks the wire format directly.
type raw struct {
	t  *testing.T
	tr *transport.MemoryTransport
}

func newRaw(t *testing.T, nw *transport.Network) *raw {
	return &raw{t: t, tr: nw.Listen()}
}

func (r *raw) addr() netip.AddrPort { return r.tr.LocalAddr() }

func (r *raw) send(msg protocol.Message, to netip.AddrPort) {
	r.t.Helper()
	data, err := protocol.Encode(nil, msg)
	if err != nil {
		r.t.Fatalf("encode %s: %v", msg.Kind(), err)
	}
	if err := r.tr.Send(data, to); err != nil {
		r.t.Fatalf("send %s: %v", msg.Kind(), err)
	}
}

// recv drains every queued datagram.
func (r *raw) recv() []protocol.Message {
	r.t.Helper()
	var out []protocol.Message
	for {
		d, ok := r.tr.TryReceive()
		if !ok {
			return out
		}
		msg, err := protocol.Decode(d.Data)
		if err != nil {
			r.t.Fatalf("decode: %v", err)
		}
		out = append(out, msg)
	}
}

func count[T protocol.Message](msgs []protocol.Message) int {
	n := 0
	for _, m := range msgs {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}

func poll(t *testing.T, s Session, step int32) {
	t.Helper()
	if err := s.Poll(step); err != nil {
		t.Fatalf("Poll(%d): %v", step, err)
	}
}

// admit makes every raw peer join h and drains their hello acks.
func admit(t *testing.T, h *Host, peers ...*raw) {
	t.Helper()
	for _, p := range peers {
		p.send(protocol.Hello{}, h.LocalAddr())
	}
	poll(t, h, 0)
	for _, p := range peers {
		p.recv()
	}
}
