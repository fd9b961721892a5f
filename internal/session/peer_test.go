package session

import (
	"errors"
	"reflect"
	"testing"

	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/transport"
)

func newTestPeer(t *testing.T, nw *transport.Network, host *raw, cfg Config) *Peer {
	t.Helper()
	p, err := NewPeer(nw.Listen(), host.addr(), cfg)
	if err != nil {
		t.Fatalf("NewPeer: %v", err)
	}
	return p
}

func TestPeerHelloRetry(t *testing.T) {
	nw := transport.NewNetwork()
	clk := newFakeClock()
	host := newRaw(t, nw)
	p := newTestPeer(t, nw, host, testConfig(clk))

	poll(t, p, 0)
	poll(t, p, 0)
	if got := count[protocol.Hello](host.recv()); got != 1 {
		t.Fatalf("%d hellos within one interval, want 1", got)
	}

	clk.Advance(testInterval)
	poll(t, p, 0)
	if got := count[protocol.Hello](host.recv()); got != 1 {
		t.Fatalf("%d hellos after the interval, want 1", got)
	}

	host.send(protocol.Acknowledge{Of: protocol.KindHello}, p.LocalAddr())
	poll(t, p, 0)
	if p.Phase() != StartingGame {
		t.Fatalf("phase = %s, want StartingGame", p.Phase())
	}

	clk.Advance(testInterval)
	poll(t, p, 0)
	if got := count[protocol.Hello](host.recv()); got != 0 {
		t.Errorf("%d hellos after the ack, want 0", got)
	}
}

func TestPeerIgnoresAckFromStranger(t *testing.T) {
	nw := transport.NewNetwork()
	host, stranger := newRaw(t, nw), newRaw(t, nw)
	p := newTestPeer(t, nw, host, testConfig(newFakeClock()))

	stranger.send(protocol.Acknowledge{Of: protocol.KindHello}, p.LocalAddr())
	stranger.send(protocol.AddPeers{Peers: nil, Index: 1}, p.LocalAddr())
	poll(t, p, 0)

	if p.Phase() != InLobby {
		t.Errorf("phase = %s, want InLobby", p.Phase())
	}
	if msgs := stranger.recv(); len(msgs) != 0 {
		t.Errorf("stranger got %v", msgs)
	}
}

// TestPeerAppliesRosterOnce: the first roster fills the directory; later
// ones, even with different content, only produce another acknowledgement.
func TestPeerAppliesRosterOnce(t *testing.T) {
	nw := transport.NewNetwork()
	host := newRaw(t, nw)
	p := newTestPeer(t, nw, host, testConfig(newFakeClock()))

	poll(t, p, 0)
	host.recv()
	host.send(protocol.Acknowledge{Of: protocol.KindHello}, p.LocalAddr())
	poll(t, p, 0)

	roster := protocol.AddPeers{Peers: []string{"10.0.0.2:4000", "10.0.0.3:4001"}, Index: 3}
	host.send(roster, p.LocalAddr())
	poll(t, p, 0)

	if p.Phase() != InGame {
		t.Fatalf("phase = %s, want InGame", p.Phase())
	}
	wantDir := []string{host.addr().String(), "10.0.0.2:4000", "10.0.0.3:4001"}
	if got := addrStrings(p); !reflect.DeepEqual(got, wantDir) {
		t.Fatalf("directory = %v, want %v", got, wantDir)
	}
	if p.LocalIndex() != 3 || p.Participants() != 4 {
		t.Errorf("local index %d of %d, want 3 of 4", p.LocalIndex(), p.Participants())
	}
	if msgs := host.recv(); len(msgs) != 1 || !reflect.DeepEqual(msgs[0], protocol.Acknowledge{Of: protocol.KindAddPeers}) {
		t.Fatalf("host got %v, want one roster ack", msgs)
	}

	for i := 0; i < 2; i++ {
		host.send(protocol.AddPeers{Peers: []string{"10.9.9.9:1"}, Index: 1}, p.LocalAddr())
		poll(t, p, 0)
		if got := count[protocol.Acknowledge](host.recv()); got != 1 {
			t.Errorf("duplicate %d: %d acks, want 1", i, got)
		}
	}
	if got := addrStrings(p); !reflect.DeepEqual(got, wantDir) {
		t.Errorf("directory changed to %v", got)
	}
	if p.LocalIndex() != 3 {
		t.Errorf("local index changed to %d", p.LocalIndex())
	}
}

func TestPeerTreatsRosterAsHelloAck(t *testing.T) {
	nw := transport.NewNetwork()
	host := newRaw(t, nw)
	p := newTestPeer(t, nw, host, testConfig(newFakeClock()))

	poll(t, p, 0)
	host.recv()
	host.send(protocol.AddPeers{Peers: []string{}, Index: 1}, p.LocalAddr())
	poll(t, p, 0)

	if p.Phase() != InGame {
		t.Fatalf("phase = %s, want InGame", p.Phase())
	}
	if got := count[protocol.Acknowledge](host.recv()); got != 1 {
		t.Errorf("%d roster acks, want 1", got)
	}
}

func TestPeerRosterIndex(t *testing.T) {
	testCases := []struct {
		name  string
		index int
		want  int
	}{
		{"first peer", 1, 1},
		{"last peer", 3, 3},
		{"absent places last", -1, 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			nw := transport.NewNetwork()
			host := newRaw(t, nw)
			p := newTestPeer(t, nw, host, testConfig(newFakeClock()))

			host.send(protocol.AddPeers{Peers: []string{"10.0.0.2:1", "10.0.0.3:1"}, Index: tc.index}, p.LocalAddr())
			poll(t, p, 0)

			if p.Phase() != InGame {
				t.Fatalf("phase = %s, want InGame", p.Phase())
			}
			if p.LocalIndex() != tc.want {
				t.Errorf("LocalIndex = %d, want %d", p.LocalIndex(), tc.want)
			}
		})
	}
}

// TestPeerDropsMalformedRoster: a roster that cannot be applied whole is
// dropped without an ack or a phase change, and the next valid one is
// applied normally.
func TestPeerDropsMalformedRoster(t *testing.T) {
	testCases := []struct {
		name      string
		helloAckd bool
		roster    protocol.AddPeers
	}{
		{"unparseable entry", true, protocol.AddPeers{Peers: []string{"10.0.0.1:1", "not-an-endpoint"}, Index: 3}},
		{"unparseable entry in lobby", false, protocol.AddPeers{Peers: []string{"10.0.0.1:1", "not-an-endpoint"}, Index: 3}},
		{"duplicate entry", true, protocol.AddPeers{Peers: []string{"10.0.0.1:1", "10.0.0.1:1"}, Index: 3}},
		{"mapped duplicate entry", true, protocol.AddPeers{Peers: []string{"10.0.0.1:1", "[::ffff:10.0.0.1]:1"}, Index: 1}},
		{"host index", true, protocol.AddPeers{Peers: []string{"10.0.0.1:1"}, Index: 0}},
		{"index past roster", true, protocol.AddPeers{Peers: []string{"10.0.0.1:1"}, Index: 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			nw := transport.NewNetwork()
			host := newRaw(t, nw)
			p := newTestPeer(t, nw, host, testConfig(newFakeClock()))

			poll(t, p, 0)
			host.recv()
			want := InLobby
			if tc.helloAckd {
				host.send(protocol.Acknowledge{Of: protocol.KindHello}, p.LocalAddr())
				poll(t, p, 0)
				want = StartingGame
			}

			host.send(tc.roster, p.LocalAddr())
			poll(t, p, 0)

			if p.Phase() != want {
				t.Fatalf("phase = %s, want %s", p.Phase(), want)
			}
			if p.Participants() != 1 {
				t.Errorf("directory = %v, want only the host", addrStrings(p))
			}
			if got := count[protocol.Acknowledge](host.recv()); got != 0 {
				t.Errorf("%d acks for a dropped roster, want 0", got)
			}

			host.send(protocol.AddPeers{Peers: []string{"10.0.0.1:1"}, Index: 2}, p.LocalAddr())
			poll(t, p, 0)
			if p.Phase() != InGame || p.Participants() != 3 || p.LocalIndex() != 2 {
				t.Errorf("after a valid roster: %s, %d participants, index %d", p.Phase(), p.Participants(), p.LocalIndex())
			}
			if got := count[protocol.Acknowledge](host.recv()); got != 1 {
				t.Errorf("%d acks for the valid roster, want 1", got)
			}
		})
	}
}

// TestPeerGrowsForLargeRoster: a default peer joining a host configured for
// more peers than its own capacity still takes the full roster.
func TestPeerGrowsForLargeRoster(t *testing.T) {
	nw := transport.NewNetwork()
	host := newRaw(t, nw)
	p := newTestPeer(t, nw, host, testConfig(newFakeClock()))

	peers := []string{"10.0.0.1:1", "10.0.0.2:1", "10.0.0.3:1", "10.0.0.4:1"}
	host.send(protocol.AddPeers{Peers: peers, Index: 5}, p.LocalAddr())
	poll(t, p, 0)

	if p.Phase() != InGame {
		t.Fatalf("phase = %s, want InGame", p.Phase())
	}
	if p.Participants() != 6 || p.LocalIndex() != 5 {
		t.Errorf("local index %d of %d, want 5 of 6", p.LocalIndex(), p.Participants())
	}
}

// TestLargeHostWithDefaultPeers: every default-config peer of a five-peer
// host agrees on the participant count and gets a distinct index.
func TestLargeHostWithDefaultPeers(t *testing.T) {
	nw := transport.NewNetwork()
	clk := newFakeClock()
	hostCfg := testConfig(clk)
	hostCfg.MaxPeers = 5
	h := NewHost(nw.Listen(), hostCfg)

	sessions := []Session{h}
	for i := 0; i < 5; i++ {
		p, err := NewPeer(nw.Listen(), h.LocalAddr(), testConfig(clk))
		if err != nil {
			t.Fatal(err)
		}
		sessions = append(sessions, p)
	}

	for tick := 0; ; tick++ {
		if tick > 100 {
			t.Fatal("sessions never all reached InGame")
		}
		if h.Phase() == InLobby && h.Participants() == len(sessions) {
			if err := h.BeginStartingGame(); err != nil {
				t.Fatal(err)
			}
		}
		inGame := 0
		for _, s := range sessions {
			poll(t, s, 0)
			if s.Phase() == InGame {
				inGame++
			}
		}
		if inGame == len(sessions) {
			break
		}
		clk.Advance(testInterval)
	}

	seen := map[int]bool{}
	for i, s := range sessions {
		if s.Participants() != 6 {
			t.Errorf("session %d sees %d participants, want 6", i, s.Participants())
		}
		if seen[s.LocalIndex()] {
			t.Errorf("session %d reuses index %d", i, s.LocalIndex())
		}
		seen[s.LocalIndex()] = true
	}
}

// TestPeerCollectsInCanonicalOrder: a peer at index 1 of 3 sees the host,
// itself, then the other peer.
func TestPeerCollectsInCanonicalOrder(t *testing.T) {
	nw := transport.NewNetwork()
	host, other := newRaw(t, nw), newRaw(t, nw)
	p := newTestPeer(t, nw, host, testConfig(newFakeClock()))

	host.send(protocol.AddPeers{Peers: []string{other.addr().String()}, Index: 1}, p.LocalAddr())
	poll(t, p, 0)

	local := protocol.InputRecord{Step: 0, AxisX: 1}
	if err := p.SubmitLocalInput(local); err != nil {
		t.Fatal(err)
	}
	for _, r := range []*raw{host, other} {
		if got := count[protocol.InputState](r.recv()); got != 1 {
			t.Errorf("%s got %d input states, want 1", r.addr(), got)
		}
	}

	fromHost := protocol.InputRecord{Step: 0, AxisY: -1}
	fromOther := protocol.InputRecord{Step: 0, AxisX: -1}
	other.send(protocol.InputState{Records: []protocol.InputRecord{fromOther}}, p.LocalAddr())
	host.send(protocol.InputState{Records: []protocol.InputRecord{fromHost}}, p.LocalAddr())
	poll(t, p, 0)

	got, err := p.CollectStepInputs()
	if err != nil {
		t.Fatal(err)
	}
	if want := []protocol.InputRecord{fromHost, local, fromOther}; !reflect.DeepEqual(got, want) {
		t.Errorf("inputs = %v, want %v", got, want)
	}
}

func TestPeerUnresponsiveHost(t *testing.T) {
	nw := transport.NewNetwork()
	clk := newFakeClock()
	cfg := testConfig(clk)
	cfg.MaxAttempts = 2
	host := newRaw(t, nw)
	p := newTestPeer(t, nw, host, cfg)

	for i := 0; i < cfg.MaxAttempts; i++ {
		poll(t, p, 0)
		clk.Advance(testInterval)
	}
	if err := p.Poll(0); !errors.Is(err, ErrPeerUnresponsive) {
		t.Fatalf("got %v, want ErrPeerUnresponsive", err)
	}
}

func addrStrings(s Session) []string {
	var out []string
	for _, a := range s.Peers() {
		out = append(out, a.String())
	}
	return out
}
