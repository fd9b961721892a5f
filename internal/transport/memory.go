package transport

import (
	"fmt"
	"net/netip"
	"sync"
)

// Network is an in-process datagram network for tests. Delivery is
// synchronous: a Send is visible to the destination's next TryReceive.
type Network struct {
	mu       sync.Mutex
	nodes    map[netip.AddrPort]*MemoryTransport
	nextPort uint16

	// Drop, when set, is consulted for every datagram; returning true loses it.
	Drop func(from, to netip.AddrPort, data []byte) bool
}

// NewNetwork creates an empty in-memory network.
func NewNetwork() *Network {
	return &Network{
		nodes:    make(map[netip.AddrPort]*MemoryTransport),
		nextPort: 40000,
	}
}

// Listen attaches a new transport with a unique loopback address.
func (n *Network) Listen() *MemoryTransport {
	n.mu.Lock()
	defer n.mu.Unlock()

	addr := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), n.nextPort)
	n.nextPort++

	t := &MemoryTransport{network: n, addr: addr}
	n.nodes[addr] = t
	return t
}

func (n *Network) deliver(from, to netip.AddrPort, data []byte) {
	n.mu.Lock()
	dst, ok := n.nodes[to]
	drop := n.Drop
	n.mu.Unlock()

	// Unknown destinations are silently lost, like UDP.
	if !ok {
		return
	}
	if drop != nil && drop(from, to, data) {
		return
	}

	cp := make([]byte, len(data))
	copy(cp, data)
	dst.enqueue(Datagram{Data: cp, From: from})
}

// MemoryTransport is a Transport attached to a Network.
type MemoryTransport struct {
	network *Network
	addr    netip.AddrPort

	mu     sync.Mutex
	queue  []Datagram
	sent   int
	closed bool
}

func (t *MemoryTransport) enqueue(d Datagram) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.queue = append(t.queue, d)
	}
}

func (t *MemoryTransport) Send(data []byte, to netip.AddrPort) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	t.sent++
	t.mu.Unlock()

	t.network.deliver(t.addr, to, data)
	return nil
}

func (t *MemoryTransport) TryReceive() (Datagram, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return Datagram{}, false
	}
	d := t.queue[0]
	t.queue = t.queue[1:]
	return d, true
}

func (t *MemoryTransport) LocalAddr() netip.AddrPort { return t.addr }

// Sent returns how many datagrams this transport has sent.
func (t *MemoryTransport) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

// Pending returns how many datagrams are queued for TryReceive.
func (t *MemoryTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrClosed, t.addr)
	}
	t.closed = true
	t.queue = nil
	t.mu.Unlock()

	t.network.mu.Lock()
	delete(t.network.nodes, t.addr)
	t.network.mu.Unlock()
	return nil
}
