package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/pion/transport/v4/stdnet"

	"github.com/1ureka/lockstep/internal/directory"
	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/util"
)

const inboxSize = 256 // datagrams queued between polls

// PacketListener opens datagram sockets. Both pion's stdnet.Net (real
// network) and vnet.Net (virtual network) satisfy it.
type PacketListener interface {
	ListenPacket(network string, address string) (net.PacketConn, error)
}

// UDPTransport implements Transport over a UDP PacketConn.
//
// A single reader goroutine copies each datagram into the inbox; TryReceive
// is a non-blocking receive on that channel, so the polling goroutine never
// touches the socket for reads.
type UDPTransport struct {
	conn  net.PacketConn
	local netip.AddrPort
	inbox chan Datagram

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Listen binds a UDP socket on the real network. Use ":0" or "0.0.0.0:0" for
// an OS-assigned ephemeral port.
func Listen(address string) (*UDPTransport, error) {
	nw, err := stdnet.NewNet()
	if err != nil {
		return nil, fmt.Errorf("transport: create network: %w", err)
	}
	return ListenOn(nw, address)
}

// ListenOn binds a UDP socket using the given network implementation.
func ListenOn(nw PacketListener, address string) (*UDPTransport, error) {
	conn, err := nw.ListenPacket("udp4", address)
	if err != nil {
		return nil, fmt.Errorf("transport: bind %s: %w", address, err)
	}

	local, err := addrPortOf(conn.LocalAddr())
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("transport: local address: %w", err)
	}

	t := &UDPTransport{
		conn:  conn,
		local: local,
		inbox: make(chan Datagram, inboxSize),
		done:  make(chan struct{}),
	}

	t.wg.Add(1)
	go t.readLoop()

	return t, nil
}

// readLoop is the only goroutine reading the socket. It exits when the
// socket is closed.
func (t *UDPTransport) readLoop() {
	defer t.wg.Done()

	// One spare byte detects datagrams larger than the protocol allows.
	buf := make([]byte, protocol.BufferSize+1)
	for {
		n, addr, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP port unreachable and friends surface here; keep reading.
			util.LogDebug("udp read error: %v", err)
			continue
		}

		if n > protocol.BufferSize {
			util.Stats.AddDrop()
			util.LogDebug("dropping oversized datagram from %s", addr)
			continue
		}

		from, err := addrPortOf(addr)
		if err != nil {
			util.LogDebug("dropping datagram from unsupported address %v", addr)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case t.inbox <- Datagram{Data: data, From: from}:
			util.Stats.AddRecv(n)
		default:
			util.Stats.AddDrop()
			util.LogWarning("inbox full, dropping datagram from %s", from)
		}
	}
}

func (t *UDPTransport) Send(data []byte, to netip.AddrPort) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	n, err := t.conn.WriteTo(data, net.UDPAddrFromAddrPort(to))
	if err != nil {
		return err
	}
	util.Stats.AddSent(n)
	return nil
}

func (t *UDPTransport) TryReceive() (Datagram, bool) {
	select {
	case d := <-t.inbox:
		return d, true
	default:
		return Datagram{}, false
	}
}

func (t *UDPTransport) LocalAddr() netip.AddrPort { return t.local }

// Close closes the socket and waits for the reader goroutine to exit.
func (t *UDPTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
		t.wg.Wait()
	})
	return err
}

// addrPortOf converts a socket-reported address to its canonical form.
func addrPortOf(addr net.Addr) (netip.AddrPort, error) {
	udp, ok := addr.(*net.UDPAddr)
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("not a UDP address: %v", addr)
	}
	return directory.Canonical(udp.AddrPort()), nil
}
