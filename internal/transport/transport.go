// Package transport is the datagram boundary of a lockstep session: a
// non-blocking "send to address" and "try receive" over a connectionless
// socket bound to an ephemeral local port.
package transport

import (
	"errors"
	"fmt"
	"net/netip"
)

var ErrClosed = errors.New("transport: closed")

// Datagram is one received packet and its canonical source address.
type Datagram struct {
	Data []byte
	From netip.AddrPort
}

// Transport abstracts unreliable datagram I/O. None of its methods block.
// The session uses this interface exclusively so tests can inject an
// in-memory network instead of real sockets.
type Transport interface {
	// Send transmits data to a single address. Delivery is not guaranteed.
	Send(data []byte, to netip.AddrPort) error

	// TryReceive returns the next queued datagram, or false if none is queued.
	TryReceive() (Datagram, bool)

	// LocalAddr returns the address the transport is bound to.
	LocalAddr() netip.AddrPort

	// Close releases the socket. Further sends fail with ErrClosed.
	Close() error
}

// Broadcast sends data to every address in to, attempting all of them and
// joining any errors.
func Broadcast(t Transport, data []byte, to []netip.AddrPort) error {
	var errs []error
	for _, addr := range to {
		if err := t.Send(data, addr); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", addr, err))
		}
	}
	return errors.Join(errs...)
}
