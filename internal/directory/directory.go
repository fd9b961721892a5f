// Package directory keeps the ordered roster of remote participants.
//
// Slots are assigned in admission order, are stable for the lifetime of a
// session and are never reused. The admission order is the canonical order
// broadcast to every peer.
package directory

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

var (
	ErrCapacityExceeded = errors.New("directory: capacity exceeded")
	ErrNoIPv4           = errors.New("directory: host has no IPv4 address")
)

// Slot is a remote participant's stable index in the directory.
type Slot int

// Directory is a capacity-bounded, ordered set of participant addresses.
// It is not safe for concurrent use.
type Directory struct {
	max   int
	addrs []netip.AddrPort
}

// New creates an empty directory holding at most max addresses.
func New(max int) *Directory {
	return &Directory{
		max:   max,
		addrs: make([]netip.AddrPort, 0, max),
	}
}

// Canonical normalizes an address so that endpoints obtained from different
// sources compare equal: IPv4-mapped IPv6 addresses are unmapped and zones
// are dropped.
func Canonical(addr netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(addr.Addr().Unmap().WithZone(""), addr.Port())
}

// Add appends addr at the next free slot. Adding an address that is already
// present returns its existing slot.
func (d *Directory) Add(addr netip.AddrPort) (Slot, error) {
	addr = Canonical(addr)
	if slot, ok := d.SlotOf(addr); ok {
		return slot, nil
	}
	if d.Full() {
		return -1, fmt.Errorf("%w: %d of %d slots used", ErrCapacityExceeded, len(d.addrs), d.max)
	}
	d.addrs = append(d.addrs, addr)
	return Slot(len(d.addrs) - 1), nil
}

// Grow raises the capacity to max. A smaller max is ignored.
func (d *Directory) Grow(max int) {
	if max > d.max {
		d.max = max
	}
}

// Contains reports whether addr has been admitted.
func (d *Directory) Contains(addr netip.AddrPort) bool {
	_, ok := d.SlotOf(addr)
	return ok
}

// SlotOf returns the slot assigned to addr.
func (d *Directory) SlotOf(addr netip.AddrPort) (Slot, bool) {
	addr = Canonical(addr)
	for i, a := range d.addrs {
		if a == addr {
			return Slot(i), true
		}
	}
	return -1, false
}

// At returns the address in slot s.
func (d *Directory) At(s Slot) netip.AddrPort { return d.addrs[s] }

func (d *Directory) Len() int   { return len(d.addrs) }
func (d *Directory) Cap() int   { return d.max }
func (d *Directory) Full() bool { return len(d.addrs) >= d.max }

// All returns a copy of every address in slot order.
func (d *Directory) All() []netip.AddrPort {
	out := make([]netip.AddrPort, len(d.addrs))
	copy(out, d.addrs)
	return out
}

// Except returns every address except addr, in slot order.
func (d *Directory) Except(addr netip.AddrPort) []netip.AddrPort {
	addr = Canonical(addr)
	out := make([]netip.AddrPort, 0, len(d.addrs))
	for _, a := range d.addrs {
		if a != addr {
			out = append(out, a)
		}
	}
	return out
}

// Resolve turns a user-supplied host and port into a canonical IPv4 address.
// Host names are looked up; the first IPv4 result wins.
func Resolve(ctx context.Context, host string, port int) (netip.AddrPort, error) {
	if port < 1 || port > 65535 {
		return netip.AddrPort{}, fmt.Errorf("directory: invalid port %d", port)
	}

	if ip, err := netip.ParseAddr(host); err == nil {
		return Canonical(netip.AddrPortFrom(ip, uint16(port))), nil
	}

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("directory: resolve %s: %w", host, err)
	}
	for _, ip := range ips {
		if ip.Unmap().Is4() {
			return Canonical(netip.AddrPortFrom(ip, uint16(port))), nil
		}
	}
	return netip.AddrPort{}, fmt.Errorf("%w: %s", ErrNoIPv4, host)
}

// ResolveHostPort is Resolve for a combined "host:port" string.
func ResolveHostPort(ctx context.Context, hostport string) (netip.AddrPort, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("directory: %w", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("directory: invalid port %q", portStr)
	}
	return Resolve(ctx, host, port)
}
