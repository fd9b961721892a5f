// Package capture records lockstep traffic to pcap files and decodes such
// files back into protocol messages.
//
// Datagrams are written as synthetic Ethernet/IP/UDP frames so the files
// open in any packet analyzer.
package capture

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/1ureka/lockstep/internal/transport"
	"github.com/1ureka/lockstep/internal/util"
)

const snapLen = 65535

var (
	srcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	dstMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Writer appends datagrams to a pcap stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	buf    gopacket.SerializeBuffer
	now    func() time.Time
	count  int
}

// Create truncates path and writes a pcap file header.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	w, err := NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	w.closer = f
	return w, nil
}

// NewWriter writes a pcap file header to w.
func NewWriter(w io.Writer) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("capture: write header: %w", err)
	}
	return &Writer{w: pw, buf: gopacket.NewSerializeBuffer(), now: time.Now}, nil
}

// Write records one datagram from one address to another.
func (w *Writer) Write(from, to netip.AddrPort, payload []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	frame, err := w.frame(from, to, payload)
	if err != nil {
		return err
	}
	ci := gopacket.CaptureInfo{
		Timestamp:     w.now(),
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := w.w.WritePacket(ci, frame); err != nil {
		return fmt.Errorf("capture: write packet: %w", err)
	}
	w.count++
	return nil
}

// frame serializes an Ethernet/IP/UDP frame around payload.
func (w *Writer) frame(from, to netip.AddrPort, payload []byte) ([]byte, error) {
	from, to = normalize(from), normalize(to)
	if from.Addr().Is4() != to.Addr().Is4() {
		return nil, fmt.Errorf("capture: mixed address families %s → %s", from, to)
	}

	eth := &layers.Ethernet{SrcMAC: srcMAC, DstMAC: dstMAC}
	udp := &layers.UDP{SrcPort: layers.UDPPort(from.Port()), DstPort: layers.UDPPort(to.Port())}

	var network gopacket.SerializableLayer
	if from.Addr().Is4() {
		eth.EthernetType = layers.EthernetTypeIPv4
		ip := &layers.IPv4{
			Version:  4,
			TTL:      64,
			Protocol: layers.IPProtocolUDP,
			SrcIP:    from.Addr().AsSlice(),
			DstIP:    to.Addr().AsSlice(),
		}
		udp.SetNetworkLayerForChecksum(ip) //nolint:errcheck
		network = ip
	} else {
		eth.EthernetType = layers.EthernetTypeIPv6
		ip := &layers.IPv6{
			Version:    6,
			HopLimit:   64,
			NextHeader: layers.IPProtocolUDP,
			SrcIP:      from.Addr().AsSlice(),
			DstIP:      to.Addr().AsSlice(),
		}
		udp.SetNetworkLayerForChecksum(ip) //nolint:errcheck
		network = ip
	}

	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(w.buf, opts, eth, network, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("capture: serialize: %w", err)
	}
	return w.buf.Bytes(), nil
}

// Count returns how many datagrams have been written.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close closes the underlying file, if Create opened one.
func (w *Writer) Close() error {
	if w.closer == nil {
		return nil
	}
	return w.closer.Close()
}

// normalize unmaps IPv4-mapped addresses and substitutes loopback for an
// unspecified address so captures show a usable endpoint.
func normalize(a netip.AddrPort) netip.AddrPort {
	ip := a.Addr().Unmap()
	switch {
	case !ip.IsValid():
		ip = netip.IPv4Unspecified()
	case ip.IsUnspecified() && ip.Is4():
		ip = netip.MustParseAddr("127.0.0.1")
	case ip.IsUnspecified():
		ip = netip.IPv6Loopback()
	}
	return netip.AddrPortFrom(ip.WithZone(""), a.Port())
}

// ---------------------------------------------------------------------------
// Transport decorator
// ---------------------------------------------------------------------------

// Transport records every datagram that passes through the wrapped
// transport. Capture failures are logged and never affect delivery.
type Transport struct {
	transport.Transport
	w *Writer
}

// Wrap decorates t so its traffic is written to w. Closing the returned
// transport also closes w.
func Wrap(t transport.Transport, w *Writer) *Transport {
	return &Transport{Transport: t, w: w}
}

func (t *Transport) Send(data []byte, to netip.AddrPort) error {
	if err := t.Transport.Send(data, to); err != nil {
		return err
	}
	if err := t.w.Write(t.LocalAddr(), to, data); err != nil {
		util.LogDebug("capture: %v", err)
	}
	return nil
}

func (t *Transport) TryReceive() (transport.Datagram, bool) {
	d, ok := t.Transport.TryReceive()
	if ok {
		if err := t.w.Write(d.From, t.LocalAddr(), d.Data); err != nil {
			util.LogDebug("capture: %v", err)
		}
	}
	return d, ok
}

func (t *Transport) Close() error {
	return errors.Join(t.Transport.Close(), t.w.Close())
}
