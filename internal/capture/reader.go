package capture

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/1ureka/lockstep/internal/protocol"
)

// Packet is one captured UDP datagram and its decoded lockstep message.
// Err is set when the payload is not a valid lockstep datagram.
type Packet struct {
	Time    time.Time
	From    netip.AddrPort
	To      netip.AddrPort
	Size    int
	Message protocol.Message
	Err     error
}

type packetSource interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// Read decodes every UDP datagram in a pcap or pcapng file.
func Read(path string) ([]Packet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a pcap or pcapng stream, detected by its magic number.
func Decode(r io.Reader) ([]Packet, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("capture: read magic: %w", err)
	}

	var src packetSource
	if magic[0] == 0x0A && magic[1] == 0x0D && magic[2] == 0x0D && magic[3] == 0x0A {
		src, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		src, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("capture: open stream: %w", err)
	}

	var out []Packet
	packets := gopacket.NewPacketSource(src, src.LinkType())
	for {
		packet, err := packets.NextPacket()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("capture: packet %d: %w", len(out), err)
		}

		p, ok := decodePacket(packet)
		if ok {
			out = append(out, p)
		}
	}
}

func decodePacket(packet gopacket.Packet) (Packet, bool) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return Packet{}, false
	}
	udp := udpLayer.(*layers.UDP)

	var srcIP, dstIP netip.Addr
	switch ip := packet.NetworkLayer().(type) {
	case *layers.IPv4:
		srcIP, _ = netip.AddrFromSlice(ip.SrcIP)
		dstIP, _ = netip.AddrFromSlice(ip.DstIP)
	case *layers.IPv6:
		srcIP, _ = netip.AddrFromSlice(ip.SrcIP)
		dstIP, _ = netip.AddrFromSlice(ip.DstIP)
	default:
		return Packet{}, false
	}

	p := Packet{
		Time: packet.Metadata().Timestamp,
		From: netip.AddrPortFrom(srcIP.Unmap(), uint16(udp.SrcPort)),
		To:   netip.AddrPortFrom(dstIP.Unmap(), uint16(udp.DstPort)),
		Size: len(udp.Payload),
	}
	p.Message, p.Err = protocol.Decode(udp.Payload)
	return p, true
}

// Describe renders a decoded message on one line.
func Describe(msg protocol.Message) string {
	switch m := msg.(type) {
	case protocol.Acknowledge:
		return fmt.Sprintf("Acknowledge(%s)", m.Of)
	case protocol.AddPeers:
		s := fmt.Sprintf("AddPeers [%s]", strings.Join(m.Peers, " "))
		if m.Index >= 0 {
			s += fmt.Sprintf(" index=%d", m.Index)
		}
		return s
	case protocol.InputState:
		parts := make([]string, len(m.Records))
		for i, r := range m.Records {
			parts[i] = fmt.Sprintf("%d:(%d,%d)", r.Step, r.AxisX, r.AxisY)
		}
		return fmt.Sprintf("InputState [%s]", strings.Join(parts, " "))
	case protocol.Chat:
		return fmt.Sprintf("Chat %q", m.Text)
	case nil:
		return "<nil>"
	default:
		return msg.Kind().String()
	}
}
