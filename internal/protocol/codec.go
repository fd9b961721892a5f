package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrEmpty            = errors.New("protocol: empty datagram")
	ErrTruncated        = errors.New("protocol: truncated datagram")
	ErrUnknownKind      = errors.New("protocol: unknown kind")
	ErrOverflow         = errors.New("protocol: message exceeds buffer size")
	ErrEndpointTooLong  = errors.New("protocol: endpoint string too long")
	ErrTooManyEntries   = errors.New("protocol: too many entries")
	ErrUnsupportedValue = errors.New("protocol: unsupported message value")
)

// Size returns the encoded length of msg.
func Size(msg Message) int {
	switch m := msg.(type) {
	case Hello:
		return 1
	case Acknowledge:
		return 2
	case AddPeers:
		n := 2
		for _, p := range m.Peers {
			n += 1 + len(p)
		}
		if m.Index >= 0 {
			n++
		}
		return n
	case InputState:
		return 2 + len(m.Records)*RecordSize
	case Chat:
		return 1 + len(m.Text)
	default:
		return 0
	}
}

// Encode serializes msg into dst[:0] and returns the encoded slice.
// A dst with capacity BufferSize is never reallocated.
func Encode(dst []byte, msg Message) ([]byte, error) {
	size := Size(msg)
	if size == 0 {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, msg)
	}
	if size > BufferSize {
		return nil, fmt.Errorf("%w: %s needs %d bytes", ErrOverflow, msg.Kind(), size)
	}

	buf := append(dst[:0], byte(msg.Kind()))

	switch m := msg.(type) {
	case Hello:
	case Acknowledge:
		buf = append(buf, byte(m.Of))

	case AddPeers:
		if len(m.Peers) > MaxCount {
			return nil, fmt.Errorf("%w: %d peers", ErrTooManyEntries, len(m.Peers))
		}
		buf = append(buf, byte(len(m.Peers)))
		for _, p := range m.Peers {
			if len(p) > MaxEndpointLen {
				return nil, fmt.Errorf("%w: %q", ErrEndpointTooLong, p)
			}
			buf = append(buf, byte(len(p)))
			buf = append(buf, p...)
		}
		if m.Index >= 0 {
			if m.Index > MaxCount {
				return nil, fmt.Errorf("%w: index %d", ErrUnsupportedValue, m.Index)
			}
			buf = append(buf, byte(m.Index))
		}

	case InputState:
		if len(m.Records) > MaxCount {
			return nil, fmt.Errorf("%w: %d records", ErrTooManyEntries, len(m.Records))
		}
		buf = append(buf, byte(len(m.Records)))
		for _, r := range m.Records {
			buf = appendRecord(buf, r)
		}

	case Chat:
		buf = append(buf, m.Text...)
	}

	return buf, nil
}

func appendRecord(buf []byte, r InputRecord) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.Step))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.AxisX))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(r.AxisY))
	return buf
}

func readRecord(data []byte) InputRecord {
	return InputRecord{
		Step:  int32(binary.LittleEndian.Uint32(data[0:4])),
		AxisX: int32(binary.LittleEndian.Uint32(data[4:8])),
		AxisY: int32(binary.LittleEndian.Uint32(data[8:12])),
	}
}

// Decode parses a single datagram.
func Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	switch Kind(data[0]) {
	case KindHello:
		return Hello{}, nil

	case KindAcknowledge:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: Acknowledge has %d bytes", ErrTruncated, len(data))
		}
		return Acknowledge{Of: Kind(data[1])}, nil

	case KindAddPeers:
		return decodeAddPeers(data)

	case KindInputState:
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: InputState has no count", ErrTruncated)
		}
		count := int(data[1])
		if len(data) < 2+count*RecordSize {
			return nil, fmt.Errorf("%w: InputState declares %d records in %d bytes", ErrTruncated, count, len(data))
		}
		records := make([]InputRecord, count)
		for i := range records {
			off := 2 + i*RecordSize
			records[i] = readRecord(data[off : off+RecordSize])
		}
		return InputState{Records: records}, nil

	case KindChat:
		return Chat{Text: string(data[1:])}, nil

	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, data[0])
	}
}

func decodeAddPeers(data []byte) (Message, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: AddPeers has no count", ErrTruncated)
	}
	count := int(data[1])
	peers := make([]string, 0, count)

	off := 2
	for i := 0; i < count; i++ {
		if off >= len(data) {
			return nil, fmt.Errorf("%w: AddPeers entry %d missing", ErrTruncated, i)
		}
		n := int(data[off])
		off++
		if off+n > len(data) {
			return nil, fmt.Errorf("%w: AddPeers entry %d declares %d bytes", ErrTruncated, i, n)
		}
		peers = append(peers, string(data[off:off+n]))
		off += n
	}

	msg := AddPeers{Peers: peers, Index: -1}
	if off < len(data) {
		msg.Index = int(data[off])
	}
	return msg, nil
}

// IsAcknowledgement reports whether data is an Acknowledge of kind of,
// looking only at the first two bytes.
func IsAcknowledgement(data []byte, of Kind) bool {
	return len(data) >= 2 && Kind(data[0]) == KindAcknowledge && Kind(data[1]) == of
}
