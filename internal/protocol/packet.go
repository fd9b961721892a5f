// Package protocol defines the lockstep wire format.
//
// Every datagram starts with a one-byte Kind tag. Integers are 4-byte signed
// little-endian. A datagram never exceeds BufferSize bytes; there is no
// fragmentation.
package protocol

import "fmt"

// Kind is the first byte of every datagram.
type Kind uint8

// Message kinds.
const (
	KindHello       Kind = 0 // Peer → host: request admission
	KindAcknowledge Kind = 1 // Acknowledges a Hello or AddPeers
	KindAddPeers    Kind = 2 // Host → peer: the roster
	KindInputState  Kind = 3 // Recent local input window
	KindChat        Kind = 4 // Free-form ASCII text
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "Hello"
	case KindAcknowledge:
		return "Acknowledge"
	case KindAddPeers:
		return "AddPeers"
	case KindInputState:
		return "InputState"
	case KindChat:
		return "Chat"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

const (
	// BufferSize is the capacity of the shared encode/receive buffer.
	BufferSize = 1024

	// RecordSize is the encoded size of an InputRecord: Step(4) + AxisX(4) + AxisY(4).
	RecordSize = 12

	// MaxEndpointLen is the longest endpoint string an AddPeers entry can carry.
	MaxEndpointLen = 255

	// MaxCount is the largest value of a one-byte count field.
	MaxCount = 255
)

// InputRecord is one participant's intended motion for exactly one step.
type InputRecord struct {
	Step  int32
	AxisX int32
	AxisY int32
}

// Message is the tagged union of everything that travels on the wire.
type Message interface {
	Kind() Kind
}

// Hello asks the host for a slot.
type Hello struct{}

// Acknowledge confirms receipt of a message of kind Of.
type Acknowledge struct {
	Of Kind
}

// AddPeers carries the roster from the host to one peer.
//
// Peers lists every other participant except the host and the recipient, in
// host admission order. Index is the recipient's position in the canonical
// participant order (host = 0); a negative Index means the trailing byte is
// absent and the recipient should place itself last.
type AddPeers struct {
	Peers []string
	Index int
}

// InputState carries a sender's retained input window.
type InputState struct {
	Records []InputRecord
}

// Chat is ancillary text, not part of the lockstep protocol.
type Chat struct {
	Text string
}

func (Hello) Kind() Kind       { return KindHello }
func (Acknowledge) Kind() Kind { return KindAcknowledge }
func (AddPeers) Kind() Kind    { return KindAddPeers }
func (InputState) Kind() Kind  { return KindInputState }
func (Chat) Kind() Kind        { return KindChat }
