// Package session implements the lockstep session state machines.
//
// A Host admits peers while in the lobby, distributes the roster once the
// game is started and then exchanges per-step input like every other
// participant. A Peer says hello to a known host, applies the roster it is
// sent and then exchanges input. Both are driven by a single goroutine that
// calls Poll once per tick; nothing in this package blocks.
package session

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/1ureka/lockstep/internal/input"
	"github.com/1ureka/lockstep/internal/protocol"
)

var (
	ErrPeerUnresponsive = errors.New("session: peer unresponsive")
	ErrWrongPhase       = errors.New("session: operation not allowed in this phase")
	ErrNotReady         = errors.New("session: step inputs not ready")
	ErrBadRoster        = errors.New("session: malformed roster")
)

// Phase is the per-participant session phase. Phases only move forward.
type Phase int

const (
	InLobby Phase = iota
	StartingGame
	InGame
)

func (p Phase) String() string {
	switch p {
	case InLobby:
		return "InLobby"
	case StartingGame:
		return "StartingGame"
	case InGame:
		return "InGame"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Defaults applied to zero Config fields.
const (
	DefaultHostMaxPeers  = 3
	DefaultPeerMaxPeers  = 4
	DefaultRetryInterval = 100 * time.Millisecond
)

// Config tunes a session. Zero values select the defaults.
type Config struct {
	// MaxPeers bounds the directory. A host's directory excludes the host;
	// a peer's directory holds the host plus every other peer.
	MaxPeers int

	// RetryInterval is the minimum time between two sends of an
	// unacknowledged Hello or AddPeers.
	RetryInterval time.Duration

	// MaxAttempts caps unacknowledged sends before Poll fails with
	// ErrPeerUnresponsive. Zero retries forever.
	MaxAttempts int

	// WindowSize is how many local input records every InputState carries.
	WindowSize int

	// Now is the clock used for retry scheduling.
	Now func() time.Time
}

func (c Config) withDefaults(maxPeers int) Config {
	if c.MaxPeers <= 0 {
		c.MaxPeers = maxPeers
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.MaxAttempts < 0 {
		c.MaxAttempts = 0
	}
	if c.WindowSize <= 0 {
		c.WindowSize = input.DefaultWindowSize
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Session is the driver-facing API shared by Host and Peer.
type Session interface {
	// Poll drains every queued datagram and performs due retries. step is
	// the step the caller is waiting to advance.
	Poll(step int32) error

	Phase() Phase

	// SubmitLocalInput records rec in the local window and broadcasts the
	// window to every known participant.
	SubmitLocalInput(rec protocol.InputRecord) error

	// IsReadyToAdvance reports whether every participant's input for the
	// awaited step is available.
	IsReadyToAdvance() bool

	// CollectStepInputs returns one record per participant in canonical
	// participant order and clears the collected remote inputs.
	CollectStepInputs() ([]protocol.InputRecord, error)

	// Waiting lists the remote participants whose input for the awaited
	// step has not arrived yet. Empty outside InGame.
	Waiting() []netip.AddrPort

	// LastInput returns the newest local record submitted.
	LastInput() (protocol.InputRecord, bool)

	// Participants counts every participant including the local one.
	Participants() int

	// LocalIndex is the local participant's canonical index (host = 0).
	LocalIndex() int

	// Peers returns the directory in slot order.
	Peers() []netip.AddrPort

	LocalAddr() netip.AddrPort

	SendChat(text string) error
	OnChat(fn func(from netip.AddrPort, text string))
	OnPhaseChange(fn func(Phase))

	Close() error
}

var (
	_ Session = (*Host)(nil)
	_ Session = (*Peer)(nil)
)
