// Package monitor publishes a live JSON feed of a running lockstep session
// over WebSocket, so the session can be watched from another terminal or a
// browser while it runs headless.
package monitor

import (
	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/sim"
)

// EventType identifies the kind of feed event.
type EventType string

const (
	EventPhase EventType = "phase"
	EventStep  EventType = "step"
	EventChat  EventType = "chat"
)

// Event is the JSON structure sent to every watcher.
type Event struct {
	Type     EventType              `json:"type"`
	Phase    string                 `json:"phase,omitempty"`
	Step     int32                  `json:"step"`
	Checksum uint32                 `json:"checksum,omitempty"`
	Players  []sim.Point            `json:"players,omitempty"`
	Inputs   []protocol.InputRecord `json:"inputs,omitempty"`
	From     string                 `json:"from,omitempty"`
	Text     string                 `json:"text,omitempty"`
}
