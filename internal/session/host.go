package session

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/1ureka/lockstep/internal/directory"
	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/transport"
	"github.com/1ureka/lockstep/internal/util"
)

// Host is the session of the participant that admits peers and distributes
// the roster. Its canonical participant index is 0; the peer in directory
// slot s has index s+1.
type Host struct {
	core

	started   []bool // per slot: AddPeers acknowledged
	retries   []retry
	unstarted int
}

// NewHost creates a host session on tr. The transport is owned by the
// session from here on and released by Close.
func NewHost(tr transport.Transport, cfg Config) *Host {
	cfg = cfg.withDefaults(DefaultHostMaxPeers)
	h := &Host{core: newCore("host", tr, cfg)}
	util.LogInfo("[host] listening on %s (max %d peers)", tr.LocalAddr(), cfg.MaxPeers)
	return h
}

// BeginStartingGame closes admission and starts distributing the roster.
// With no peers the host goes straight to InGame.
func (h *Host) BeginStartingGame() error {
	if h.phase != InLobby {
		return fmt.Errorf("%w: begin starting game in %s", ErrWrongPhase, h.phase)
	}

	n := h.dir.Len()
	h.started = make([]bool, n)
	h.retries = make([]retry, n)
	for i := range h.retries {
		h.retries[i] = newRetry(h.cfg)
	}
	h.unstarted = n

	util.LogInfo("[host] starting game with %d peers", n)
	h.setPhase(StartingGame)
	if n == 0 {
		h.enterGame()
	}
	return nil
}

// Started reports whether the peer in slot has acknowledged the roster.
func (h *Host) Started(slot directory.Slot) bool {
	return int(slot) < len(h.started) && h.started[slot]
}

func (h *Host) Poll(step int32) error {
	if err := h.beginPoll(step); err != nil {
		return err
	}

	if h.phase == StartingGame {
		if err := h.sendRosters(); err != nil {
			return err
		}
	}

	h.drain(h.handle)

	if h.phase == StartingGame && h.unstarted == 0 {
		h.enterGame()
	}
	return nil
}

// sendRosters sends AddPeers to every unstarted peer whose retry is due.
func (h *Host) sendRosters() error {
	now := h.cfg.Now()

	var errs []error
	for i, addr := range h.dir.All() {
		if h.started[i] || !h.retries[i].due(now) {
			continue
		}
		if !h.retries[i].fire(now) {
			errs = append(errs, fmt.Errorf("%w: %s did not acknowledge the roster after %d attempts",
				ErrPeerUnresponsive, addr, h.retries[i].attempts))
			continue
		}
		h.send(h.rosterFor(directory.Slot(i)), addr)
	}
	return errors.Join(errs...)
}

// rosterFor lists every other peer in slot order, plus the recipient's
// canonical participant index.
func (h *Host) rosterFor(slot directory.Slot) protocol.AddPeers {
	others := h.dir.Except(h.dir.At(slot))
	peers := make([]string, len(others))
	for i, a := range others {
		peers[i] = a.String()
	}
	return protocol.AddPeers{Peers: peers, Index: int(slot) + 1}
}

// ---------------------------------------------------------------------------
// Message handling
// ---------------------------------------------------------------------------

func (h *Host) handle(from netip.AddrPort, msg protocol.Message) {
	if h.handleCommon(from, msg) {
		return
	}

	switch m := msg.(type) {
	case protocol.Hello:
		h.handleHello(from)

	case protocol.Acknowledge:
		if m.Of != protocol.KindAddPeers || h.phase != StartingGame {
			util.LogDebug("[host] ignore %s ack from %s in %s", m.Of, from, h.phase)
			return
		}
		slot, ok := h.dir.SlotOf(from)
		if !ok {
			util.LogDebug("[host] roster ack from unknown sender %s", from)
			return
		}
		if h.started[slot] {
			return
		}
		h.started[slot] = true
		h.unstarted--
		util.LogInfo("[host] peer %s (slot %d) has the roster, %d remaining", from, slot, h.unstarted)

	default:
		util.LogDebug("[host] unexpected %s from %s in %s", msg.Kind(), from, h.phase)
	}
}

// handleHello admits a new peer while in the lobby. A known peer is always
// re-acknowledged, since its previous ack may have been lost.
func (h *Host) handleHello(from netip.AddrPort) {
	if h.dir.Contains(from) {
		util.LogDebug("[host] repeated hello from %s", from)
		h.send(protocol.Acknowledge{Of: protocol.KindHello}, from)
		return
	}

	if h.phase != InLobby {
		util.LogWarning("[host] rejected %s: game already started", from)
		return
	}

	slot, err := h.dir.Add(from)
	if err != nil {
		util.LogWarning("[host] rejected %s: %v", from, err)
		return
	}
	util.LogSuccess("[host] peer %s joined (slot %d)", from, slot)
	h.send(protocol.Acknowledge{Of: protocol.KindHello}, from)
}
