package session

import (
	"fmt"
	"net/netip"

	"github.com/1ureka/lockstep/internal/directory"
	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/transport"
	"github.com/1ureka/lockstep/internal/util"
)

// Peer is the session of a participant joining a known host. The host
// always occupies directory slot 0.
type Peer struct {
	core

	host          netip.AddrPort
	hello         retry
	rosterApplied bool
}

// NewPeer creates a peer session on tr that will say hello to host.
func NewPeer(tr transport.Transport, host netip.AddrPort, cfg Config) (*Peer, error) {
	cfg = cfg.withDefaults(DefaultPeerMaxPeers)
	host = directory.Canonical(host)
	if !host.IsValid() {
		return nil, fmt.Errorf("session: invalid host address %s", host)
	}

	p := &Peer{
		core:  newCore("peer", tr, cfg),
		host:  host,
		hello: newRetry(cfg),
	}
	if _, err := p.dir.Add(host); err != nil {
		return nil, fmt.Errorf("session: add host: %w", err)
	}
	util.LogInfo("[peer] listening on %s, host %s", tr.LocalAddr(), host)
	return p, nil
}

// Host returns the canonical host address.
func (p *Peer) Host() netip.AddrPort { return p.host }

func (p *Peer) Poll(step int32) error {
	if err := p.beginPoll(step); err != nil {
		return err
	}

	if p.phase == InLobby {
		now := p.cfg.Now()
		if p.hello.due(now) {
			if !p.hello.fire(now) {
				return fmt.Errorf("%w: host %s did not acknowledge hello after %d attempts",
					ErrPeerUnresponsive, p.host, p.hello.attempts)
			}
			p.send(protocol.Hello{}, p.host)
		}
	}

	p.drain(p.handle)
	return nil
}

func (p *Peer) handle(from netip.AddrPort, msg protocol.Message) {
	if p.handleCommon(from, msg) {
		return
	}
	if from != p.host {
		util.LogDebug("[peer] ignore %s from non-host %s", msg.Kind(), from)
		return
	}

	switch m := msg.(type) {
	case protocol.Acknowledge:
		if m.Of == protocol.KindHello && p.phase == InLobby {
			util.LogSuccess("[peer] host %s acknowledged hello", from)
			p.setPhase(StartingGame)
		}

	case protocol.AddPeers:
		if !p.rosterApplied {
			roster, index, err := p.parseRoster(m)
			if err != nil {
				// No ack: the host keeps resending until a valid roster lands.
				util.LogWarning("[peer] drop roster from host: %v", err)
				return
			}
			if p.phase == InLobby {
				// The hello ack was lost; the roster implies it.
				util.LogDebug("[peer] roster before hello ack, treating it as the ack")
				p.setPhase(StartingGame)
			}
			p.applyRoster(roster, index)
		}
		p.send(protocol.Acknowledge{Of: protocol.KindAddPeers}, p.host)
		if p.phase == StartingGame {
			p.enterGame()
		}

	default:
		util.LogDebug("[peer] unexpected %s from host in %s", msg.Kind(), p.phase)
	}
}

// parseRoster validates a whole roster before anything is applied. Every
// entry must be a distinct endpoint other than the host, and an explicit
// index must name a peer position in [1, len+1]. Without an index the local
// participant goes last.
func (p *Peer) parseRoster(m protocol.AddPeers) ([]netip.AddrPort, int, error) {
	roster := make([]netip.AddrPort, 0, len(m.Peers))
	seen := make(map[netip.AddrPort]struct{}, len(m.Peers)+1)
	seen[p.host] = struct{}{}
	for _, entry := range m.Peers {
		addr, err := netip.ParseAddrPort(entry)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: entry %q: %w", ErrBadRoster, entry, err)
		}
		addr = directory.Canonical(addr)
		if _, dup := seen[addr]; dup {
			return nil, 0, fmt.Errorf("%w: duplicate entry %s", ErrBadRoster, addr)
		}
		seen[addr] = struct{}{}
		roster = append(roster, addr)
	}

	participants := len(roster) + 2 // host, listed peers, self
	index := m.Index
	switch {
	case index < 0:
		util.LogWarning("[peer] roster carries no index, placing self last")
		index = participants - 1
	case index < 1 || index >= participants:
		return nil, 0, fmt.Errorf("%w: index %d outside [1, %d]", ErrBadRoster, index, participants-1)
	}
	return roster, index, nil
}

// applyRoster adds a validated roster after the host. The directory grows
// when the host admitted more peers than this peer's configured capacity.
func (p *Peer) applyRoster(roster []netip.AddrPort, index int) {
	if need := len(roster) + 1; need > p.dir.Cap() {
		util.LogInfo("[peer] roster of %d exceeds capacity %d, growing", need, p.dir.Cap())
		p.dir.Grow(need)
	}
	for _, addr := range roster {
		if _, err := p.dir.Add(addr); err != nil {
			// Unreachable after Grow and the duplicate check.
			util.LogError("[peer] add roster entry %s: %v", addr, err)
		}
	}

	p.localIndex = index
	p.rosterApplied = true
	util.LogInfo("[peer] roster applied: %d participants, local index %d", p.Participants(), index)
}
