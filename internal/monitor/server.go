package monitor

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"net/netip"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/lockstep/internal/driver"
	"github.com/1ureka/lockstep/internal/session"
	"github.com/1ureka/lockstep/internal/util"
)

// outboxSize is how many events a slow watcher may lag behind before
// events to it are dropped.
const outboxSize = 64

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server fans events out to every connected watcher.
type Server struct {
	pin      string
	listener net.Listener

	mu       sync.Mutex
	watchers map[*watcher]struct{}
	last     Event // replayed to new watchers
}

type watcher struct {
	conn *websocket.Conn
	out  chan Event
	once sync.Once
}

// NewServer creates a feed server. A non-empty pin must be supplied by
// watchers as the "pin" query parameter.
func NewServer(pin string) *Server {
	return &Server{
		pin:      pin,
		watchers: make(map[*watcher]struct{}),
	}
}

// Start begins listening on addr (":0" for a random port). Returns the
// assigned port number.
func (s *Server) Start(addr string) (int, error) {
	if addr == "" {
		addr = ":0"
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("failed to start monitor server: %w", err)
	}
	s.listener = listener
	port := listener.Addr().(*net.TCPAddr).Port

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	go func() {
		_ = http.Serve(listener, mux)
	}()

	return port, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.pin != "" && r.URL.Query().Get("pin") != s.pin {
		http.Error(w, "Invalid PIN", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	wt := &watcher{conn: conn, out: make(chan Event, outboxSize)}
	s.mu.Lock()
	s.watchers[wt] = struct{}{}
	if s.last.Type != "" {
		wt.out <- s.last
	}
	s.mu.Unlock()
	util.LogDebug("monitor: watcher %s connected", conn.RemoteAddr())

	go s.write(wt)
	go s.read(wt)
}

// write is the only goroutine writing to the watcher's connection.
func (s *Server) write(wt *watcher) {
	for ev := range wt.out {
		if err := wt.conn.WriteJSON(ev); err != nil {
			s.drop(wt)
			return
		}
	}
}

// read discards anything the watcher sends and notices disconnects.
func (s *Server) read(wt *watcher) {
	for {
		if _, _, err := wt.conn.ReadMessage(); err != nil {
			s.drop(wt)
			return
		}
	}
}

func (s *Server) drop(wt *watcher) {
	wt.once.Do(func() {
		s.mu.Lock()
		delete(s.watchers, wt)
		s.mu.Unlock()
		close(wt.out)
		wt.conn.Close()
		util.LogDebug("monitor: watcher %s disconnected", wt.conn.RemoteAddr())
	})
}

// Publish queues ev for every watcher without blocking.
func (s *Server) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = ev
	for wt := range s.watchers {
		select {
		case wt.out <- ev:
		default:
			util.LogDebug("monitor: watcher %s lagging, event dropped", wt.conn.RemoteAddr())
		}
	}
}

// Watchers returns the number of connected watchers.
func (s *Server) Watchers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.watchers)
}

// Attach publishes d's phase changes, steps and chat lines.
func (s *Server) Attach(d *driver.Driver) {
	d.OnPhase(func(p session.Phase) {
		s.Publish(Event{Type: EventPhase, Phase: p.String(), Step: d.Step()})
	})
	d.OnStep(func(ev driver.StepEvent) {
		s.Publish(Event{
			Type:     EventStep,
			Step:     ev.Step,
			Checksum: ev.Checksum,
			Players:  append(ev.World.Players[:0:0], ev.World.Players...),
			Inputs:   ev.Inputs,
		})
	})
	d.OnChat(func(from netip.AddrPort, text string) {
		s.Publish(Event{Type: EventChat, From: from.String(), Text: text, Step: d.Step()})
	})
}

// Close shuts down the listener and disconnects every watcher.
func (s *Server) Close() {
	if s.listener != nil {
		s.listener.Close()
	}
	s.mu.Lock()
	watchers := make([]*watcher, 0, len(s.watchers))
	for wt := range s.watchers {
		watchers = append(watchers, wt)
	}
	s.mu.Unlock()
	for _, wt := range watchers {
		s.drop(wt)
	}
}

// GeneratePIN returns a random numeric PIN of the specified length.
func GeneratePIN(length int) string {
	digits := make([]byte, length)
	for i := range digits {
		n, _ := rand.Int(rand.Reader, big.NewInt(10))
		digits[i] = byte('0') + byte(n.Int64())
	}
	return string(digits)
}
