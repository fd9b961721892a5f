package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/1ureka/lockstep/internal/driver"
	"github.com/1ureka/lockstep/internal/session"
	"github.com/1ureka/lockstep/internal/sim"
	"github.com/1ureka/lockstep/internal/transport"
)

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return nm, cmd
}

func newHostModel(t *testing.T) (Model, *Keyboard) {
	t.Helper()
	nw := transport.NewNetwork()
	host := session.NewHost(nw.Listen(), session.Config{})
	t.Cleanup(func() { host.Close() })
	kb := NewKeyboard()
	return New(driver.New(host, kb, driver.Config{}), kb), kb
}

func TestStartThenTickAdvances(t *testing.T) {
	m, _ := newHostModel(t)
	if !strings.Contains(m.View(), "press space") {
		t.Errorf("lobby view lacks the start hint:\n%s", m.View())
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if got := m.drv.Session().Phase(); got != session.InGame {
		t.Fatalf("phase = %s after space with no peers, want InGame", got)
	}

	m, cmd := update(t, m, tickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("tick must schedule the next tick")
	}
	if m.drv.Step() != 1 {
		t.Errorf("step = %d after one tick, want 1", m.drv.Step())
	}
	view := m.View()
	for _, want := range []string{"InGame", "Step", "Input", "-- InGame --"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}
}

func TestArrowKeysHoldThenRelease(t *testing.T) {
	m, kb := newHostModel(t)

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRight})
	m, _ = update(t, m, runes("w"))
	if x, y := kb.Axis(0); x != 1 || y != -1 {
		t.Fatalf("axis = (%d, %d), want (1, -1)", x, y)
	}

	for i := 0; i < holdTicks; i++ {
		m, _ = update(t, m, tickMsg(time.Now()))
	}
	if x, y := kb.Axis(0); x != 0 || y != 0 {
		t.Errorf("axis = (%d, %d) after hold expired, want (0, 0)", x, y)
	}
}

func TestPeerCannotStart(t *testing.T) {
	nw := transport.NewNetwork()
	host := nw.Listen()
	p, err := session.NewPeer(nw.Listen(), host.LocalAddr(), session.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	m := New(driver.New(p, nil, driver.Config{}), nil)
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeySpace})
	if m.drv.Session().Phase() != session.InLobby {
		t.Error("a peer must stay in the lobby")
	}
	if !strings.Contains(m.status, "host") {
		t.Errorf("status = %q", m.status)
	}
}

func TestChatLine(t *testing.T) {
	m, _ := newHostModel(t)

	m, _ = update(t, m, runes("t"))
	if !m.chatting {
		t.Fatal("t should open the chat prompt")
	}
	m, _ = update(t, m, runes("gg"))
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.chatting {
		t.Error("enter should close the chat prompt")
	}
	if len(m.feed.chat) != 1 || !strings.HasSuffix(m.feed.chat[0], "gg") {
		t.Errorf("chat = %q", m.feed.chat)
	}
}

func TestQuit(t *testing.T) {
	m, _ := newHostModel(t)
	_, cmd := update(t, m, runes("q"))
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestRenderBoard(t *testing.T) {
	w := sim.NewWorld(2)
	w.Players[1] = sim.Point{X: -5000, Y: 0} // off the board

	board := renderBoard(w, 0)
	lines := strings.Split(board, "\n")
	if len(lines) != boardRows {
		t.Fatalf("%d rows, want %d", len(lines), boardRows)
	}
	if !strings.Contains(board, "0") || strings.Contains(board, "1") {
		t.Errorf("unexpected players on board:\n%s", board)
	}
	if !strings.Contains(board, "#") {
		t.Error("wall not drawn")
	}
}

func TestFloorDiv(t *testing.T) {
	testCases := []struct {
		a, b int32
		want int
	}{
		{0, 32, 0},
		{31, 32, 0},
		{32, 32, 1},
		{-1, 32, -1},
		{-32, 32, -1},
		{-33, 32, -2},
	}
	for _, tc := range testCases {
		if got := floorDiv(tc.a, tc.b); got != tc.want {
			t.Errorf("floorDiv(%d, %d) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}
