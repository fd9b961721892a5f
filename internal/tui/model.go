package tui

import (
	"fmt"
	"net/netip"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"

	"github.com/1ureka/lockstep/internal/driver"
	"github.com/1ureka/lockstep/internal/session"
)

const (
	chatHistory = 6
	chatLimit   = 200
)

// feed collects what the driver reports through callbacks during Tick.
// Model is copied on every update, so it holds a pointer.
type feed struct {
	chat     []string
	lastSum  uint32
	advanced int
}

func (f *feed) addChat(line string) {
	f.chat = append(f.chat, line)
	if len(f.chat) > chatHistory {
		f.chat = f.chat[len(f.chat)-chatHistory:]
	}
}

type Model struct {
	drv  *driver.Driver
	kb   *Keyboard
	feed *feed

	keys     keyMap
	help     help.Model
	input    textinput.Model
	chatting bool

	width  int
	height int
	status string
	err    error
}

// New builds the model around a driver. kb may be nil when input comes
// from somewhere else, such as a bot script.
func New(d *driver.Driver, kb *Keyboard) Model {
	ti := textinput.New()
	ti.Placeholder = "say something"
	ti.CharLimit = chatLimit
	ti.Prompt = "> "

	f := &feed{}
	d.OnChat(func(from netip.AddrPort, text string) {
		f.addChat(styleChatFrom.Render(from.String()) + " " + text)
	})
	d.OnStep(func(ev driver.StepEvent) {
		f.lastSum = ev.Checksum
		f.advanced++
	})
	d.OnPhase(func(p session.Phase) {
		f.addChat(styleWall.Render(fmt.Sprintf("-- %s --", p)))
	})

	return Model{
		drv:   d,
		kb:    kb,
		feed:  f,
		keys:  defaultKeys(),
		help:  help.New(),
		input: ti,
	}
}
