package tui

import (
	"errors"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/1ureka/lockstep/internal/driver"
	"github.com/1ureka/lockstep/internal/session"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tickMsg:
		if m.kb != nil {
			m.kb.decay()
		}
		if _, err := m.drv.Tick(); err != nil {
			m.err = err
			return m, tea.Quit
		}
		return m, m.tick()

	case tea.KeyMsg:
		if m.chatting {
			return m.updateChat(msg)
		}
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Start):
		if m.drv.Session().Phase() != session.InLobby {
			return m, nil
		}
		if err := m.drv.Start(); err != nil {
			if errors.Is(err, driver.ErrNotHost) {
				m.status = "waiting for the host to start"
			} else {
				m.status = err.Error()
			}
			return m, nil
		}
		m.status = ""

	case key.Matches(msg, m.keys.Chat):
		m.chatting = true
		return m, m.input.Focus()
	}

	if m.kb == nil {
		return m, nil
	}
	switch {
	case key.Matches(msg, m.keys.Up):
		m.kb.press(0, -1)
	case key.Matches(msg, m.keys.Down):
		m.kb.press(0, 1)
	case key.Matches(msg, m.keys.Left):
		m.kb.press(-1, 0)
	case key.Matches(msg, m.keys.Right):
		m.kb.press(1, 0)
	}
	return m, nil
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.chatting = false
		m.input.Blur()
		m.input.Reset()
		return m, nil

	case key.Matches(msg, m.keys.Send):
		text := m.input.Value()
		m.chatting = false
		m.input.Blur()
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		if err := m.drv.Session().SendChat(text); err != nil {
			m.status = err.Error()
			return m, nil
		}
		m.feed.addChat(styleSelf.Render("you") + " " + text)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}
