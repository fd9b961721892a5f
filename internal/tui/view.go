package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/1ureka/lockstep/internal/session"
	"github.com/1ureka/lockstep/internal/sim"
)

// Board geometry in terminal cells. A cell covers cellW x cellH world
// units; terminal cells are roughly twice as tall as wide.
const (
	boardCols = 48
	boardRows = 14
	cellW     = 32
	cellH     = 64
	originX   = -512
	originY   = -448
)

func (m Model) View() string {
	sess := m.drv.Session()
	phase := sess.Phase()

	var b strings.Builder
	b.WriteString(styleTitle.Render("lockstep"))
	b.WriteString(" ")
	b.WriteString(phaseStyle(phase.String()).Render(phase.String()))
	b.WriteString("\n\n")

	info := []string{
		row("Local", sess.LocalAddr().String()),
		row("Players", fmt.Sprintf("%d", sess.Participants())),
	}
	if phase == session.InGame {
		info = append(info,
			row("Index", fmt.Sprintf("%d", sess.LocalIndex())),
			row("Step", fmt.Sprintf("%d", m.drv.Step())),
			row("Checksum", fmt.Sprintf("%08x", m.feed.lastSum)),
		)
		if rec, ok := sess.LastInput(); ok {
			info = append(info, row("Input", fmt.Sprintf("(%d, %d)", rec.AxisX, rec.AxisY)))
		}
		if waiting := sess.Waiting(); len(waiting) > 0 {
			info = append(info, row("Waiting", fmt.Sprintf("%d", len(waiting))))
		}
	}
	info = append(info, "", styleLabel.Render("Peers"))
	for _, p := range sess.Peers() {
		info = append(info, "  "+styleValue.Render(p.String()))
	}
	side := stylePanel.Render(strings.Join(info, "\n"))

	var main string
	switch phase {
	case session.InGame:
		main = styleBoard.Render(renderBoard(m.drv.World(), sess.LocalIndex()))
	case session.StartingGame:
		main = stylePanel.Render("distributing the roster...")
	default:
		hint := "waiting for the host to start"
		if m.drv.IsHost() {
			hint = "press space to start with everyone who has joined"
		}
		main = stylePanel.Render(hint)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, side, " ", main))
	b.WriteString("\n")

	b.WriteString(strings.Join(m.feed.chat, "\n"))
	b.WriteString("\n")
	if m.chatting {
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
	if m.status != "" {
		b.WriteString(styleError.Render(m.status))
		b.WriteString("\n")
	}
	if m.err != nil {
		b.WriteString(styleError.Render(m.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func row(label, value string) string {
	return styleLabel.Render(label) + styleValue.Render(value)
}

// renderBoard draws the wall and every player onto a fixed character grid.
// Players outside the visible area are not drawn.
func renderBoard(w *sim.World, self int) string {
	grid := make([][]string, boardRows)
	for r := range grid {
		grid[r] = make([]string, boardCols)
		for c := range grid[r] {
			grid[r][c] = " "
		}
	}
	if w == nil {
		return joinGrid(grid)
	}

	paint(grid, w.Wall, styleWall.Render("#"))
	for i, p := range w.Players {
		glyph := fmt.Sprintf("%d", i%10)
		style := stylePlayer
		if i == self {
			style = styleSelf
		}
		rect := sim.Rect{Pos: p, Size: sim.Point{X: sim.PlayerSize, Y: sim.PlayerSize}}
		paint(grid, rect, style.Render(glyph))
	}
	return joinGrid(grid)
}

func paint(grid [][]string, r sim.Rect, cell string) {
	c0 := floorDiv(r.Pos.X-originX, cellW)
	r0 := floorDiv(r.Pos.Y-originY, cellH)
	c1 := floorDiv(r.Pos.X+r.Size.X-1-originX, cellW)
	r1 := floorDiv(r.Pos.Y+r.Size.Y-1-originY, cellH)
	for row := r0; row <= r1; row++ {
		for col := c0; col <= c1; col++ {
			if row < 0 || row >= boardRows || col < 0 || col >= boardCols {
				continue
			}
			grid[row][col] = cell
		}
	}
}

func floorDiv(a, b int32) int {
	q := a / b
	if a%b != 0 && a < 0 {
		q--
	}
	return int(q)
}

func joinGrid(grid [][]string) string {
	lines := make([]string, len(grid))
	for i, r := range grid {
		lines[i] = strings.Join(r, "")
	}
	return strings.Join(lines, "\n")
}
