// Package sim is the deterministic world every participant steps in
// lockstep: axis-aligned players moving at a fixed speed around one wall.
//
// Only integer arithmetic is used, so identical input sequences yield
// identical states on every machine.
package sim

import (
	"fmt"

	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/util"
)

const (
	PlayerSpeed = 2
	PlayerSize  = 64

	// Spacing between player spawn points along the X axis.
	SpawnSpacing = 80
)

// Point is an integer position in world units.
type Point struct{ X, Y int32 }

// Rect is an axis-aligned box.
type Rect struct {
	Pos  Point
	Size Point
}

// Overlaps reports whether r and o intersect. Touching edges do not count.
func (r Rect) Overlaps(o Rect) bool {
	return r.Pos.X < o.Pos.X+o.Size.X && r.Pos.X+r.Size.X > o.Pos.X &&
		r.Pos.Y < o.Pos.Y+o.Size.Y && r.Pos.Y+r.Size.Y > o.Pos.Y
}

// DefaultWall is the single obstacle.
var DefaultWall = Rect{Pos: Point{128, 128}, Size: Point{64, 64}}

// World is the simulation state.
type World struct {
	Players []Point
	Wall    Rect
	Step    int32 // steps applied so far
}

// NewWorld creates a world with one player per participant, spawned left to
// right in participant order.
func NewWorld(players int) *World {
	w := &World{Players: make([]Point, players), Wall: DefaultWall}
	for i := range w.Players {
		w.Players[i] = Point{X: int32(i) * SpawnSpacing}
	}
	return w
}

// Apply advances the world by one step. inputs holds one record per player
// in participant order. Each axis moves separately so a player can slide
// along the wall.
func (w *World) Apply(inputs []protocol.InputRecord) error {
	if len(inputs) != len(w.Players) {
		return fmt.Errorf("sim: %d inputs for %d players", len(inputs), len(w.Players))
	}

	for i := range w.Players {
		p := &w.Players[i]
		dx := sign(inputs[i].AxisX) * PlayerSpeed
		dy := sign(inputs[i].AxisY) * PlayerSpeed

		if !w.blocked(Point{p.X + dx, p.Y}) {
			p.X += dx
		}
		if !w.blocked(Point{p.X, p.Y + dy}) {
			p.Y += dy
		}
	}
	w.Step++
	return nil
}

func (w *World) blocked(pos Point) bool {
	return Rect{Pos: pos, Size: Point{PlayerSize, PlayerSize}}.Overlaps(w.Wall)
}

// Checksum hashes the step counter and every player position.
func (w *World) Checksum() uint32 {
	values := make([]int32, 0, 1+2*len(w.Players))
	values = append(values, w.Step)
	for _, p := range w.Players {
		values = append(values, p.X, p.Y)
	}
	return util.Checksum(values...)
}

// Clone returns a deep copy.
func (w *World) Clone() *World {
	c := *w
	c.Players = append([]Point(nil), w.Players...)
	return &c
}

func sign(v int32) int32 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
