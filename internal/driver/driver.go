// Package driver runs the lockstep game loop: poll the session, record and
// broadcast local input, and advance the world once every participant's
// input for the current step is known.
package driver

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"

	"github.com/1ureka/lockstep/internal/protocol"
	"github.com/1ureka/lockstep/internal/session"
	"github.com/1ureka/lockstep/internal/sim"
	"github.com/1ureka/lockstep/internal/util"
)

// DefaultStepsPerSecond paces Run when Config.StepsPerSecond is zero.
const DefaultStepsPerSecond = 60

var ErrNotHost = errors.New("driver: only the host can start the game")

// InputSource produces the local participant's axes for a step. Values
// outside {-1, 0, 1} are clamped.
type InputSource interface {
	Axis(step int32) (x, y int32)
}

// InputFunc adapts a function to InputSource.
type InputFunc func(step int32) (x, y int32)

func (f InputFunc) Axis(step int32) (x, y int32) { return f(step) }

// Idle is an InputSource that never moves.
var Idle = InputFunc(func(int32) (int32, int32) { return 0, 0 })

// StepEvent describes one completed step.
type StepEvent struct {
	Step     int32
	Inputs   []protocol.InputRecord // participant order
	World    *sim.World             // state after the step; do not retain
	Checksum uint32
}

// Config controls pacing and termination.
type Config struct {
	StepsPerSecond int

	// ExpectPeers makes a host start the game on its own once that many
	// peers have joined. Zero leaves starting to Start.
	ExpectPeers int

	// MaxSteps stops Run after that many steps. Zero runs until cancelled.
	MaxSteps int32
}

type starter interface {
	BeginStartingGame() error
}

// Driver owns the world and the step counter of one participant. It is
// not safe for concurrent use; Run or Tick must be called from a single
// goroutine.
type Driver struct {
	sess session.Session
	src  InputSource
	cfg  Config

	world     *sim.World
	step      int32
	observers []func(StepEvent)
	phase     []func(session.Phase)
	chat      []func(from netip.AddrPort, text string)
}

func New(sess session.Session, src InputSource, cfg Config) *Driver {
	if cfg.StepsPerSecond <= 0 {
		cfg.StepsPerSecond = DefaultStepsPerSecond
	}
	if src == nil {
		src = Idle
	}
	d := &Driver{sess: sess, src: src, cfg: cfg}
	sess.OnPhaseChange(func(p session.Phase) {
		for _, fn := range d.phase {
			fn(p)
		}
	})
	sess.OnChat(func(from netip.AddrPort, text string) {
		for _, fn := range d.chat {
			fn(from, text)
		}
	})
	return d
}

// OnStep registers fn to run after every completed step.
func (d *Driver) OnStep(fn func(StepEvent)) { d.observers = append(d.observers, fn) }

// OnPhase registers fn to run on every session phase change.
func (d *Driver) OnPhase(fn func(session.Phase)) { d.phase = append(d.phase, fn) }

// OnChat registers fn to run for every chat line received.
func (d *Driver) OnChat(fn func(from netip.AddrPort, text string)) { d.chat = append(d.chat, fn) }

func (d *Driver) Session() session.Session { return d.sess }
func (d *Driver) World() *sim.World        { return d.world }
func (d *Driver) Step() int32              { return d.step }

// Interval is the time between two ticks at the configured step rate.
func (d *Driver) Interval() time.Duration {
	return time.Second / time.Duration(d.cfg.StepsPerSecond)
}

// IsHost reports whether the driven session can start the game.
func (d *Driver) IsHost() bool {
	_, ok := d.sess.(starter)
	return ok
}

// Start begins the game on a host session.
func (d *Driver) Start() error {
	s, ok := d.sess.(starter)
	if !ok {
		return ErrNotHost
	}
	return s.BeginStartingGame()
}

// Done reports whether MaxSteps has been reached.
func (d *Driver) Done() bool {
	return d.cfg.MaxSteps > 0 && d.step >= d.cfg.MaxSteps
}

// Tick performs one iteration of the loop and reports whether a step was
// advanced.
func (d *Driver) Tick() (bool, error) {
	if err := d.sess.Poll(d.step); err != nil {
		return false, err
	}

	switch d.sess.Phase() {
	case session.InLobby:
		if d.cfg.ExpectPeers > 0 && d.sess.Participants()-1 >= d.cfg.ExpectPeers && d.IsHost() {
			util.LogInfo("%d peers joined, starting", d.sess.Participants()-1)
			if err := d.Start(); err != nil {
				return false, err
			}
		}
		return false, nil
	case session.StartingGame:
		return false, nil
	}

	if d.world == nil {
		d.world = sim.NewWorld(d.sess.Participants())
	}

	// Once finished, keep re-sending the final window so slower
	// participants can still complete their last step.
	step := d.step
	if d.Done() {
		step = d.cfg.MaxSteps - 1
	}
	x, y := d.src.Axis(step)
	rec := protocol.InputRecord{Step: step, AxisX: clamp(x), AxisY: clamp(y)}
	if err := d.sess.SubmitLocalInput(rec); err != nil {
		util.LogWarning("broadcast input for step %d: %v", step, err)
	}

	if d.Done() || !d.sess.IsReadyToAdvance() {
		return false, nil
	}

	inputs, err := d.sess.CollectStepInputs()
	if err != nil {
		return false, err
	}
	if err := d.world.Apply(inputs); err != nil {
		return false, fmt.Errorf("driver: step %d: %w", d.step, err)
	}
	util.Stats.AddStep()

	ev := StepEvent{Step: d.step, Inputs: inputs, World: d.world, Checksum: d.world.Checksum()}
	d.step++
	for _, fn := range d.observers {
		fn(ev)
	}
	return true, nil
}

// Run ticks at the configured step rate until ctx is cancelled, MaxSteps
// is reached or the session fails.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.Interval())
	defer ticker.Stop()

	for {
		if _, err := d.Tick(); err != nil {
			return err
		}
		if d.Done() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Linger keeps polling and re-broadcasting the final input window for the
// given duration after MaxSteps is reached, so slower participants can
// finish before the socket closes.
func (d *Driver) Linger(ctx context.Context, dur time.Duration) {
	ticker := time.NewTicker(d.Interval())
	defer ticker.Stop()
	timeout := time.After(dur)

	for {
		if _, err := d.Tick(); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			return
		case <-ticker.C:
		}
	}
}

func clamp(v int32) int32 {
	switch {
	case v > 1:
		return 1
	case v < -1:
		return -1
	default:
		return v
	}
}
