package main

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/1ureka/lockstep/internal/capture"
	"github.com/1ureka/lockstep/internal/config"
	"github.com/1ureka/lockstep/internal/directory"
	"github.com/1ureka/lockstep/internal/driver"
	"github.com/1ureka/lockstep/internal/monitor"
	"github.com/1ureka/lockstep/internal/replay"
	"github.com/1ureka/lockstep/internal/script"
	"github.com/1ureka/lockstep/internal/session"
	"github.com/1ureka/lockstep/internal/transport"
	"github.com/1ureka/lockstep/internal/tui"
	"github.com/1ureka/lockstep/internal/util"
)

// lingerFor keeps re-broadcasting the final input window after MaxSteps so
// slower participants can finish.
const lingerFor = 2 * time.Second

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runSession wires transport, session, driver and every optional add-on,
// then blocks until the game ends or ctx is cancelled. With interactive set,
// a missing host address or a failed bind is asked for again.
func runSession(ctx context.Context, cfg *config.Config, interactive bool) error {
	if cfg.Role == config.RolePeer && cfg.HostAddr == "" {
		if !interactive {
			return errors.New("join needs a host address")
		}
		cfg.HostAddr = askHost(ctx).String()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	tr, err := openTransport(cfg, interactive)
	if err != nil {
		return err
	}

	sess, err := newSession(ctx, cfg, tr)
	if err != nil {
		tr.Close()
		return err
	}
	defer sess.Close()

	var kb *tui.Keyboard
	var src driver.InputSource
	var bot *script.Script
	switch {
	case cfg.Script != "":
		bot, err = script.Load(cfg.Script)
		if err != nil {
			return err
		}
		defer bot.Close()
		util.LogInfo("input from script %q: %s", bot.Info().Name, bot.Info().Description)
		src = bot
	case cfg.Headless:
		src = driver.Idle
	default:
		kb = tui.NewKeyboard()
		src = kb
	}

	d := driver.New(sess, src, cfg.Driver())

	var store *replay.Store
	var rec *replay.Recorder
	if cfg.ReplayDB != "" {
		store, err = replay.Open(cfg.ReplayDB)
		if err != nil {
			return err
		}
		defer store.Close()
	}

	d.OnPhase(func(p session.Phase) {
		if p != session.InGame {
			return
		}
		if bot != nil {
			bot.SetIndex(sess.LocalIndex())
		}
		if store != nil {
			r, err := store.Begin(string(cfg.Role), sess.Participants(), sess.LocalIndex())
			if err != nil {
				util.LogError("failed to start recording: %v", err)
				return
			}
			rec = r
			util.LogInfo("recording session %s to %s", r.ID(), cfg.ReplayDB)
		}
	})
	d.OnStep(func(ev driver.StepEvent) {
		if rec == nil {
			return
		}
		if err := rec.Record(ev.Step, ev.Inputs, ev.Checksum); err != nil {
			util.LogError("%v", err)
		}
	})
	defer func() {
		if rec != nil {
			if err := rec.Close(); err != nil {
				util.LogError("%v", err)
			}
		}
	}()

	if cfg.Monitor != "" {
		pin := cfg.MonitorPIN
		if pin == "" {
			pin = monitor.GeneratePIN(6)
		}
		srv := monitor.NewServer(pin)
		port, err := srv.Start(cfg.Monitor)
		if err != nil {
			return err
		}
		defer srv.Close()
		srv.Attach(d)
		util.LogSuccess("live feed: lockstep watch ws://127.0.0.1:%d/ws?pin=%s", port, pin)
	}

	if cfg.Role == config.RoleHost {
		util.LogSuccess("hosting on UDP port %d, waiting for peers", sess.LocalAddr().Port())
	} else {
		util.LogSuccess("joining %s from UDP port %d", cfg.HostAddr, sess.LocalAddr().Port())
	}

	util.StartStatsReporter(ctx)

	if cfg.Headless {
		return runHeadless(ctx, d)
	}
	return runView(cfg, d, kb)
}

// runHeadless runs the loop on the current goroutine and logs progress.
func runHeadless(ctx context.Context, d *driver.Driver) error {
	d.OnPhase(func(p session.Phase) { util.LogInfo("phase: %s", p) })
	d.OnChat(func(from netip.AddrPort, text string) { util.LogInfo("[%s] %s", from, text) })
	d.OnStep(func(ev driver.StepEvent) {
		if ev.Step%300 == 0 {
			util.LogDebug("step %d checksum %08x", ev.Step, ev.Checksum)
		}
	})

	err := d.Run(ctx)
	switch {
	case errors.Is(err, context.Canceled):
		return nil
	case err != nil:
		return err
	}

	d.Linger(ctx, lingerFor)
	if w := d.World(); w != nil {
		util.LogSuccess("finished %d steps, checksum %08x", d.Step(), w.Checksum())
	}
	return nil
}

// runView hands the terminal to the interactive view. Logs go to a file
// while it is open.
func runView(cfg *config.Config, d *driver.Driver, kb *tui.Keyboard) error {
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	util.SetLogOutput(f)
	defer util.SetLogOutput(os.Stderr)

	return tui.Run(tui.New(d, kb))
}

// ---------------------------------------------------------------------------
// Wiring helpers
// ---------------------------------------------------------------------------

// openTransport binds the UDP socket, wrapping it in a pcap recorder when
// capture is enabled.
func openTransport(cfg *config.Config, interactive bool) (transport.Transport, error) {
	var udp *transport.UDPTransport
	for {
		var err error
		udp, err = transport.Listen(cfg.Bind)
		if err == nil {
			break
		}
		if !interactive {
			return nil, err
		}
		util.LogWarning("%v", err)
		cfg.Bind = fmt.Sprintf("0.0.0.0:%d", askPort("Local UDP port to bind (1 ~ 65535)"))
	}

	if cfg.Capture == "" {
		return udp, nil
	}
	w, err := capture.Create(cfg.Capture)
	if err != nil {
		udp.Close()
		return nil, err
	}
	util.LogInfo("capturing datagrams to %s", cfg.Capture)
	return capture.Wrap(udp, w), nil
}

func newSession(ctx context.Context, cfg *config.Config, tr transport.Transport) (session.Session, error) {
	if cfg.Role == config.RoleHost {
		return session.NewHost(tr, cfg.Session()), nil
	}
	host, err := directory.ResolveHostPort(ctx, cfg.HostAddr)
	if err != nil {
		return nil, err
	}
	return session.NewPeer(tr, host, cfg.Session())
}

func builtinNames() string {
	return strings.Join(script.Builtins(), ", ")
}
