package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/lockstep/internal/capture"
	"github.com/1ureka/lockstep/internal/monitor"
	"github.com/1ureka/lockstep/internal/replay"
	"github.com/1ureka/lockstep/internal/util"
)

const defaultReplayDB = "lockstep.db"

// ---------------------------------------------------------------------------
// replay
// ---------------------------------------------------------------------------

var replayCmd = &cobra.Command{
	Use:   "replay [id]",
	Short: "List recordings, or re-simulate one and check every checksum",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("db")
		if path == "" {
			path = cfg.ReplayDB
		}
		if path == "" {
			path = defaultReplayDB
		}

		store, err := replay.Open(path)
		if err != nil {
			return err
		}
		defer store.Close()

		if len(args) == 0 {
			return listRecordings(store)
		}
		return verifyRecording(store, args[0])
	},
}

func listRecordings(store *replay.Store) error {
	metas, err := store.Sessions()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		pterm.Info.Println("no recordings")
		return nil
	}

	data := pterm.TableData{{"ID", "Started", "Role", "Players", "Index", "Steps"}}
	for _, m := range metas {
		data = append(data, []string{
			m.ID,
			m.Started.Format("2006-01-02 15:04:05"),
			m.Role,
			fmt.Sprint(m.Participants),
			fmt.Sprint(m.LocalIndex),
			fmt.Sprint(m.Steps),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func verifyRecording(store *replay.Store, id string) error {
	meta, steps, err := store.Load(id)
	if err != nil {
		return err
	}
	util.LogInfo("re-simulating %s: %d players, %d steps", meta.ID, meta.Participants, len(steps))

	w, err := replay.Verify(meta, steps)
	if err != nil {
		if errors.Is(err, replay.ErrDesync) {
			util.LogError("the recorded session diverged: %v", err)
		}
		return err
	}
	util.LogSuccess("all %d checksums match, final checksum %08x", len(steps), w.Checksum())
	for i, p := range w.Players {
		pterm.Printfln("  player %d at (%d, %d)", i, p.X, p.Y)
	}
	return nil
}

// ---------------------------------------------------------------------------
// trace
// ---------------------------------------------------------------------------

var traceCmd = &cobra.Command{
	Use:   "trace <file.pcap>",
	Short: "Decode every lockstep datagram in a capture file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		packets, err := capture.Read(args[0])
		if err != nil {
			return err
		}

		var bad int
		for _, p := range packets {
			desc := capture.Describe(p.Message)
			if p.Err != nil {
				desc = "invalid: " + p.Err.Error()
				bad++
			}
			pterm.Printfln("%s  %21s -> %-21s %4dB  %s",
				p.Time.Format("15:04:05.000"), p.From, p.To, p.Size, desc)
		}
		util.LogInfo("%d datagrams, %d invalid", len(packets), bad)
		return nil
	},
}

// ---------------------------------------------------------------------------
// watch
// ---------------------------------------------------------------------------

var watchCmd = &cobra.Command{
	Use:   "watch <ws://host:port/ws?pin=...>",
	Short: "Follow the live feed of a running session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := monitor.Watch(cmd.Context(), args[0], printEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func printEvent(ev monitor.Event) {
	switch ev.Type {
	case monitor.EventPhase:
		util.LogInfo("phase %s at step %d", ev.Phase, ev.Step)
	case monitor.EventChat:
		util.LogInfo("[%s] %s", ev.From, ev.Text)
	case monitor.EventStep:
		pos := make([]string, len(ev.Players))
		for i, p := range ev.Players {
			pos[i] = fmt.Sprintf("(%d,%d)", p.X, p.Y)
		}
		pterm.Printfln("step %6d  %08x  %s", ev.Step, ev.Checksum, strings.Join(pos, " "))
	}
}
