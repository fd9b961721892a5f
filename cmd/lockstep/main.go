// Command lockstep is the CLI entry point.
//
// Hosts or joins a peer-to-peer deterministic lockstep session over UDP.
// Every participant exchanges its input directly with every other one; the
// host only admits peers and hands out the roster before the game starts.
//
// Running without a subcommand falls back to interactive prompts.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/lockstep/internal/config"
	"github.com/1ureka/lockstep/internal/util"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "lockstep",
	Short: "Peer-to-peer deterministic lockstep over UDP",
	Long: `Lockstep runs a small multiplayer world in deterministic lockstep.

One participant hosts and admits peers; once the game starts every
participant broadcasts its input to every other one and nobody advances
a step until all inputs for that step have arrived.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debug, _ := cmd.Flags().GetBool("debug"); debug {
			util.EnableDebug()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runInteractive(cmd.Context(), cfg)
	},
}

// ---------------------------------------------------------------------------
// host / join
// ---------------------------------------------------------------------------

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Host a session and admit peers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Role = config.RoleHost
		return runSession(cmd.Context(), cfg, false)
	},
}

var joinCmd = &cobra.Command{
	Use:   "join [host:port]",
	Short: "Join a hosted session",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		cfg.Role = config.RolePeer
		if len(args) == 1 {
			cfg.HostAddr = args[0]
			return runSession(cmd.Context(), cfg, false)
		}
		return runSession(cmd.Context(), cfg, true)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default lockstep.json, then ~/.config/lockstep/config.json)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	for _, cmd := range []*cobra.Command{rootCmd, hostCmd, joinCmd} {
		f := cmd.Flags()
		f.String("bind", "", "Local UDP address (default 0.0.0.0:0)")
		f.Int("max-peers", 0, "Directory capacity (default 3 for a host, 4 for a peer)")
		f.Int("retry", 0, "Handshake resend interval in milliseconds")
		f.Int("attempts", 0, "Unanswered handshake sends before giving up (0 = never)")
		f.Int("rate", 0, "Steps per second")
		f.Int32("steps", 0, "Stop after this many steps (0 = run until interrupted)")
		f.Bool("headless", false, "Run without the terminal view")
		f.String("script", "", "Lua bot script path or builtin name ("+builtinNames()+")")
		f.String("replay", "", "Record every step to this replay database")
		f.String("monitor", "", "Serve a live WebSocket feed on this address, e.g. :7000")
		f.String("pin", "", "PIN required by monitor watchers (default random)")
		f.String("capture", "", "Write every datagram to this pcap file")
		f.String("log", "", "Log file used while the terminal view is open")
	}
	rootCmd.Flags().Int("expect", 0, "Host: start automatically once this many peers joined")
	hostCmd.Flags().Int("expect", 0, "Start automatically once this many peers joined")

	replayCmd.Flags().String("db", "", "Replay database (default from config, then lockstep.db)")
	rootCmd.AddCommand(hostCmd, joinCmd, replayCmd, traceCmd, watchCmd)
}

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd.Version = version
	pterm.Info.Println(fmt.Sprintf("Lockstep v%s", version))
	pterm.Println()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// loadConfig reads the config file and applies every flag the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	str := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	num := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}

	str("bind", &cfg.Bind)
	str("script", &cfg.Script)
	str("replay", &cfg.ReplayDB)
	str("monitor", &cfg.Monitor)
	str("pin", &cfg.MonitorPIN)
	str("capture", &cfg.Capture)
	str("log", &cfg.LogFile)
	num("max-peers", &cfg.MaxPeers)
	num("expect", &cfg.ExpectPeers)
	num("retry", &cfg.RetryIntervalMS)
	num("attempts", &cfg.MaxAttempts)
	num("rate", &cfg.StepsPerSecond)
	if f.Changed("steps") {
		cfg.MaxSteps, _ = f.GetInt32("steps")
	}
	if f.Changed("headless") {
		cfg.Headless, _ = f.GetBool("headless")
	}
	if f.Changed("debug") {
		cfg.Debug, _ = f.GetBool("debug")
	}
	if cfg.Debug {
		util.EnableDebug()
	}
	return cfg, nil
}
