package main

import (
	"context"
	"net/netip"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/lockstep/internal/config"
	"github.com/1ureka/lockstep/internal/directory"
	"github.com/1ureka/lockstep/internal/util"
)

// runInteractive falls back to prompts when no subcommand is given.
func runInteractive(ctx context.Context, cfg *config.Config) error {
	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Host  - Create a session and admit peers", "Peer  - Join a session"}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	if strings.HasPrefix(role, "Host") {
		cfg.Role = config.RoleHost
	} else {
		cfg.Role = config.RolePeer
		cfg.HostAddr = askHost(ctx).String()
	}
	return runSession(ctx, cfg, true)
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askHost prompts for the host's address and port until they resolve.
func askHost(ctx context.Context) netip.AddrPort {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Host IP address or name").
			Show()
		pterm.Println()
		port := askPort("Host UDP port (1 ~ 65535)")

		addr, err := directory.Resolve(ctx, strings.TrimSpace(raw), port)
		if err == nil {
			return addr
		}
		util.LogWarning("invalid host: %v", err)
		pterm.Println()
	}
}

// askPort prompts the user for a port number until a valid one is entered.
func askPort(prompt string) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText(prompt).
			Show()

		port, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && port >= 1 && port <= 65535 {
			pterm.Println()
			return port
		}

		util.LogWarning("invalid port number: must be 1 ~ 65535")
		pterm.Println()
	}
}
