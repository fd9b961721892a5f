package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockstep.json")
	body := `{"steps_per_second": 20, "max_peers": 2, "monitor": ":7000"}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := hostCmd.ParseFlags([]string{"--config", path, "--rate", "30", "--steps", "100", "--headless"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := loadConfig(hostCmd)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.StepsPerSecond != 30 {
		t.Errorf("StepsPerSecond = %d, want the flag value 30", cfg.StepsPerSecond)
	}
	if cfg.MaxPeers != 2 || cfg.Monitor != ":7000" {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.MaxSteps != 100 || !cfg.Headless {
		t.Errorf("flags not applied: %+v", cfg)
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	for _, name := range []string{"host", "join", "replay", "trace", "watch"} {
		if cmd, _, err := rootCmd.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not found", name)
		}
	}
}
