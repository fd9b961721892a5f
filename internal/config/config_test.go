package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lockstep.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{"max_peers": 2, "steps_per_second": 0, "capture": "out.pcap"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.MaxPeers != 2 || cfg.Capture != "out.pcap" {
		t.Errorf("file values lost: %+v", cfg)
	}
	if cfg.StepsPerSecond != Default().StepsPerSecond || cfg.Bind != Default().Bind {
		t.Errorf("zero values not defaulted: %+v", cfg)
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if *cfg != *Default() {
		t.Errorf("got %+v, want defaults", cfg)
	}
}

func TestLoadRejectsBadJSON(t *testing.T) {
	if _, err := Load(writeConfig(t, `{"max_peers": "three"}`)); err == nil {
		t.Error("expected an error")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid host", func(c *Config) { c.Role = RoleHost }, ""},
		{"valid peer", func(c *Config) { c.Role = RolePeer; c.HostAddr = "10.0.0.1:4000" }, ""},
		{"no role", func(c *Config) {}, "unknown role"},
		{"peer without host", func(c *Config) { c.Role = RolePeer }, "host address"},
		{"expect too many", func(c *Config) { c.Role = RoleHost; c.ExpectPeers = 4 }, "exceeds max_peers 3"},
		{"expect within custom max", func(c *Config) { c.Role = RoleHost; c.MaxPeers = 8; c.ExpectPeers = 8 }, ""},
		{"headless host without expect", func(c *Config) { c.Role = RoleHost; c.Headless = true }, "headless host needs expect_peers"},
		{"headless host with expect", func(c *Config) { c.Role = RoleHost; c.Headless = true; c.ExpectPeers = 2 }, ""},
		{"headless peer", func(c *Config) { c.Role = RolePeer; c.HostAddr = "10.0.0.1:4000"; c.Headless = true }, ""},
		{"bad rate", func(c *Config) { c.Role = RoleHost; c.StepsPerSecond = 0 }, "steps_per_second"},
		{"negative attempts", func(c *Config) { c.Role = RoleHost; c.MaxAttempts = -1 }, "max_attempts"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("got %v, want error containing %q", err, tc.wantErr)
			}
		})
	}
}

func TestConversions(t *testing.T) {
	cfg := Default()
	cfg.Role = RolePeer
	cfg.RetryIntervalMS = 250
	cfg.ExpectPeers = 2

	s := cfg.Session()
	if s.MaxPeers != 4 || s.RetryInterval != 250*time.Millisecond {
		t.Errorf("session config = %+v", s)
	}
	if d := cfg.Driver(); d.ExpectPeers != 0 {
		t.Error("a peer must never auto-start")
	}

	cfg.Role = RoleHost
	if s := cfg.Session(); s.MaxPeers != 3 {
		t.Errorf("host MaxPeers = %d, want 3", s.MaxPeers)
	}
	if d := cfg.Driver(); d.ExpectPeers != 2 {
		t.Errorf("host ExpectPeers = %d, want 2", d.ExpectPeers)
	}
}
