// Package config holds the CLI configuration: the role chosen by the user
// and every tunable, loaded from a JSON file and overridden by flags.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/1ureka/lockstep/internal/driver"
	"github.com/1ureka/lockstep/internal/session"
)

// Role represents the user's chosen role (host or peer).
type Role string

const (
	RoleHost Role = "host"
	RolePeer Role = "peer"
)

// Config stores all parameters gathered from the config file, flags and
// interactive prompts.
type Config struct {
	Role     Role   `json:"-"`
	HostAddr string `json:"-"` // Peer: host "ip:port" to join

	Bind            string `json:"bind"`              // local UDP address, port 0 for ephemeral
	MaxPeers        int    `json:"max_peers"`         // 0 selects the role default
	ExpectPeers     int    `json:"expect_peers"`      // Host: start automatically at this many peers
	RetryIntervalMS int    `json:"retry_interval_ms"` // handshake resend interval
	MaxAttempts     int    `json:"max_attempts"`      // 0 retries forever
	WindowSize      int    `json:"window_size"`
	StepsPerSecond  int    `json:"steps_per_second"`
	MaxSteps        int32  `json:"max_steps"` // 0 runs until interrupted

	Headless   bool   `json:"headless"`
	Script     string `json:"script"`      // Lua bot path or builtin name
	ReplayDB   string `json:"replay_db"`   // bbolt file recording every step
	Monitor    string `json:"monitor"`     // WebSocket feed listen address
	MonitorPIN string `json:"monitor_pin"` // "" generates one
	Capture    string `json:"capture"`     // pcap output path
	LogFile    string `json:"log_file"`
	Debug      bool   `json:"debug"`
}

func Default() *Config {
	return &Config{
		Bind:            "0.0.0.0:0",
		RetryIntervalMS: int(session.DefaultRetryInterval / time.Millisecond),
		WindowSize:      2,
		StepsPerSecond:  driver.DefaultStepsPerSecond,
		LogFile:         "lockstep.log",
	}
}

// Load reads path, or the first existing default location when path is
// empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		// Try default locations
		defaultPaths := []string{
			"lockstep.json",
			".lockstep.json",
			filepath.Join(os.Getenv("HOME"), ".config", "lockstep", "config.json"),
		}

		for _, p := range defaultPaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}

		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	// Apply defaults for any zero values
	def := Default()
	if cfg.Bind == "" {
		cfg.Bind = def.Bind
	}
	if cfg.RetryIntervalMS <= 0 {
		cfg.RetryIntervalMS = def.RetryIntervalMS
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.StepsPerSecond <= 0 {
		cfg.StepsPerSecond = def.StepsPerSecond
	}

	return cfg, nil
}

// Validate checks the values that would otherwise fail deep inside a
// session.
func (c *Config) Validate() error {
	var errs []error
	switch c.Role {
	case RoleHost, RolePeer:
	default:
		errs = append(errs, fmt.Errorf("unknown role %q", c.Role))
	}
	if c.Role == RolePeer && c.HostAddr == "" {
		errs = append(errs, errors.New("peer needs a host address"))
	}
	if c.MaxPeers < 0 || c.MaxPeers > 254 {
		errs = append(errs, fmt.Errorf("max_peers %d out of range [0, 254]", c.MaxPeers))
	}
	if c.Role == RoleHost && c.Headless && c.ExpectPeers == 0 {
		errs = append(errs, errors.New("a headless host needs expect_peers to know when to start"))
	}
	if c.ExpectPeers < 0 {
		errs = append(errs, fmt.Errorf("expect_peers %d is negative", c.ExpectPeers))
	}
	if limit := c.maxPeers(); c.ExpectPeers > limit {
		errs = append(errs, fmt.Errorf("expect_peers %d exceeds max_peers %d", c.ExpectPeers, limit))
	}
	if c.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("max_attempts %d is negative", c.MaxAttempts))
	}
	if c.WindowSize < 1 || c.WindowSize > 64 {
		errs = append(errs, fmt.Errorf("window_size %d out of range [1, 64]", c.WindowSize))
	}
	if c.StepsPerSecond < 1 || c.StepsPerSecond > 1000 {
		errs = append(errs, fmt.Errorf("steps_per_second %d out of range [1, 1000]", c.StepsPerSecond))
	}
	if c.MaxSteps < 0 {
		errs = append(errs, fmt.Errorf("max_steps %d is negative", c.MaxSteps))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) maxPeers() int {
	if c.MaxPeers > 0 {
		return c.MaxPeers
	}
	if c.Role == RolePeer {
		return session.DefaultPeerMaxPeers
	}
	return session.DefaultHostMaxPeers
}

// Session converts to the session tunables.
func (c *Config) Session() session.Config {
	return session.Config{
		MaxPeers:      c.maxPeers(),
		RetryInterval: time.Duration(c.RetryIntervalMS) * time.Millisecond,
		MaxAttempts:   c.MaxAttempts,
		WindowSize:    c.WindowSize,
	}
}

// Driver converts to the game loop tunables.
func (c *Config) Driver() driver.Config {
	cfg := driver.Config{
		StepsPerSecond: c.StepsPerSecond,
		MaxSteps:       c.MaxSteps,
	}
	if c.Role == RoleHost {
		cfg.ExpectPeers = c.ExpectPeers
	}
	return cfg
}
