// Package cli wires configuration, adapters, and the engine into runnable
// commands.
package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/foreman/pkg/domain"
)

// DefaultConfigPath is where commands look for configuration when --config is
// not given.
const DefaultConfigPath = "foreman.yaml"

// Config is the application configuration, normally read from foreman.yaml.
type Config struct {
	// Descriptor is the workflow descriptor path.
	Descriptor string `yaml:"descriptor"`

	// Command names the descriptor command delegation passes apply.
	Command string `yaml:"command"`

	// FallbackMode overrides the proceed decision.
	FallbackMode string `yaml:"fallback_mode"`

	// AuditOnly makes every pass a dry run.
	AuditOnly bool `yaml:"audit_only"`

	LogLevel string `yaml:"log_level"`

	// AuditLog is the dispatch audit log path (JSONL).
	AuditLog string `yaml:"audit_log"`

	Redis     RedisConfig     `yaml:"redis"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Notify    NotifyConfig    `yaml:"notify"`
	Server    ServerConfig    `yaml:"server"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

// RedisConfig selects the work-item store. An empty Addr falls back to the
// in-memory store, which only makes sense for demos and tests.
type RedisConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
}

// DispatchConfig selects how delegated workers are spawned.
type DispatchConfig struct {
	// Mode is "direct" (detached local process) or "pool" (container pool).
	Mode string `yaml:"mode"`

	// Dir is the working directory for spawned workers.
	Dir string `yaml:"dir"`

	Pool PoolConfig `yaml:"pool"`
}

// PoolConfig describes the container pool for pool-mode dispatch.
type PoolConfig struct {
	Members      []string `yaml:"members"`
	StateFile    string   `yaml:"state_file"`
	Runtime      string   `yaml:"runtime"`
	ClaimTimeout string   `yaml:"claim_timeout"`
}

// NotifyConfig points at the desktop notification bridge socket. Empty means
// notifications are dropped.
type NotifyConfig struct {
	Socket string `yaml:"socket"`
}

// ServerConfig configures the agent callback API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// SchedulerConfig configures the polling loop.
type SchedulerConfig struct {
	Interval string `yaml:"interval"`
}

// LoadConfig reads and validates the configuration file. A missing file at
// the default path yields the built-in defaults; a missing file at an
// explicit path is an error.
func LoadConfig(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultConfig() Config {
	return Config{
		Descriptor: "workflow.yaml",
		Command:    domain.DefaultCommand,
		LogLevel:   "info",
		Dispatch:   DispatchConfig{Mode: "direct"},
		Server:     ServerConfig{Addr: ":8713"},
		Scheduler:  SchedulerConfig{Interval: "30s"},
	}
}

func (c Config) validate() error {
	switch domain.FallbackMode(c.FallbackMode) {
	case "", domain.FallbackAcceptRecommendation, domain.FallbackHold,
		domain.FallbackDiscussOptions, domain.FallbackAutoAccept, domain.FallbackAutoDecline:
	default:
		return fmt.Errorf("unknown fallback_mode %q", c.FallbackMode)
	}

	switch c.Dispatch.Mode {
	case "", "direct", "pool":
	default:
		return fmt.Errorf("unknown dispatch.mode %q", c.Dispatch.Mode)
	}
	if c.Dispatch.Mode == "pool" && len(c.Dispatch.Pool.Members) == 0 {
		return fmt.Errorf("dispatch.mode is pool but dispatch.pool.members is empty")
	}

	if _, err := c.PollInterval(); err != nil {
		return err
	}
	if _, err := c.PoolClaimTimeout(); err != nil {
		return err
	}
	return nil
}

// PollInterval parses the scheduler interval.
func (c Config) PollInterval() (time.Duration, error) {
	if c.Scheduler.Interval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Scheduler.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid scheduler.interval %q: %w", c.Scheduler.Interval, err)
	}
	return d, nil
}

// PoolClaimTimeout parses the pool claim timeout.
func (c Config) PoolClaimTimeout() (time.Duration, error) {
	if c.Dispatch.Pool.ClaimTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Dispatch.Pool.ClaimTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid dispatch.pool.claim_timeout %q: %w", c.Dispatch.Pool.ClaimTimeout, err)
	}
	return d, nil
}
