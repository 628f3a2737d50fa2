// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the parselbox
// server.
//
// Configuration is loaded from a single file specified by:
//   - PARSELBOX_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. The config file is
// the single source of truth; environment variables do not override
// config values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for the parselbox server.
type Config struct {
	// Engine configures the interpreter runner subprocess.
	Engine EngineConfig `yaml:"engine"`

	// Sandbox configures the session the server owns.
	Sandbox SandboxConfig `yaml:"sandbox"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log"`
}

// EngineConfig configures the interpreter runner subprocess.
type EngineConfig struct {
	// Command is the runner executable.
	// Default: deno
	Command string `yaml:"command"`

	// Args are passed to the runner before the built-in arguments.
	Args []string `yaml:"args"`

	// Env are additional environment variables for the runner.
	Env map[string]string `yaml:"env"`

	// MemoryLimitMB caps the interpreter heap, in megabytes.
	// Default: 512
	MemoryLimitMB int `yaml:"memory_limit_mb"`

	// PackageDomains are the network hosts package downloads may
	// reach. Revoking the network capability blocks downloads
	// regardless of this list.
	PackageDomains []string `yaml:"package_domains"`
}

// SandboxConfig configures the session.
type SandboxConfig struct {
	// WorkDir is the sandbox path scripts write output to.
	// Default: /workspace
	WorkDir string `yaml:"work_dir"`

	// MountRoot is where named read-only mounts appear.
	// Default: /mnt
	MountRoot string `yaml:"mount_root"`

	// DefaultTimeout bounds executions that do not specify their own
	// timeout. Zero means unbounded.
	// Default: 60s
	DefaultTimeout time.Duration `yaml:"default_timeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`
}

// Default returns the default configuration. These defaults are the
// base the config file is merged over.
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			Command:       "deno",
			MemoryLimitMB: 512,
			PackageDomains: []string{
				"cdn.jsdelivr.net:443",
				"pypi.org:443",
				"files.pythonhosted.org:443",
			},
		},
		Sandbox: SandboxConfig{
			WorkDir:        "/workspace",
			MountRoot:      "/mnt",
			DefaultTimeout: 60 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the PARSELBOX_CONFIG environment
// variable. If the variable is not set, the defaults are returned; the
// server is fully functional without a config file.
func Load() (*Config, error) {
	configPath := os.Getenv("PARSELBOX_CONFIG")
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for values the server cannot run
// with.
func (c *Config) Validate() error {
	if c.Engine.Command == "" {
		return fmt.Errorf("engine.command must not be empty")
	}
	if c.Engine.MemoryLimitMB < 0 {
		return fmt.Errorf("engine.memory_limit_mb must not be negative")
	}
	if c.Sandbox.WorkDir == "" {
		return fmt.Errorf("sandbox.work_dir must not be empty")
	}
	if c.Sandbox.MountRoot == "" {
		return fmt.Errorf("sandbox.mount_root must not be empty")
	}
	if c.Sandbox.DefaultTimeout < 0 {
		return fmt.Errorf("sandbox.default_timeout must not be negative")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
	}
	return nil
}
