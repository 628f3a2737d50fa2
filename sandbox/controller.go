// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/parselbox/parselbox/bridge"
	"github.com/parselbox/parselbox/capability"
	"github.com/parselbox/parselbox/engine"
	"github.com/parselbox/parselbox/executor"
	"github.com/parselbox/parselbox/lib/clock"
	"github.com/parselbox/parselbox/value"
)

const (
	// DefaultWorkDir is the sandbox path scripts write output to, and
	// the root the file diff tracker snapshots.
	DefaultWorkDir = "/workspace"

	// DefaultMountRoot is where named read-only mounts appear inside
	// the sandbox, one directory per mount name.
	DefaultMountRoot = "/mnt"
)

// Config carries the collaborators a Controller needs.
type Config struct {
	// Engine executes scripts. Required.
	Engine engine.Engine

	// Transport delivers host callback envelopes. Required.
	Transport bridge.Transport

	// WorkDir overrides DefaultWorkDir.
	WorkDir string

	// MountRoot overrides DefaultMountRoot.
	MountRoot string

	// Clock abstracts time for execution timeouts. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger receives structured log output. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// Controller owns one sandbox session: one engine, one working
// directory, one capability ledger. It exposes the two caller-facing
// operations, Configure and Execute.
//
// A Controller is not safe for concurrent use: the engine serializes
// all executions, so callers must not overlap Configure or Execute
// calls.
type Controller struct {
	engine    engine.Engine
	bridge    *bridge.Bridge
	ledger    *capability.Ledger
	executor  *executor.Controller
	workDir   string
	mountRoot string
	logger    *slog.Logger
}

// New creates a session around the given engine and creates the
// working directory inside it.
func New(config Config) (*Controller, error) {
	if config.Engine == nil {
		return nil, fmt.Errorf("sandbox: an engine is required")
	}
	if config.Transport == nil {
		return nil, fmt.Errorf("sandbox: a callback transport is required")
	}
	workDir := config.WorkDir
	if workDir == "" {
		workDir = DefaultWorkDir
	}
	mountRoot := config.MountRoot
	if mountRoot == "" {
		mountRoot = DefaultMountRoot
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ledger := capability.NewLedger()
	controller := &Controller{
		engine:    config.Engine,
		bridge:    bridge.New(config.Transport, logger),
		ledger:    ledger,
		workDir:   workDir,
		mountRoot: mountRoot,
		logger:    logger,
		executor: &executor.Controller{
			Engine:  config.Engine,
			Ledger:  ledger,
			WorkDir: workDir,
			Clock:   config.Clock,
			Logger:  logger,
		},
	}
	if err := config.Engine.Mkdir(workDir); err != nil {
		return nil, fmt.Errorf("sandbox: creating working directory %s: %w", workDir, err)
	}
	return controller, nil
}

// ConfigureSpec is the payload of one configure call. Every field is
// optional; absent fields leave the session unchanged.
type ConfigureSpec struct {
	// Globals are injected into the script namespace.
	Globals map[string]any `json:"globals,omitempty"`

	// OutputDir is a host directory mounted read-write at the working
	// directory, so files the script produces land on the host.
	OutputDir string `json:"output_dir,omitempty"`

	// Mounts maps a name to a host directory mounted read-only under
	// the mount root.
	Mounts map[string]string `json:"mounts,omitempty"`

	// Tools are host callback names to expose as callable globals.
	Tools []string `json:"tools,omitempty"`

	// ProxyTools are root names to expose as attribute-chain proxies.
	ProxyTools []string `json:"proxy_tools,omitempty"`

	// Packages are installed immediately, gated on the network
	// capability.
	Packages []string `json:"packages,omitempty"`

	// DisableNet permanently revokes the network capability.
	DisableNet bool `json:"disable_net,omitempty"`

	// DisableRuntimePackages permanently revokes runtime package
	// installation.
	DisableRuntimePackages bool `json:"disable_runtime_packages,omitempty"`
}

// ConfigureResult is the caller-facing outcome of Configure.
type ConfigureResult struct {
	IsSuccess bool   `json:"is_success"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Configure applies spec to the session: globals, then the output
// mount, then named mounts, then tool registration, then package
// loading. The first failing step aborts the rest, but steps already
// applied are not rolled back, and the permission ratchet always runs,
// success or not.
func (c *Controller) Configure(ctx context.Context, spec ConfigureSpec) ConfigureResult {
	err := c.configure(ctx, spec)

	if spec.DisableNet {
		c.ledger.Revoke(capability.Network)
	}
	if spec.DisableRuntimePackages {
		c.ledger.Revoke(capability.RuntimePackages)
	}

	if err != nil {
		c.logger.Warn("configure failed", "error", err)
		classified := executor.Classify(err, false)
		return ConfigureResult{Error: classified.Message, ErrorCode: string(classified.Code)}
	}
	return ConfigureResult{IsSuccess: true}
}

func (c *Controller) configure(ctx context.Context, spec ConfigureSpec) error {
	for _, name := range sortedKeys(spec.Globals) {
		if err := c.engine.SetGlobal(name, value.Decode(spec.Globals[name])); err != nil {
			return fmt.Errorf("injecting global %q: %w", name, err)
		}
	}

	if spec.OutputDir != "" {
		if err := c.engine.Mount(spec.OutputDir, c.workDir, false); err != nil {
			return fmt.Errorf("mounting output directory %s: %w", spec.OutputDir, err)
		}
		c.logger.Info("output directory mounted", "host", spec.OutputDir, "sandbox", c.workDir)
	}

	for _, name := range sortedKeys(spec.Mounts) {
		hostPath := spec.Mounts[name]
		mountPoint := path.Join(c.mountRoot, name)
		if err := c.engine.Mkdir(mountPoint); err != nil {
			return fmt.Errorf("creating mount point %s: %w", mountPoint, err)
		}
		if err := c.engine.Mount(hostPath, mountPoint, true); err != nil {
			return fmt.Errorf("mounting %s at %s: %w", hostPath, mountPoint, err)
		}
		c.trackMount(mountPoint)
	}

	for _, name := range spec.Tools {
		if err := c.engine.SetGlobal(name, c.bridge.Callback(name)); err != nil {
			return fmt.Errorf("registering tool %q: %w", name, err)
		}
	}
	for _, name := range spec.ProxyTools {
		if err := c.engine.SetGlobal(name, c.bridge.Proxy(name)); err != nil {
			return fmt.Errorf("registering proxy %q: %w", name, err)
		}
	}

	if len(spec.Packages) > 0 {
		if !c.ledger.Granted(capability.Network) {
			return &executor.Error{
				Code:    executor.CodePermissionDenied,
				Message: "network access is disabled, cannot download packages",
			}
		}
		if err := c.engine.LoadPackages(ctx, spec.Packages); err != nil {
			return fmt.Errorf("loading packages: %w", err)
		}
		c.logger.Info("packages loaded", "packages", spec.Packages)
	}
	return nil
}

// trackMount excludes a mount point from file diff snapshots when it
// falls under the working directory; mounted host files are not script
// output.
func (c *Controller) trackMount(mountPoint string) {
	if !strings.HasPrefix(mountPoint, c.workDir+"/") {
		return
	}
	for _, existing := range c.executor.SkipMounts {
		if existing == mountPoint {
			return
		}
	}
	c.executor.SkipMounts = append(c.executor.SkipMounts, mountPoint)
}

// ExecuteSpec is the payload of one execute_python call.
type ExecuteSpec struct {
	// Code is the script source.
	Code string `json:"code"`

	// Timeout bounds the script's wall-clock runtime, in seconds. Zero
	// means no timeout.
	Timeout float64 `json:"timeout,omitempty"`

	// AutoLoadPackages resolves the script's imports and installs the
	// packages they imply before running.
	AutoLoadPackages bool `json:"auto_load_packages,omitempty"`
}

// ExecuteResult is the caller-facing outcome of Execute.
type ExecuteResult struct {
	IsSuccess bool     `json:"is_success"`
	Result    any      `json:"result,omitempty"`
	Files     []string `json:"files,omitempty"`
	Error     string   `json:"error,omitempty"`
	ErrorCode string   `json:"error_code,omitempty"`
}

// Execute runs one script through the execution controller and
// translates its outcome into the caller-facing shape.
func (c *Controller) Execute(ctx context.Context, spec ExecuteSpec) ExecuteResult {
	outcome := c.executor.Execute(ctx, executor.Request{
		Code:             spec.Code,
		Timeout:          time.Duration(spec.Timeout * float64(time.Second)),
		AutoLoadPackages: spec.AutoLoadPackages,
	})
	if outcome.Err != nil {
		return ExecuteResult{
			Error:     outcome.Err.Message,
			ErrorCode: string(outcome.Err.Code),
		}
	}
	return ExecuteResult{
		IsSuccess: true,
		Result:    outcome.Value,
		Files:     outcome.Files,
	}
}

// Ledger exposes the session's capability ledger.
func (c *Controller) Ledger() *capability.Ledger {
	return c.ledger
}

// Close shuts the engine down.
func (c *Controller) Close() error {
	return c.engine.Close()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
