// Copyright 2026 The Parselbox Authors
// SPDX-License-Identifier: Apache-2.0

// parselbox-server exposes one sandboxed Python session over MCP on
// stdio.
//
// Usage:
//
//	parselbox-server [--config FILE] [--engine COMMAND] [--workdir DIR]
//
// The server spawns the interpreter runner at startup (a failure to do
// so is fatal), then serves two tools to the connected client:
// configure and execute_python. Host callbacks registered via
// configure are delivered back to the client as elicitation requests;
// script output is forwarded as MCP log messages.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/pflag"

	"github.com/parselbox/parselbox/engine"
	"github.com/parselbox/parselbox/lib/config"
	"github.com/parselbox/parselbox/lib/version"
	"github.com/parselbox/parselbox/sandbox"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "parselbox-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var engineCommand string
	var workDir string
	var debug bool
	var showVersion bool

	flagSet := pflag.NewFlagSet("parselbox-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to parselbox.yaml (default: $PARSELBOX_CONFIG)")
	flagSet.StringVar(&engineCommand, "engine", "", "interpreter runner command (overrides config)")
	flagSet.StringVar(&workDir, "workdir", "", "sandbox working directory (overrides config)")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("parselbox-server %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if engineCommand != "" {
		cfg.Engine.Command = engineCommand
	}
	if workDir != "" {
		cfg.Sandbox.WorkDir = workDir
	}

	logLevel := parseLevel(cfg.Log.Level)
	if debug || os.Getenv("PARSELBOX_DEBUG") != "" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	server := &server{logger: logger}

	env := make(map[string]string, len(cfg.Engine.Env)+2)
	for key, value := range cfg.Engine.Env {
		env[key] = value
	}
	env["PARSELBOX_MEMORY_LIMIT_MB"] = fmt.Sprint(cfg.Engine.MemoryLimitMB)
	env["PARSELBOX_PACKAGE_DOMAINS"] = strings.Join(cfg.Engine.PackageDomains, ",")

	runner, err := engine.NewSubprocess(ctx, engine.SubprocessConfig{
		Command: cfg.Engine.Command,
		Args:    cfg.Engine.Args,
		Env:     env,
		Output:  server.forwardOutput,
		Logger:  logger,
	})
	if err != nil {
		// The engine is the one collaborator the server cannot run
		// without.
		return fmt.Errorf("starting engine: %w", err)
	}

	controller, err := sandbox.New(sandbox.Config{
		Engine:    runner,
		Transport: &server.transport,
		WorkDir:   cfg.Sandbox.WorkDir,
		MountRoot: cfg.Sandbox.MountRoot,
		Logger:    logger,
	})
	if err != nil {
		_ = runner.Close()
		return err
	}
	defer func() {
		if closeErr := controller.Close(); closeErr != nil {
			logger.Warn("engine shutdown", "error", closeErr)
		}
	}()
	server.controller = controller
	server.defaultTimeout = cfg.Sandbox.DefaultTimeout.Seconds()

	impl := &mcp.Implementation{
		Name:    "parselbox",
		Title:   "Sandboxed Python execution",
		Version: version.Version,
	}
	mcpServer := mcp.NewServer(impl, &mcp.ServerOptions{
		Instructions: "Run untrusted Python in an isolated sandbox. Call configure to " +
			"set up globals, mounts, and tools, then execute_python to run code.",
	})
	mcp.AddTool(mcpServer, configureTool, server.Configure)
	mcp.AddTool(mcpServer, executeTool, server.ExecutePython)

	logger.Info("serving MCP on stdio", "engine", cfg.Engine.Command, "workdir", cfg.Sandbox.WorkDir)
	return mcpServer.Run(ctx, &mcp.StdioTransport{})
}

var configureTool = &mcp.Tool{
	Name: "configure",
	Description: "Configure the sandbox session: inject globals, mount directories, " +
		"register host tools, load packages, and ratchet down permissions. " +
		"Permission revocations are permanent for the session.",
}

var executeTool = &mcp.Tool{
	Name: "execute_python",
	Description: "Execute Python code in the sandbox. Returns the final expression's " +
		"value, the files the script produced, and a classified error on failure.",
}

// server holds the per-session state behind the MCP tool handlers.
type server struct {
	controller     *sandbox.Controller
	transport      elicitTransport
	logger         *slog.Logger
	defaultTimeout float64

	// The engine serializes executions; the mutex keeps overlapping
	// tool calls from reaching it.
	mu sync.Mutex
}

func (s *server) Configure(ctx context.Context, request *mcp.CallToolRequest, spec sandbox.ConfigureSpec) (*mcp.CallToolResult, *sandbox.ConfigureResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport.session.Store(request.Session)

	result := s.controller.Configure(ctx, spec)
	return nil, &result, nil
}

func (s *server) ExecutePython(ctx context.Context, request *mcp.CallToolRequest, spec sandbox.ExecuteSpec) (*mcp.CallToolResult, *sandbox.ExecuteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport.session.Store(request.Session)

	if spec.Timeout == 0 {
		spec.Timeout = s.defaultTimeout
	}
	result := s.controller.Execute(ctx, spec)
	return nil, &result, nil
}

// forwardOutput relays script output to the connected client as MCP
// log messages.
func (s *server) forwardOutput(level, message string) {
	session := s.transport.session.Load()
	if session == nil {
		return
	}
	logLevel := "info"
	switch level {
	case "warning", "error", "debug":
		logLevel = level
	}
	if err := session.Log(context.Background(), &mcp.LoggingMessageParams{
		Logger: "script",
		Level:  mcp.LoggingLevel(logLevel),
		Data:   message,
	}); err != nil {
		s.logger.Debug("forwarding script output failed", "error", err)
	}
}

// elicitTransport delivers host callback envelopes as MCP elicitation
// requests: the envelope rides in the message, the client answers with
// the encoded outcome in the "result" field.
type elicitTransport struct {
	session atomic.Pointer[mcp.ServerSession]
}

var outcomeSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"result": {Type: "string"},
	},
	Required: []string{"result"},
}

func (t *elicitTransport) Deliver(ctx context.Context, request []byte) ([]byte, error) {
	session := t.session.Load()
	if session == nil {
		return nil, fmt.Errorf("no client session to deliver the callback to")
	}
	result, err := session.Elicit(ctx, &mcp.ElicitParams{
		Message:         string(request),
		RequestedSchema: outcomeSchema,
	})
	if err != nil {
		return nil, err
	}
	return outcomeFromElicit(result)
}

// outcomeFromElicit extracts the encoded callback outcome from an
// elicitation result. A malformed accept (missing or non-string
// "result" field) is an error, not an empty response; an empty
// response would reach the script as a phantom None.
func outcomeFromElicit(result *mcp.ElicitResult) ([]byte, error) {
	if result.Action != "accept" {
		return nil, fmt.Errorf("client %sed the callback", result.Action)
	}
	encoded, ok := result.Content["result"].(string)
	if !ok {
		return nil, fmt.Errorf("callback response is missing the result field")
	}
	return []byte(encoded), nil
}
