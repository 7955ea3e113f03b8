// Package mcp provides an MCP (Model Context Protocol) server for equilibria.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/equilibria/internal/config"
	"github.com/nvandessel/equilibria/internal/logging"
	"github.com/nvandessel/equilibria/internal/ratelimit"
	"github.com/nvandessel/equilibria/internal/store"
)

// Server wraps the MCP SDK server and provides equilibria tools.
type Server struct {
	server       *sdk.Server
	store        store.RunStore
	settings     *config.EquilibriaConfig
	dataDir      string
	logger       *slog.Logger
	auditLogger  *AuditLogger
	toolLimiters ratelimit.ToolLimiters
	closeOnce    sync.Once
	closeErr     error
}

// Config holds server configuration.
type Config struct {
	Name     string                   // Server name (e.g., "equilibria")
	Version  string                   // Server version
	Settings *config.EquilibriaConfig // nil loads the user config
	Store    store.RunStore           // nil opens the configured backend
	Logger   *slog.Logger             // nil logs at the configured level to stderr
}

// NewServer creates a new MCP server with equilibria tools.
func NewServer(cfg *Config) (*Server, error) {
	settings := cfg.Settings
	if settings == nil {
		loaded, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		settings = loaded
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dataDir, err := settings.DataDir()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger(settings.Logging.Level, os.Stderr)
	}

	runStore := cfg.Store
	if runStore == nil {
		runStore, err = store.Open(settings.StoreBackend(), dataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
	}

	mcpServer := sdk.NewServer(&sdk.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, &sdk.ServerOptions{
		InitializedHandler: func(ctx context.Context, req *sdk.InitializedRequest) {
			logger.Debug("mcp client initialized")
		},
	})

	s := &Server{
		server:       mcpServer,
		store:        runStore,
		settings:     settings,
		dataDir:      dataDir,
		logger:       logger,
		auditLogger:  NewAuditLogger(dataDir),
		toolLimiters: ratelimit.NewToolLimiters(),
	}

	if err := s.registerTools(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	if err := s.registerResources(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to register resources: %w", err)
	}

	return s, nil
}

// Run starts the MCP server over stdio transport.
// This blocks until the client disconnects or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	notifySignals(sigChan)

	go func() {
		select {
		case <-sigChan:
			s.logger.Info("shutting down on signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("mcp server starting", "store", string(s.settings.StoreBackend()), "data_dir", s.dataDir)
	err := s.server.Run(ctx, &sdk.StdioTransport{})

	if cerr := s.Close(); cerr != nil {
		s.logger.Warn("closing server", "error", cerr)
	}

	return err
}

// Close closes the run store and audit log. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.store.Close()
		if err := s.auditLogger.Close(); err != nil && s.closeErr == nil {
			s.closeErr = err
		}
	})
	return s.closeErr
}
