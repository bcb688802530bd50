package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/rsloan/skillroute/internal/backend"
	"github.com/rsloan/skillroute/internal/embedder"
	"github.com/rsloan/skillroute/internal/router"
)

const (
	// ServerName is the MCP server name
	ServerName = "skillroute"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// DefaultDBPath is the default location for the command catalog
	DefaultDBPath = "~/.skillroute/catalog"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	backend  backend.Backend
	embedder *embedder.Retriever
	router   *router.Router
	logger   *slog.Logger
}

// NewServer creates a new MCP server instance. profilePath may be empty, in
// which case the built-in confidence profiles are used.
func NewServer(dbPath, profilePath string) (*Server, error) {
	// Expand home directory if needed
	if dbPath == "" || dbPath == DefaultDBPath {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(home, ".skillroute", "catalog")
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dbFile := filepath.Join(dbPath, "skillroute.db")

	store, err := backend.NewSQLiteBackend(dbFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend: %w", err)
	}

	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	profiles := router.DefaultProfiles()
	if profilePath != "" {
		profiles, err = router.LoadProfiles(profilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load confidence profiles: %w", err)
		}
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	rtr, err := router.New(store, emb, profiles, router.Config{}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize router: %w", err)
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
	)

	s := &Server{
		mcp:      mcpServer,
		backend:  store,
		embedder: emb,
		router:   rtr,
		logger:   logger,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		_ = s.embedder.Close()
		_ = s.backend.Close()
	}()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(routeQueryTool(), s.handleRouteQuery)
	s.mcp.AddTool(registerCommandTool(), s.handleRegisterCommand)
	s.mcp.AddTool(invalidateCollectionTool(), s.handleInvalidateCollection)
	s.mcp.AddTool(cacheStatsTool(), s.handleCacheStats)
	return nil
}
