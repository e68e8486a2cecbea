// Package service composes and runs the MCP process boundary.
//
// It embeds the coordination engine in-process (one store, one notifier) and
// exposes it to MCP clients over stdio: tools for identity and session
// operations, a session resource, and resource-updated notifications driven
// by the engine's change notifier.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/louisbranch/statemachine.host/internal/engine/arbiter"
	"github.com/louisbranch/statemachine.host/internal/engine/identity"
	"github.com/louisbranch/statemachine.host/internal/engine/notify"
	"github.com/louisbranch/statemachine.host/internal/engine/session"
	"github.com/louisbranch/statemachine.host/internal/engine/sessionlock"
	"github.com/louisbranch/statemachine.host/internal/engine/storage/sqlite"
	"github.com/louisbranch/statemachine.host/internal/engine/template"
	"github.com/louisbranch/statemachine.host/internal/engine/template/chess"
	"github.com/louisbranch/statemachine.host/internal/engine/template/rps"
	"github.com/louisbranch/statemachine.host/internal/services/mcp/domain"
)

const (
	serverName = "statemachine-host"
	// serverVersion identifies the MCP server version.
	serverVersion = "0.1.0"
)

// Server hosts the MCP service with an in-process engine.
type Server struct {
	mcpServer *mcp.Server
	store     *sqlite.Store
	notifier  *notify.Notifier

	mu      sync.Mutex
	current domain.Context
	watches map[string]*notify.Subscription
}

// New creates a configured MCP server backed by the engine store. An empty
// dbPath falls back to STATEMACHINE_HOST_ENGINE_DB and then the default
// location.
func New(dbPath string) (*Server, error) {
	store, err := openEngineStore(dbPath)
	if err != nil {
		return nil, err
	}

	registry := template.NewRegistry(rps.New(), chess.New())
	notifier := notify.New()
	identitySvc := identity.NewService(store)
	sessions := session.NewService(store, registry, notifier)
	arb := arbiter.New(identitySvc, store, registry, sessionlock.New(), notifier)

	server := &Server{
		store:    store,
		notifier: notifier,
		watches:  make(map[string]*notify.Subscription),
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, &mcp.ServerOptions{
		SubscribeHandler:   server.subscribeHandler,
		UnsubscribeHandler: server.unsubscribeHandler,
	})
	server.mcpServer = mcpServer

	resourceNotifier := func(ctx context.Context, uri string) {
		if strings.TrimSpace(uri) == "" {
			return
		}
		if ctx == nil {
			ctx = context.Background()
		}
		if err := mcpServer.ResourceUpdated(ctx, &mcp.ResourceUpdatedNotificationParams{URI: uri}); err != nil {
			log.Printf("mcp resource updated notify failed: uri=%s err=%v", uri, err)
		}
	}

	getContext := server.getContext
	mcp.AddTool(mcpServer, domain.RegisterAgentTool(), domain.RegisterAgentHandler(identitySvc))
	mcp.AddTool(mcpServer, domain.ClaimAgentTool(), domain.ClaimAgentHandler(identitySvc, server.setContext))
	mcp.AddTool(mcpServer, domain.CreateSessionTool(), domain.CreateSessionHandler(sessions, getContext))
	mcp.AddTool(mcpServer, domain.JoinSessionTool(), domain.JoinSessionHandler(sessions, getContext, resourceNotifier))
	mcp.AddTool(mcpServer, domain.SubmitActionTool(), domain.SubmitActionHandler(arb, getContext, resourceNotifier))
	mcp.AddTool(mcpServer, domain.GetSessionStateTool(), domain.GetSessionStateHandler(sessions, getContext))
	mcp.AddTool(mcpServer, domain.ListMySessionsTool(), domain.ListMySessionsHandler(sessions, getContext))
	mcpServer.AddResourceTemplate(domain.SessionResourceTemplate(), domain.SessionResourceHandler(sessions, getContext))

	return server, nil
}

// Run creates and serves an MCP server over stdio until the context ends.
func Run(ctx context.Context, dbPath string) error {
	server, err := New(dbPath)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the MCP server over stdio and blocks until it stops or the
// context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.mcpServer.Run(ctx, &mcp.StdioTransport{})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	closeErr := s.Close()
	if closeErr != nil {
		if err == nil {
			return fmt.Errorf("close MCP server: %w", closeErr)
		}
		return fmt.Errorf("serve MCP: %v; close MCP server: %w", err, closeErr)
	}
	if err != nil {
		return fmt.Errorf("serve MCP: %w", err)
	}
	return nil
}

// Close releases the store and any live resource watches.
func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	for uri, sub := range s.watches {
		sub.Close()
		delete(s.watches, uri)
	}
	s.mu.Unlock()
	if s.store == nil {
		return nil
	}
	err := s.store.Close()
	s.store = nil
	return err
}

func (s *Server) getContext() domain.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Server) setContext(current domain.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = current
}

// subscribeHandler starts forwarding the session's change events to the MCP
// client as resource-updated notifications.
func (s *Server) subscribeHandler(_ context.Context, req *mcp.SubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	uri := req.Params.URI
	sessionID, err := domain.ParseSessionURI(uri)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.watches[uri]; exists {
		return nil
	}
	sub := s.notifier.Subscribe(sessionID)
	s.watches[uri] = sub

	go func() {
		for range sub.Events() {
			if err := s.mcpServer.ResourceUpdated(context.Background(), &mcp.ResourceUpdatedNotificationParams{URI: uri}); err != nil {
				log.Printf("mcp resource updated notify failed: uri=%s err=%v", uri, err)
			}
		}
	}()
	return nil
}

// unsubscribeHandler stops the forwarding started by subscribeHandler.
func (s *Server) unsubscribeHandler(_ context.Context, req *mcp.UnsubscribeRequest) error {
	if req == nil || req.Params == nil || strings.TrimSpace(req.Params.URI) == "" {
		return fmt.Errorf("resource uri is required")
	}
	uri := req.Params.URI

	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, exists := s.watches[uri]; exists {
		sub.Close()
		delete(s.watches, uri)
	}
	return nil
}

func openEngineStore(path string) (*sqlite.Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("STATEMACHINE_HOST_ENGINE_DB"))
	}
	if path == "" {
		path = filepath.Join("data", "engine.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open engine sqlite store: %w", err)
	}
	return store, nil
}
