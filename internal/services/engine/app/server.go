// Package server composes and runs the engine process boundary.
//
// It wires the SQLite store, the template registry, the arbiter, and the
// change notifier behind the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/statemachine.host/internal/engine/arbiter"
	"github.com/louisbranch/statemachine.host/internal/engine/identity"
	"github.com/louisbranch/statemachine.host/internal/engine/notify"
	"github.com/louisbranch/statemachine.host/internal/engine/session"
	"github.com/louisbranch/statemachine.host/internal/engine/sessionlock"
	"github.com/louisbranch/statemachine.host/internal/engine/storage/sqlite"
	"github.com/louisbranch/statemachine.host/internal/engine/template"
	"github.com/louisbranch/statemachine.host/internal/engine/template/chess"
	"github.com/louisbranch/statemachine.host/internal/engine/template/rps"
	"github.com/louisbranch/statemachine.host/internal/services/engine/api/rest"
	"golang.org/x/sync/errgroup"
)

// Server hosts the engine HTTP service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
}

// New creates a configured engine server listening on the provided port.
func New(port int) (*Server, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}

	store, err := openEngineStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	registry := template.NewRegistry(rps.New(), chess.New())
	notifier := notify.New()
	identitySvc := identity.NewService(store)
	sessions := session.NewService(store, registry, notifier)
	arb := arbiter.New(identitySvc, store, registry, sessionlock.New(), notifier)

	mux := http.NewServeMux()
	rest.NewServer(identitySvc, sessions, arb, notifier).RegisterRoutes(mux)

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: mux},
		store:      store,
	}, nil
}

// Addr returns the listener address for the engine server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves an engine server until the context ends.
func Run(ctx context.Context, port int) error {
	engineServer, err := New(port)
	if err != nil {
		return err
	}
	return engineServer.Serve(ctx)
}

// Serve starts the engine server and blocks until it stops or the context ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	defer s.closeStore()

	log.Printf("engine server listening at %v", s.listener.Addr())

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := s.httpServer.Serve(s.listener)
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func openEngineStore() (*sqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("STATEMACHINE_HOST_ENGINE_DB"))
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

func (s *Server) closeStore() {
	if s == nil {
		return
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			log.Printf("close engine store: %v", err)
		}
	}
}
