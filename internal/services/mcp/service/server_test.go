package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	t.Setenv("STATEMACHINE_HOST_ENGINE_DB", filepath.Join(t.TempDir(), "engine.db"))

	server, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = server.Close() })
	return server
}

func TestSubscribeHandlerValidatesURI(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	if err := server.subscribeHandler(ctx, &mcp.SubscribeRequest{}); err == nil {
		t.Fatal("expected error for missing params")
	}
	if err := server.subscribeHandler(ctx, &mcp.SubscribeRequest{
		Params: &mcp.SubscribeParams{URI: "campaign://abc"},
	}); err == nil {
		t.Fatal("expected error for non-session URI")
	}
}

func TestSubscribeTracksWatches(t *testing.T) {
	server := newTestServer(t)
	ctx := context.Background()

	uri := "session://abc123"
	if err := server.subscribeHandler(ctx, &mcp.SubscribeRequest{
		Params: &mcp.SubscribeParams{URI: uri},
	}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	server.mu.Lock()
	_, watching := server.watches[uri]
	server.mu.Unlock()
	if !watching {
		t.Fatal("expected live watch after subscribe")
	}

	// A duplicate subscribe is a no-op.
	if err := server.subscribeHandler(ctx, &mcp.SubscribeRequest{
		Params: &mcp.SubscribeParams{URI: uri},
	}); err != nil {
		t.Fatalf("duplicate subscribe: %v", err)
	}

	if err := server.unsubscribeHandler(ctx, &mcp.UnsubscribeRequest{
		Params: &mcp.UnsubscribeParams{URI: uri},
	}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}

	server.mu.Lock()
	_, watching = server.watches[uri]
	server.mu.Unlock()
	if watching {
		t.Fatal("expected watch removed after unsubscribe")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server := newTestServer(t)
	if err := server.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := server.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
