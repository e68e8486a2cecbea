package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

func TestServeHandlesRequestsUntilCanceled(t *testing.T) {
	t.Setenv("STATEMACHINE_HOST_ENGINE_DB", filepath.Join(t.TempDir(), "engine.db"))

	engineServer, err := New(0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	addr := engineServer.Addr()
	if addr == "" {
		t.Fatal("expected non-empty address")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- engineServer.Serve(ctx)
	}()

	url := fmt.Sprintf("http://%s/health", addr)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("health status = %d, want 200", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("health endpoint never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop after cancel")
	}
}

func TestOpenEngineStoreDefaultsPath(t *testing.T) {
	t.Setenv("STATEMACHINE_HOST_ENGINE_DB", filepath.Join(t.TempDir(), "nested", "engine.db"))

	store, err := openEngineStore()
	if err != nil {
		t.Fatalf("openEngineStore: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
