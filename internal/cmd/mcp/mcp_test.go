package mcp

import (
	"flag"
	"testing"
)

func TestParseConfigEnv(t *testing.T) {
	t.Setenv("STATEMACHINE_HOST_ENGINE_DB", "/tmp/engine.db")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.DBPath != "/tmp/engine.db" {
		t.Fatalf("db path = %q, want /tmp/engine.db", cfg.DBPath)
	}
}

func TestParseConfigFlagWinsOverEnv(t *testing.T) {
	t.Setenv("STATEMACHINE_HOST_ENGINE_DB", "/tmp/engine.db")

	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-db", "/tmp/other.db"})
	if err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if cfg.DBPath != "/tmp/other.db" {
		t.Fatalf("db path = %q, want /tmp/other.db", cfg.DBPath)
	}
}
