// Package mcp wires configuration parsing and startup for the MCP stdio
// service.
package mcp

import (
	"context"
	"flag"

	platformcmd "github.com/louisbranch/statemachine.host/internal/platform/cmd"
	"github.com/louisbranch/statemachine.host/internal/services/mcp/service"
)

// Config holds MCP command configuration. The store path comes from
// STATEMACHINE_HOST_ENGINE_DB so the MCP server and the engine share one
// database.
type Config struct {
	DBPath string `env:"STATEMACHINE_HOST_ENGINE_DB"`
}

// ParseConfig loads environment defaults and parses flag overrides into a
// Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to the engine SQLite database")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the MCP server over stdio.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceMCP, func(ctx context.Context) error {
		return service.Run(ctx, cfg.DBPath)
	})
}
