// Package engine wires configuration parsing and startup for the engine
// HTTP service.
package engine

import (
	"context"
	"flag"

	platformcmd "github.com/louisbranch/statemachine.host/internal/platform/cmd"
	server "github.com/louisbranch/statemachine.host/internal/services/engine/app"
)

// Config holds engine command configuration.
type Config struct {
	Port int `env:"STATEMACHINE_HOST_ENGINE_PORT" envDefault:"8080"`
}

// ParseConfig loads environment defaults and parses flag overrides into a
// Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The engine HTTP server port")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the engine server.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceEngine, func(ctx context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
