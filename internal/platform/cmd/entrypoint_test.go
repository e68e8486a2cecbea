package cmd

import (
	"context"
	"errors"
	"flag"
	"testing"
)

func TestParseConfigNilTarget(t *testing.T) {
	if err := ParseConfig[struct{}](nil); err == nil {
		t.Fatal("expected error for nil config target")
	}
}

func TestParseArgsNilFlagSet(t *testing.T) {
	if err := ParseArgs(nil, nil); err == nil {
		t.Fatal("expected error for nil flag parser")
	}
}

func TestParseArgsNilArgs(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if err := ParseArgs(fs, nil); err != nil {
		t.Fatalf("parse args: %v", err)
	}
}

func TestRunWithTelemetryRequiresService(t *testing.T) {
	err := RunWithTelemetry(context.Background(), "  ", func(context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected error for empty service name")
	}
}

func TestRunWithTelemetryRequiresRun(t *testing.T) {
	err := RunWithTelemetry(context.Background(), "engine", nil)
	if err == nil {
		t.Fatal("expected error for nil run function")
	}
}

func TestRunWithTelemetryPropagatesRunError(t *testing.T) {
	t.Setenv("STATEMACHINE_HOST_OTEL_ENDPOINT", "")
	want := errors.New("boom")
	err := RunWithTelemetry(context.Background(), "engine", func(context.Context) error { return want })
	if !errors.Is(err, want) {
		t.Fatalf("expected run error, got %v", err)
	}
}
