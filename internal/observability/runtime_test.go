package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/sandeepkv93/crudguard/internal/config"
)

func TestRuntimeDisabledProvidersShutDownCleanly(t *testing.T) {
	cfg := &config.Config{OTELServiceName: "crudguard-test"}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rt, err := InitRuntime(context.Background(), cfg, logger, nil)
	if err != nil {
		t.Fatalf("init runtime: %v", err)
	}
	if len(rt.shutdowns) != 2 {
		t.Fatalf("expected metrics and traces providers, got %d", len(rt.shutdowns))
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}

func TestRuntimeShutdownRunsInReverseAndJoinsErrors(t *testing.T) {
	var order []string
	rt := &Runtime{}
	rt.add("logs", func(context.Context) error { order = append(order, "logs"); return nil })
	rt.add("metrics", func(context.Context) error { order = append(order, "metrics"); return errors.New("flush failed") })
	rt.add("traces", func(context.Context) error { order = append(order, "traces"); return nil })

	err := rt.Shutdown(context.Background())
	if err == nil || err.Error() != "shutdown metrics provider: flush failed" {
		t.Fatalf("unexpected error %v", err)
	}
	if len(order) != 3 || order[0] != "traces" || order[2] != "logs" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestNilRuntimeShutdown(t *testing.T) {
	var rt *Runtime
	if err := rt.Shutdown(context.Background()); err != nil {
		t.Fatalf("nil runtime: %v", err)
	}
}
