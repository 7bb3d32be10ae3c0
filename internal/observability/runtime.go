package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sandeepkv93/crudguard/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// Runtime owns the OTel providers installed for the process. Providers are
// flushed in reverse order of installation so logs emitted while metrics and
// traces drain still reach the exporter.
type Runtime struct {
	shutdowns []namedShutdown
}

type namedShutdown struct {
	name string
	fn   func(context.Context) error
}

func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*Runtime, error) {
	rt := &Runtime{}
	if lp != nil {
		rt.add("logs", lp.Shutdown)
	}
	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Join(err, rt.Shutdown(ctx))
	}
	rt.add("metrics", mp.Shutdown)
	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		return nil, errors.Join(err, rt.Shutdown(ctx))
	}
	rt.add("traces", tp.Shutdown)
	return rt, nil
}

func (r *Runtime) add(name string, fn func(context.Context) error) {
	r.shutdowns = append(r.shutdowns, namedShutdown{name: name, fn: fn})
}

func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.shutdowns) - 1; i >= 0; i-- {
		s := r.shutdowns[i]
		if err := s.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown %s provider: %w", s.name, err))
		}
	}
	r.shutdowns = nil
	return errors.Join(errs...)
}
