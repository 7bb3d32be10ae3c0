package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/sandeepkv93/crudguard/internal/config"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/service"
)

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Traffic       *service.TrafficMonitor
	Detacher      *service.Detacher

	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration

	scheduler *cron.Cron
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	traffic *service.TrafficMonitor,
	detacher *service.Detacher,
) (*App, error) {
	a := &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		Traffic:                      traffic,
		Detacher:                     detacher,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
		scheduler:                    cron.New(),
	}
	if traffic != nil {
		if _, err := a.scheduler.AddFunc(cfg.Traffic.ResetSchedule, a.resetTraffic); err != nil {
			return nil, fmt.Errorf("schedule traffic reset: %w", err)
		}
	}
	return a, nil
}

func (a *App) resetTraffic() {
	a.Traffic.Reset()
	observability.RecordTrafficEvent(context.Background(), "all", "reset")
	a.Logger.Debug("traffic counters reset")
}

// Run serves HTTP and runs scheduled jobs until ctx is cancelled or the
// server fails, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.scheduler.Start()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return a.Shutdown()
	})
	return g.Wait()
}

func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.ShutdownTimeout)
	defer cancel()
	a.Logger.Info("shutting down")

	var errs []error
	jobs := a.scheduler.Stop()

	drainCtx, drainCancel := context.WithTimeout(ctx, a.ShutdownHTTPDrainTimeout)
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	drainCancel()

	select {
	case <-jobs.Done():
	case <-ctx.Done():
	}
	if a.Detacher != nil {
		if err := a.Detacher.Wait(ctx); err != nil {
			errs = append(errs, fmt.Errorf("detached tasks: %w", err))
		}
	}

	obsCtx, obsCancel := context.WithTimeout(ctx, a.ShutdownObservabilityTimeout)
	defer obsCancel()
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, fmt.Errorf("observability shutdown: %w", err))
	}
	return errors.Join(errs...)
}
