package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sandeepkv93/crudguard/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "crudguard"

type AppMetrics struct {
	guardDecisionCounter metric.Int64Counter
	trafficEventCounter  metric.Int64Counter
	trustComputeCounter  metric.Int64Counter
	signInCounter        metric.Int64Counter
	tokenFlowCounter     metric.Int64Counter
	repositoryOpCounter  metric.Int64Counter
	detachedTaskCounter  metric.Int64Counter
	securityEventCounter metric.Int64Counter
	csrfCheckCounter     metric.Int64Counter
	trustScoreHistogram  metric.Int64Histogram
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)

	m, err := newAppMetrics(mp.Meter(meterName))
	if err != nil {
		return nil, err
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newAppMetrics(meter metric.Meter) (*AppMetrics, error) {
	var (
		m   AppMetrics
		err error
	)
	if m.guardDecisionCounter, err = meter.Int64Counter("guard.decisions"); err != nil {
		return nil, err
	}
	if m.trafficEventCounter, err = meter.Int64Counter("traffic.events"); err != nil {
		return nil, err
	}
	if m.trustComputeCounter, err = meter.Int64Counter("trust.computations"); err != nil {
		return nil, err
	}
	if m.signInCounter, err = meter.Int64Counter("auth.signin.attempts"); err != nil {
		return nil, err
	}
	if m.tokenFlowCounter, err = meter.Int64Counter("auth.token_flow.events"); err != nil {
		return nil, err
	}
	if m.repositoryOpCounter, err = meter.Int64Counter("repository.operations"); err != nil {
		return nil, err
	}
	if m.detachedTaskCounter, err = meter.Int64Counter("detached.tasks"); err != nil {
		return nil, err
	}
	if m.securityEventCounter, err = meter.Int64Counter("security.events"); err != nil {
		return nil, err
	}
	if m.csrfCheckCounter, err = meter.Int64Counter("http.csrf.checks"); err != nil {
		return nil, err
	}
	if m.trustScoreHistogram, err = meter.Int64Histogram("trust.score"); err != nil {
		return nil, err
	}
	return &m, nil
}

func currentMetrics() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

// RecordGuardDecision counts auth guard outcomes; code is empty on success.
func RecordGuardDecision(ctx context.Context, outcome, code string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.guardDecisionCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("code", code),
	))
}

func RecordTrafficEvent(ctx context.Context, scope, event string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.trafficEventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("event", event),
	))
}

func RecordTrustComputation(ctx context.Context, source string, score int) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.trustComputeCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	m.trustScoreHistogram.Record(ctx, int64(score))
}

func RecordAuthSignIn(ctx context.Context, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.signInCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func RecordTokenFlow(ctx context.Context, flow, action, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.tokenFlowCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("action", action),
		attribute.String("status", status),
	))
}

func RecordRepositoryOperation(ctx context.Context, repo, op, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.repositoryOpCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("repository", repo),
		attribute.String("operation", op),
		attribute.String("status", status),
	))
}

func RecordDetachedTask(ctx context.Context, name, status string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.detachedTaskCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task", name),
		attribute.String("status", status),
	))
}

func RecordSecurityEvent(ctx context.Context, kind string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.securityEventCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func RecordCSRFCheck(ctx context.Context, group, outcome string) {
	m := currentMetrics()
	if m == nil {
		return
	}
	m.csrfCheckCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("path_group", group),
		attribute.String("outcome", outcome),
	))
}

func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
}
