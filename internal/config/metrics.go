package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricOnce sync.Once
	loadCounter    metric.Int64Counter
)

func recordConfigLoad(ctx context.Context, env, rolesSource string, err error) {
	loadMetricOnce.Do(func() {
		c, cerr := otel.Meter("crudguard/config").Int64Counter("crudguard.config.loads",
			metric.WithDescription("Configuration loads by outcome and failure class"))
		if cerr == nil {
			loadCounter = c
		}
	})
	if loadCounter == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("env", labelOrUnknown(env)),
		attribute.String("roles_source", labelOrUnknown(rolesSource)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyLoadError(err)),
	))
}

func labelOrUnknown(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return "unknown"
	}
	return v
}

// classifyLoadError buckets a Load failure by the stage that produced it.
func classifyLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "config file"):
		return "config_file"
	case strings.HasPrefix(msg, "parse "):
		return "env"
	case strings.Contains(msg, "guest role"), strings.Contains(msg, "ROLES_SOURCE"):
		return "roles"
	case strings.Contains(msg, "traffic"):
		return "traffic"
	case strings.HasPrefix(msg, "validate config:"):
		return "validation"
	default:
		return "other"
	}
}
