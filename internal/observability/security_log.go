package observability

import (
	"context"
	"log/slog"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

// SecurityLogger is the sink for security events raised by the guard and the
// auth flows. attrs are slog-style key/value pairs; "user_id" and "ip" are
// recognised by persistent sinks.
type SecurityLogger interface {
	LogSecurity(ctx context.Context, kind domain.SecurityEventKind, message string, attrs ...any)
}

type SlogSecurityLogger struct {
	logger *slog.Logger
}

func NewSlogSecurityLogger(logger *slog.Logger) *SlogSecurityLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSecurityLogger{logger: logger}
}

func (l *SlogSecurityLogger) LogSecurity(ctx context.Context, kind domain.SecurityEventKind, message string, attrs ...any) {
	level := slog.LevelInfo
	switch kind {
	case domain.EventSecurity:
		level = slog.LevelWarn
	case domain.EventError:
		level = slog.LevelError
	}
	args := append([]any{"event_kind", string(kind)}, attrs...)
	l.logger.Log(ctx, level, message, args...)
	RecordSecurityEvent(ctx, string(kind))
}

// MultiSecurityLogger fans an event out to every sink in order.
type MultiSecurityLogger []SecurityLogger

func (m MultiSecurityLogger) LogSecurity(ctx context.Context, kind domain.SecurityEventKind, message string, attrs ...any) {
	for _, l := range m {
		if l != nil {
			l.LogSecurity(ctx, kind, message, attrs...)
		}
	}
}

type NoopSecurityLogger struct{}

func (NoopSecurityLogger) LogSecurity(context.Context, domain.SecurityEventKind, string, ...any) {}

// AttrsToMap folds key/value pairs into a map. Non-string keys and a dangling
// trailing key are dropped.
func AttrsToMap(attrs ...any) map[string]any {
	out := make(map[string]any, len(attrs)/2)
	for i := 0; i+1 < len(attrs); i += 2 {
		key, ok := attrs[i].(string)
		if !ok {
			continue
		}
		out[key] = attrs[i+1]
	}
	return out
}
