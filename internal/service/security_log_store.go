package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/repository"
)

// PersistentSecurityLog stores security events in the database. Writes are
// detached; a failed write is reported by the detacher's own logger.
type PersistentSecurityLog struct {
	repo     repository.SecurityEventRepository
	detacher *Detacher
	now      func() time.Time
}

func NewPersistentSecurityLog(repo repository.SecurityEventRepository, detacher *Detacher) *PersistentSecurityLog {
	return &PersistentSecurityLog{repo: repo, detacher: detacher, now: time.Now}
}

func (l *PersistentSecurityLog) LogSecurity(_ context.Context, kind domain.SecurityEventKind, message string, attrs ...any) {
	fields := observability.AttrsToMap(attrs...)
	event := &domain.SecurityEvent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Message:   message,
		CreatedAt: l.now().UTC(),
	}
	if v, ok := fields["user_id"]; ok {
		event.UserID = fmt.Sprint(v)
		delete(fields, "user_id")
	}
	if v, ok := fields["ip"]; ok {
		event.IP = fmt.Sprint(v)
		delete(fields, "ip")
	}
	if len(fields) > 0 {
		event.Attrs = fields
	}
	l.detacher.Go("security_log.persist", func(ctx context.Context) error {
		return l.repo.Create(ctx, event)
	})
}

func (l *PersistentSecurityLog) Recent(ctx context.Context, q repository.SecurityEventQuery) ([]domain.SecurityEvent, error) {
	return l.repo.ListRecent(ctx, q)
}
