package repository

import (
	"context"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/observability"

	"gorm.io/gorm"
)

type SecurityEventQuery struct {
	Kind   domain.SecurityEventKind
	UserID string
	IP     string
	Limit  int
}

type SecurityEventRepository interface {
	Create(ctx context.Context, e *domain.SecurityEvent) error
	ListRecent(ctx context.Context, q SecurityEventQuery) ([]domain.SecurityEvent, error)
}

type GormSecurityEventRepository struct{ db *gorm.DB }

func NewSecurityEventRepository(db *gorm.DB) SecurityEventRepository {
	return &GormSecurityEventRepository{db: db}
}

func (r *GormSecurityEventRepository) Create(ctx context.Context, e *domain.SecurityEvent) error {
	if err := r.db.WithContext(ctx).Create(e).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "security_event", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "security_event", "create", "success")
	return nil
}

func (r *GormSecurityEventRepository) ListRecent(ctx context.Context, q SecurityEventQuery) ([]domain.SecurityEvent, error) {
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := r.db.WithContext(ctx).Model(&domain.SecurityEvent{})
	if q.Kind != "" {
		query = query.Where("kind = ?", q.Kind)
	}
	if q.UserID != "" {
		query = query.Where("user_id = ?", q.UserID)
	}
	if q.IP != "" {
		query = query.Where("ip = ?", q.IP)
	}
	var events []domain.SecurityEvent
	if err := query.Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "security_event", "list_recent", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "security_event", "list_recent", "success")
	return events, nil
}
