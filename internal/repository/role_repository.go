package repository

import (
	"context"
	"errors"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRoleNotFound = errors.New("role not found")

type RoleRepository interface {
	FindByName(ctx context.Context, name string) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	Upsert(ctx context.Context, role *domain.Role) error
	ReplaceAll(ctx context.Context, roles []domain.Role) error
	DeleteByName(ctx context.Context, name string) error
}

type GormRoleRepository struct{ db *gorm.DB }

func NewRoleRepository(db *gorm.DB) RoleRepository { return &GormRoleRepository{db: db} }

func (r *GormRoleRepository) FindByName(ctx context.Context, name string) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "role", "find_by_name", "not_found")
			return nil, ErrRoleNotFound
		}
		observability.RecordRepositoryOperation(ctx, "role", "find_by_name", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "role", "find_by_name", "success")
	return &role, nil
}

func (r *GormRoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.db.WithContext(ctx).Order("name").Find(&roles).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "role", "list", "error")
		return roles, err
	}
	observability.RecordRepositoryOperation(ctx, "role", "list", "success")
	return roles, nil
}

func (r *GormRoleRepository) Upsert(ctx context.Context, role *domain.Role) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		UpdateAll: true,
	}).Create(role).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "role", "upsert", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "role", "upsert", "success")
	return nil
}

// ReplaceAll swaps the stored role map for roles in one transaction.
func (r *GormRoleRepository) ReplaceAll(ctx context.Context, roles []domain.Role) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.Role{}).Error; err != nil {
			return err
		}
		if len(roles) == 0 {
			return nil
		}
		return tx.Create(&roles).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "role", "replace_all", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "role", "replace_all", "success")
	return nil
}

func (r *GormRoleRepository) DeleteByName(ctx context.Context, name string) error {
	res := r.db.WithContext(ctx).Where("name = ?", name).Delete(&domain.Role{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "role", "delete_by_name", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "role", "delete_by_name", "not_found")
		return ErrRoleNotFound
	}
	observability.RecordRepositoryOperation(ctx, "role", "delete_by_name", "success")
	return nil
}
