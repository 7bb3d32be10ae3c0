package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/repository"
)

const (
	RolesFromConfig   = "config"
	RolesFromDatabase = "db"
)

var ErrNoStoredRoles = errors.New("no roles stored in the database")

// LoadRoleGraph builds the role graph from the configured roles or, when
// source is "db", from the role table. The guest role must exist either way.
func LoadRoleGraph(ctx context.Context, source string, configured []domain.Role, repo repository.RoleRepository, guest string) (*RoleGraph, error) {
	roles := configured
	if source == RolesFromDatabase {
		stored, err := repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("load roles: %w", err)
		}
		if len(stored) == 0 {
			return nil, ErrNoStoredRoles
		}
		roles = stored
	}
	g, err := NewRoleGraph(roles)
	if err != nil {
		return nil, err
	}
	if _, ok := g.Role(guest); !ok {
		return nil, fmt.Errorf("guest role %q is not defined", guest)
	}
	return g, nil
}

// SyncRoles validates roles as a graph and replaces the stored role table
// with them.
func SyncRoles(ctx context.Context, repo repository.RoleRepository, roles []domain.Role) (*RoleGraph, error) {
	g, err := NewRoleGraph(roles)
	if err != nil {
		return nil, err
	}
	if err := repo.ReplaceAll(ctx, roles); err != nil {
		return nil, fmt.Errorf("store roles: %w", err)
	}
	return g, nil
}
