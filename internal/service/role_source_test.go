package service

import (
	"context"
	"errors"
	"testing"

	"github.com/sandeepkv93/crudguard/internal/config"
	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/repository"
)

func TestLoadRoleGraphFromConfig(t *testing.T) {
	g, err := LoadRoleGraph(context.Background(), RolesFromConfig, config.DefaultRoles("guest"), nil, "guest")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !g.IsAdmin("admin") {
		t.Fatal("expected admin role")
	}
	if _, err := LoadRoleGraph(context.Background(), RolesFromConfig, config.DefaultRoles("guest"), nil, "visitor"); err == nil {
		t.Fatal("expected missing guest role error")
	}
}

func TestLoadRoleGraphFromDatabase(t *testing.T) {
	repo := repository.NewRoleRepository(newSQLiteDBForTest(t))
	ctx := context.Background()

	_, err := LoadRoleGraph(ctx, RolesFromDatabase, nil, repo, "guest")
	if !errors.Is(err, ErrNoStoredRoles) {
		t.Fatalf("expected ErrNoStoredRoles, got %v", err)
	}

	if _, err := SyncRoles(ctx, repo, config.DefaultRoles("guest")); err != nil {
		t.Fatalf("sync: %v", err)
	}
	g, err := LoadRoleGraph(ctx, RolesFromDatabase, nil, repo, "guest")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !g.IsAllowed("user", "sendVerificationEmail") {
		t.Fatal("expected stored command rules to survive the round trip")
	}
}

func TestSyncRolesRejectsCycles(t *testing.T) {
	repo := repository.NewRoleRepository(newSQLiteDBForTest(t))
	cyclic := []domain.Role{{Name: "a", Parent: "b"}, {Name: "b", Parent: "a"}}
	if _, err := SyncRoles(context.Background(), repo, cyclic); !errors.Is(err, ErrRoleCycle) {
		t.Fatalf("expected ErrRoleCycle, got %v", err)
	}
	stored, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(stored) != 0 {
		t.Fatal("a rejected graph must not be stored")
	}
}
