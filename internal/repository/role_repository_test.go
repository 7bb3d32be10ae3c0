package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

func TestRoleRepositoryUpsertAndReplace(t *testing.T) {
	repo := NewRoleRepository(newSQLiteDBForTest(t))
	ctx := context.Background()

	guest := &domain.Role{Name: "guest"}
	member := &domain.Role{
		Name:     "member",
		Parent:   "guest",
		Commands: map[string]domain.CommandRule{"post": {MinTrust: 2}},
	}
	for _, r := range []*domain.Role{guest, member} {
		if err := repo.Upsert(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", r.Name, err)
		}
	}
	member.Commands = map[string]domain.CommandRule{"post": {MinTrust: 5}}
	if err := repo.Upsert(ctx, member); err != nil {
		t.Fatalf("upsert again: %v", err)
	}
	got, err := repo.FindByName(ctx, "member")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Parent != "guest" || got.Commands["post"].MinTrust != 5 {
		t.Fatalf("unexpected role after upsert: %+v", got)
	}

	if err := repo.ReplaceAll(ctx, []domain.Role{{Name: "visitor"}}); err != nil {
		t.Fatalf("replace all: %v", err)
	}
	roles, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(roles) != 1 || roles[0].Name != "visitor" {
		t.Fatalf("unexpected roles after replace: %+v", roles)
	}
	if err := repo.DeleteByName(ctx, "guest"); !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}
