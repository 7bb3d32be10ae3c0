package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

func TestUserRepositoryFindByEmailNormalizes(t *testing.T) {
	repo := NewUserRepository(newSQLiteDBForTest(t))
	ctx := context.Background()

	if err := repo.Create(ctx, &domain.User{ID: "u1", Email: "  Alice@Example.COM ", Role: "user"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	u, err := repo.FindByEmail(ctx, "alice@example.com ")
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if u.ID != "u1" || u.Email != "alice@example.com" {
		t.Fatalf("unexpected user: %+v", u)
	}
	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepositoryPatchBumpsRevokedCountOnCredentialChange(t *testing.T) {
	repo := NewUserRepository(newSQLiteDBForTest(t))
	ctx := context.Background()
	if err := repo.Create(ctx, &domain.User{ID: "u1", Email: "a@example.com", Role: "user"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := repo.Patch(ctx, "u1", domain.UserPatch{domain.ColTrust: 3}); err != nil {
		t.Fatalf("patch trust: %v", err)
	}
	u, _ := repo.FindByID(ctx, "u1")
	if u.RevokedCount != 0 || u.Trust != 3 {
		t.Fatalf("non-credential patch must not revoke: %+v", u)
	}

	if err := repo.Patch(ctx, "u1", domain.UserPatch{domain.ColPasswordHash: "new-hash"}); err != nil {
		t.Fatalf("patch password: %v", err)
	}
	if err := repo.Patch(ctx, "u1", domain.UserPatch{domain.ColEmail: "B@Example.com"}); err != nil {
		t.Fatalf("patch email: %v", err)
	}
	u, _ = repo.FindByID(ctx, "u1")
	if u.RevokedCount != 2 {
		t.Fatalf("expected revoked count 2, got %d", u.RevokedCount)
	}
	if u.Email != "b@example.com" || u.PasswordHash != "new-hash" {
		t.Fatalf("unexpected credentials after patch: %+v", u)
	}

	if err := repo.Patch(ctx, "nobody", domain.UserPatch{domain.ColTrust: 1}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserRepositoryIncrementFailedLogin(t *testing.T) {
	repo := NewUserRepository(newSQLiteDBForTest(t))
	ctx := context.Background()
	if err := repo.Create(ctx, &domain.User{ID: "u1", Email: "a@example.com", Role: "user"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	at := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		if err := repo.IncrementFailedLogin(ctx, "u1", at); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	u, _ := repo.FindByID(ctx, "u1")
	if u.FailedLoginCount != 3 {
		t.Fatalf("expected 3 failures, got %d", u.FailedLoginCount)
	}
	if u.LastLoginAttempt == nil || !u.LastLoginAttempt.Equal(at) {
		t.Fatalf("expected last attempt %v, got %v", at, u.LastLoginAttempt)
	}
}
