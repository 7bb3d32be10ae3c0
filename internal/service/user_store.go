package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/repository"
)

var ErrUserNotFound = repository.ErrUserNotFound

// UserStore fronts the user repository with a read cache, a negative cache for
// unknown ids and detached writes.
type UserStore struct {
	repo       repository.UserRepository
	cache      UserCacheStore
	missing    MissingUserCache
	cacheTTL   time.Duration
	missingTTL time.Duration
	detacher   *Detacher
	logger     *slog.Logger
	group      singleflight.Group
}

func NewUserStore(
	repo repository.UserRepository,
	cache UserCacheStore,
	missing MissingUserCache,
	cacheTTL, missingTTL time.Duration,
	detacher *Detacher,
	logger *slog.Logger,
) *UserStore {
	if cache == nil {
		cache = NewNoopUserCacheStore()
	}
	if missing == nil {
		missing = NewNoopMissingUserCache()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UserStore{
		repo:       repo,
		cache:      cache,
		missing:    missing,
		cacheTTL:   cacheTTL,
		missingTTL: missingTTL,
		detacher:   detacher,
		logger:     logger,
	}
}

// FindByID always reads from the repository and refreshes the cache.
func (s *UserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			if cerr := s.missing.Set(ctx, id, s.missingTTL); cerr != nil {
				s.logger.WarnContext(ctx, "missing-user cache set failed", "error", cerr)
			}
		}
		return nil, err
	}
	s.SetCached(ctx, u)
	return u, nil
}

func (s *UserStore) FindByIDCached(ctx context.Context, id string) (*domain.User, error) {
	if u, ok, err := s.cache.Get(ctx, id); err == nil && ok {
		return u, nil
	} else if err != nil {
		s.logger.WarnContext(ctx, "user cache get failed", "error", err)
	}
	if missing, err := s.missing.Get(ctx, id); err == nil && missing {
		return nil, repository.ErrUserNotFound
	}
	v, err, _ := s.group.Do(id, func() (any, error) {
		return s.FindByID(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.User).Clone(), nil
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.repo.FindByEmail(ctx, normalizeEmail(email))
}

func (s *UserStore) Create(ctx context.Context, u *domain.User) error {
	if err := s.repo.Create(ctx, u); err != nil {
		return err
	}
	if err := s.missing.Invalidate(ctx, u.ID); err != nil {
		s.logger.WarnContext(ctx, "missing-user cache invalidate failed", "error", err)
	}
	return nil
}

// Patch persists synchronously and drops the cached copy.
func (s *UserStore) Patch(ctx context.Context, id string, patch domain.UserPatch) error {
	if err := s.repo.Patch(ctx, id, patch); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// PatchDetached persists without blocking the caller. The caller is expected
// to have applied the same change to user and to publish it via SetCached.
func (s *UserStore) PatchDetached(user *domain.User, patch domain.UserPatch) {
	id := user.ID
	credentials := patch.TouchesCredentials()
	s.detacher.Go("user.patch", func(ctx context.Context) error {
		if err := s.repo.Patch(ctx, id, patch); err != nil {
			return err
		}
		if credentials {
			s.invalidate(ctx, id)
		}
		return nil
	})
}

func (s *UserStore) RecordFailedLogin(ctx context.Context, id string, at time.Time) error {
	if err := s.repo.IncrementFailedLogin(ctx, id, at); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

// RehashDetached stores an upgraded hash of the same password in the background.
func (s *UserStore) RehashDetached(id, hash string) {
	s.detacher.Go("user.rehash", func(ctx context.Context) error {
		return s.repo.UpdatePasswordHash(ctx, id, hash)
	})
}

func (s *UserStore) SetCached(ctx context.Context, user *domain.User) {
	if user == nil {
		return
	}
	if err := s.cache.Set(ctx, user, s.cacheTTL); err != nil {
		s.logger.WarnContext(ctx, "user cache set failed", "error", err)
	}
}

func (s *UserStore) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "user cache invalidate failed", "error", err)
	}
}

// normalizeEmail is the canonical form emails are stored and looked up in.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
