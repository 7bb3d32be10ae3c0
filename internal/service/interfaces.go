package service

import (
	"context"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

type EmailSender interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
	SendTwoFactorEmail(ctx context.Context, to, code string) error
}

type CaptchaVerifier interface {
	Verify(ctx context.Context, response, remoteIP string) (bool, error)
}

// TrustAdjuster may shift a freshly computed trust score.
type TrustAdjuster func(ctx context.Context, user *domain.User, rc *domain.RequestContext, score int) int

// HighTrafficHook runs after a user crosses the per-user traffic threshold.
type HighTrafficHook func(ctx context.Context, user *domain.User, rc *domain.RequestContext)

// UserLookup is what the guard and the trust engine need from the user store.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
	FindByIDCached(ctx context.Context, id string) (*domain.User, error)
	PatchDetached(user *domain.User, patch domain.UserPatch)
	SetCached(ctx context.Context, user *domain.User)
}
