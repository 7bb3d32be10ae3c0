package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/repository"
	"github.com/sandeepkv93/crudguard/internal/security"
)

type AuthServiceOptions struct {
	TokenTTL      time.Duration
	PayloadFields []string
	BackoffAfter  int
	BackoffMax    time.Duration
}

type AuthService struct {
	users  *UserStore
	jwt    *security.JWTManager
	hasher *security.PasswordHasher
	roles  *RoleGraph
	tokens *UserTokenService
	log    observability.SecurityLogger
	opts   AuthServiceOptions
	now    func() time.Time
}

func NewAuthService(
	users *UserStore,
	jwt *security.JWTManager,
	hasher *security.PasswordHasher,
	roles *RoleGraph,
	tokens *UserTokenService,
	log observability.SecurityLogger,
	opts AuthServiceOptions,
) *AuthService {
	if log == nil {
		log = observability.NoopSecurityLogger{}
	}
	if opts.BackoffAfter <= 0 {
		opts.BackoffAfter = 6
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 5 * time.Minute
	}
	return &AuthService{
		users:  users,
		jwt:    jwt,
		hasher: hasher,
		roles:  roles,
		tokens: tokens,
		log:    log,
		opts:   opts,
		now:    time.Now,
	}
}

// SignIn verifies credentials and issues a session token.
func (s *AuthService) SignIn(ctx context.Context, ip, email, password, twoFACode string) (*domain.LoginResult, error) {
	ctx, span := observability.StartSpan(ctx, "auth.signin")
	defer span.End()

	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		observability.RecordAuthSignIn(ctx, "unknown_user")
		return nil, Unauthorized(CodeInvalidCredentials, "Invalid credentials.")
	}
	if err != nil {
		return nil, err
	}
	now := s.now()

	if u.IsTimedOut(now) {
		observability.RecordAuthSignIn(ctx, "timed_out")
		return nil, Unauthorized(CodeTimedOut, "User is timed out until "+u.TimeoutUntil.UTC().Format(time.RFC3339)+".").
			WithData("timeout_until", u.TimeoutUntil.UTC())
	}

	if u.FailedLoginCount >= s.opts.BackoffAfter {
		window := LoginBackoffWindow(u.FailedLoginCount, s.opts.BackoffMax)
		var elapsed time.Duration
		if u.LastLoginAttempt != nil {
			elapsed = now.Sub(*u.LastLoginAttempt)
		}
		if elapsed < window {
			remaining := window - elapsed
			secs := int(math.Round(remaining.Seconds()))
			observability.RecordAuthSignIn(ctx, "backoff")
			return nil, TooManyRequests(CodeTooManyLoginAttempts,
				fmt.Sprintf("Too many login attempts, try again in %d seconds.", secs), remaining).
				WithData("retry_after_seconds", secs)
		}
	}

	if u.TwoFactorEnabled && s.tokens != nil && s.tokens.EmailEnabled() {
		if twoFACode == "" {
			if err := s.tokens.SendTwoFactorCode(ctx, u); err != nil {
				if ae, ok := AsAuthError(err); !ok || ae.Code != CodeEmailAlreadySent {
					return nil, err
				}
			}
			observability.RecordAuthSignIn(ctx, "two_factor_required")
			return nil, Unauthorized(CodeTwoFARequired, "Two-factor code required.")
		}
		if err := s.tokens.VerifyTwoFactorCode(ctx, u, twoFACode); err != nil {
			observability.RecordAuthSignIn(ctx, "two_factor_failed")
			return nil, err
		}
	}

	admin := s.roles.IsAdmin(u.Role)
	if !s.hasher.Compare(u.PasswordHash, password) {
		if err := s.users.RecordFailedLogin(ctx, u.ID, now); err != nil {
			return nil, err
		}
		observability.RecordAuthSignIn(ctx, "invalid_password")
		s.log.LogSecurity(ctx, domain.EventInfo, "Failed sign-in.", "user_id", u.ID, "ip", ip, "failed_count", u.FailedLoginCount+1)
		return nil, Unauthorized(CodeInvalidCredentials, "Invalid credentials.")
	}

	patch := domain.UserPatch{
		domain.ColFailedLoginCount: 0,
		domain.ColLastLoginAttempt: now,
	}
	if u.LastTwoFACode != "" {
		patch[domain.ColLastTwoFACode] = ""
	}
	if err := s.users.Patch(ctx, u.ID, patch); err != nil {
		return nil, err
	}
	if s.hasher.NeedsRehash(u.PasswordHash, admin) {
		if hash, err := s.hasher.Hash(password, admin); err == nil {
			s.users.RehashDetached(u.ID, hash)
		}
	}

	token, expiresAt, err := s.jwt.SignSessionToken(u, s.opts.PayloadFields, s.opts.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	observability.RecordAuthSignIn(ctx, "success")
	return &domain.LoginResult{AccessToken: token, UserID: u.ID, ExpiresAt: expiresAt}, nil
}

// CreateUser registers an account with a hashed password.
func (s *AuthService) CreateUser(ctx context.Context, email, password, role string) (*domain.User, error) {
	if _, ok := s.roles.Role(role); !ok {
		return nil, BadRequest(CodeUnknownRole, fmt.Sprintf("Role %s does not exist.", role))
	}
	hash, err := s.hasher.Hash(password, s.roles.IsAdmin(role))
	if err != nil {
		return nil, err
	}
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(email),
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// LoginBackoffWindow is min(failures², max) seconds.
func LoginBackoffWindow(failures int, ceiling time.Duration) time.Duration {
	w := time.Duration(failures*failures) * time.Second
	if w > ceiling {
		return ceiling
	}
	return w
}
