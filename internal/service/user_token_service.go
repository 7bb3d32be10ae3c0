package service

import (
	"context"
	"errors"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/repository"
	"github.com/sandeepkv93/crudguard/internal/security"
)

// tokenFlow describes where an emailed one-time token lives on the user record.
type tokenFlow struct {
	name        string
	tokenCol    string
	sentCol     string
	attemptsCol string
	base        time.Duration
	token       func(*domain.User) string
	sent        func(*domain.User) *time.Time
	attempts    func(*domain.User) int
}

// UserTokenService runs the email verification, password reset and two-factor
// code flows.
type UserTokenService struct {
	users  *UserStore
	hasher *security.PasswordHasher
	roles  *RoleGraph
	emails EmailSender
	log    observability.SecurityLogger

	verification  tokenFlow
	passwordReset tokenFlow
	twoFAWindow   time.Duration

	newToken func() (string, error)
	newCode  func() (string, error)
	now      func() time.Time
}

func NewUserTokenService(
	users *UserStore,
	hasher *security.PasswordHasher,
	roles *RoleGraph,
	emails EmailSender,
	log observability.SecurityLogger,
	verificationWindow, resetWindow, twoFAWindow time.Duration,
) *UserTokenService {
	if log == nil {
		log = observability.NoopSecurityLogger{}
	}
	return &UserTokenService{
		users:  users,
		hasher: hasher,
		roles:  roles,
		emails: emails,
		log:    log,
		verification: tokenFlow{
			name:        "verification",
			tokenCol:    domain.ColEmailVerificationToken,
			sentCol:     domain.ColLastEmailVerificationSent,
			attemptsCol: domain.ColVerifiedEmailAttemptCount,
			base:        verificationWindow,
			token:       func(u *domain.User) string { return u.EmailVerificationToken },
			sent:        func(u *domain.User) *time.Time { return u.LastEmailVerificationSent },
			attempts:    func(u *domain.User) int { return u.VerifiedEmailAttemptCount },
		},
		passwordReset: tokenFlow{
			name:        "password_reset",
			tokenCol:    domain.ColPasswordResetToken,
			sentCol:     domain.ColLastPasswordResetSent,
			attemptsCol: domain.ColPasswordResetAttemptCount,
			base:        resetWindow,
			token:       func(u *domain.User) string { return u.PasswordResetToken },
			sent:        func(u *domain.User) *time.Time { return u.LastPasswordResetSent },
			attempts:    func(u *domain.User) int { return u.PasswordResetAttemptCount },
		},
		twoFAWindow: twoFAWindow,
		newToken:    security.NewVerificationToken,
		newCode:     security.NewTwoFactorCode,
		now:         time.Now,
	}
}

func (s *UserTokenService) EmailEnabled() bool { return s.emails != nil }

func (s *UserTokenService) SendVerificationEmail(ctx context.Context, userID string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	to := u.Email
	if u.NextEmail != "" {
		to = u.NextEmail
	}
	return s.sendToken(ctx, u, s.verification, to, s.deliver(func(ctx context.Context, to, token string) error {
		return s.emails.SendVerificationEmail(ctx, to, token)
	}))
}

// VerifyEmail confirms the address. A pending next email becomes the account
// email on success.
func (s *UserTokenService) VerifyEmail(ctx context.Context, userID, token string) error {
	u, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.VerifiedEmail && u.NextEmail == "" {
		return nil
	}
	return s.useToken(ctx, u, s.verification, token, func(u *domain.User) (domain.UserPatch, error) {
		patch := domain.UserPatch{domain.ColVerifiedEmail: true}
		if u.NextEmail != "" {
			patch[domain.ColEmail] = u.NextEmail
			patch[domain.ColNextEmail] = ""
		}
		return patch, nil
	})
}

// SendPasswordResetEmail is silent for unknown addresses.
func (s *UserTokenService) SendPasswordResetEmail(ctx context.Context, email string) error {
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.sendToken(ctx, u, s.passwordReset, u.Email, s.deliver(func(ctx context.Context, to, token string) error {
		return s.emails.SendPasswordResetEmail(ctx, to, token)
	}))
}

func (s *UserTokenService) ResetPassword(ctx context.Context, email, token, newPassword string) error {
	u, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, repository.ErrUserNotFound) {
		return BadRequest(CodeTokenExpired, "Token is invalid or expired.")
	}
	if err != nil {
		return err
	}
	return s.useToken(ctx, u, s.passwordReset, token, func(u *domain.User) (domain.UserPatch, error) {
		hash, err := s.hasher.Hash(newPassword, s.roles.IsAdmin(u.Role))
		if err != nil {
			return nil, err
		}
		return domain.UserPatch{domain.ColPasswordHash: hash}, nil
	})
}

// SendTwoFactorCode mails a fresh code unless one is still valid.
func (s *UserTokenService) SendTwoFactorCode(ctx context.Context, u *domain.User) error {
	if s.emails == nil {
		return BadRequest(CodeEmailDisabled, "Email delivery is not configured.")
	}
	now := s.now()
	if u.LastTwoFACodeSent != nil && u.LastTwoFACodeSent.Add(s.twoFAWindow).After(now) {
		return Unauthorized(CodeEmailAlreadySent, "A code was already sent.")
	}
	code, err := s.newCode()
	if err != nil {
		return err
	}
	if err := s.emails.SendTwoFactorEmail(ctx, u.Email, code); err != nil {
		return err
	}
	patch := domain.UserPatch{
		domain.ColLastTwoFACode:     code,
		domain.ColLastTwoFACodeSent: now,
		domain.ColTwoFACodeCount:    u.TwoFACodeCount + 1,
	}
	if err := s.users.Patch(ctx, u.ID, patch); err != nil {
		return err
	}
	u.LastTwoFACode = code
	u.LastTwoFACodeSent = &now
	u.TwoFACodeCount++
	observability.RecordTokenFlow(ctx, "two_factor", "send", "success")
	return nil
}

func (s *UserTokenService) VerifyTwoFactorCode(ctx context.Context, u *domain.User, code string) error {
	if u.LastTwoFACode == "" || u.LastTwoFACode != code {
		observability.RecordTokenFlow(ctx, "two_factor", "use", "mismatch")
		return Unauthorized(CodeInvalidCredentials, "Invalid credentials.")
	}
	if u.LastTwoFACodeSent == nil || u.LastTwoFACodeSent.Add(s.twoFAWindow).Before(s.now()) {
		observability.RecordTokenFlow(ctx, "two_factor", "use", "expired")
		return Unauthorized(CodeTokenExpired, "Code expired.")
	}
	observability.RecordTokenFlow(ctx, "two_factor", "use", "success")
	return nil
}

func (s *UserTokenService) deliver(fn func(ctx context.Context, to, token string) error) func(ctx context.Context, to, token string) error {
	return func(ctx context.Context, to, token string) error {
		if s.emails == nil {
			return BadRequest(CodeEmailDisabled, "Email delivery is not configured.")
		}
		return fn(ctx, to, token)
	}
}

// sendToken issues a new token. Resends are free for the first two attempts;
// after that the previous token must have aged past its attempt-scaled window.
func (s *UserTokenService) sendToken(ctx context.Context, u *domain.User, flow tokenFlow, to string, deliver func(ctx context.Context, to, token string) error) error {
	if s.emails == nil {
		return BadRequest(CodeEmailDisabled, "Email delivery is not configured.")
	}
	now := s.now()
	attempts := flow.attempts(u)
	last := flow.sent(u)
	if attempts >= 2 && last != nil && now.Before(last.Add(time.Duration(attempts)*flow.base)) {
		observability.RecordTokenFlow(ctx, flow.name, "send", "throttled")
		return BadRequest(CodeEmailAlreadySent, "Email already sent.")
	}
	token, err := s.newToken()
	if err != nil {
		return err
	}
	patch := domain.UserPatch{
		flow.tokenCol:    token,
		flow.sentCol:     now,
		flow.attemptsCol: attempts + 1,
	}
	if err := s.users.Patch(ctx, u.ID, patch); err != nil {
		return err
	}
	if err := deliver(ctx, to, token); err != nil {
		return err
	}
	observability.RecordTokenFlow(ctx, flow.name, "send", "success")
	return nil
}

// useToken checks the supplied token against the stored one and, when it is
// valid and inside its window, persists apply's patch together with the
// attempt counter reset. A rejected token leaves the user untouched.
func (s *UserTokenService) useToken(ctx context.Context, u *domain.User, flow tokenFlow, supplied string, apply func(*domain.User) (domain.UserPatch, error)) error {
	stored := flow.token(u)
	last := flow.sent(u)
	attempts := flow.attempts(u)
	if attempts < 1 {
		attempts = 1
	}
	if stored == "" || supplied != stored || last == nil || s.now().After(last.Add(time.Duration(attempts)*flow.base)) {
		observability.RecordTokenFlow(ctx, flow.name, "use", "rejected")
		s.log.LogSecurity(ctx, domain.EventInfo, "Rejected "+flow.name+" token.", "user_id", u.ID)
		return BadRequest(CodeTokenExpired, "Token is invalid or expired.")
	}
	patch, err := apply(u)
	if err != nil {
		return err
	}
	patch[flow.attemptsCol] = 0
	patch[flow.tokenCol] = ""
	if err := s.users.Patch(ctx, u.ID, patch); err != nil {
		return err
	}
	observability.RecordTokenFlow(ctx, flow.name, "use", "success")
	return nil
}
