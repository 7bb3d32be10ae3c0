package domain

import "time"

// User is the subset of the account record the authorization layer reads and mutates.
type User struct {
	ID           string `gorm:"primaryKey;size:64" json:"id"`
	Email        string `gorm:"size:320;uniqueIndex;not null" json:"email"`
	NextEmail    string `gorm:"size:320" json:"next_email,omitempty"`
	Role         string `gorm:"size:64;index;not null" json:"role"`
	PasswordHash string `gorm:"size:128" json:"-"`

	RevokedCount int        `gorm:"not null;default:0" json:"revoked_count"`
	TimeoutUntil *time.Time `json:"timeout_until,omitempty"`
	TimeoutCount int        `gorm:"not null;default:0" json:"timeout_count"`

	FailedLoginCount int        `gorm:"not null;default:0" json:"-"`
	LastLoginAttempt *time.Time `json:"-"`

	TwoFactorEnabled  bool       `gorm:"not null;default:false" json:"two_factor_enabled"`
	LastTwoFACode     string     `gorm:"column:last_two_fa_code;size:16" json:"-"`
	LastTwoFACodeSent *time.Time `gorm:"column:last_two_fa_code_sent" json:"-"`
	TwoFACodeCount    int        `gorm:"column:two_fa_code_count;not null;default:0" json:"-"`

	VerifiedEmail             bool       `gorm:"not null;default:false" json:"verified_email"`
	EmailVerificationToken    string     `gorm:"size:64" json:"-"`
	LastEmailVerificationSent *time.Time `json:"-"`
	VerifiedEmailAttemptCount int        `gorm:"not null;default:0" json:"-"`

	PasswordResetToken        string     `gorm:"size:64" json:"-"`
	LastPasswordResetSent     *time.Time `json:"-"`
	PasswordResetAttemptCount int        `gorm:"not null;default:0" json:"-"`

	Trust             int        `gorm:"not null;default:0" json:"trust"`
	LastComputedTrust *time.Time `json:"last_computed_trust,omitempty"`
	IncidentCount     int        `gorm:"not null;default:0" json:"incident_count"`
	ErrorCount        int        `gorm:"not null;default:0" json:"error_count"`
	HighTrafficCount  int        `gorm:"not null;default:0" json:"high_traffic_count"`
	CaptchaRequested  bool       `gorm:"not null;default:false" json:"captcha_requested"`
	DidCaptcha        bool       `gorm:"not null;default:false" json:"did_captcha"`

	// AllowedTrafficMultiplier scales the per-user request threshold. Zero means 1.
	AllowedTrafficMultiplier float64 `gorm:"not null;default:0" json:"allowed_traffic_multiplier"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Column names used in partial updates.
const (
	ColEmail                     = "email"
	ColNextEmail                 = "next_email"
	ColPasswordHash              = "password_hash"
	ColRevokedCount              = "revoked_count"
	ColTimeoutUntil              = "timeout_until"
	ColTimeoutCount              = "timeout_count"
	ColFailedLoginCount          = "failed_login_count"
	ColLastLoginAttempt          = "last_login_attempt"
	ColLastTwoFACode             = "last_two_fa_code"
	ColLastTwoFACodeSent         = "last_two_fa_code_sent"
	ColTwoFACodeCount            = "two_fa_code_count"
	ColTwoFactorEnabled          = "two_factor_enabled"
	ColVerifiedEmail             = "verified_email"
	ColEmailVerificationToken    = "email_verification_token"
	ColLastEmailVerificationSent = "last_email_verification_sent"
	ColVerifiedEmailAttemptCount = "verified_email_attempt_count"
	ColPasswordResetToken        = "password_reset_token"
	ColLastPasswordResetSent     = "last_password_reset_sent"
	ColPasswordResetAttemptCount = "password_reset_attempt_count"
	ColTrust                     = "trust"
	ColLastComputedTrust         = "last_computed_trust"
	ColHighTrafficCount          = "high_traffic_count"
	ColCaptchaRequested          = "captcha_requested"
	ColDidCaptcha                = "did_captcha"
)

// UserPatch is a partial update keyed by column name.
type UserPatch map[string]any

// TouchesCredentials reports whether persisting the patch must invalidate
// existing sessions.
func (p UserPatch) TouchesCredentials() bool {
	_, email := p[ColEmail]
	_, password := p[ColPasswordHash]
	return email || password
}

func (u *User) IsTimedOut(now time.Time) bool {
	return u.TimeoutUntil != nil && u.TimeoutUntil.After(now)
}

func (u *User) TrafficMultiplier() float64 {
	if u.AllowedTrafficMultiplier <= 0 {
		return 1
	}
	return u.AllowedTrafficMultiplier
}

// PayloadField returns the value of a user field that may be embedded in a
// session token.
func (u *User) PayloadField(name string) (any, bool) {
	switch name {
	case "id":
		return u.ID, true
	case "email":
		return u.Email, true
	case "role":
		return u.Role, true
	case "verified_email":
		return u.VerifiedEmail, true
	case "two_factor_enabled":
		return u.TwoFactorEnabled, true
	case "trust":
		return u.Trust, true
	default:
		return nil, false
	}
}

// Clone returns a shallow copy; time pointers are shared and treated as immutable.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
