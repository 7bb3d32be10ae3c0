package domain

import "time"

// SessionPayload is the verified content of a session token.
type SessionPayload struct {
	UserID       string         `json:"user_id"`
	RevokedCount int            `json:"revoked_count"`
	TokenID      string         `json:"token_id"`
	Fields       map[string]any `json:"fields,omitempty"`
	IssuedAt     time.Time      `json:"issued_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// IsStale reports whether credentials changed after the token was issued.
func (p *SessionPayload) IsStale(u *User) bool {
	return p.RevokedCount != u.RevokedCount
}

type LoginResult struct {
	AccessToken string    `json:"access_token"`
	UserID      string    `json:"user_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}
