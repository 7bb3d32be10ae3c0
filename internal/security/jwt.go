package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

const sessionTokenType = "session"

type Claims struct {
	TokenType    string         `json:"token_type"`
	RevokedCount int            `json:"revoked_count"`
	Fields       map[string]any `json:"fields,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	issuer   string
	audience string
	secret   []byte
}

func NewJWTManager(issuer, audience, secret string) *JWTManager {
	return &JWTManager{
		issuer:   issuer,
		audience: audience,
		secret:   []byte(secret),
	}
}

// SignSessionToken embeds the user id, the revocation counter and the
// allow-listed payload fields of u.
func (m *JWTManager) SignSessionToken(u *domain.User, payloadFields []string, ttl time.Duration) (string, time.Time, error) {
	if u == nil || u.ID == "" {
		return "", time.Time{}, errors.New("user id required")
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	fields := make(map[string]any, len(payloadFields))
	for _, name := range payloadFields {
		if v, ok := u.PayloadField(name); ok {
			fields[name] = v
		}
	}
	claims := Claims{
		TokenType:    sessionTokenType,
		RevokedCount: u.RevokedCount,
		Fields:       fields,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   u.ID,
			Audience:  []string{m.audience},
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (m *JWTManager) ParseSessionToken(raw string) (*domain.SessionPayload, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithAudience(m.audience), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.TokenType != sessionTokenType {
		return nil, fmt.Errorf("unexpected token type: %s", claims.TokenType)
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	payload := &domain.SessionPayload{
		UserID:       claims.Subject,
		RevokedCount: claims.RevokedCount,
		TokenID:      claims.ID,
		Fields:       claims.Fields,
	}
	if claims.IssuedAt != nil {
		payload.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		payload.ExpiresAt = claims.ExpiresAt.Time
	}
	return payload, nil
}
