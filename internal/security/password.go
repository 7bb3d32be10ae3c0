package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes with a per-population bcrypt cost; admin accounts may
// be configured with a higher cost than regular users.
type PasswordHasher struct {
	cost      int
	adminCost int
}

func NewPasswordHasher(cost, adminCost int) *PasswordHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	if adminCost < cost {
		adminCost = cost
	}
	return &PasswordHasher{cost: cost, adminCost: adminCost}
}

func (h *PasswordHasher) CostFor(admin bool) int {
	if admin {
		return h.adminCost
	}
	return h.cost
}

func (h *PasswordHasher) Hash(password string, admin bool) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.CostFor(admin))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *PasswordHasher) Compare(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// NeedsRehash reports whether hash was produced with a different cost than the
// one currently configured for the account.
func (h *PasswordHasher) NeedsRehash(hash string, admin bool) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != h.CostFor(admin)
}
