package security

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasherHashAndCompare(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost, bcrypt.MinCost+1)
	hash, err := h.Hash("s3cret", false)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !h.Compare(hash, "s3cret") {
		t.Fatal("expected password to match")
	}
	if h.Compare(hash, "wrong") {
		t.Fatal("expected wrong password to fail")
	}
	if h.NeedsRehash(hash, false) {
		t.Fatal("hash produced with current cost must not need rehash")
	}
	if !h.NeedsRehash(hash, true) {
		t.Fatal("admin cost differs, expected rehash")
	}
}

func TestNewTwoFactorCodeShape(t *testing.T) {
	code, err := NewTwoFactorCode()
	if err != nil {
		t.Fatalf("code: %v", err)
	}
	if len(code) != 6 || strings.ToUpper(code) != code {
		t.Fatalf("unexpected code %q", code)
	}
}
