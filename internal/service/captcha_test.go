package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

func newSiteVerifyServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ok := r.PostForm.Get("secret") == "site-secret" && r.PostForm.Get("response") == "good"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"success": ok})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSiteVerifyCaptcha(t *testing.T) {
	srv := newSiteVerifyServer(t)
	v := NewSiteVerifyCaptcha("site-secret", srv.URL, time.Second)

	ok, err := v.Verify(context.Background(), "good", "10.0.0.1")
	if err != nil || !ok {
		t.Fatalf("expected success, ok=%v err=%v", ok, err)
	}
	ok, err = v.Verify(context.Background(), "bad", "")
	if err != nil || ok {
		t.Fatalf("expected rejection, ok=%v err=%v", ok, err)
	}
}

func TestSiteVerifyCaptchaUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()
	v := NewSiteVerifyCaptcha("site-secret", srv.URL, time.Second)
	if _, err := v.Verify(context.Background(), "good", ""); err == nil {
		t.Fatal("expected error on non-200 response")
	}
}

func TestCaptchaServiceSubmit(t *testing.T) {
	srv := newSiteVerifyServer(t)
	store, _ := newUserStoreForTest(t)
	ctx := context.Background()
	u := &domain.User{ID: "u1", Email: "a@example.com", Role: "user", CaptchaRequested: true}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("create: %v", err)
	}
	svc := NewCaptchaService(NewSiteVerifyCaptcha("site-secret", srv.URL, time.Second), store)

	rc := domain.NewRequestContext("10.0.0.1", http.MethodPost, "/api/v1/auth/captcha")
	rc.User, rc.UserID = u, u.ID

	err := svc.Submit(ctx, rc, "bad")
	requireAuthError(t, err, KindBadRequest, CodeCaptchaFailed)

	if err := svc.Submit(ctx, rc, "good"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	stored, err := store.FindByID(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !stored.DidCaptcha || stored.CaptchaRequested {
		t.Fatalf("captcha state not updated: did=%v requested=%v", stored.DidCaptcha, stored.CaptchaRequested)
	}

	guest := domain.NewRequestContext("10.0.0.2", http.MethodPost, "/api/v1/auth/captcha")
	requireAuthError(t, svc.Submit(ctx, guest, "good"), KindUnauthorized, CodeUnauthorized)
}

func TestCaptchaServiceDisabled(t *testing.T) {
	var svc *CaptchaService
	if svc.Enabled() {
		t.Fatal("nil service must report disabled")
	}
	disabled := NewCaptchaService(nil, nil)
	err := disabled.Submit(context.Background(), domain.NewRequestContext("", "", ""), "x")
	requireAuthError(t, err, KindBadRequest, CodeCaptchaFailed)
}
