package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sandeepkv93/crudguard/internal/config"
	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/repository"
	"github.com/sandeepkv93/crudguard/internal/security"
	"github.com/sandeepkv93/crudguard/internal/service"
)

const testSecret = "abcdefghijklmnopqrstuvwxyz123456"

type stubUsers struct {
	users map[string]*domain.User
}

func (s *stubUsers) FindByID(_ context.Context, id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return u.Clone(), nil
}

func (s *stubUsers) FindByIDCached(ctx context.Context, id string) (*domain.User, error) {
	return s.FindByID(ctx, id)
}

func (s *stubUsers) PatchDetached(*domain.User, domain.UserPatch) {}

func (s *stubUsers) SetCached(context.Context, *domain.User) {}

type guardHarness struct {
	guard      *service.AuthGuard
	authorizer *service.Authorizer
	jwt        *security.JWTManager
}

func newGuardHarness(t *testing.T, traffic config.TrafficWatchOptions, users ...*domain.User) *guardHarness {
	t.Helper()
	return newGuardHarnessWithOptions(t, traffic, service.AuthGuardOptions{}, users...)
}

func newGuardHarnessWithOptions(t *testing.T, traffic config.TrafficWatchOptions, opts service.AuthGuardOptions, users ...*domain.User) *guardHarness {
	t.Helper()
	opts.GuestRole = "guest"
	opts.CaptchaPath = "/api/v1/auth/captcha"
	stub := &stubUsers{users: make(map[string]*domain.User)}
	for _, u := range users {
		stub.users[u.ID] = u
	}
	roles, err := service.NewRoleGraph(config.DefaultRoles("guest"))
	if err != nil {
		t.Fatalf("role graph: %v", err)
	}
	monitor, err := service.NewTrafficMonitor(traffic, stub, nil)
	if err != nil {
		t.Fatalf("traffic monitor: %v", err)
	}
	jwtMgr := security.NewJWTManager("crudguard", "crudguard-api", testSecret)
	guard, err := service.NewAuthGuard(opts, monitor, stub, jwtMgr, roles, nil)
	if err != nil {
		t.Fatalf("auth guard: %v", err)
	}
	trust := service.NewTrustEngine(roles, stub, 24*time.Hour)
	return &guardHarness{guard: guard, authorizer: service.NewAuthorizer(roles, trust), jwt: jwtMgr}
}

func (h *guardHarness) token(t *testing.T, u *domain.User) string {
	t.Helper()
	tok, _, err := h.jwt.SignSessionToken(u, nil, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return tok
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
