package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/repository"
	"github.com/sandeepkv93/crudguard/internal/security"
)

// GuardRequest is the transport-neutral view of an incoming request.
type GuardRequest struct {
	Method   string
	Path     string
	IP       string
	Bearer   string
	MockRole string

	// BearerFromCookie is set when Bearer was read from the access token
	// cookie rather than the Authorization header.
	BearerFromCookie bool
}

type AuthGuardOptions struct {
	GuestRole      string
	Isolated       bool
	CaptchaEnabled bool
	CaptchaPath    string

	// CredentialOptionalPaths admit a request as guest when its cookie token
	// is rejected, so a stale cookie cannot block signing in again.
	CredentialOptionalPaths []string
}

// AuthGuard admits or rejects a request and builds its RequestContext.
// Checks run in order: isolation, IP ban, credentials, role, user traffic.
type AuthGuard struct {
	isolated atomic.Bool
	opts     AuthGuardOptions
	traffic  *TrafficMonitor
	users    UserLookup
	jwt      *security.JWTManager
	roles    *RoleGraph
	log      observability.SecurityLogger
	now      func() time.Time
}

func NewAuthGuard(
	opts AuthGuardOptions,
	traffic *TrafficMonitor,
	users UserLookup,
	jwt *security.JWTManager,
	roles *RoleGraph,
	log observability.SecurityLogger,
) (*AuthGuard, error) {
	if _, ok := roles.Role(opts.GuestRole); !ok {
		return nil, fmt.Errorf("guest role %q is not defined", opts.GuestRole)
	}
	if log == nil {
		log = observability.NoopSecurityLogger{}
	}
	g := &AuthGuard{
		opts:    opts,
		traffic: traffic,
		users:   users,
		jwt:     jwt,
		roles:   roles,
		log:     log,
		now:     time.Now,
	}
	g.isolated.Store(opts.Isolated)
	return g, nil
}

func (g *AuthGuard) SetIsolated(v bool) { g.isolated.Store(v) }

func (g *AuthGuard) Isolated() bool { return g.isolated.Load() }

func (g *AuthGuard) Admit(ctx context.Context, req GuardRequest) (*domain.RequestContext, error) {
	if g.isolated.Load() {
		return nil, BadRequest(CodeInstanceIsolated, "This instance is isolated.")
	}
	rc := domain.NewRequestContext(req.IP, req.Method, req.Path)

	traffic := g.traffic.Options()
	if traffic.DDoSProtection && g.traffic.RecordIP(ctx, req.IP) {
		var retry time.Duration
		if until, ok := g.traffic.IPTimeout(req.IP); ok {
			retry = until.Sub(g.now())
		}
		return nil, TooManyRequests(CodeIPTimedOut, fmt.Sprintf("Your IP (%s) is timed out.", req.IP), retry)
	}

	if req.Bearer == "" {
		g.admitGuest(rc)
		return rc, nil
	}

	if err := g.authenticate(ctx, rc, req); err != nil {
		if ae, ok := AsAuthError(err); ok && ae.Kind == KindUnauthorized {
			if req.BearerFromCookie && g.credentialOptional(req.Path) {
				g.log.LogSecurity(ctx, domain.EventInfo, "Dropped rejected session cookie.", "ip", req.IP, "code", ae.Code)
				rc = domain.NewRequestContext(req.IP, req.Method, req.Path)
				rc.DroppedCredentials = true
				g.admitGuest(rc)
				return rc, nil
			}
			return nil, ae
		}
		g.log.LogSecurity(ctx, domain.EventError, "Authentication failed.", "ip", req.IP, "error", err.Error())
		return nil, &AuthError{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: "Unauthorized.", Err: err}
	}
	return rc, nil
}

func (g *AuthGuard) admitGuest(rc *domain.RequestContext) {
	guest, _ := g.roles.Role(g.opts.GuestRole)
	rc.Role = guest
	rc.RoleName = guest.Name
	rc.SetTrust(0)
}

func (g *AuthGuard) credentialOptional(path string) bool {
	for _, p := range g.opts.CredentialOptionalPaths {
		if pathWithin(path, p) {
			return true
		}
	}
	return false
}

func (g *AuthGuard) authenticate(ctx context.Context, rc *domain.RequestContext, req GuardRequest) error {
	payload, err := g.jwt.ParseSessionToken(req.Bearer)
	if err != nil {
		return &AuthError{Kind: KindUnauthorized, Code: CodeTokenInvalid, Message: "Invalid token.", Err: err}
	}
	rc.Payload = payload

	var user *domain.User
	if isWriteMethod(req.Method) {
		user, err = g.users.FindByID(ctx, payload.UserID)
	} else {
		user, err = g.users.FindByIDCached(ctx, payload.UserID)
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return Unauthorized(CodeUserNotFound, "User not found.")
	}
	if err != nil {
		return err
	}

	now := g.now()
	if user.IsTimedOut(now) {
		until := user.TimeoutUntil.UTC()
		ae := Unauthorized(CodeTimedOut, "User is timed out until "+until.Format(time.RFC3339)+".").
			WithData("timeout_until", until)
		ae.RetryAfter = until.Sub(now)
		return ae
	}
	if payload.IsStale(user) {
		return Unauthorized(CodeTokenMismatch, "Token was revoked.")
	}
	if g.opts.CaptchaEnabled && user.CaptchaRequested && !user.DidCaptcha && !pathWithin(req.Path, g.opts.CaptchaPath) {
		return Unauthorized(CodeCaptchaRequired, "Captcha required.")
	}

	role, ok := g.roles.Role(user.Role)
	if !ok {
		return Unauthorized(CodeUnauthorized, fmt.Sprintf("Role %s is not configured.", user.Role))
	}
	if req.MockRole != "" {
		if !g.roles.CanMock(role.Name, req.MockRole) {
			return Unauthorized(CodeMockRoleForbidden, fmt.Sprintf("Role %s is not allowed to mock as %s.", role.Name, req.MockRole))
		}
		rc.MockedFrom = role.Name
		role, _ = g.roles.Role(req.MockRole)
	}

	rc.User = user
	rc.UserID = user.ID
	rc.Role = role
	rc.RoleName = role.Name
	if role.TrustFloor != nil {
		rc.SetTrust(*role.TrustFloor)
	}

	if g.traffic.Options().UserTrafficProtection {
		g.traffic.RecordUser(ctx, user, rc)
	}
	return nil
}

// pathWithin reports whether path is base or a sub path of it.
func pathWithin(path, base string) bool {
	if base == "" {
		return false
	}
	base = strings.TrimSuffix(base, "/")
	return path == base || strings.HasPrefix(path, base+"/")
}

func isWriteMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}
