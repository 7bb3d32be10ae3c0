package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepkv93/crudguard/internal/domain"
	"github.com/sandeepkv93/crudguard/internal/http/response"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/service"
)

type contextKey string

const (
	RequestContextKey contextKey = "request_context"

	AccessTokenCookie = "access_token"
	mockRoleParam     = "mockRole"
)

type GuardOptions struct {
	// UseForwardedIP takes the client address from X-Forwarded-For. Only
	// enable it behind a proxy that overwrites the header.
	UseForwardedIP bool
}

// AuthGuard admits the request through guard and stores the resulting
// RequestContext on the request context. Denials are written as error
// envelopes and never reach next.
func AuthGuard(guard *service.AuthGuard, opts GuardOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer, fromCookie := bearerToken(r)
			req := service.GuardRequest{
				Method:           r.Method,
				Path:             r.URL.Path,
				IP:               ClientIP(r, opts.UseForwardedIP),
				Bearer:           bearer,
				BearerFromCookie: fromCookie,
				MockRole:         r.URL.Query().Get(mockRoleParam),
			}
			rc, err := guard.Admit(r.Context(), req)
			if err != nil {
				code := "INTERNAL_ERROR"
				if ae, ok := service.AsAuthError(err); ok {
					code = ae.Code
					if fromCookie && revokesCookie(code) {
						expireSessionCookies(w)
					}
				}
				observability.RecordGuardDecision(r.Context(), "denied", code)
				response.FromError(w, r, err)
				return
			}
			kind := "user"
			if rc.IsGuest() {
				kind = "guest"
			}
			if rc.DroppedCredentials {
				kind = "guest_dropped_cookie"
				ExpireSessionCookies(rc)
			}
			observability.RecordGuardDecision(r.Context(), "admitted", kind)

			ctx := context.WithValue(r.Context(), RequestContextKey, rc)
			next.ServeHTTP(&cookieWriter{ResponseWriter: w, rc: rc}, r.WithContext(ctx))
		})
	}
}

func RequestContextFrom(ctx context.Context) (*domain.RequestContext, bool) {
	rc, ok := ctx.Value(RequestContextKey).(*domain.RequestContext)
	return rc, ok && rc != nil
}

// ClientIP returns the first X-Forwarded-For hop when forwarded is set and the
// header is present, otherwise the host part of RemoteAddr.
func ClientIP(r *http.Request, forwarded bool) string {
	if forwarded {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// bearerToken prefers the Authorization header and falls back to the access
// token cookie. fromCookie reports which one was used.
func bearerToken(r *http.Request) (token string, fromCookie bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:]), false
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return "", false
}

// revokesCookie reports whether a denial means the cookie token can never be
// accepted again.
func revokesCookie(code string) bool {
	switch code {
	case service.CodeTokenInvalid, service.CodeTokenMismatch, service.CodeUserNotFound:
		return true
	default:
		return false
	}
}

// ExpireSessionCookies queues deletion of the session and csrf cookies.
func ExpireSessionCookies(rc *domain.RequestContext) {
	rc.SetCookie(AccessTokenCookie, domain.CookieToSet{HTTPOnly: true, MaxAge: -time.Second})
	rc.SetCookie(CSRFCookie, domain.CookieToSet{MaxAge: -time.Second})
}

func expireSessionCookies(w http.ResponseWriter) {
	for name, httpOnly := range map[string]bool{AccessTokenCookie: true, CSRFCookie: false} {
		http.SetCookie(w, &http.Cookie{Name: name, Path: "/", MaxAge: -1, HttpOnly: httpOnly, SameSite: http.SameSiteLaxMode})
	}
}

// cookieWriter flushes cookies queued on the RequestContext before the
// response header is sent.
type cookieWriter struct {
	http.ResponseWriter
	rc      *domain.RequestContext
	flushed bool
}

func (w *cookieWriter) WriteHeader(status int) {
	w.flush()
	w.ResponseWriter.WriteHeader(status)
}

func (w *cookieWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *cookieWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *cookieWriter) flush() {
	if w.flushed {
		return
	}
	w.flushed = true
	for name, c := range w.rc.SetCookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		http.SetCookie(w.ResponseWriter, &http.Cookie{
			Name:     name,
			Value:    c.Value,
			Path:     path,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
			MaxAge:   int(c.MaxAge / time.Second),
			SameSite: http.SameSiteLaxMode,
		})
	}
}
