package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/sandeepkv93/crudguard/internal/http/response"
	"github.com/sandeepkv93/crudguard/internal/observability"
)

const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

// CSRFMiddleware enforces the double-submit check on unsafe methods: the
// csrf_token cookie must be present and equal to the X-CSRF-Token header.
func CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		group := csrfPathGroup(r.URL.Path)
		c, err := r.Cookie(CSRFCookie)
		if err != nil || c.Value == "" {
			observability.RecordCSRFCheck(r.Context(), group, "missing_cookie")
			response.Error(w, r, http.StatusForbidden, "CSRF_INVALID", "missing csrf cookie", nil)
			return
		}
		header := r.Header.Get(CSRFHeader)
		if header == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(header)) != 1 {
			observability.RecordCSRFCheck(r.Context(), group, "mismatch")
			response.Error(w, r, http.StatusForbidden, "CSRF_INVALID", "csrf token mismatch", nil)
			return
		}
		observability.RecordCSRFCheck(r.Context(), group, "ok")
		next.ServeHTTP(w, r)
	})
}

// CookieCSRF applies CSRFMiddleware only to signed-in requests whose session
// token came from the access token cookie. Header bearer clients are exempt.
func CookieCSRF(next http.Handler) http.Handler {
	protected := CSRFMiddleware(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc, ok := RequestContextFrom(r.Context())
		if !ok || rc.IsGuest() {
			next.ServeHTTP(w, r)
			return
		}
		if _, fromCookie := bearerToken(r); !fromCookie {
			next.ServeHTTP(w, r)
			return
		}
		protected.ServeHTTP(w, r)
	})
}

func csrfPathGroup(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	switch {
	case len(parts) == 0 || parts[0] == "":
		return "root"
	case parts[0] == "api" && len(parts) >= 3:
		return parts[0] + "/" + parts[2]
	case parts[0] == "api" && len(parts) == 2:
		return parts[0] + "/" + parts[1]
	default:
		return parts[0]
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
