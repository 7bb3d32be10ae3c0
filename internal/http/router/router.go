package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sandeepkv93/crudguard/internal/http/handler"
	"github.com/sandeepkv93/crudguard/internal/http/middleware"
	"github.com/sandeepkv93/crudguard/internal/http/response"
	"github.com/sandeepkv93/crudguard/internal/service"
)

// Commands checked by RequireCommand on built-in routes. Role maps grant them
// by name (the default admin role holds the wildcard).
const (
	CommandSendVerificationEmail = "sendVerificationEmail"
	CommandVerifyEmail           = "verifyEmail"
	CommandIsolateInstance       = "isolateInstance"
	CommandViewTraffic           = "viewTraffic"
	CommandResetTraffic          = "resetTraffic"
	CommandViewSecurityEvents    = "viewSecurityEvents"
)

// CredentialOptionalPaths are served to a guest when the access token cookie
// is stale, so an expired session never blocks signing in again.
var CredentialOptionalPaths = []string{
	"/api/v1/auth/signin",
	"/api/v1/auth/signout",
	"/api/v1/auth/password/reset/send",
	"/api/v1/auth/password/reset/confirm",
}

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	MeHandler      *handler.MeHandler
	AdminHandler   *handler.AdminHandler
	Guard          *service.AuthGuard
	Authorizer     *service.Authorizer
	GuardOptions   middleware.GuardOptions
	CORSOrigins    []string
	Ready          ReadyFunc
	EnableOTelHTTP bool
}

// ReadyFunc reports whether backing stores are reachable.
type ReadyFunc func(ctx context.Context) error

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.StructuredRequestLogger)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Ready != nil {
			if err := dep.Ready(r.Context()); err != nil {
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]string{"error": err.Error()})
				return
			}
		}
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
	})

	require := func(cmd string) func(http.Handler) http.Handler {
		return middleware.RequireCommand(dep.Authorizer, cmd)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthGuard(dep.Guard, dep.GuardOptions))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", dep.AuthHandler.SignIn)
			r.Post("/password/reset/send", dep.AuthHandler.SendPasswordReset)
			r.Post("/password/reset/confirm", dep.AuthHandler.ConfirmPasswordReset)

			r.Group(func(r chi.Router) {
				r.Use(middleware.CookieCSRF)
				r.Post("/signout", dep.AuthHandler.SignOut)
				r.With(require(CommandSendVerificationEmail)).Post("/verification/send", dep.AuthHandler.SendVerification)
				r.With(require(CommandVerifyEmail)).Post("/verification/confirm", dep.AuthHandler.ConfirmVerification)
				r.Post("/captcha", dep.AuthHandler.Captcha)
			})
		})

		r.Get("/me", dep.MeHandler.Me)
		r.Get("/me/permissions", dep.MeHandler.Permissions)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.CookieCSRF)
			r.With(require(CommandIsolateInstance)).Post("/isolation", dep.AdminHandler.Isolate)
			r.With(require(CommandViewTraffic)).Get("/traffic", dep.AdminHandler.Traffic)
			r.With(require(CommandResetTraffic)).Post("/traffic/reset", dep.AdminHandler.ResetTraffic)
			r.With(require(CommandViewSecurityEvents)).Get("/security-events", dep.AdminHandler.SecurityEvents)
		})
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
