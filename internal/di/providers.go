package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/sandeepkv93/crudguard/internal/app"
	"github.com/sandeepkv93/crudguard/internal/config"
	"github.com/sandeepkv93/crudguard/internal/http/handler"
	"github.com/sandeepkv93/crudguard/internal/http/middleware"
	"github.com/sandeepkv93/crudguard/internal/http/router"
	"github.com/sandeepkv93/crudguard/internal/observability"
	"github.com/sandeepkv93/crudguard/internal/repository"
	"github.com/sandeepkv93/crudguard/internal/security"
	"github.com/sandeepkv93/crudguard/internal/service"
)

var ProviderSet = wire.NewSet(
	provideLogging,
	provideLogger,
	provideRuntime,
	provideDB,
	provideRedis,
	repository.NewUserRepository,
	repository.NewRoleRepository,
	repository.NewSecurityEventRepository,
	provideUserCache,
	provideMissingUserCache,
	observability.NewSlogSecurityLogger,
	provideDetacher,
	service.NewPersistentSecurityLog,
	provideSecurityLogger,
	provideUserStore,
	provideRoleGraph,
	provideJWTManager,
	providePasswordHasher,
	provideEmailSender,
	provideUserTokenService,
	provideAuthService,
	provideTrafficMonitor,
	provideCaptchaService,
	provideAuthGuard,
	provideTrustEngine,
	service.NewAuthorizer,
	provideAuthHandler,
	handler.NewMeHandler,
	handler.NewAdminHandler,
	provideRouter,
	provideHTTPServer,
	app.New,
	wire.Bind(new(service.UserLookup), new(*service.UserStore)),
)

// logging pairs the process logger with the OTel log provider it may be
// bridged to, so both can come from one provider.
type logging struct {
	logger   *slog.Logger
	provider *sdklog.LoggerProvider
}

func provideLogging(ctx context.Context, cfg *config.Config) (logging, error) {
	logger, lp, err := observability.NewLogger(ctx, cfg)
	if err != nil {
		return logging{}, err
	}
	slog.SetDefault(logger)
	return logging{logger: logger, provider: lp}, nil
}

func provideLogger(l logging) *slog.Logger { return l.logger }

func provideRuntime(ctx context.Context, cfg *config.Config, l logging) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, l.logger, l.provider)
}

func provideDB(cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	db, err := repository.OpenDB(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db, cleanup, nil
}

// provideRedis returns nil when Redis is disabled; cache providers fall back
// to in-process stores.
func provideRedis(cfg *config.Config) (redis.UniversalClient, func()) {
	if !cfg.RedisEnabled {
		return nil, func() {}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return client, func() { _ = client.Close() }
}

func provideUserCache(client redis.UniversalClient, cfg *config.Config) service.UserCacheStore {
	if client == nil {
		return service.NewInMemoryUserCacheStore()
	}
	return service.NewRedisUserCacheStore(client, cfg.RedisPrefix)
}

func provideMissingUserCache(client redis.UniversalClient, cfg *config.Config) service.MissingUserCache {
	if client == nil {
		return service.NewInMemoryMissingUserCache()
	}
	return service.NewRedisMissingUserCache(client, cfg.RedisPrefix)
}

// provideDetacher routes detached failures to the slog sink only. Routing
// them through the persistent log would feed its own failures back into it.
func provideDetacher(cfg *config.Config, sink *observability.SlogSecurityLogger) *service.Detacher {
	return service.NewDetacher(cfg.DetachedTaskTimeout, sink)
}

func provideSecurityLogger(sink *observability.SlogSecurityLogger, persistent *service.PersistentSecurityLog) observability.SecurityLogger {
	return observability.MultiSecurityLogger{sink, persistent}
}

func provideUserStore(
	cfg *config.Config,
	repo repository.UserRepository,
	cache service.UserCacheStore,
	missing service.MissingUserCache,
	detacher *service.Detacher,
	logger *slog.Logger,
) *service.UserStore {
	return service.NewUserStore(repo, cache, missing, cfg.UserCacheTTL, cfg.MissingUserCacheTTL, detacher, logger)
}

func provideRoleGraph(ctx context.Context, cfg *config.Config, repo repository.RoleRepository) (*service.RoleGraph, error) {
	return service.LoadRoleGraph(ctx, cfg.RolesSource, cfg.Roles, repo, cfg.GuestRole)
}

func provideJWTManager(cfg *config.Config) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSecret)
}

func providePasswordHasher(cfg *config.Config) *security.PasswordHasher {
	return security.NewPasswordHasher(cfg.PasswordCost, cfg.PasswordCostAdmin)
}

// provideEmailSender returns a nil interface when delivery is off, which
// disables the email-backed flows.
func provideEmailSender(cfg *config.Config, logger *slog.Logger) service.EmailSender {
	if cfg.EmailDelivery == "log" {
		return service.NewLogEmailSender(logger)
	}
	return nil
}

func provideUserTokenService(
	cfg *config.Config,
	users *service.UserStore,
	hasher *security.PasswordHasher,
	roles *service.RoleGraph,
	emails service.EmailSender,
	log observability.SecurityLogger,
) *service.UserTokenService {
	return service.NewUserTokenService(users, hasher, roles, emails, log,
		cfg.VerificationEmailTimeout, cfg.PasswordResetEmailTimeout, cfg.TwoFAEmailTimeout)
}

func provideAuthService(
	cfg *config.Config,
	users *service.UserStore,
	jwt *security.JWTManager,
	hasher *security.PasswordHasher,
	roles *service.RoleGraph,
	tokens *service.UserTokenService,
	log observability.SecurityLogger,
) *service.AuthService {
	return service.NewAuthService(users, jwt, hasher, roles, tokens, log, service.AuthServiceOptions{
		TokenTTL:      cfg.JWTExpiry,
		PayloadFields: cfg.JWTPayloadFields,
		BackoffAfter:  cfg.LoginBackoffAfter,
		BackoffMax:    cfg.LoginBackoffMax,
	})
}

func provideTrafficMonitor(cfg *config.Config, users service.UserLookup, log observability.SecurityLogger) (*service.TrafficMonitor, error) {
	return service.NewTrafficMonitor(cfg.Traffic, users, log)
}

func provideCaptchaService(cfg *config.Config, users *service.UserStore) *service.CaptchaService {
	var verifier service.CaptchaVerifier
	if cfg.CaptchaEnabled() {
		verifier = service.NewSiteVerifyCaptcha(cfg.CaptchaSecret, cfg.CaptchaVerifyURL, cfg.CaptchaTimeout)
	}
	return service.NewCaptchaService(verifier, users)
}

func provideAuthGuard(
	cfg *config.Config,
	traffic *service.TrafficMonitor,
	users service.UserLookup,
	jwt *security.JWTManager,
	roles *service.RoleGraph,
	log observability.SecurityLogger,
	captcha *service.CaptchaService,
) (*service.AuthGuard, error) {
	return service.NewAuthGuard(service.AuthGuardOptions{
		GuestRole:               cfg.GuestRole,
		Isolated:                cfg.Isolated,
		CaptchaEnabled:          captcha.Enabled(),
		CaptchaPath:             cfg.CaptchaPath,
		CredentialOptionalPaths: router.CredentialOptionalPaths,
	}, traffic, users, jwt, roles, log)
}

func provideTrustEngine(cfg *config.Config, roles *service.RoleGraph, users service.UserLookup) *service.TrustEngine {
	return service.NewTrustEngine(roles, users, cfg.TrustComputeInterval)
}

func provideAuthHandler(
	cfg *config.Config,
	auth *service.AuthService,
	tokens *service.UserTokenService,
	captcha *service.CaptchaService,
) *handler.AuthHandler {
	return handler.NewAuthHandler(auth, tokens, captcha, cfg.Env == "production")
}

func provideRouter(
	cfg *config.Config,
	db *gorm.DB,
	authHandler *handler.AuthHandler,
	meHandler *handler.MeHandler,
	adminHandler *handler.AdminHandler,
	guard *service.AuthGuard,
	authorizer *service.Authorizer,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:  authHandler,
		MeHandler:    meHandler,
		AdminHandler: adminHandler,
		Guard:        guard,
		Authorizer:   authorizer,
		GuardOptions: middleware.GuardOptions{UseForwardedIP: cfg.Traffic.UseForwardedIP},
		CORSOrigins:  cfg.CORSOrigins,
		Ready: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		EnableOTelHTTP: cfg.OTELTracingEnabled || cfg.OTELMetricsEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
