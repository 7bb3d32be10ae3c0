package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/sandeepkv93/crudguard/internal/domain"
)

// TrafficWatchOptions tunes the traffic monitor.
type TrafficWatchOptions struct {
	MaxTrackedUsers       int           `yaml:"max_tracked_users"`
	MaxTrackedIPs         int           `yaml:"max_tracked_ips"`
	UserRequestThreshold  int           `yaml:"user_request_threshold"`
	IPRequestThreshold    int           `yaml:"ip_request_threshold"`
	TimeoutThresholdTotal int           `yaml:"timeout_threshold_total"`
	TimeoutDuration       time.Duration `yaml:"timeout_duration"`
	UseForwardedIP        bool          `yaml:"use_forwarded_ip"`
	DDoSProtection        bool          `yaml:"ddos_protection"`
	UserTrafficProtection bool          `yaml:"user_traffic_protection"`
	ResetSchedule         string        `yaml:"reset_schedule"`
}

func DefaultTrafficWatchOptions() TrafficWatchOptions {
	return TrafficWatchOptions{
		MaxTrackedUsers:       10000,
		MaxTrackedIPs:         10000,
		UserRequestThreshold:  350,
		IPRequestThreshold:    700,
		TimeoutThresholdTotal: 5,
		TimeoutDuration:       15 * time.Minute,
		UseForwardedIP:        false,
		DDoSProtection:        false,
		UserTrafficProtection: true,
		ResetSchedule:         "*/5 * * * *",
	}
}

type Config struct {
	Env                          string
	HTTPAddr                     string
	LogLevel                     string
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
	CORSOrigins                  []string

	DatabaseDriver string
	DatabaseURL    string
	AutoMigrate    bool

	RedisEnabled        bool
	RedisAddr           string
	RedisPassword       string
	RedisDB             int
	RedisPrefix         string
	UserCacheTTL        time.Duration
	MissingUserCacheTTL time.Duration

	JWTIssuer        string
	JWTAudience      string
	JWTSecret        string
	JWTExpiry        time.Duration
	JWTPayloadFields []string

	PasswordCost      int
	PasswordCostAdmin int

	VerificationEmailTimeout  time.Duration
	PasswordResetEmailTimeout time.Duration
	TwoFAEmailTimeout         time.Duration
	LoginBackoffAfter         int
	LoginBackoffMax           time.Duration

	GuestRole   string
	Isolated    bool
	RolesSource string
	Roles       []domain.Role
	ConfigFile  string

	CaptchaSecret    string
	CaptchaVerifyURL string
	CaptchaPath      string
	CaptchaTimeout   time.Duration

	// EmailDelivery selects the email sender: "" disables email flows, "log"
	// writes messages to the logger.
	EmailDelivery string

	Traffic              TrafficWatchOptions
	TrustComputeInterval time.Duration
	DetachedTaskTimeout  time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracingEnabled        bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration
	OTELTraceSampleRatio      float64
}

// CaptchaEnabled reports whether a captcha provider is configured. The captcha
// gate in the auth guard is only enforced when it is.
func (c *Config) CaptchaEnabled() bool {
	return c.CaptchaSecret != "" && c.CaptchaVerifyURL != ""
}

type fileConfig struct {
	GuestRole string               `yaml:"guest_role"`
	Traffic   *TrafficWatchOptions `yaml:"traffic"`
	Roles     []domain.Role        `yaml:"roles"`
}

func Load() (*Config, error) {
	cfg, err := load()
	recordConfigLoad(context.Background(), os.Getenv("APP_ENV"), os.Getenv("ROLES_SOURCE"), err)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func load() (*Config, error) {
	p := &envParser{}
	cfg := &Config{
		Env:                          getEnv("APP_ENV", "development"),
		HTTPAddr:                     getEnv("HTTP_ADDR", ":8080"),
		LogLevel:                     getEnv("LOG_LEVEL", "info"),
		ShutdownTimeout:              p.duration("SHUTDOWN_TIMEOUT", 20*time.Second),
		ShutdownHTTPDrainTimeout:     p.duration("SHUTDOWN_HTTP_DRAIN_TIMEOUT", 10*time.Second),
		ShutdownObservabilityTimeout: p.duration("SHUTDOWN_OBSERVABILITY_TIMEOUT", 5*time.Second),
		CORSOrigins:                  splitList(getEnv("CORS_ORIGINS", "")),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "postgres"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AutoMigrate:    p.bool("DATABASE_AUTO_MIGRATE", true),

		RedisEnabled:        p.bool("REDIS_ENABLED", false),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisDB:             p.int("REDIS_DB", 0),
		RedisPrefix:         getEnv("REDIS_PREFIX", "crudguard"),
		UserCacheTTL:        p.duration("USER_CACHE_TTL", 10*time.Minute),
		MissingUserCacheTTL: p.duration("MISSING_USER_CACHE_TTL", time.Minute),

		JWTIssuer:        getEnv("JWT_ISSUER", "crudguard"),
		JWTAudience:      getEnv("JWT_AUDIENCE", "crudguard-api"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		JWTExpiry:        p.duration("JWT_EXPIRY", 30*time.Minute),
		JWTPayloadFields: splitList(getEnv("JWT_PAYLOAD_FIELDS", "")),

		PasswordCost:      p.int("PASSWORD_COST", 10),
		PasswordCostAdmin: p.int("PASSWORD_COST_ADMIN", 12),

		VerificationEmailTimeout:  p.duration("VERIFICATION_EMAIL_TIMEOUT", 6*time.Hour),
		PasswordResetEmailTimeout: p.duration("PASSWORD_RESET_EMAIL_TIMEOUT", 6*time.Hour),
		TwoFAEmailTimeout:         p.duration("TWOFA_EMAIL_TIMEOUT", 15*time.Minute),
		LoginBackoffAfter:         p.int("LOGIN_BACKOFF_AFTER", 6),
		LoginBackoffMax:           p.duration("LOGIN_BACKOFF_MAX", 5*time.Minute),

		GuestRole:   getEnv("GUEST_ROLE", "guest"),
		Isolated:    p.bool("INSTANCE_ISOLATED", false),
		RolesSource: getEnv("ROLES_SOURCE", "config"),
		ConfigFile:  getEnv("CRUDGUARD_CONFIG_FILE", ""),

		CaptchaSecret:    getEnv("CAPTCHA_SECRET", ""),
		CaptchaVerifyURL: getEnv("CAPTCHA_VERIFY_URL", ""),
		CaptchaPath:      getEnv("CAPTCHA_PATH", "/api/v1/auth/captcha"),
		CaptchaTimeout:   p.duration("CAPTCHA_TIMEOUT", 5*time.Second),

		EmailDelivery: getEnv("EMAIL_DELIVERY", ""),

		Traffic:              DefaultTrafficWatchOptions(),
		TrustComputeInterval: p.duration("TRUST_COMPUTE_INTERVAL", 24*time.Hour),
		DetachedTaskTimeout:  p.duration("DETACHED_TASK_TIMEOUT", 5*time.Second),

		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "crudguard"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", "development"),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  p.bool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        p.bool("OTEL_METRICS_ENABLED", false),
		OTELTracingEnabled:        p.bool("OTEL_TRACING_ENABLED", false),
		OTELLogsEnabled:           p.bool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: p.duration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),
		OTELTraceSampleRatio:      p.float("OTEL_TRACE_SAMPLE_RATIO", 1.0),
	}

	t := &cfg.Traffic
	t.MaxTrackedUsers = p.int("TRAFFIC_MAX_TRACKED_USERS", t.MaxTrackedUsers)
	t.MaxTrackedIPs = p.int("TRAFFIC_MAX_TRACKED_IPS", t.MaxTrackedIPs)
	t.UserRequestThreshold = p.int("TRAFFIC_USER_REQUEST_THRESHOLD", t.UserRequestThreshold)
	t.IPRequestThreshold = p.int("TRAFFIC_IP_REQUEST_THRESHOLD", t.IPRequestThreshold)
	t.TimeoutThresholdTotal = p.int("TRAFFIC_TIMEOUT_THRESHOLD_TOTAL", t.TimeoutThresholdTotal)
	t.TimeoutDuration = p.duration("TRAFFIC_TIMEOUT_DURATION", t.TimeoutDuration)
	t.UseForwardedIP = p.bool("TRAFFIC_USE_FORWARDED_IP", t.UseForwardedIP)
	t.DDoSProtection = p.bool("TRAFFIC_DDOS_PROTECTION", t.DDoSProtection)
	t.UserTrafficProtection = p.bool("TRAFFIC_USER_PROTECTION", t.UserTrafficProtection)
	t.ResetSchedule = getEnv("TRAFFIC_RESET_SCHEDULE", t.ResetSchedule)

	if p.err != nil {
		return nil, p.err
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}
	if len(cfg.Roles) == 0 {
		cfg.Roles = DefaultRoles(cfg.GuestRole)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.applyYAML(raw)
}

func (c *Config) applyYAML(raw []byte) error {
	fc := fileConfig{Traffic: &c.Traffic}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if fc.GuestRole != "" {
		c.GuestRole = fc.GuestRole
	}
	if len(fc.Roles) > 0 {
		c.Roles = fc.Roles
	}
	return nil
}

// ReadRolesFile parses the guest role and role tree from a config file
// without touching the environment. Missing sections fall back to defaults.
func ReadRolesFile(path string) (string, []domain.Role, error) {
	c := &Config{GuestRole: "guest", Traffic: DefaultTrafficWatchOptions()}
	if path != "" {
		if err := c.applyFile(path); err != nil {
			return "", nil, err
		}
	}
	if len(c.Roles) == 0 {
		c.Roles = DefaultRoles(c.GuestRole)
	}
	return c.GuestRole, c.Roles, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if c.JWTExpiry <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRY must be positive"))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q is not supported", c.DatabaseDriver))
	}
	switch c.RolesSource {
	case "config", "db":
	default:
		errs = append(errs, fmt.Errorf("ROLES_SOURCE %q is not supported", c.RolesSource))
	}
	switch c.EmailDelivery {
	case "", "log":
	default:
		errs = append(errs, fmt.Errorf("EMAIL_DELIVERY %q is not supported", c.EmailDelivery))
	}
	t := c.Traffic
	if t.MaxTrackedUsers <= 0 || t.MaxTrackedIPs <= 0 {
		errs = append(errs, errors.New("traffic capacities must be positive"))
	}
	if t.UserRequestThreshold <= 0 || t.IPRequestThreshold <= 0 || t.TimeoutThresholdTotal <= 0 {
		errs = append(errs, errors.New("traffic thresholds must be positive"))
	}
	if t.TimeoutDuration <= 0 {
		errs = append(errs, errors.New("traffic timeout duration must be positive"))
	}
	if _, err := cron.ParseStandard(t.ResetSchedule); err != nil {
		errs = append(errs, fmt.Errorf("traffic reset schedule: %w", err))
	}
	if c.LoginBackoffAfter <= 0 {
		errs = append(errs, errors.New("LOGIN_BACKOFF_AFTER must be positive"))
	}
	if c.RolesSource == "config" && !hasRole(c.Roles, c.GuestRole) {
		errs = append(errs, fmt.Errorf("guest role %q is not defined", c.GuestRole))
	}
	return errors.Join(errs...)
}

// DefaultRoles is the role tree used when no role map is configured.
func DefaultRoles(guest string) []domain.Role {
	adminFloor := 4
	return []domain.Role{
		{Name: guest},
		{
			Name:   "user",
			Parent: guest,
			Commands: map[string]domain.CommandRule{
				"sendVerificationEmail": {},
				"verifyEmail":           {},
			},
			Fields: map[string]domain.FieldRule{
				"user.email": {Read: true},
				"user.role":  {Read: true},
			},
		},
		{
			Name:       "admin",
			Parent:     "user",
			IsAdmin:    true,
			TrustFloor: &adminFloor,
			Commands:   map[string]domain.CommandRule{domain.Wildcard: {}},
			Fields:     map[string]domain.FieldRule{domain.Wildcard: {Read: true, Write: true}},
		},
	}
}

func hasRole(roles []domain.Role, name string) bool {
	for _, r := range roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

type envParser struct {
	err error
}

func (p *envParser) int(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *envParser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *envParser) bool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return v
}

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s: %w", key, err)
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
