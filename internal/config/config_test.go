package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "abcdefghijklmnopqrstuvwxyz123456")
	t.Setenv("DATABASE_URL", "file::memory:")
	t.Setenv("DATABASE_DRIVER", "sqlite")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Traffic.IPRequestThreshold != 700 || cfg.Traffic.UserRequestThreshold != 350 {
		t.Fatalf("unexpected traffic thresholds: %+v", cfg.Traffic)
	}
	if cfg.Traffic.TimeoutDuration != 15*time.Minute || cfg.Traffic.TimeoutThresholdTotal != 5 {
		t.Fatalf("unexpected timeout options: %+v", cfg.Traffic)
	}
	if cfg.Traffic.MaxTrackedIPs != 10000 || cfg.Traffic.MaxTrackedUsers != 10000 {
		t.Fatalf("unexpected capacities: %+v", cfg.Traffic)
	}
	if cfg.GuestRole != "guest" || len(cfg.Roles) != 3 {
		t.Fatalf("expected default role tree, got guest=%q roles=%d", cfg.GuestRole, len(cfg.Roles))
	}
	if cfg.CaptchaEnabled() {
		t.Fatal("captcha must be disabled without provider settings")
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_SECRET", "short")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "validate config:") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_EXPIRY", "soon")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "parse JWT_EXPIRY") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestApplyYAMLOverridesRolesAndTraffic(t *testing.T) {
	cfg := &Config{GuestRole: "guest", Traffic: DefaultTrafficWatchOptions()}
	raw := []byte(`
guest_role: visitor
traffic:
  ip_request_threshold: 50
  timeout_duration: 2m
roles:
  - name: visitor
  - name: member
    parent: visitor
    commands:
      read_posts: {}
      write_posts:
        min_trust: 3
`)
	if err := cfg.applyYAML(raw); err != nil {
		t.Fatalf("apply yaml: %v", err)
	}
	if cfg.GuestRole != "visitor" {
		t.Fatalf("expected guest role override, got %q", cfg.GuestRole)
	}
	if cfg.Traffic.IPRequestThreshold != 50 || cfg.Traffic.TimeoutDuration != 2*time.Minute {
		t.Fatalf("unexpected traffic override: %+v", cfg.Traffic)
	}
	if cfg.Traffic.UserRequestThreshold != 350 {
		t.Fatalf("unspecified traffic values must keep defaults, got %d", cfg.Traffic.UserRequestThreshold)
	}
	if len(cfg.Roles) != 2 || cfg.Roles[1].Commands["write_posts"].MinTrust != 3 {
		t.Fatalf("unexpected roles: %+v", cfg.Roles)
	}
}

func TestValidateRejectsUnknownGuestRole(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("GUEST_ROLE", "nobody-here")
	cfg, err := load()
	if err != nil {
		t.Fatalf("default roles use the configured guest name: %v", err)
	}
	cfg.GuestRole = "missing"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown guest role to fail validation")
	}
}

func TestValidateRejectsBadResetSchedule(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRAFFIC_RESET_SCHEDULE", "every now and then")
	if _, err := Load(); err == nil {
		t.Fatal("expected invalid cron schedule to fail")
	}
}

func TestReadRolesFile(t *testing.T) {
	guest, roles, err := ReadRolesFile("")
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if guest != "guest" || len(roles) != 3 {
		t.Fatalf("unexpected defaults guest=%q roles=%d", guest, len(roles))
	}

	path := filepath.Join(t.TempDir(), "roles.yaml")
	raw := "guest_role: anon\nroles:\n  - name: anon\n  - name: staff\n    parent: anon\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	guest, roles, err = ReadRolesFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if guest != "anon" || len(roles) != 2 || roles[1].Parent != "anon" {
		t.Fatalf("unexpected file roles guest=%q roles=%+v", guest, roles)
	}

	if _, _, err := ReadRolesFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExampleRolesFileIsValid(t *testing.T) {
	cfg := &Config{GuestRole: "guest", Traffic: DefaultTrafficWatchOptions()}
	if err := cfg.applyFile(filepath.Join("..", "..", "configs", "roles.example.yaml")); err != nil {
		t.Fatalf("apply example: %v", err)
	}
	if len(cfg.Roles) != 4 || cfg.Roles[3].TrustFloor == nil || *cfg.Roles[3].TrustFloor != 4 {
		t.Fatalf("unexpected roles %+v", cfg.Roles)
	}
	if cfg.Traffic.TimeoutDuration != 15*time.Minute || !cfg.Traffic.DDoSProtection {
		t.Fatalf("unexpected traffic %+v", cfg.Traffic)
	}
}
