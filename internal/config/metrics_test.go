package config

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassifyLoadError(t *testing.T) {
	cases := map[string]struct {
		err  error
		want string
	}{
		"none":        {nil, "none"},
		"env":         {errors.New("parse JWT_EXPIRY: time: invalid duration"), "env"},
		"config file": {fmt.Errorf("read config file: %w", errors.New("no such file")), "config_file"},
		"yaml":        {errors.New("parse config file: yaml: line 3"), "config_file"},
		"guest":       {errors.New("validate config: guest role \"x\" is not defined"), "roles"},
		"schedule":    {errors.New("validate config: traffic reset schedule: bad"), "traffic"},
		"secret":      {errors.New("validate config: JWT_SECRET must be at least 32 bytes"), "validation"},
		"other":       {errors.New("boom"), "other"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := classifyLoadError(tc.err); got != tc.want {
				t.Fatalf("classifyLoadError(%v)=%q want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestLabelOrUnknown(t *testing.T) {
	if got := labelOrUnknown("  Production "); got != "production" {
		t.Fatalf("got %q", got)
	}
	if got := labelOrUnknown(" "); got != "unknown" {
		t.Fatalf("got %q", got)
	}
}

func TestLoadFailureIsClassifiedAsEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("JWT_EXPIRY", "soon")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	if got := classifyLoadError(err); got != "env" {
		t.Fatalf("class=%q for %v", got, err)
	}
}
