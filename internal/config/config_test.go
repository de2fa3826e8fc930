package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.OTP.CodeLength != 4 {
		t.Errorf("CodeLength = %d, want 4", cfg.OTP.CodeLength)
	}
	if cfg.OTP.Expiry != 5*time.Minute {
		t.Errorf("Expiry = %v, want 5m", cfg.OTP.Expiry)
	}
	if cfg.OTP.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.OTP.MaxAttempts)
	}
	if cfg.RateLimit.PhoneMax != 3 || cfg.RateLimit.IPMax != 10 || cfg.RateLimit.GlobalMax != 100 {
		t.Errorf("rate limits = %+v", cfg.RateLimit)
	}
	if cfg.RateLimit.Window != time.Hour || cfg.RateLimit.FanoutWindow != 10*time.Minute {
		t.Errorf("windows = %+v", cfg.RateLimit)
	}
	if cfg.Store.RecordBackend != "memory" || cfg.Store.CounterBackend != "memory" {
		t.Errorf("backends = %+v", cfg.Store)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	if _, err := Load(); err == nil {
		t.Error("Load without JWT_SECRET_KEY succeeded")
	}

	t.Setenv("JWT_SECRET_KEY", "too-short")
	if _, err := Load(); err == nil {
		t.Error("Load with short secret succeeded")
	}
}

func TestLoadValidatesBackends(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123456789abcdef")

	t.Setenv("STORE_BACKEND", "postgres")
	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "STORE_BACKEND") {
		t.Errorf("unknown record backend: got %v", err)
	}

	t.Setenv("STORE_BACKEND", "dynamo")
	t.Setenv("RATELIMIT_BACKEND", "memcached")
	_, err = Load()
	if err == nil || !strings.Contains(err.Error(), "RATELIMIT_BACKEND") {
		t.Errorf("unknown counter backend: got %v", err)
	}
}

func TestLoadValidatesCodeLength(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("OTP_CODE_LENGTH", "12")

	if _, err := Load(); err == nil {
		t.Error("Load with 12-digit code length succeeded")
	}
}

func TestLoadSMSCredentialCoherence(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "0123456789abcdef0123456789abcdef")
	t.Setenv("SMS_ACCOUNT_SID", "AC123")

	if _, err := Load(); err == nil {
		t.Error("Load with SID but no auth token succeeded")
	}
}
