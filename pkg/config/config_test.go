package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv(EnvAppEnv, AppEnvDev)
	t.Setenv(EnvRemoteBaseURL, "https://api.parcelpoint.test")
	t.Setenv(EnvRemoteToken, "test-token")
	t.Setenv(EnvRedisURL, "redis://localhost:6379/0")
	t.Setenv(EnvGCPProjectID, "parcelpoint-test")
}

func TestLoad_AppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.App.LogLevel != "info" {
		t.Fatalf("log level = %q", cfg.App.LogLevel)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Fatalf("remote timeout = %v", cfg.Remote.Timeout)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Fatalf("cache ttl = %v", cfg.Cache.TTL)
	}
	if cfg.Cache.MaxEntries != 256 {
		t.Fatalf("cache max entries = %d", cfg.Cache.MaxEntries)
	}
	if cfg.Retry.MaxAttempts != 3 || cfg.Retry.BaseDelay != time.Second || !cfg.Retry.Exponential {
		t.Fatalf("retry = %+v", cfg.Retry)
	}
	if cfg.Sweep.ProcessingTimeout != 48*time.Hour {
		t.Fatalf("processing timeout = %v", cfg.Sweep.ProcessingTimeout)
	}
	if cfg.Sweep.Interval != 5*time.Minute {
		t.Fatalf("sweep interval = %v", cfg.Sweep.Interval)
	}
	if cfg.PubSub.NotificationSubscription != "pp-notification-events" {
		t.Fatalf("subscription = %q", cfg.PubSub.NotificationSubscription)
	}
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PARCELPOINT_SWEEP_PROCESSING_TIMEOUT", "72h")
	t.Setenv("PARCELPOINT_RETRY_MAX_ATTEMPTS", "5")
	t.Setenv("PARCELPOINT_LOG_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Sweep.ProcessingTimeout != 72*time.Hour {
		t.Fatalf("processing timeout = %v", cfg.Sweep.ProcessingTimeout)
	}
	if cfg.Retry.MaxAttempts != 5 {
		t.Fatalf("max attempts = %d", cfg.Retry.MaxAttempts)
	}
	if cfg.App.LogFormat != "console" {
		t.Fatalf("log format = %q", cfg.App.LogFormat)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	// t.Setenv registered the restore; unset so the variable is truly absent.
	os.Unsetenv(EnvRemoteBaseURL)

	if _, err := Load(); err == nil {
		t.Fatal("expected error with missing remote base url")
	}
}

func TestAppConfig_EnvHelpers(t *testing.T) {
	dev := AppConfig{Env: "Development"}
	if !dev.IsDev() || dev.IsProd() {
		t.Fatalf("dev helpers wrong: %+v", dev)
	}
	prod := AppConfig{Env: AppEnvProd}
	if prod.IsDev() || !prod.IsProd() {
		t.Fatalf("prod helpers wrong: %+v", prod)
	}
}
