package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "turbo"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "unknown mode") {
		t.Errorf("error = %v, want unknown mode complaint", err)
	}
}

func TestValidateRequiresGoldskyForIngest(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "ingest"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), "orderbook_url") {
		t.Errorf("error = %v, want missing orderbook_url complaint", err)
	}
}

func TestValidateArchiveRequiresS3(t *testing.T) {
	cfg := Defaults()
	cfg.Batch.Archive = true
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "archive requires s3") {
		t.Errorf("error = %v, want archive/s3 coupling complaint", err)
	}
}

func TestValidateRejectsUnknownStrategy(t *testing.T) {
	cfg := Defaults()
	cfg.Engine.Strategy = "yolo"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "unknown strategy") {
		t.Errorf("error = %v, want unknown strategy complaint", err)
	}
}

func TestValidateCollectsMultipleProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nope"
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"unknown mode", "unknown log_level", "redis: addr"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("POLYLEDGER_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("POLYLEDGER_BATCH_WORKERS", "16")
	t.Setenv("POLYLEDGER_BATCH_WALLETS", "0xaaa, 0xbbb")
	t.Setenv("POLYLEDGER_ENGINE_PREFETCH_TIMEOUT", "45s")
	t.Setenv("POLYLEDGER_S3_ENABLED", "true")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("postgres password = %q, want override", cfg.Postgres.Password)
	}
	if cfg.Batch.Workers != 16 {
		t.Errorf("batch workers = %d, want 16", cfg.Batch.Workers)
	}
	if len(cfg.Batch.Wallets) != 2 || cfg.Batch.Wallets[1] != "0xbbb" {
		t.Errorf("batch wallets = %v, want [0xaaa 0xbbb]", cfg.Batch.Wallets)
	}
	if cfg.Engine.PrefetchTimeout.Duration != 45*time.Second {
		t.Errorf("prefetch timeout = %v, want 45s", cfg.Engine.PrefetchTimeout.Duration)
	}
	if !cfg.S3.Enabled {
		t.Error("s3 enabled override not applied")
	}
}

func TestEnvOverrideIgnoresMalformedValues(t *testing.T) {
	t.Setenv("POLYLEDGER_BATCH_WORKERS", "many")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Batch.Workers != Defaults().Batch.Workers {
		t.Errorf("batch workers = %d, want default preserved", cfg.Batch.Workers)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Redis.Password = "secret"
	cfg.S3.SecretKey = "secret"
	cfg.Goldsky.ApiKey = "secret"

	red := RedactedConfig(&cfg)
	if red.Postgres.Password != "***" || red.Redis.Password != "***" {
		t.Error("store passwords must be redacted")
	}
	if red.S3.SecretKey != "***" || red.Goldsky.ApiKey != "***" {
		t.Error("API credentials must be redacted")
	}
	if cfg.Postgres.Password != "secret" {
		t.Error("original config must not be mutated")
	}
}
