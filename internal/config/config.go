// Package config defines the top-level configuration for the polyledger
// reconciliation service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by POLYLEDGER_* environment variables.
type Config struct {
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Goldsky    GoldskyConfig    `toml:"goldsky"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Engine     EngineConfig     `toml:"engine"`
	Batch      BatchConfig      `toml:"batch"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for run archives.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// GoldskyConfig holds the Goldsky subgraph endpoints and credentials.
// OrderbookURL serves CLOB fill events; ActivityURL serves the collateral
// split, merge, and redemption entities.
type GoldskyConfig struct {
	OrderbookURL string `toml:"orderbook_url"`
	ActivityURL  string `toml:"activity_url"`
	ApiKey       string `toml:"api_key"`
	// EncryptedKeyPath and KeyPassword load the API key from an encrypted
	// file when api_key itself is unset.
	EncryptedKeyPath string `toml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password"`
	// RateLimitPerMinute caps subgraph queries per minute.
	RateLimitPerMinute int `toml:"rate_limit_per_minute"`
}

// PolymarketConfig holds Polymarket API endpoints.
type PolymarketConfig struct {
	ClobHost  string `toml:"clob_host"`
	GammaHost string `toml:"gamma_host"`
	WsHost    string `toml:"ws_host"`
}

// EngineConfig holds PnL engine tuning parameters.
type EngineConfig struct {
	// Strategy pins the split-inference strategy ("wallet_netting",
	// "market_proportional"); empty or "auto" classifies per wallet.
	Strategy          string  `toml:"strategy"`
	MakerRatioMin     float64 `toml:"maker_ratio_min"`
	ConditionCountMin int     `toml:"condition_count_min"`

	HighMaxDroppedFrac float64 `toml:"high_max_dropped_frac"`
	HighMaxSynthFrac   float64 `toml:"high_max_synth_frac"`
	LowMinDroppedFrac  float64 `toml:"low_min_dropped_frac"`
	LowMinSynthFrac    float64 `toml:"low_min_synth_frac"`

	PrefetchTimeout duration `toml:"prefetch_timeout"`
	MarkPriceTTL    duration `toml:"mark_price_ttl"`
}

// BatchConfig holds batch-run parameters.
type BatchConfig struct {
	// Workers is the number of wallets computed concurrently.
	Workers int `toml:"workers"`
	// WalletTimeout bounds the computation of a single wallet.
	WalletTimeout duration `toml:"wallet_timeout"`
	// Wallets is the explicit list of wallet addresses to compute.
	Wallets []string `toml:"wallets"`
	// WalletsFile is a newline-separated list of wallet addresses to compute,
	// appended to Wallets.
	WalletsFile string `toml:"wallets_file"`
	// LockTTL bounds the distributed single-flight lock for a run.
	LockTTL duration `toml:"lock_ttl"`
	// Interval schedules recurring runs in full mode.
	Interval duration `toml:"interval"`
	// Archive uploads each completed run to S3 when s3.enabled is also set.
	Archive bool `toml:"archive"`
}

// PipelineConfig holds ingestion parameters.
type PipelineConfig struct {
	ScrapeInterval duration `toml:"scrape_interval"`
	// MetadataRefreshInterval controls how often market metadata (token
	// mappings and resolutions) is refreshed from the Gamma API.
	MetadataRefreshInterval duration `toml:"metadata_refresh_interval"`
	// MetadataPageSize is the Gamma markets page size per request.
	MetadataPageSize int `toml:"metadata_page_size"`
	// Backfill starts the fill scrape from the beginning of history instead
	// of the last stored activity timestamp.
	Backfill bool `toml:"backfill"`
	// BackfillWallets are pulled in full history, with their condition
	// metadata, when ingestion starts.
	BackfillWallets []string `toml:"backfill_wallets"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "polyledger",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "polyledger-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Goldsky: GoldskyConfig{
			OrderbookURL:       "",
			ActivityURL:        "",
			RateLimitPerMinute: 120,
		},
		Polymarket: PolymarketConfig{
			ClobHost:  "https://clob.polymarket.com",
			GammaHost: "https://gamma-api.polymarket.com",
			WsHost:    "wss://ws-subscriptions-clob.polymarket.com",
		},
		Engine: EngineConfig{
			Strategy:           "auto",
			MakerRatioMin:      0.6,
			ConditionCountMin:  25,
			HighMaxDroppedFrac: 0.05,
			HighMaxSynthFrac:   0.10,
			LowMinDroppedFrac:  0.50,
			LowMinSynthFrac:    0.50,
			PrefetchTimeout:    duration{30 * time.Second},
			MarkPriceTTL:       duration{time.Minute},
		},
		Batch: BatchConfig{
			Workers:       8,
			WalletTimeout: duration{2 * time.Minute},
			LockTTL:       duration{30 * time.Minute},
			Interval:      duration{time.Hour},
			Archive:       false,
		},
		Pipeline: PipelineConfig{
			ScrapeInterval:          duration{5 * time.Minute},
			MetadataRefreshInterval: duration{time.Hour},
			MetadataPageSize:        500,
			Backfill:                false,
		},
		Mode:     "batch",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"batch":  true,
	"ingest": true,
	"feed":   true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validStrategies enumerates the accepted values for EngineConfig.Strategy.
var validStrategies = map[string]bool{
	"":                    true,
	"auto":                true,
	"wallet_netting":      true,
	"market_proportional": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: batch, ingest, feed, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 — only checked when archival is in play.
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when enabled")
		}
	}
	if c.Batch.Archive && !c.S3.Enabled {
		errs = append(errs, "batch: archive requires s3.enabled")
	}

	// Goldsky — needed for ingestion modes.
	needsGoldsky := c.Mode == "ingest" || c.Mode == "full"
	if needsGoldsky {
		if c.Goldsky.OrderbookURL == "" {
			errs = append(errs, "goldsky: orderbook_url is required for mode "+c.Mode)
		}
		if c.Goldsky.ActivityURL == "" {
			errs = append(errs, "goldsky: activity_url is required for mode "+c.Mode)
		}
	}
	if c.Goldsky.EncryptedKeyPath != "" && c.Goldsky.KeyPassword == "" {
		errs = append(errs, "goldsky: key_password is required when encrypted_key_path is set")
	}
	if c.Goldsky.RateLimitPerMinute < 1 {
		errs = append(errs, "goldsky: rate_limit_per_minute must be >= 1")
	}

	// Polymarket endpoints
	if c.Polymarket.ClobHost == "" {
		errs = append(errs, "polymarket: clob_host must not be empty")
	}
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if (c.Mode == "feed" || c.Mode == "full") && c.Polymarket.WsHost == "" {
		errs = append(errs, "polymarket: ws_host is required for mode "+c.Mode)
	}

	// Engine
	if !validStrategies[c.Engine.Strategy] {
		errs = append(errs, fmt.Sprintf("engine: unknown strategy %q (valid: auto, wallet_netting, market_proportional)", c.Engine.Strategy))
	}
	if c.Engine.MakerRatioMin < 0 || c.Engine.MakerRatioMin > 1 {
		errs = append(errs, "engine: maker_ratio_min must be in [0, 1]")
	}
	if c.Engine.ConditionCountMin < 0 {
		errs = append(errs, "engine: condition_count_min must be >= 0")
	}
	if c.Engine.HighMaxDroppedFrac >= c.Engine.LowMinDroppedFrac {
		errs = append(errs, "engine: high_max_dropped_frac must be below low_min_dropped_frac")
	}
	if c.Engine.HighMaxSynthFrac >= c.Engine.LowMinSynthFrac {
		errs = append(errs, "engine: high_max_synth_frac must be below low_min_synth_frac")
	}
	if c.Engine.PrefetchTimeout.Duration <= 0 {
		errs = append(errs, "engine: prefetch_timeout must be > 0")
	}
	if c.Engine.MarkPriceTTL.Duration <= 0 {
		errs = append(errs, "engine: mark_price_ttl must be > 0")
	}

	// Batch
	if c.Batch.Workers < 1 {
		errs = append(errs, "batch: workers must be >= 1")
	}
	if c.Batch.WalletTimeout.Duration <= 0 {
		errs = append(errs, "batch: wallet_timeout must be > 0")
	}
	if c.Batch.LockTTL.Duration <= 0 {
		errs = append(errs, "batch: lock_ttl must be > 0")
	}
	if c.Mode == "full" && c.Batch.Interval.Duration <= 0 {
		errs = append(errs, "batch: interval must be > 0 for mode full")
	}

	// Pipeline
	if c.Mode == "ingest" || c.Mode == "full" {
		if c.Pipeline.ScrapeInterval.Duration <= 0 {
			errs = append(errs, "pipeline: scrape_interval must be > 0")
		}
		if c.Pipeline.MetadataRefreshInterval.Duration <= 0 {
			errs = append(errs, "pipeline: metadata_refresh_interval must be > 0")
		}
		if c.Pipeline.MetadataPageSize < 1 {
			errs = append(errs, "pipeline: metadata_page_size must be >= 1")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
