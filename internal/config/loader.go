package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYLEDGER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYLEDGER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POLYLEDGER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYLEDGER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYLEDGER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYLEDGER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYLEDGER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYLEDGER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYLEDGER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYLEDGER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYLEDGER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYLEDGER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYLEDGER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYLEDGER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYLEDGER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYLEDGER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYLEDGER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYLEDGER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYLEDGER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYLEDGER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYLEDGER_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYLEDGER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYLEDGER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYLEDGER_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "POLYLEDGER_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "POLYLEDGER_S3_FORCE_PATH_STYLE")

	// ── Goldsky ──
	setStr(&cfg.Goldsky.OrderbookURL, "POLYLEDGER_GOLDSKY_ORDERBOOK_URL")
	setStr(&cfg.Goldsky.ActivityURL, "POLYLEDGER_GOLDSKY_ACTIVITY_URL")
	setStr(&cfg.Goldsky.ApiKey, "POLYLEDGER_GOLDSKY_API_KEY")
	setStr(&cfg.Goldsky.EncryptedKeyPath, "POLYLEDGER_GOLDSKY_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Goldsky.KeyPassword, "POLYLEDGER_GOLDSKY_KEY_PASSWORD")
	setInt(&cfg.Goldsky.RateLimitPerMinute, "POLYLEDGER_GOLDSKY_RATE_LIMIT_PER_MINUTE")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYLEDGER_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYLEDGER_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYLEDGER_POLYMARKET_WS_HOST")

	// ── Engine ──
	setStr(&cfg.Engine.Strategy, "POLYLEDGER_ENGINE_STRATEGY")
	setFloat64(&cfg.Engine.MakerRatioMin, "POLYLEDGER_ENGINE_MAKER_RATIO_MIN")
	setInt(&cfg.Engine.ConditionCountMin, "POLYLEDGER_ENGINE_CONDITION_COUNT_MIN")
	setFloat64(&cfg.Engine.HighMaxDroppedFrac, "POLYLEDGER_ENGINE_HIGH_MAX_DROPPED_FRAC")
	setFloat64(&cfg.Engine.HighMaxSynthFrac, "POLYLEDGER_ENGINE_HIGH_MAX_SYNTH_FRAC")
	setFloat64(&cfg.Engine.LowMinDroppedFrac, "POLYLEDGER_ENGINE_LOW_MIN_DROPPED_FRAC")
	setFloat64(&cfg.Engine.LowMinSynthFrac, "POLYLEDGER_ENGINE_LOW_MIN_SYNTH_FRAC")
	setDuration(&cfg.Engine.PrefetchTimeout, "POLYLEDGER_ENGINE_PREFETCH_TIMEOUT")
	setDuration(&cfg.Engine.MarkPriceTTL, "POLYLEDGER_ENGINE_MARK_PRICE_TTL")

	// ── Batch ──
	setInt(&cfg.Batch.Workers, "POLYLEDGER_BATCH_WORKERS")
	setStringSlice(&cfg.Batch.Wallets, "POLYLEDGER_BATCH_WALLETS")
	setDuration(&cfg.Batch.WalletTimeout, "POLYLEDGER_BATCH_WALLET_TIMEOUT")
	setStr(&cfg.Batch.WalletsFile, "POLYLEDGER_BATCH_WALLETS_FILE")
	setDuration(&cfg.Batch.LockTTL, "POLYLEDGER_BATCH_LOCK_TTL")
	setDuration(&cfg.Batch.Interval, "POLYLEDGER_BATCH_INTERVAL")
	setBool(&cfg.Batch.Archive, "POLYLEDGER_BATCH_ARCHIVE")

	// ── Pipeline ──
	setDuration(&cfg.Pipeline.ScrapeInterval, "POLYLEDGER_PIPELINE_SCRAPE_INTERVAL")
	setDuration(&cfg.Pipeline.MetadataRefreshInterval, "POLYLEDGER_PIPELINE_METADATA_REFRESH_INTERVAL")
	setInt(&cfg.Pipeline.MetadataPageSize, "POLYLEDGER_PIPELINE_METADATA_PAGE_SIZE")
	setBool(&cfg.Pipeline.Backfill, "POLYLEDGER_PIPELINE_BACKFILL")
	setStringSlice(&cfg.Pipeline.BackfillWallets, "POLYLEDGER_PIPELINE_BACKFILL_WALLETS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYLEDGER_MODE")
	setStr(&cfg.LogLevel, "POLYLEDGER_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
