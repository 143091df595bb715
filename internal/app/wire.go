package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/polyledger/internal/blob/s3"
	"github.com/alanyoungcy/polyledger/internal/cache/redis"
	"github.com/alanyoungcy/polyledger/internal/config"
	"github.com/alanyoungcy/polyledger/internal/crypto"
	"github.com/alanyoungcy/polyledger/internal/domain"
	"github.com/alanyoungcy/polyledger/internal/engine"
	"github.com/alanyoungcy/polyledger/internal/oracle"
	"github.com/alanyoungcy/polyledger/internal/pipeline"
	"github.com/alanyoungcy/polyledger/internal/platform/goldsky"
	"github.com/alanyoungcy/polyledger/internal/platform/polymarket"
	"github.com/alanyoungcy/polyledger/internal/store/postgres"
	"github.com/alanyoungcy/polyledger/internal/token"
)

// Dependencies bundles every component the application modes need to
// operate. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	// Stores
	MappingStore    domain.TokenMappingStore
	ResolutionStore domain.ResolutionStore
	ActivityStore   domain.ActivityStore
	ResultStore     domain.ResultStore

	// Caches and coordination
	MarkPriceCache domain.MarkPriceCache
	RateLimiter    domain.RateLimiter
	LockManager    domain.LockManager

	// Platform clients
	Goldsky *goldsky.Client
	Gamma   *polymarket.GammaClient
	Clob    *polymarket.ClobClient
	WS      *polymarket.WSClient

	// Blob storage
	Archiver *s3blob.Archiver

	// Core components
	Engine   *engine.Engine
	Ingestor *pipeline.Ingestor
	Feed     *pipeline.Feed
}

// needsGoldsky returns true for modes that scrape the subgraphs.
func needsGoldsky(mode string) bool {
	return mode == "ingest" || mode == "full"
}

// needsWS returns true for modes that stream live quotes.
func needsWS(mode string) bool {
	return mode == "feed" || mode == "full"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.MappingStore = postgres.NewTokenMappingStore(pool)
	deps.ResolutionStore = postgres.NewResolutionStore(pool)
	deps.ActivityStore = postgres.NewActivityStore(pool)
	deps.ResultStore = postgres.NewResultStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.MarkPriceCache = redis.NewMarkPriceCache(redisClient, cfg.Engine.MarkPriceTTL.Duration)
	deps.RateLimiter = redis.NewRateLimiterWithLimit(redisClient, cfg.Goldsky.RateLimitPerMinute, time.Minute)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- Platform clients ---
	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	deps.Clob = polymarket.NewClobClient(cfg.Polymarket.ClobHost)
	if needsWS(cfg.Mode) {
		deps.WS = polymarket.NewWSClient(cfg.Polymarket.WsHost)
	}
	if needsGoldsky(cfg.Mode) {
		apiKey, err := goldskyAPIKey(cfg.Goldsky)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: goldsky credentials: %w", err)
		}
		deps.Goldsky = goldsky.NewClient(cfg.Goldsky.OrderbookURL, cfg.Goldsky.ActivityURL, apiKey, deps.RateLimiter)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })
		if err := s3Client.Health(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewBucket(s3Client), deps.ResultStore)
	}

	// --- Engine ---
	resolver := token.NewResolver(deps.MappingStore)
	orc := oracle.NewOracle(deps.ResolutionStore, logger)

	classifier := engine.Classifier{
		MakerRatioMin:     cfg.Engine.MakerRatioMin,
		ConditionCountMin: cfg.Engine.ConditionCountMin,
	}
	if cfg.Engine.Strategy != "" && cfg.Engine.Strategy != "auto" {
		classifier.Override = cfg.Engine.Strategy
	}
	deps.Engine = engine.New(resolver, orc, deps.MarkPriceCache, deps.Clob, engine.Config{
		Classifier: classifier,
		Thresholds: engine.ConfidenceThresholds{
			HighMaxDroppedFrac: cfg.Engine.HighMaxDroppedFrac,
			HighMaxSynthFrac:   cfg.Engine.HighMaxSynthFrac,
			LowMinDroppedFrac:  cfg.Engine.LowMinDroppedFrac,
			LowMinSynthFrac:    cfg.Engine.LowMinSynthFrac,
		},
		PrefetchTimeout: cfg.Engine.PrefetchTimeout.Duration,
	}, logger)

	// --- Pipeline ---
	if deps.Goldsky != nil {
		deps.Ingestor = pipeline.NewIngestor(
			deps.Goldsky,
			deps.Gamma,
			deps.ActivityStore,
			deps.MappingStore,
			deps.ResolutionStore,
			pipeline.Config{
				ScrapeInterval:          cfg.Pipeline.ScrapeInterval.Duration,
				MetadataRefreshInterval: cfg.Pipeline.MetadataRefreshInterval.Duration,
				MetadataPageSize:        cfg.Pipeline.MetadataPageSize,
				Backfill:                cfg.Pipeline.Backfill,
				BackfillWallets:         cfg.Pipeline.BackfillWallets,
			},
			logger,
		)
	}
	if deps.WS != nil {
		deps.Feed = pipeline.NewFeed(deps.WS, deps.Gamma, deps.MarkPriceCache, logger)
	}

	return deps, cleanup, nil
}

// goldskyAPIKey resolves the subgraph API key from the configured sources.
// Both sources empty means the endpoints are public; no error.
func goldskyAPIKey(cfg config.GoldskyConfig) (string, error) {
	if cfg.ApiKey == "" && cfg.EncryptedKeyPath == "" {
		return "", nil
	}
	return crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:     cfg.ApiKey,
		EncryptedPath: cfg.EncryptedKeyPath,
		Password:      cfg.KeyPassword,
	})
}
