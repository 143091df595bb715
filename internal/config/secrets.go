package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg // shallow copy of the top-level struct

	// Postgres
	out.Postgres = cfg.Postgres
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	// Redis
	out.Redis = cfg.Redis
	redact(&out.Redis.Password)

	// S3
	out.S3 = cfg.S3
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	// Goldsky
	out.Goldsky = cfg.Goldsky
	redact(&out.Goldsky.ApiKey)
	redact(&out.Goldsky.KeyPassword)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Batch.Wallets != nil {
		out.Batch.Wallets = make([]string, len(cfg.Batch.Wallets))
		copy(out.Batch.Wallets, cfg.Batch.Wallets)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
