package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SETBOT_* environment variable overrides, and
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

// applyEnvOverrides reads well-known SETBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Feed.WebsocketURL, "SETBOT_FEED_WEBSOCKET_URL")
	setStr(&cfg.Feed.RestBaseURL, "SETBOT_FEED_REST_BASE_URL")
	setStr(&cfg.Feed.MetadataBaseURL, "SETBOT_FEED_METADATA_BASE_URL")
	setBool(&cfg.Feed.SubscribeMetadata, "SETBOT_FEED_SUBSCRIBE_METADATA")
	setFloat64(&cfg.Feed.MaxLagSeconds, "SETBOT_FEED_MAX_LAG_SECONDS")

	setFloat64(&cfg.Arbitrage.MinEdgeBps, "SETBOT_ARBITRAGE_MIN_EDGE_BPS")

	setFloat64(&cfg.Execution.MaxSlippagePct, "SETBOT_EXECUTION_MAX_SLIPPAGE_PCT")
	setFloat64(&cfg.Execution.TimeoutSeconds, "SETBOT_EXECUTION_TIMEOUT_SECONDS")
	setFloat64(&cfg.Execution.IdempotencyTTLSeconds, "SETBOT_EXECUTION_IDEMPOTENCY_TTL_SECONDS")
	setFloat64(&cfg.Execution.MaxStalenessSeconds, "SETBOT_EXECUTION_MAX_STALENESS_SECONDS")
	setInt(&cfg.Execution.MaxRejectStreak, "SETBOT_EXECUTION_MAX_REJECT_STREAK")
	setInt(&cfg.Execution.HedgeLatencyBudgetMs, "SETBOT_EXECUTION_HEDGE_LATENCY_BUDGET_MS")
	setFloat64(&cfg.Execution.TradeSize, "SETBOT_EXECUTION_TRADE_SIZE")
	setBool(&cfg.Execution.DryRun, "SETBOT_EXECUTION_DRY_RUN")

	setStr(&cfg.Venue.BaseURL, "SETBOT_VENUE_BASE_URL")
	setStr(&cfg.Venue.APIKey, "SETBOT_VENUE_API_KEY")

	setFloat64(&cfg.Risk.MaxNotionalUSD, "SETBOT_RISK_MAX_NOTIONAL_USD")
	setFloat64(&cfg.Risk.DailyLossLimitUSD, "SETBOT_RISK_DAILY_LOSS_LIMIT_USD")

	setStr(&cfg.Snapshot.Backend, "SETBOT_SNAPSHOT_BACKEND")
	setStr(&cfg.Snapshot.Path, "SETBOT_SNAPSHOT_PATH")
	setStr(&cfg.Snapshot.Name, "SETBOT_SNAPSHOT_NAME")

	setStr(&cfg.Postgres.DSN, "SETBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "SETBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SETBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SETBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SETBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SETBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SETBOT_POSTGRES_SSLMODE")

	setStr(&cfg.S3.Endpoint, "SETBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SETBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "SETBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "SETBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SETBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "SETBOT_S3_FORCE_PATH_STYLE")

	setBool(&cfg.Redis.Enabled, "SETBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "SETBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SETBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SETBOT_REDIS_DB")

	setBool(&cfg.Server.Enabled, "SETBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "SETBOT_SERVER_PORT")

	setStr(&cfg.Audit.Path, "SETBOT_AUDIT_PATH")

	setStr(&cfg.Mode, "SETBOT_MODE")
	setStr(&cfg.LogLevel, "SETBOT_LOG_LEVEL")
}

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
