// Package config defines the top-level configuration for the complete-set
// arbitrage bot and provides validation helpers.
package config

import (
	"fmt"
	"strings"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by SETBOT_* environment variables.
type Config struct {
	Feed      FeedConfig      `toml:"feed"`
	Arbitrage ArbitrageConfig `toml:"arbitrage"`
	Execution ExecutionConfig `toml:"execution"`
	Venue     VenueConfig     `toml:"venue"`
	Risk      RiskConfig      `toml:"risk"`
	Snapshot  SnapshotConfig  `toml:"snapshot"`
	Postgres  PostgresConfig  `toml:"postgres"`
	S3        S3Config        `toml:"s3"`
	Redis     RedisConfig     `toml:"redis"`
	Server    ServerConfig    `toml:"server"`
	Audit     AuditConfig     `toml:"audit"`
	Mode      string          `toml:"mode"`
	LogLevel  string          `toml:"log_level"`
}

// FeedConfig holds market data endpoints and subscription parameters.
type FeedConfig struct {
	WebsocketURL      string        `toml:"websocket_url"`
	RestBaseURL       string        `toml:"rest_base_url"`
	MetadataBaseURL   string        `toml:"metadata_base_url"`
	OrderBookMarkets  []string      `toml:"order_book_markets"`
	TradeMarkets      []string      `toml:"trade_markets"`
	SubscribeMetadata bool          `toml:"subscribe_metadata"`
	MaxLagSeconds     float64       `toml:"max_lag_seconds"`
	RestRateLimit     float64       `toml:"rest_rate_limit"` // requests per second for REST recovery
	RestBurst         int           `toml:"rest_burst"`
	Backoff           BackoffConfig `toml:"backoff"`
}

// BackoffConfig controls the feed's reconnection delay growth.
type BackoffConfig struct {
	InitialSeconds float64 `toml:"initial_seconds"`
	MaxSeconds     float64 `toml:"max_seconds"`
	Factor         float64 `toml:"factor"`
	JitterSeconds  float64 `toml:"jitter_seconds"`
}

// ArbitrageConfig holds detection thresholds.
type ArbitrageConfig struct {
	MinEdgeBps float64 `toml:"min_edge_bps"`
}

// ExecutionConfig holds runtime parameters for execution safety.
type ExecutionConfig struct {
	MaxSlippagePct        float64 `toml:"max_slippage_pct"`
	TimeoutSeconds        float64 `toml:"timeout_seconds"`
	IdempotencyTTLSeconds float64 `toml:"idempotency_ttl_seconds"`
	MaxStalenessSeconds   float64 `toml:"max_staleness_seconds"`
	MaxRejectStreak       int     `toml:"max_reject_streak"`
	MaxHedgeFailures      int     `toml:"max_hedge_failures"`
	HedgeLatencyBudgetMs  int     `toml:"hedge_latency_budget_ms"` // 0 disables latency-aware hedge routing
	TradeSize             float64 `toml:"trade_size"`              // 0 means use the opportunity's max size
	DryRun                bool    `toml:"dry_run"`
}

// VenueConfig holds the trading venue REST endpoint. Only used when
// execution.dry_run is false; request signing is handled venue-side via the
// API key header.
type VenueConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	TimeoutSeconds float64 `toml:"timeout_seconds"`
}

// RiskConfig holds position, inventory, and loss limits.
type RiskConfig struct {
	MaxNotionalUSD    float64            `toml:"max_notional_usd"`
	MaxPositionSizes  map[string]float64 `toml:"max_position_sizes"`
	InventoryCaps     map[string]float64 `toml:"inventory_caps"`
	DailyLossLimitUSD float64            `toml:"daily_loss_limit_usd"`
}

// SnapshotConfig selects and configures the risk-state snapshot backend.
type SnapshotConfig struct {
	Backend string `toml:"backend"` // "file", "postgres", or "s3"
	Path    string `toml:"path"`    // base directory for the file backend
	Name    string `toml:"name"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// RedisConfig holds Redis connection parameters for the signal bus.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// ServerConfig holds HTTP status server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`
}

// AuditConfig holds the append-only audit log location.
type AuditConfig struct {
	Path string `toml:"path"`
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			WebsocketURL:      "wss://feed-external.polymarket.com/ws",
			RestBaseURL:       "https://clob.polymarket.com",
			MetadataBaseURL:   "https://gamma-api.polymarket.com",
			SubscribeMetadata: true,
			MaxLagSeconds:     5.0,
			RestRateLimit:     5.0,
			RestBurst:         2,
			Backoff: BackoffConfig{
				InitialSeconds: 1.0,
				MaxSeconds:     60.0,
				Factor:         2.0,
				JitterSeconds:  0.25,
			},
		},
		Arbitrage: ArbitrageConfig{
			MinEdgeBps: 10.0,
		},
		Execution: ExecutionConfig{
			MaxSlippagePct:        0.01,
			TimeoutSeconds:        5.0,
			IdempotencyTTLSeconds: 60.0,
			MaxStalenessSeconds:   10.0,
			MaxRejectStreak:       3,
			MaxHedgeFailures:      3,
			DryRun:                true,
		},
		Venue: VenueConfig{
			BaseURL:        "https://clob.polymarket.com",
			TimeoutSeconds: 10.0,
		},
		Risk: RiskConfig{
			MaxNotionalUSD:    100.0,
			MaxPositionSizes:  map[string]float64{},
			InventoryCaps:     map[string]float64{},
			DailyLossLimitUSD: 100.0,
		},
		Snapshot: SnapshotConfig{
			Backend: "file",
			Path:    "data/snapshots",
			Name:    "risk_state",
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "setbot",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "setbot-data",
			ForcePathStyle: true,
		},
		Redis: RedisConfig{
			Enabled:    false,
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8000,
		},
		Audit: AuditConfig{
			Path: "var/audit.jsonl",
		},
		Mode:     "monitor",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"run":     true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: run, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Feed.WebsocketURL == "" {
		errs = append(errs, "feed: websocket_url must not be empty")
	}
	if c.Feed.RestBaseURL == "" {
		errs = append(errs, "feed: rest_base_url must not be empty")
	}
	if c.Feed.Backoff.InitialSeconds <= 0 {
		errs = append(errs, "feed.backoff: initial_seconds must be > 0")
	}
	if c.Feed.Backoff.MaxSeconds < c.Feed.Backoff.InitialSeconds {
		errs = append(errs, "feed.backoff: max_seconds must be >= initial_seconds")
	}
	if c.Feed.Backoff.Factor < 1 {
		errs = append(errs, "feed.backoff: factor must be >= 1")
	}
	if c.Feed.Backoff.JitterSeconds < 0 {
		errs = append(errs, "feed.backoff: jitter_seconds must be >= 0")
	}
	if c.Feed.RestRateLimit <= 0 {
		errs = append(errs, "feed: rest_rate_limit must be > 0")
	}

	if c.Arbitrage.MinEdgeBps < 0 {
		errs = append(errs, "arbitrage: min_edge_bps must be >= 0")
	}

	if c.Execution.MaxSlippagePct < 0 {
		errs = append(errs, "execution: max_slippage_pct must be >= 0")
	}
	if c.Execution.TimeoutSeconds <= 0 {
		errs = append(errs, "execution: timeout_seconds must be > 0")
	}
	if c.Execution.IdempotencyTTLSeconds <= 0 {
		errs = append(errs, "execution: idempotency_ttl_seconds must be > 0")
	}
	if c.Execution.MaxStalenessSeconds <= 0 {
		errs = append(errs, "execution: max_staleness_seconds must be > 0")
	}
	if c.Execution.MaxRejectStreak < 1 {
		errs = append(errs, "execution: max_reject_streak must be >= 1")
	}
	if c.Execution.TradeSize < 0 {
		errs = append(errs, "execution: trade_size must be >= 0")
	}
	if c.Execution.HedgeLatencyBudgetMs < 0 {
		errs = append(errs, "execution: hedge_latency_budget_ms must be >= 0")
	}

	if !c.Execution.DryRun && c.Venue.BaseURL == "" {
		errs = append(errs, "venue: base_url must not be empty when execution.dry_run is false")
	}

	if c.Risk.DailyLossLimitUSD <= 0 {
		errs = append(errs, "risk: daily_loss_limit_usd must be > 0")
	}

	switch c.Snapshot.Backend {
	case "file":
		if c.Snapshot.Path == "" {
			errs = append(errs, "snapshot: path must not be empty for the file backend")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" && c.Postgres.Host == "" {
			errs = append(errs, "snapshot: postgres backend requires postgres.dsn or postgres.host")
		}
	case "s3":
		if c.S3.Bucket == "" {
			errs = append(errs, "snapshot: s3 backend requires s3.bucket")
		}
	default:
		errs = append(errs, fmt.Sprintf("snapshot: unknown backend %q (valid: file, postgres, s3)", c.Snapshot.Backend))
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty when enabled")
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
