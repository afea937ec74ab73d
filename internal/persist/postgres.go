package persist

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/polyarb/setbot/internal/config"
)

const createSnapshotsTable = `
	CREATE TABLE IF NOT EXISTS risk_snapshots (
		key        TEXT PRIMARY KEY,
		payload    BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`

// PostgresBackend stores snapshots as rows in a risk_snapshots table.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

var _ Backend = (*PostgresBackend)(nil)

// DSN builds a PostgreSQL connection string from cfg, preferring an explicit
// DSN when one is configured.
func DSN(cfg config.PostgresConfig) string {
	if strings.TrimSpace(cfg.DSN) != "" {
		return cfg.DSN
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, port, cfg.Database, sslMode,
	)
}

// NewPostgresBackend connects a pool, verifies connectivity, and ensures the
// snapshots table exists.
func NewPostgresBackend(ctx context.Context, cfg config.PostgresConfig) (*PostgresBackend, error) {
	poolCfg, err := pgxpool.ParseConfig(DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("persist: parse postgres config: %w", err)
	}
	if cfg.PoolMaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.PoolMaxConns)
	}
	if cfg.PoolMinConns > 0 {
		poolCfg.MinConns = int32(cfg.PoolMinConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("persist: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persist: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createSnapshotsTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("persist: create risk_snapshots table: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (b *PostgresBackend) Save(ctx context.Context, key string, payload []byte) error {
	_, err := b.pool.Exec(ctx, `
		INSERT INTO risk_snapshots (key, payload) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET payload = EXCLUDED.payload`,
		key, payload,
	)
	if err != nil {
		return fmt.Errorf("persist: insert snapshot %s: %w", key, err)
	}
	return nil
}

// Close shuts down the connection pool.
func (b *PostgresBackend) Close() {
	b.pool.Close()
}
