package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/polyarb/setbot/internal/arb"
	"github.com/polyarb/setbot/internal/audit"
	"github.com/polyarb/setbot/internal/bus"
	"github.com/polyarb/setbot/internal/config"
	"github.com/polyarb/setbot/internal/domain"
	"github.com/polyarb/setbot/internal/engine"
	"github.com/polyarb/setbot/internal/feed"
	"github.com/polyarb/setbot/internal/metrics"
	"github.com/polyarb/setbot/internal/persist"
	"github.com/polyarb/setbot/internal/risk"
	"github.com/polyarb/setbot/internal/server"
	"github.com/polyarb/setbot/internal/venue"
)

// Dependencies bundles every component the application modes need to operate.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Market data
	Feed     *feed.Feed
	Detector *arb.Detector

	// Execution
	Engine *engine.Engine
	Orders *engine.OrderManager
	PnL    *risk.PnLTracker

	// Observability; Bus, Audit, and Server may be nil when disabled.
	Metrics *metrics.Sink
	Audit   *audit.Log
	Bus     *bus.SignalBus
	Server  *server.Server
}

// Wire constructs the full dependency graph from configuration. The returned
// cleanup function closes every acquired resource in reverse order and must
// be called once the application stops.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	sink := metrics.NewSink()

	var auditLog *audit.Log
	if cfg.Audit.Path != "" {
		var err error
		auditLog, err = audit.NewLog(cfg.Audit.Path)
		if err != nil {
			return fail(fmt.Errorf("app: open audit log: %w", err))
		}
	}

	recovery := feed.NewRecoveryClient(
		cfg.Feed.RestBaseURL,
		cfg.Feed.MetadataBaseURL,
		cfg.Feed.RestRateLimit,
		cfg.Feed.RestBurst,
		logger,
	)
	marketFeed := feed.New(feed.Options{
		WebsocketURL:      cfg.Feed.WebsocketURL,
		OrderBookMarkets:  cfg.Feed.OrderBookMarkets,
		TradeMarkets:      cfg.Feed.TradeMarkets,
		SubscribeMetadata: cfg.Feed.SubscribeMetadata,
		MaxLagSeconds:     cfg.Feed.MaxLagSeconds,
		Backoff: feed.Backoff{
			Initial: seconds(cfg.Feed.Backoff.InitialSeconds),
			Max:     seconds(cfg.Feed.Backoff.MaxSeconds),
			Factor:  cfg.Feed.Backoff.Factor,
			Jitter:  seconds(cfg.Feed.Backoff.JitterSeconds),
		},
	}, recovery, sink.Observe, logger)

	detector := arb.NewDetector(cfg.Arbitrage.MinEdgeBps, logger)

	snapshots, err := newSnapshotStore(ctx, cfg, &closers)
	if err != nil {
		return fail(err)
	}

	var signalBus *bus.SignalBus
	if cfg.Redis.Enabled {
		client, err := bus.New(ctx, cfg.Redis)
		if err != nil {
			return fail(fmt.Errorf("app: connect redis: %w", err))
		}
		closers = append(closers, func() { _ = client.Close() })
		signalBus = bus.NewSignalBus(client)
	}

	orders := engine.NewOrderManager()
	limits := &risk.Limits{
		MaxNotionalUSD:    cfg.Risk.MaxNotionalUSD,
		MaxPositionSizes:  cfg.Risk.MaxPositionSizes,
		DailyLossLimitUSD: cfg.Risk.DailyLossLimitUSD,
	}
	caps := &risk.InventoryCaps{MaxInventory: cfg.Risk.InventoryCaps}
	pnl := risk.NewPnLTracker()

	hedge := engine.NewHedgeExecutor(
		orders,
		nil,
		seconds(cfg.Execution.TimeoutSeconds),
		cfg.Execution.MaxHedgeFailures,
		logger,
	)
	if cfg.Execution.HedgeLatencyBudgetMs > 0 {
		hedge.SetRouter(engine.NewRouter(cfg.Execution.HedgeLatencyBudgetMs, nil))
	}

	var tradingClient domain.TradingClient
	if !cfg.Execution.DryRun {
		tradingClient = venue.NewClient(cfg.Venue, logger)
	}

	eng := engine.New(tradingClient, orders, limits, caps, pnl, snapshots, hedge, engine.Config{
		MaxSlippagePct:  cfg.Execution.MaxSlippagePct,
		Timeout:         seconds(cfg.Execution.TimeoutSeconds),
		IdempotencyTTL:  seconds(cfg.Execution.IdempotencyTTLSeconds),
		MaxStaleness:    seconds(cfg.Execution.MaxStalenessSeconds),
		MaxRejectStreak: cfg.Execution.MaxRejectStreak,
		DryRun:          cfg.Execution.DryRun,
		SnapshotName:    cfg.Snapshot.Name,
	}, logger)

	var statusServer *server.Server
	if cfg.Server.Enabled {
		statusServer = server.NewServer(cfg.Server, eng, orders, pnl, sink, logger)
	}

	return &Dependencies{
		Feed:     marketFeed,
		Detector: detector,
		Engine:   eng,
		Orders:   orders,
		PnL:      pnl,
		Metrics:  sink,
		Audit:    auditLog,
		Bus:      signalBus,
		Server:   statusServer,
	}, cleanup, nil
}

// newSnapshotStore builds the configured risk-state snapshot backend and
// registers its teardown with closers.
func newSnapshotStore(ctx context.Context, cfg *config.Config, closers *[]func()) (domain.SnapshotStore, error) {
	switch cfg.Snapshot.Backend {
	case "file":
		backend, err := persist.NewFileBackend(cfg.Snapshot.Path)
		if err != nil {
			return nil, fmt.Errorf("app: file snapshot backend: %w", err)
		}
		return persist.NewStore(backend), nil
	case "postgres":
		backend, err := persist.NewPostgresBackend(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("app: postgres snapshot backend: %w", err)
		}
		*closers = append(*closers, backend.Close)
		return persist.NewStore(backend), nil
	case "s3":
		backend, err := persist.NewS3Backend(ctx, cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("app: s3 snapshot backend: %w", err)
		}
		return persist.NewStore(backend), nil
	default:
		return nil, fmt.Errorf("app: unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
