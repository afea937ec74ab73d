package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/polyarb/setbot/internal/domain"
	"github.com/polyarb/setbot/internal/engine"
)

// Signal bus channels consumed by external dashboards.
const (
	channelOpportunities = "opportunities"
	channelExecutions    = "executions"
)

// RunMode streams market data, detects complete-set opportunities, and routes
// every detection through the execution engine. Blocks until ctx is
// cancelled.
func (a *App) RunMode(ctx context.Context, deps *Dependencies) error {
	return a.runPipeline(ctx, deps, true)
}

// MonitorMode streams market data and reports detected opportunities without
// ever submitting orders. Blocks until ctx is cancelled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	return a.runPipeline(ctx, deps, false)
}

func (a *App) runPipeline(ctx context.Context, deps *Dependencies, execute bool) error {
	g, ctx := errgroup.WithContext(ctx)

	if deps.Server != nil {
		g.Go(func() error {
			return deps.Server.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return deps.Server.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		return deps.Feed.Stream(ctx, func(ctx context.Context, ev domain.NormalizedEvent) {
			a.handleEvent(ctx, deps, ev, execute)
		})
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handleEvent is the per-event pipeline: detect, report, and optionally
// execute. The feed delivers events sequentially, so detection and execution
// stay ordered per market.
func (a *App) handleEvent(ctx context.Context, deps *Dependencies, ev domain.NormalizedEvent, execute bool) {
	opp := deps.Detector.Ingest(ev)
	if opp == nil {
		return
	}

	a.reportOpportunity(ctx, deps, opp)

	if !execute {
		return
	}
	book := deps.Detector.Book(opp.MarketID)
	if book == nil {
		return
	}

	report := deps.Engine.ExecuteCompleteSet(ctx, *opp, book, a.cfg.Execution.TradeSize)
	a.reportExecution(ctx, deps, opp, report)
}

// reportOpportunity records a detection in the audit log and publishes it to
// the signal bus. Both sinks are best-effort.
func (a *App) reportOpportunity(ctx context.Context, deps *Dependencies, opp *domain.CompleteSetOpportunity) {
	record := map[string]any{
		"type":      "opportunity",
		"market_id": opp.MarketID,
		"direction": string(opp.Direction),
		"edge":      opp.Edge,
		"notional":  opp.Notional,
		"max_size":  opp.MaxSize,
	}
	a.appendAudit(deps, record)
	a.publish(ctx, deps, channelOpportunities, record)
}

// reportExecution records one execution attempt, skipped or not.
func (a *App) reportExecution(ctx context.Context, deps *Dependencies, opp *domain.CompleteSetOpportunity, report engine.ExecutionReport) {
	record := map[string]any{
		"type":      "execution",
		"market_id": opp.MarketID,
		"direction": string(opp.Direction),
		"edge":      opp.Edge,
		"skipped":   report.Skipped,
		"orders":    len(report.Orders),
	}
	if report.Reason != "" {
		record["reason"] = report.Reason
	}
	a.appendAudit(deps, record)
	a.publish(ctx, deps, channelExecutions, record)

	if report.Skipped {
		a.logger.Info("execution skipped",
			slog.String("market_id", opp.MarketID),
			slog.String("reason", report.Reason),
		)
		return
	}
	a.logger.Info("execution completed",
		slog.String("market_id", opp.MarketID),
		slog.String("direction", string(opp.Direction)),
		slog.Int("orders", len(report.Orders)),
	)
}

func (a *App) appendAudit(deps *Dependencies, record map[string]any) {
	if deps.Audit == nil {
		return
	}
	if err := deps.Audit.Append(record); err != nil {
		a.logger.Warn("audit append failed", slog.String("error", err.Error()))
	}
}

func (a *App) publish(ctx context.Context, deps *Dependencies, channel string, record map[string]any) {
	if deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return
	}
	if err := deps.Bus.Publish(ctx, channel, payload); err != nil {
		a.logger.Warn("signal publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
