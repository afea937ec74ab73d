// Package feed implements the resilient normalized market data stream: one
// persistent websocket connection per feed, alias-based payload
// normalization, sequence-gap detection with REST-backed recovery, and
// reconnection with jittered exponential backoff.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/gorilla/websocket"

	"github.com/polyarb/setbot/internal/domain"
)

// handshakeTimeout bounds the websocket dial.
const handshakeTimeout = 15 * time.Second

// Handler receives each normalized event in wire order.
type Handler func(ctx context.Context, ev domain.NormalizedEvent)

// Backoff controls reconnection delay growth: sleep min(delay, max) plus
// uniform jitter, then grow delay by factor up to max. Any delivered message
// resets delay to initial.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  time.Duration
}

// Options configures a Feed.
type Options struct {
	WebsocketURL      string
	OrderBookMarkets  []string
	TradeMarkets      []string
	SubscribeMetadata bool
	MaxLagSeconds     float64 // 0 disables staleness recovery
	Backoff           Backoff
}

// streamConn is the subset of *websocket.Conn the feed uses; tests substitute
// an in-memory implementation.
type streamConn interface {
	WriteJSON(v any) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// dialFunc opens a websocket connection to url.
type dialFunc func(ctx context.Context, url string) (streamConn, error)

func defaultDial(ctx context.Context, url string) (streamConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Feed maintains the venue connection and produces an unbounded, restartable
// sequence of NormalizedEvents. It never terminates voluntarily except on
// context cancellation.
type Feed struct {
	opts     Options
	recovery *RecoveryClient
	tracker  *SequenceTracker
	norm     normalizer
	metrics  domain.MetricsFunc
	logger   *slog.Logger

	dial  dialFunc
	now   domain.Clock
	rnd   func() float64
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Feed. The recovery client is consulted synchronously when
// sequence gaps or stale data are detected; metrics may be nil.
func New(opts Options, recovery *RecoveryClient, metrics domain.MetricsFunc, logger *slog.Logger) *Feed {
	return &Feed{
		opts:     opts,
		recovery: recovery,
		tracker:  NewSequenceTracker(),
		norm:     normalizer{now: time.Now},
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "market_data_feed")),
		dial:     defaultDial,
		now:      time.Now,
		rnd:      rand.Float64,
		sleep:    sleepContext,
	}
}

// Stream connects, subscribes, and delivers normalized events to handler in
// strict wire order until ctx is cancelled. Transport failures are absorbed
// at this boundary and followed by a backed-off reconnect; cancellation
// propagates immediately.
func (f *Feed) Stream(ctx context.Context, handler Handler) error {
	delay := f.opts.Backoff.Initial
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		start := f.now()
		err := f.consumeOnce(ctx, handler, &delay)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			f.logger.Warn("stream failure, reconnecting",
				slog.String("error", err.Error()),
				slog.Duration("connected_for", f.now().Sub(start)),
			)
		}

		sleep := minDuration(delay, f.opts.Backoff.Max)
		if f.opts.Backoff.Jitter > 0 {
			sleep += time.Duration(f.rnd() * float64(f.opts.Backoff.Jitter))
		}
		f.logger.Info("reconnect scheduled", slog.Duration("sleep", sleep))
		if err := f.sleep(ctx, sleep); err != nil {
			return err
		}
		delay = minDuration(time.Duration(float64(delay)*f.opts.Backoff.Factor), f.opts.Backoff.Max)
	}
}

// sleepContext waits for d or until ctx is cancelled, whichever comes first.
func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// consumeOnce runs one connection lifetime: subscribe, then read frames until
// the transport fails. Delivered events reset the caller's backoff delay.
func (f *Feed) consumeOnce(ctx context.Context, handler Handler, delay *time.Duration) error {
	conn, err := f.dial(ctx, f.opts.WebsocketURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := f.sendSubscriptions(conn); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
		}

		var message map[string]any
		if err := json.Unmarshal(raw, &message); err != nil {
			// Unparseable frames are dropped, not fatal.
			f.logger.Debug("dropping unparseable frame", slog.Int("bytes", len(raw)))
			continue
		}

		ev := f.norm.Normalize(message)
		if ev == nil {
			continue
		}
		if ev.LatencyMs != nil {
			f.emitMetrics("latency", map[string]float64{
				"latency_ms":  *ev.LatencyMs,
				"lag_seconds": *ev.LagSec,
			})
		}

		prepared := f.prepare(ctx, ev)
		if prepared == nil {
			continue
		}

		*delay = f.opts.Backoff.Initial
		handler(ctx, *prepared)
	}
}

// sendSubscriptions issues one subscription frame per market per channel,
// logging each individually.
func (f *Feed) sendSubscriptions(conn streamConn) error {
	for _, marketID := range f.opts.OrderBookMarkets {
		if err := conn.WriteJSON(subscribeCommand{Type: "subscribe", Channel: "orderbook", Market: marketID}); err != nil {
			return err
		}
		f.logger.Info("subscribed to orderbook", slog.String("market_id", marketID))
	}
	for _, marketID := range f.opts.TradeMarkets {
		if err := conn.WriteJSON(subscribeCommand{Type: "subscribe", Channel: "trades", Market: marketID}); err != nil {
			return err
		}
		f.logger.Info("subscribed to trades", slog.String("market_id", marketID))
	}
	if f.opts.SubscribeMetadata {
		if err := conn.WriteJSON(subscribeCommand{Type: "subscribe", Channel: "markets"}); err != nil {
			return err
		}
		f.logger.Info("subscribed to markets metadata")
	}
	return nil
}

// subscribeCommand is the outbound subscription frame.
type subscribeCommand struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Market  string `json:"market,omitempty"`
}

// prepare drops or replaces stale and gapped events. A recovered snapshot is
// substituted for the live message; when recovery fails the live event is
// dropped rather than synthesized.
func (f *Feed) prepare(ctx context.Context, ev *domain.NormalizedEvent) *domain.NormalizedEvent {
	if f.opts.MaxLagSeconds > 0 && ev.LagSec != nil && *ev.LagSec > f.opts.MaxLagSeconds {
		f.logger.Warn("dropping stale update",
			slog.String("market_id", ev.MarketID),
			slog.Float64("lag_seconds", *ev.LagSec),
			slog.Float64("max_lag_seconds", f.opts.MaxLagSeconds),
		)
		return f.recoverSnapshot(ctx, ev, "stale_data")
	}

	if ev.Sequence != nil {
		channel := channelFor(ev.Type)
		gap, prev, gapped := f.tracker.Observe(channel, ev.MarketID, ev.OutcomeID, *ev.Sequence)
		if gapped {
			f.logger.Warn("sequence gap detected",
				slog.String("key", f.tracker.Key(channel, ev.MarketID, ev.OutcomeID)),
				slog.Int64("previous", prev),
				slog.Int64("current", *ev.Sequence),
				slog.Int64("gap", gap),
			)
			f.emitMetrics("sequence_gap", map[string]float64{
				"gap":      float64(gap),
				"sequence": float64(*ev.Sequence),
			})
			recovered := f.recoverSnapshot(ctx, ev, "sequence_gap")
			if recovered == nil {
				f.logger.Error("snapshot recovery failed, dropping event",
					slog.String("market_id", ev.MarketID),
					slog.String("channel", channel),
				)
				return nil
			}
			return recovered
		}
	}

	return ev
}

// recoverSnapshot fetches a REST replacement for an order-book or trade
// event. Metadata events have no recovery path.
func (f *Feed) recoverSnapshot(ctx context.Context, ev *domain.NormalizedEvent, reason string) *domain.NormalizedEvent {
	var (
		snapshot *domain.NormalizedEvent
		channel  string
	)
	switch {
	case ev.Type.IsOrderBook():
		snapshot = f.recovery.FetchOrderBookSnapshot(ctx, ev.MarketID, ev.OutcomeID)
		channel = "orderbook"
	case ev.Type.IsTrade():
		snapshot = f.recovery.FetchLastTrade(ctx, ev.MarketID, ev.OutcomeID)
		channel = "trades"
	default:
		return nil
	}

	if snapshot != nil {
		f.logger.Info("recovered snapshot",
			slog.String("market_id", ev.MarketID),
			slog.String("outcome_id", ev.OutcomeID),
			slog.String("channel", channel),
			slog.String("reason", reason),
		)
		f.emitMetrics("rest_fallback_"+channel, map[string]float64{"gap_resolved": 1.0})
	}
	return snapshot
}

// emitMetrics invokes the metrics callback, isolating panics so a misbehaving
// sink can never break the data path.
func (f *Feed) emitMetrics(name string, values map[string]float64) {
	if f.metrics == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			f.logger.Debug("metrics callback panicked", slog.String("metric", name))
		}
	}()
	f.metrics(name, values)
}

func channelFor(t domain.EventType) string {
	switch {
	case t.IsOrderBook():
		return "orderbook"
	case t.IsTrade():
		return "trades"
	default:
		return "markets"
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
