package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/polyarb/setbot/internal/domain"
)

// RecoveryClient fetches REST snapshots used to resynchronize after sequence
// gaps or stale data. Every failure (non-2xx status, network error, malformed
// body) is logged and reported as no-data; callers never receive an error.
type RecoveryClient struct {
	restBaseURL     string
	metadataBaseURL string
	httpClient      *http.Client
	limiter         *rate.Limiter
	logger          *slog.Logger
}

// NewRecoveryClient creates a REST recovery client. Calls are throttled by
// the given rate limit (requests per second) so recovery storms cannot hammer
// the venue.
func NewRecoveryClient(restBaseURL, metadataBaseURL string, reqPerSec float64, burst int, logger *slog.Logger) *RecoveryClient {
	if burst < 1 {
		burst = 1
	}
	return &RecoveryClient{
		restBaseURL:     trimSlash(restBaseURL),
		metadataBaseURL: trimSlash(metadataBaseURL),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(reqPerSec), burst),
		logger:  logger.With(slog.String("component", "rest_recovery")),
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// FetchOrderBookSnapshot retrieves a fresh top-of-book snapshot for one
// market, filtered to outcomeID when given. Returns nil when no data could
// be recovered.
func (c *RecoveryClient) FetchOrderBookSnapshot(ctx context.Context, marketID, outcomeID string) *domain.NormalizedEvent {
	path := fmt.Sprintf("/markets/%s/orderbook", marketID)
	body := c.get(ctx, c.restBaseURL, path)
	if body == nil {
		return nil
	}

	outcomes, _ := body["outcomes"].([]any)
	var payload map[string]any
	if outcomeID != "" {
		for _, row := range outcomes {
			m, ok := row.(map[string]any)
			if !ok {
				continue
			}
			if id, _ := firstString(m, outcomeAliases); id == outcomeID {
				payload = m
				break
			}
		}
	} else if len(outcomes) > 0 {
		payload, _ = outcomes[0].(map[string]any)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	feeBps := firstInt(payload, feeAliases)
	if feeBps == nil {
		feeBps = firstInt(body, feeAliases)
	}
	liquidity := firstFloat(payload, liquidityAliases)
	if liquidity == nil {
		liquidity = firstFloat(body, liquidityAliases)
	}

	ev := &domain.NormalizedEvent{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Bid:       firstFloat(payload, bidAliases),
		Ask:       firstFloat(payload, askAliases),
		Size:      firstFloat(payload, sizeAliases),
		LastTrade: firstFloat(payload, lastTradeAliases),
		FeeBps:    feeBps,
		Liquidity: liquidity,
		Type:      domain.EventOrderBookSnapshot,
		Raw:       body,
	}
	c.logger.Info("recovered orderbook snapshot",
		slog.String("market_id", marketID),
		slog.String("outcome_id", outcomeID),
	)
	return ev
}

// FetchLastTrade retrieves the most recent trade for one market, preferring
// the requested outcome when present. Returns nil when no data could be
// recovered.
func (c *RecoveryClient) FetchLastTrade(ctx context.Context, marketID, outcomeID string) *domain.NormalizedEvent {
	path := fmt.Sprintf("/markets/%s/trades?limit=1", marketID)
	body := c.get(ctx, c.restBaseURL, path)
	if body == nil {
		return nil
	}

	trades, _ := body["trades"].([]any)
	if len(trades) == 0 {
		return nil
	}
	trade, _ := trades[0].(map[string]any)
	if outcomeID != "" {
		for _, row := range trades {
			m, ok := row.(map[string]any)
			if !ok {
				continue
			}
			if id, _ := firstString(m, outcomeAliases); id == outcomeID {
				trade = m
				break
			}
		}
	}
	if trade == nil {
		return nil
	}

	ev := &domain.NormalizedEvent{
		MarketID:  marketID,
		OutcomeID: outcomeID,
		Size:      firstFloat(trade, sizeAliases),
		LastTrade: firstFloat(trade, priceAliases),
		FeeBps:    firstInt(trade, feeAliases),
		Liquidity: firstFloat(trade, liquidityAliases),
		Type:      domain.EventTradeSnapshot,
		Raw:       trade,
	}
	c.logger.Info("recovered trade snapshot",
		slog.String("market_id", marketID),
		slog.String("outcome_id", outcomeID),
	)
	return ev
}

// FetchMarketMetadata retrieves fee and liquidity details for a market from
// the metadata API. Returns nil when no data could be recovered.
func (c *RecoveryClient) FetchMarketMetadata(ctx context.Context, marketID string) *domain.NormalizedEvent {
	path := fmt.Sprintf("/markets/%s", marketID)
	body := c.get(ctx, c.metadataBaseURL, path)
	if body == nil {
		return nil
	}
	return &domain.NormalizedEvent{
		MarketID:  marketID,
		LastTrade: firstFloat(body, lastTradeAliases),
		FeeBps:    firstInt(body, feeAliases),
		Liquidity: firstFloat(body, liquidityAliases),
		Type:      domain.EventMetadataSnapshot,
		Raw:       body,
	}
}

// get performs a rate-limited GET and decodes the JSON body. Any failure is
// logged and reported as nil.
func (c *RecoveryClient) get(ctx context.Context, base, path string) map[string]any {
	url := base + path
	if err := c.limiter.Wait(ctx); err != nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Warn("rest fallback failed", slog.String("url", url), slog.String("error", err.Error()))
		return nil
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("rest fallback failed", slog.String("url", url), slog.String("error", err.Error()))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("rest fallback failed",
			slog.String("url", url),
			slog.Int("status", resp.StatusCode),
		)
		return nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Warn("rest fallback failed", slog.String("url", url), slog.String("error", err.Error()))
		return nil
	}

	var body any
	if err := json.Unmarshal(raw, &body); err != nil {
		c.logger.Warn("rest fallback returned malformed body", slog.String("url", url), slog.String("error", err.Error()))
		return nil
	}
	switch v := body.(type) {
	case map[string]any:
		return v
	case []any:
		// Some endpoints return a bare array; wrap it so callers can read
		// it through the same map accessors.
		return map[string]any{"trades": v}
	default:
		return nil
	}
}
