// Package venue implements the REST trading client used for live order
// submission. The engine reads responses through alias lists, so the client
// returns the decoded body as-is instead of binding it to a schema.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/polyarb/setbot/internal/config"
	"github.com/polyarb/setbot/internal/domain"
)

// Client submits orders and complete-set mints over HTTP. It satisfies
// domain.TradingClient.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ domain.TradingClient = (*Client)(nil)

// NewClient creates a trading client from configuration.
func NewClient(cfg config.VenueConfig, logger *slog.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds * float64(time.Second))
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: trimSlash(cfg.BaseURL),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With(slog.String("component", "venue_client")),
	}
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}

// PlaceOrder submits one marketable limit order for a single outcome.
func (c *Client) PlaceOrder(ctx context.Context, marketID, outcomeID string, side domain.OrderSide, size float64, limitPrice *float64, clientOrderID string) (domain.VenueResponse, error) {
	payload := map[string]any{
		"market":          marketID,
		"outcome":         outcomeID,
		"side":            string(side),
		"size":            size,
		"client_order_id": clientOrderID,
	}
	if limitPrice != nil {
		payload["price"] = *limitPrice
	}
	return c.post(ctx, "/orders", payload)
}

// MintCompleteSet acquires size units of every outcome at the $1 settlement
// price, bypassing the order book.
func (c *Client) MintCompleteSet(ctx context.Context, marketID string, size float64, clientOrderID string) (domain.VenueResponse, error) {
	payload := map[string]any{
		"market":          marketID,
		"size":            size,
		"client_order_id": clientOrderID,
	}
	return c.post(ctx, "/complete-sets/mint", payload)
}

// post sends a JSON body and decodes the JSON response. Non-2xx statuses with
// a decodable body are returned as a response rather than an error so the
// engine can read venue rejection fields from it.
func (c *Client) post(ctx context.Context, path string, payload map[string]any) (domain.VenueResponse, error) {
	url := c.baseURL + path

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("venue: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("venue: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("venue: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("venue: read response: %w", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil, fmt.Errorf("venue: malformed response body: %w", err)
		}
		return nil, fmt.Errorf("venue: post %s: status %d", path, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("venue returned error status",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		if _, ok := decoded["status"]; !ok {
			decoded["status"] = "rejected"
		}
	}
	return domain.VenueResponse(decoded), nil
}
