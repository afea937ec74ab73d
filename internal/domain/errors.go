package domain

import "errors"

var (
	// ErrWSDisconnect marks a dropped websocket connection; the feed
	// reconnects with backoff when it sees this.
	ErrWSDisconnect = errors.New("websocket disconnected")
	// ErrCircuitOpen refuses new submissions while a breaker is tripped.
	ErrCircuitOpen = errors.New("circuit breaker open")
)
