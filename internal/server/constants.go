// Package server provides the HTTP and WebSocket control surface
package server

import "time"

// Server configuration constants
const (
	// Per-connection sliding-window rate limit for inbound messages
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Events kept per history response
	HistoryLimit = 50

	// Buffer for the journal fan-out channel
	EventBuffer = 64
)
