// Package oracle provides the client for the analysis/synthesis service
package oracle

import "time"

// Client configuration defaults
const (
	DefaultTimeout = 30 * time.Second

	// Health check configuration
	HealthCheckTimeout = 2 * time.Second

	// API paths
	analyzePath    = "/v1/analyze"
	synthesizePath = "/v1/synthesize"
	healthPath     = "/healthz"
)
