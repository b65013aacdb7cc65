// Package observability provides the engine's C10 telemetry: structured
// logging, distributed tracing, Prometheus metrics, and health reporting.
package observability

import (
	"go.uber.org/zap"
)

// NewLogger builds the engine's zap logger. Production uses the JSON
// encoder; anything else uses the human-readable development encoder,
// mirroring the teacher's environment-driven logger construction.
func NewLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
