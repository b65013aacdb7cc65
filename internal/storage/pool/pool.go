// Package pool holds connection pool presets for the storage substrate,
// generalizing the teacher's Config.WithDefaults pattern
// (internal/repository/config.go) from a single fixed profile into named
// presets selected by deployment size.
package pool

import "time"

// Settings configures the pgx/postgrest connection pool backing C1.
type Settings struct {
	MinConnections int
	MaxConnections int
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	MaxLifetime    time.Duration
	ProbeBeforeUse bool
}

// Development is tuned for a single local process with low concurrency.
func Development() Settings {
	return Settings{
		MinConnections: 1,
		MaxConnections: 5,
		AcquireTimeout: 5 * time.Second,
		IdleTimeout:    5 * time.Minute,
		MaxLifetime:    30 * time.Minute,
		ProbeBeforeUse: false,
	}
}

// Production balances connection reuse against database-side connection
// limits for a typical multi-replica deployment.
func Production() Settings {
	return Settings{
		MinConnections: 5,
		MaxConnections: 25,
		AcquireTimeout: 10 * time.Second,
		IdleTimeout:    10 * time.Minute,
		MaxLifetime:    time.Hour,
		ProbeBeforeUse: true,
	}
}

// HighPerformance trades idle-connection cost for lower acquire latency
// under sustained high concurrency (batch ingestion, bulk retrieval).
func HighPerformance() Settings {
	return Settings{
		MinConnections: 20,
		MaxConnections: 100,
		AcquireTimeout: 2 * time.Second,
		IdleTimeout:    15 * time.Minute,
		MaxLifetime:    2 * time.Hour,
		ProbeBeforeUse: true,
	}
}

// WithDefaults fills any zero-valued field from Development's preset,
// mirroring the teacher's Config.WithDefaults.
func (s Settings) WithDefaults() Settings {
	d := Development()
	if s.MinConnections == 0 {
		s.MinConnections = d.MinConnections
	}
	if s.MaxConnections == 0 {
		s.MaxConnections = d.MaxConnections
	}
	if s.AcquireTimeout == 0 {
		s.AcquireTimeout = d.AcquireTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = d.IdleTimeout
	}
	if s.MaxLifetime == 0 {
		s.MaxLifetime = d.MaxLifetime
	}
	return s
}
