package store

import (
	"log/slog"
	"time"

	"github.com/asakaida/kizuna/internal/infrastructure/metrics"
)

// Option configures a Store
type Option func(*Store)

// WithMetrics reports adapter calls to rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(s *Store) {
		s.metrics = rec
	}
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithIDGenerator replaces the ULID generator used for client-created records
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) {
		s.newID = newID
	}
}

// WithFetchTimeout bounds every adapter call
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.fetchTimeout = d
	}
}
