package simulator

import (
	"context"
	"time"

	"github.com/okian/twitch-sources/pkg/logger"
)

// Option applies a configuration option to the Simulator.
type Option func(*Simulator)

// WithClock replaces the time source used for payload timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSleep replaces the delay between scripted steps.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Simulator) {
		if sleep != nil {
			s.sleep = sleep
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}
