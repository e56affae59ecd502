package subscription

import (
	"time"

	"github.com/okian/twitch-sources/pkg/logger"
)

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithClock replaces the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSecretLength sets the length of generated per-subscription secrets.
func WithSecretLength(n int) Option {
	return func(m *Manager) {
		if n >= 10 && n <= 100 {
			m.secretLen = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}
