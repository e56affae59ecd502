package ws

import (
	"net/http"
	"time"

	"github.com/okian/twitch-sources/pkg/logger"
)

// Option applies a configuration option to the Relay.
type Option func(*Relay)

// WithCheckOrigin overrides the upgrade origin check. Every origin is
// accepted by default.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(rl *Relay) {
		if fn != nil {
			rl.upgrader.CheckOrigin = fn
		}
	}
}

// WithPingPeriod sets how often the server pings idle clients. The read
// deadline is extended to ten ninths of it on every pong.
func WithPingPeriod(d time.Duration) Option {
	return func(rl *Relay) {
		if d > 0 {
			rl.pingPeriod = d
			rl.pongWait = d * 10 / 9
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(rl *Relay) {
		if l != nil {
			rl.logger = l
		}
	}
}
