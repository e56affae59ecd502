package pubsub

import "github.com/okian/twitch-sources/pkg/logger"

// Option applies a configuration option to the InMemoryBroker.
type Option func(*InMemoryBroker)

// WithBufferSize sets the per-subscriber buffer. A subscriber whose buffer
// is full misses messages until it catches up.
func WithBufferSize(size int) Option {
	return func(b *InMemoryBroker) {
		if size > 0 {
			b.bufferSize = size
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(b *InMemoryBroker) {
		if l != nil {
			b.logger = l
		}
	}
}
