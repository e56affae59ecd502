// Package dispatch routes parsed events to the fan-out channels of every
// topic they belong to.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
	"github.com/okian/twitch-sources/pkg/logger"
	"github.com/okian/twitch-sources/pkg/metrics"
)

// Publisher is the fan-out side of the dispatcher.
type Publisher interface {
	Publish(ctx context.Context, owner, topic string, payload []byte) (int, error)
}

// UserRemover deletes local user records.
type UserRemover interface {
	DeleteUser(ctx context.Context, id string) error
}

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dispatcher applies revocation side effects and publishes envelopes.
type Dispatcher struct {
	publisher Publisher
	users     UserRemover
	logger    logger.Logger
}

// New builds a Dispatcher.
func New(p Publisher, users UserRemover, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		publisher: p,
		users:     users,
		logger:    logger.Named("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// HandleMessage removes the user of a revocation and publishes env once on
// (owner, topic) for every topic containing its type.
func (d *Dispatcher) HandleMessage(ctx context.Context, env eventsub.Envelope) error {
	owner := env.Owner()

	if env.IsRevocation() {
		metrics.RecordRevocation()
		if err := d.users.DeleteUser(ctx, owner); err != nil {
			if !errors.Is(err, eventsub.ErrNotFound) {
				return fmt.Errorf("%w: %s: %w", ErrUserRemoval, owner, err)
			}
			d.logger.Debug(ctx, "revoked user was not stored", logger.String("user_id", owner))
		} else {
			d.logger.Info(ctx, "user authorization revoked", logger.String("user_id", owner))
		}
	}

	topics := eventsub.TopicsFor(env.Type)
	if len(topics) == 0 {
		return nil
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	for _, tp := range topics {
		n, err := d.publisher.Publish(ctx, owner, tp.Name, payload)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrPublish, tp.Name, err)
		}
		d.logger.Debug(ctx, "event published",
			logger.String("owner", owner),
			logger.String("topic", tp.Name),
			logger.String("type", string(env.Type)),
			logger.Int("subscribers", n))
	}
	metrics.RecordEventDispatched(string(env.Type))
	return nil
}
