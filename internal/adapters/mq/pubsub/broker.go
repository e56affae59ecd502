// Package pubsub fans messages out to every live subscriber of an
// (owner, topic) channel.
//
// Delivery is at-most-once: nothing is retained for absent subscribers and
// a subscriber whose buffer is full misses the message.
package pubsub

import (
	"context"
	"sync"

	"github.com/okian/twitch-sources/pkg/logger"
	"github.com/okian/twitch-sources/pkg/metrics"
)

const defaultBufferSize = 256

// Broker multicasts payloads per (owner, topic).
type Broker interface {
	// Publish hands payload to every current subscriber of (owner, topic)
	// and returns how many received it.
	Publish(ctx context.Context, owner, topic string, payload []byte) (int, error)

	// Subscribe opens a stream on (owner, topic). Cancelling ctx cancels
	// the subscription.
	Subscribe(ctx context.Context, owner, topic string) (*Subscription, error)

	// Subscribers returns the number of open subscriptions.
	Subscribers() int

	// Close ends every open subscription with ErrClosed.
	Close() error
}

// ChannelKey is the channel name of (owner, topic).
func ChannelKey(owner, topic string) string {
	return owner + ":" + topic
}

// InMemoryBroker implements Broker inside the process.
type InMemoryBroker struct {
	mu         sync.RWMutex
	channels   map[string]map[uint64]*Subscription
	nextID     uint64
	count      int
	bufferSize int
	closed     bool
	logger     logger.Logger
}

var _ Broker = (*InMemoryBroker)(nil)

// NewInMemoryBroker creates a broker.
func NewInMemoryBroker(opts ...Option) *InMemoryBroker {
	b := &InMemoryBroker{
		channels:   make(map[string]map[uint64]*Subscription),
		bufferSize: defaultBufferSize,
		logger:     logger.Named("pubsub"),
	}
	for _, opt := range opts {
		opt(b)
	}
	metrics.UpdateFanoutSubscribers(0)
	return b
}

// Publish implements Broker.
func (b *InMemoryBroker) Publish(ctx context.Context, owner, topic string, payload []byte) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		metrics.RecordErrorByComponent("pubsub", "closed")
		return 0, ErrClosed
	}
	metrics.RecordPublish(topic)

	delivered := 0
	for _, s := range b.channels[ChannelKey(owner, topic)] {
		select {
		case s.ch <- payload:
			delivered++
		default:
			metrics.RecordDrop(topic)
			b.logger.Warn(ctx, "subscriber buffer full, message dropped",
				logger.String("owner", owner),
				logger.String("topic", topic))
		}
	}
	return delivered, nil
}

// Subscribe implements Broker.
func (b *InMemoryBroker) Subscribe(ctx context.Context, owner, topic string) (*Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextID++
	s := &Subscription{
		id:     b.nextID,
		key:    ChannelKey(owner, topic),
		topic:  topic,
		ch:     make(chan []byte, b.bufferSize),
		done:   make(chan struct{}),
		broker: b,
	}
	subs, ok := b.channels[s.key]
	if !ok {
		subs = make(map[uint64]*Subscription)
		b.channels[s.key] = subs
	}
	subs[s.id] = s
	b.count++
	metrics.UpdateFanoutSubscribers(b.count)
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.done:
		}
	}()
	return s, nil
}

// Subscribers implements Broker.
func (b *InMemoryBroker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Close implements Broker.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for key, subs := range b.channels {
		for id, s := range subs {
			s.finish(ErrClosed)
			delete(subs, id)
		}
		delete(b.channels, key)
	}
	b.count = 0
	metrics.UpdateFanoutSubscribers(0)
	return nil
}

// remove detaches s; the caller must not hold b.mu.
func (b *InMemoryBroker) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.channels[s.key]
	if !ok {
		return
	}
	if _, ok := subs[s.id]; !ok {
		return
	}
	delete(subs, s.id)
	if len(subs) == 0 {
		delete(b.channels, s.key)
	}
	b.count--
	metrics.UpdateFanoutSubscribers(b.count)
	s.finish(nil)
}

// Subscription is one subscriber's stream.
type Subscription struct {
	id     uint64
	key    string
	topic  string
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	err    error
	broker *InMemoryBroker
}

// C returns the payload stream. It is closed when the subscription ends.
func (s *Subscription) C() <-chan []byte { return s.ch }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Topic is the topic the subscription listens on.
func (s *Subscription) Topic() string { return s.topic }

// Err reports why the stream ended: nil after Cancel, ErrClosed after the
// broker shut down.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Cancel detaches the subscription. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.broker.remove(s)
}

// finish closes the stream; callers hold the broker's write lock so no
// publisher is sending on ch.
func (s *Subscription) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.ch)
		close(s.done)
	})
}
