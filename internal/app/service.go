// Package service composes the bridge: it owns the stores, the upstream
// client and the fan-out, and implements the dependencies the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/okian/twitch-sources/internal/adapters/http/api"
	"github.com/okian/twitch-sources/internal/adapters/http/ws"
	"github.com/okian/twitch-sources/internal/adapters/mq/pubsub"
	repository "github.com/okian/twitch-sources/internal/adapters/repository"
	"github.com/okian/twitch-sources/internal/adapters/upstream"
	"github.com/okian/twitch-sources/internal/config"
	"github.com/okian/twitch-sources/internal/domain/dispatch"
	"github.com/okian/twitch-sources/internal/domain/eventsub"
	"github.com/okian/twitch-sources/internal/domain/runguard"
	"github.com/okian/twitch-sources/internal/domain/subscription"
	"github.com/okian/twitch-sources/internal/domain/token"
	"github.com/okian/twitch-sources/internal/simulator"
	"github.com/okian/twitch-sources/pkg/logger"
	"github.com/okian/twitch-sources/pkg/metrics"
)

// ErrNotStarted is returned by operations called before Start.
var ErrNotStarted = errors.New("service not started")

// creatorAdapter adapts the upstream client to subscription.Creator.
type creatorAdapter struct {
	client *upstream.Client
}

func (a *creatorAdapter) Create(ctx context.Context, accessToken string, req subscription.CreateRequest) (string, error) {
	created, err := a.client.CreateSubscription(ctx, accessToken,
		upstream.NewWebhookRequest(req.Type, req.Condition, req.Callback, req.Secret))
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// Service implements the API dependencies for the bridge.
type Service struct {
	mu sync.RWMutex

	cfg        *config.Config
	httpClient *http.Client

	store      *repository.BadgerStore
	client     *upstream.Client
	tokens     *token.Cache
	manager    *subscription.Manager
	broker     *pubsub.InMemoryBroker
	dispatcher *dispatch.Dispatcher
	guard      runguard.Guard
	sim        *simulator.Simulator
	sessions   *api.Sessions
	relay      *ws.Relay

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHTTPClient sets the client used for upstream calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		if hc != nil {
			s.httpClient = hc
		}
	}
}

// New constructs a Service. Components are built by Start.
func New(opts ...Option) *Service {
	s := &Service{cfg: config.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, builds every component and makes sure the
// platform-wide revocation subscription exists.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	cfg := s.cfg
	s.logger.Info(ctx, "starting bridge service...")

	store, err := repository.NewBadgerStore(
		repository.WithDir(cfg.DataDir),
		repository.WithInMemory(cfg.InMemory),
		repository.WithLogger(s.logger.Named("repository")),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	clientOpts := []upstream.Option{
		upstream.WithTokenURL(cfg.TokenURL),
		upstream.WithAPIURL(cfg.APIURL),
		upstream.WithTimeout(cfg.UpstreamTimeout),
		upstream.WithRateLimit(cfg.UpstreamRate, cfg.UpstreamBurst),
		upstream.WithLogger(s.logger.Named("upstream")),
	}
	if s.httpClient != nil {
		clientOpts = append(clientOpts, upstream.WithHTTPClient(s.httpClient))
	}
	client, err := upstream.NewClient(cfg.ClientID, cfg.ClientSecret, clientOpts...)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("upstream client: %w", err)
	}

	tokens := token.NewCache(client,
		token.WithTTL(cfg.TokenTTL),
		token.WithFetchTimeout(cfg.UpstreamTimeout),
		token.WithLogger(s.logger.Named("token")),
	)
	tokens.Start()

	manager := subscription.NewManager(store, tokens, &creatorAdapter{client: client}, cfg.CallbackURL(),
		subscription.WithLogger(s.logger.Named("subscription")),
	)
	broker := pubsub.NewInMemoryBroker(
		pubsub.WithBufferSize(cfg.WSSendBuffer),
		pubsub.WithLogger(s.logger.Named("pubsub")),
	)
	guard := runguard.NewInMemoryGuard()
	sessions := api.NewSessions(cfg.SessionSecret, cfg.SessionTTL)

	s.store = store
	s.client = client
	s.tokens = tokens
	s.manager = manager
	s.broker = broker
	s.dispatcher = dispatch.New(broker, store, dispatch.WithLogger(s.logger.Named("dispatch")))
	s.guard = guard
	s.sim = simulator.New(broker, guard, simulator.WithLogger(s.logger.Named("simulator")))
	s.sessions = sessions
	s.relay = ws.NewRelay(sessions, store, manager, broker, ws.WithLogger(s.logger.Named("relay")))

	revoke, err := manager.GetOrCreate(ctx,
		[]eventsub.SubType{eventsub.UserAuthorizationRevoke},
		eventsub.ClientCondition(client.ClientID()))
	if err != nil {
		s.shutdown(ctx)
		return fmt.Errorf("revocation subscription: %w", err)
	}

	s.started = true
	s.logger.Info(ctx, "bridge service started",
		logger.String("callback", cfg.CallbackURL()),
		logger.Strings("revocation_subscription", subscription.ExternalIDs(revoke)),
	)
	return nil
}

// Stop ends sessions and runs, then closes the fan-out and the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping bridge service...")
	s.shutdown(ctx)
	s.started = false
	s.logger.Info(ctx, "bridge service stopped")
}

func (s *Service) shutdown(ctx context.Context) {
	if s.relay != nil {
		s.relay.Close()
	}
	if s.sim != nil {
		s.sim.Stop()
	}
	if s.broker != nil {
		_ = s.broker.Close()
	}
	if s.tokens != nil {
		s.tokens.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "closing store failed", logger.Error(err))
		}
	}
}

// Sessions returns the session issuer; nil before Start.
func (s *Service) Sessions() *api.Sessions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions
}

// Relay returns the WebSocket relay; nil before Start.
func (s *Service) Relay() *ws.Relay {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relay
}

// Users exposes the user store to the OAuth collaborator.
func (s *Service) Users() *repository.BadgerStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// Lookup finds a subscription by its upstream id.
func (s *Service) Lookup(ctx context.Context, externalID string) (eventsub.Subscription, error) {
	if s.manager == nil {
		return eventsub.Subscription{}, ErrNotStarted
	}
	return s.manager.Lookup(ctx, externalID)
}

// Remove deletes a subscription by its upstream id.
func (s *Service) Remove(ctx context.Context, externalID string) error {
	if s.manager == nil {
		return ErrNotStarted
	}
	return s.manager.Remove(ctx, externalID)
}

// HandleMessage routes a verified event to the fan-out.
func (s *Service) HandleMessage(ctx context.Context, env eventsub.Envelope) error {
	if s.dispatcher == nil {
		return ErrNotStarted
	}
	return s.dispatcher.HandleMessage(ctx, env)
}

// StartTest starts a simulator run of widget for owner.
func (s *Service) StartTest(ctx context.Context, owner, widget string) error {
	if s.sim == nil {
		return ErrNotStarted
	}
	return s.sim.Start(ctx, owner, widget)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started": s.started,
		"widgets": simulator.Widgets(),
	}
	if !s.started {
		return stats
	}

	subscribers := s.broker.Subscribers()
	stats["fanoutSubscribers"] = subscribers
	stats["testRunsActive"] = s.guard.Size()
	metrics.UpdateFanoutSubscribers(subscribers)
	metrics.UpdateSimulatorActive(int(s.guard.Size()))

	if n, err := s.store.Count(context.Background()); err == nil {
		stats["subscriptions"] = n
	} else {
		s.logger.Warn(context.Background(), "counting subscriptions failed", logger.Error(err))
	}
	return stats
}
