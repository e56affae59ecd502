// Package subscription orchestrates upstream event subscriptions: it returns
// the ones already registered and creates only what is missing.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okian/twitch-sources/internal/domain/eventsub"
	"github.com/okian/twitch-sources/internal/domain/token"
	"github.com/okian/twitch-sources/pkg/logger"
	"github.com/okian/twitch-sources/pkg/metrics"
	"github.com/okian/twitch-sources/pkg/random"
	"golang.org/x/sync/errgroup"
)

const defaultSecretLength = 50

// Registry is the persistence the Manager needs. Lookups of unknown
// records return errors matching ErrNotFound.
type Registry interface {
	FindByExternalID(ctx context.Context, externalID string) (eventsub.Subscription, error)
	FindByOwner(ctx context.Context, owner string, types []eventsub.SubType) ([]eventsub.Subscription, error)
	InsertBatch(ctx context.Context, subs []eventsub.Subscription) error
	DeleteByExternalID(ctx context.Context, externalID string) error
	TouchConnect(ctx context.Context, externalID string, at time.Time) error
	TouchDisconnect(ctx context.Context, externalID string, at time.Time) error
}

// TokenSource hands out the application token.
type TokenSource interface {
	Token(ctx context.Context) (token.AppToken, error)
}

// Creator registers one webhook subscription upstream and returns its
// external id.
type Creator interface {
	Create(ctx context.Context, accessToken string, req CreateRequest) (string, error)
}

// CreateRequest describes one upstream webhook subscription.
type CreateRequest struct {
	Type      eventsub.SubType
	Condition eventsub.Condition
	Callback  string
	Secret    string
}

// Manager implements get-or-create over the Registry and the upstream API.
type Manager struct {
	registry  Registry
	tokens    TokenSource
	creator   Creator
	callback  string
	secretLen int
	locks     *keyedLock
	now       func() time.Time
	logger    logger.Logger
}

// NewManager wires a Manager. callback is the public webhook URL handed to
// the upstream API for every new subscription.
func NewManager(reg Registry, tokens TokenSource, creator Creator, callback string, opts ...Option) *Manager {
	m := &Manager{
		registry:  reg,
		tokens:    tokens,
		creator:   creator,
		callback:  callback,
		secretLen: defaultSecretLength,
		locks:     newKeyedLock(),
		now:       time.Now,
		logger:    logger.Named("subscription"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func lockKey(owner string, t eventsub.SubType) string {
	return owner + "|" + string(t)
}

// GetOrCreate returns a subscription for every requested type under cond,
// creating the missing ones upstream in parallel and persisting them in one
// batch. Result order is unspecified. A failing create aborts the call;
// subscriptions already created upstream are left in place.
func (m *Manager) GetOrCreate(ctx context.Context, types []eventsub.SubType, cond eventsub.Condition) ([]eventsub.Subscription, error) {
	if len(types) == 0 {
		return nil, ErrNoTypes
	}
	owner := cond.Owner()

	keys := make([]string, len(types))
	for i, t := range types {
		keys[i] = lockKey(owner, t)
	}
	unlock, err := m.locks.lockAll(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLocked, err)
	}
	defer unlock()

	existing, err := m.registry.FindByOwner(ctx, owner, types)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup owner %q: %w", ErrPersist, owner, err)
	}

	have := make(map[eventsub.SubType]bool, len(existing))
	for _, s := range existing {
		have[s.Type] = true
	}
	var missing []eventsub.SubType
	for _, t := range types {
		if !have[t] {
			missing = append(missing, t)
			have[t] = true
		}
	}
	if len(missing) == 0 {
		return existing, nil
	}

	tok, err := m.tokens.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrToken, err)
	}

	created := make([]eventsub.Subscription, len(missing))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range missing {
		i, t := i, t
		g.Go(func() error {
			secret, err := random.Alphanumeric(m.secretLen)
			if err != nil {
				return err
			}
			externalID, err := m.creator.Create(gctx, tok.Value, CreateRequest{
				Type:      t,
				Condition: cond,
				Callback:  m.callback,
				Secret:    secret,
			})
			if err != nil {
				return fmt.Errorf("%s: %w", t, err)
			}
			created[i] = eventsub.Subscription{
				ID:         uuid.NewString(),
				Owner:      owner,
				Secret:     secret,
				ExternalID: externalID,
				Type:       t,
				CreatedAt:  m.now().UTC(),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		m.logger.Error(ctx, "subscription create failed",
			logger.String("owner", owner),
			logger.Error(err))
		metrics.RecordErrorByComponent("subscription", "create")
		return nil, fmt.Errorf("%w: %w", ErrCreate, err)
	}

	if err := m.registry.InsertBatch(ctx, created); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersist, err)
	}
	for _, s := range created {
		metrics.RecordSubscriptionCreated(string(s.Type))
		m.logger.Info(ctx, "subscription created",
			logger.String("owner", owner),
			logger.String("type", string(s.Type)),
			logger.String("external_id", s.ExternalID))
	}

	return append(existing, created...), nil
}

// Lookup returns the subscription registered under externalID.
func (m *Manager) Lookup(ctx context.Context, externalID string) (eventsub.Subscription, error) {
	sub, err := m.registry.FindByExternalID(ctx, externalID)
	if err != nil {
		return eventsub.Subscription{}, fmt.Errorf("lookup %q: %w", externalID, err)
	}
	return sub, nil
}

// Remove deletes the subscription registered under externalID. Unknown ids
// return an error matching ErrNotFound.
func (m *Manager) Remove(ctx context.Context, externalID string) error {
	if err := m.registry.DeleteByExternalID(ctx, externalID); err != nil {
		return fmt.Errorf("remove %q: %w", externalID, err)
	}
	metrics.RecordSubscriptionRemoved()
	m.logger.Info(ctx, "subscription removed", logger.String("external_id", externalID))
	return nil
}

// UpdateConnectTime stamps the connect time of every id. Failures are
// logged and counted only.
func (m *Manager) UpdateConnectTime(ctx context.Context, externalIDs []string) {
	m.touch(ctx, "connect", externalIDs, m.registry.TouchConnect)
}

// UpdateDisconnectTime stamps the disconnect time of every id. Failures are
// logged and counted only.
func (m *Manager) UpdateDisconnectTime(ctx context.Context, externalIDs []string) {
	m.touch(ctx, "disconnect", externalIDs, m.registry.TouchDisconnect)
}

func (m *Manager) touch(ctx context.Context, what string, ids []string,
	fn func(context.Context, string, time.Time) error,
) {
	at := m.now()
	for _, id := range ids {
		if err := fn(ctx, id, at); err != nil {
			level := m.logger.Warn
			if errors.Is(err, ErrNotFound) {
				level = m.logger.Debug
			}
			level(ctx, "failed to record "+what+" time",
				logger.String("external_id", id),
				logger.Error(err))
			metrics.RecordTelemetryError()
		}
	}
}

// ExternalIDs projects subscriptions to their upstream ids.
func ExternalIDs(subs []eventsub.Subscription) []string {
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.ExternalID
	}
	return ids
}
