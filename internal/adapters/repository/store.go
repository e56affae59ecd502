// Package repository persists subscription and user records.
package repository

import (
	"context"
	"time"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
)

// Registry stores subscription records keyed by upstream external id.
type Registry interface {
	// FindByExternalID returns the subscription or ErrNotFound.
	FindByExternalID(ctx context.Context, externalID string) (eventsub.Subscription, error)

	// FindByOwner returns the owner's subscriptions whose type is in types.
	// An empty owner selects platform-wide subscriptions.
	FindByOwner(ctx context.Context, owner string, types []eventsub.SubType) ([]eventsub.Subscription, error)

	// InsertBatch persists all records in one transaction. It fails with
	// ErrConflict if any external id is already present.
	InsertBatch(ctx context.Context, subs []eventsub.Subscription) error

	// DeleteByExternalID removes a record or returns ErrNotFound.
	DeleteByExternalID(ctx context.Context, externalID string) error

	// TouchConnect and TouchDisconnect stamp connection telemetry.
	TouchConnect(ctx context.Context, externalID string, at time.Time) error
	TouchDisconnect(ctx context.Context, externalID string, at time.Time) error

	// Count returns the number of stored subscriptions.
	Count(ctx context.Context) (int, error)
}

// UserStore stores accounts that authorized the application.
type UserStore interface {
	GetUser(ctx context.Context, id string) (eventsub.User, error)
	SaveUser(ctx context.Context, u eventsub.User) error
	// DeleteUser removes a user or returns ErrNotFound.
	DeleteUser(ctx context.Context, id string) error
}
