package subscription

import (
	"errors"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
)

// Sentinel kinds for subscription management.
var (
	ErrNotFound = eventsub.ErrNotFound
	ErrToken    = errors.New("app token unavailable")
	ErrCreate   = errors.New("upstream subscription create failed")
	ErrPersist  = errors.New("subscription persist failed")
	ErrNoTypes  = errors.New("no subscription types requested")
	ErrLocked   = errors.New("gave up waiting for a concurrent create")
)
