package repository

import (
	"errors"

	"github.com/okian/twitch-sources/internal/domain/eventsub"
)

// Sentinel kinds for repository errors. ErrNotFound is shared with the
// domain so callers above the store can match it without importing this package.
var (
	ErrNotFound = eventsub.ErrNotFound
	ErrConflict = errors.New("record already exists")
	ErrInvalid  = errors.New("invalid record")
	ErrClosed   = errors.New("store closed")
)
