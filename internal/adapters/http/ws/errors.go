package ws

import "errors"

// Sentinel kinds for relay errors.
var (
	ErrMissingScopes = errors.New("user lacks the scopes required by the topic")
	ErrClosed        = errors.New("relay closed")
	ErrUnknownUser   = errors.New("user has not authorized the application")
)
