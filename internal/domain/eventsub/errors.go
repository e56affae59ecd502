package eventsub

import "errors"

// Sentinel kinds for event parsing, verification and record lookups.
var (
	ErrUnsupportedType  = errors.New("unsupported subscription type")
	ErrMalformedPayload = errors.New("malformed event payload")
	ErrInvalidSignature = errors.New("invalid message signature")
	ErrNotFound         = errors.New("record not found")
)
