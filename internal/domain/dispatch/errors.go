package dispatch

import "errors"

// Sentinel kinds for dispatch errors.
var (
	ErrUserRemoval = errors.New("revoked user removal failed")
	ErrEncode      = errors.New("envelope encoding failed")
	ErrPublish     = errors.New("publish failed")
)
