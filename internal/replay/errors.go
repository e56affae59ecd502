package replay

import "errors"

// Sentinel errors of the replay tool.
var (
	ErrFixture    = errors.New("invalid fixture")
	ErrSend       = errors.New("delivery failed")
	ErrUnexpected = errors.New("unexpected response status")
)
