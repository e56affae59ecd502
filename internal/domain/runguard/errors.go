package runguard

import "errors"

// Sentinel kinds for guard errors.
var (
	ErrHeld = errors.New("key already held")
	ErrFull = errors.New("guard at capacity")
)
