package simulator

import "errors"

// Sentinel kinds for simulator errors.
var (
	ErrAlreadyRunning = errors.New("test run already in progress")
	ErrUnknownWidget  = errors.New("unknown widget")
	ErrStopped        = errors.New("simulator stopped")
)
