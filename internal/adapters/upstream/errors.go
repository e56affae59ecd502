package upstream

import "errors"

// Sentinel kinds for upstream API errors.
var (
	ErrUpstream = errors.New("upstream request failed")
	ErrStatus   = errors.New("upstream returned an error status")
	ErrDecode   = errors.New("upstream response could not be decoded")
	ErrEmpty    = errors.New("upstream response carried no data")
)
