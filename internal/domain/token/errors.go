package token

import "errors"

// ErrFetch reports a failed client-credentials grant.
var ErrFetch = errors.New("app token fetch failed")
