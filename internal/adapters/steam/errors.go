package steam

import "errors"

// Sentinel kinds returned by Fetch. Rate limiting is absorbed by the retry
// loop and has no sentinel of its own.
var (
	ErrPrivateInventory   = errors.New("inventory is private or profile hidden")
	ErrUpstream           = errors.New("inventory service reported an error")
	ErrUnavailable        = errors.New("inventory service unavailable")
	ErrRetrievalExhausted = errors.New("inventory retrieval attempts exhausted")
	ErrNotOpen            = errors.New("inventory client not open")
)

// errRateLimited marks a 429 attempt inside the retry loop.
var errRateLimited = errors.New("rate limited")

var errBadProxy = errors.New("proxy url needs scheme and host")
