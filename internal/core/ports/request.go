package ports

import (
	"context"
	"time"
)

// RequestStore tracks pending AuthnRequest IDs so each login attempt can
// be consumed exactly once. Implementations must be safe for concurrent
// use.
type RequestStore interface {
	// Store saves a request ID with its expiry time.
	Store(ctx context.Context, requestID string, expiry time.Time) error

	// Take atomically consumes a request ID. It returns true only for
	// the first call per stored, unexpired ID; replays and unknown IDs
	// return false.
	Take(ctx context.Context, requestID string) (bool, error)
}
