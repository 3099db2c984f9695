// Package request tracks pending AuthnRequest IDs so each login attempt
// can be consumed at most once.
package request

import (
	"context"
	"sync"
	"time"

	"github.com/trustgrid/samlsp/internal/core/ports"
)

// MemoryRequestStore is an in-process, mutex-guarded request store.
// Suitable for single-instance deployments; use RedisRequestStore when
// the ACS endpoint is served by more than one process.
type MemoryRequestStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRequestStore creates an empty store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Store saves a request ID with its expiry time. Expired entries are
// swept opportunistically on each write.
func (s *MemoryRequestStore) Store(_ context.Context, requestID string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for id, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, id)
		}
	}
	s.entries[requestID] = expiry
	return nil
}

// Take atomically consumes a request ID, returning true only for the
// first call per stored, unexpired ID.
func (s *MemoryRequestStore) Take(_ context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.entries[requestID]
	if !ok {
		return false, nil
	}
	delete(s.entries, requestID)
	if s.now().After(expiry) {
		return false, nil
	}
	return true, nil
}

// Ensure MemoryRequestStore implements ports.RequestStore
var _ ports.RequestStore = (*MemoryRequestStore)(nil)
