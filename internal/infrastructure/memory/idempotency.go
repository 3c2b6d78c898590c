package memory

import (
	"context"
	"sync"
)

const inFlight = ""

// IdempotencyStore remembers placement keys for the life of the process.
type IdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func NewIdempotencyStore() *IdempotencyStore {
	return &IdempotencyStore{keys: make(map[string]string)}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string) (string, bool, error) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	if orderID, ok := s.keys[key]; ok {
		return orderID, false, nil
	}
	s.keys[key] = inFlight
	return "", true, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[key] = orderID
	return nil
}

func (s *IdempotencyStore) Forget(ctx context.Context, key string) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.keys, key)
	return nil
}
