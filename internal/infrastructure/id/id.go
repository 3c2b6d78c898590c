package id

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// UUID hands out random v4 identifiers.
type UUID struct{}

func (UUID) NewID() string { return uuid.NewString() }

// Sequence hands out prefix-1, prefix-2, ... and is meant for tests and fixtures.
type Sequence struct {
	Prefix string
	n      atomic.Int64
}

func (s *Sequence) NewID() string {
	return fmt.Sprintf("%s-%d", s.Prefix, s.n.Add(1))
}
