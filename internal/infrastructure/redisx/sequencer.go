package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Sequencer hands out per-day order sequence numbers with INCR.
type Sequencer struct{ rdb *redis.Client }

func NewSequencer(rdb *redis.Client) *Sequencer { return &Sequencer{rdb: rdb} }

func (s *Sequencer) Next(ctx context.Context, day string) (int, error) {
	key := fmt.Sprintf(KeyOrderSequence, day)
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, TTLSequence)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redisx: next order sequence: %w", err)
	}
	return int(incr.Val()), nil
}
