package redisx

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// inFlight marks a key whose placement has not finished yet.
const inFlight = "-"

// IdempotencyStore claims placement keys with SETNX so concurrent replicas
// agree on who runs a placement.
type IdempotencyStore struct{ rdb *redis.Client }

func NewIdempotencyStore(rdb *redis.Client) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

func (s *IdempotencyStore) Claim(ctx context.Context, key string) (string, bool, error) {
	k := fmt.Sprintf(KeyIdemOrderCreate, key)
	ok, err := s.rdb.SetNX(ctx, k, inFlight, TTLIdempotency).Result()
	if err != nil {
		return "", false, fmt.Errorf("redisx: claim idempotency key: %w", err)
	}
	if ok {
		return "", true, nil
	}

	v, err := s.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between SETNX and GET; try once more.
		ok, err = s.rdb.SetNX(ctx, k, inFlight, TTLIdempotency).Result()
		if err != nil {
			return "", false, fmt.Errorf("redisx: claim idempotency key: %w", err)
		}
		return "", ok, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redisx: read idempotency key: %w", err)
	}
	if v == inFlight {
		return "", false, nil
	}
	return v, false, nil
}

func (s *IdempotencyStore) Complete(ctx context.Context, key, orderID string) error {
	return s.rdb.Set(ctx, fmt.Sprintf(KeyIdemOrderCreate, key), orderID, TTLIdempotency).Err()
}

func (s *IdempotencyStore) Forget(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeyIdemOrderCreate, key)).Err()
}
