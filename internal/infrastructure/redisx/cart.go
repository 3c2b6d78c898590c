package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/catalog"

	"github.com/redis/go-redis/v9"
)

// CartStore keeps each cart as one JSON value.
type CartStore struct{ rdb *redis.Client }

func NewCartStore(rdb *redis.Client) *CartStore { return &CartStore{rdb: rdb} }

func (s *CartStore) GetCartItems(ctx context.Context, ownerKey string) ([]catalog.CartItem, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(KeyCart, ownerKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", catalog.ErrCartUnavailable, err)
	}
	var items []catalog.CartItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("redisx: decode cart %s: %w", ownerKey, err)
	}
	return items, nil
}

func (s *CartStore) ClearCart(ctx context.Context, ownerKey string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(KeyCart, ownerKey)).Err()
}

// Put replaces the cart of ownerKey.
func (s *CartStore) Put(ctx context.Context, ownerKey string, items ...catalog.CartItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, fmt.Sprintf(KeyCart, ownerKey), raw, TTLCart).Err()
}
