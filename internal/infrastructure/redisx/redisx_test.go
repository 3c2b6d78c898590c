package redisx

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/Zhima-Mochi/minishop-fulfillment/internal/domain/catalog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb, err := New(context.Background(), Options{Addr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestIdempotencyClaimIsExclusive(t *testing.T) {
	store := NewIdempotencyStore(testClient(t))
	ctx := context.Background()
	key := "user:u1:" + uuid.NewString()

	var (
		mu      sync.Mutex
		winners int
		wg      sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := store.Claim(ctx, key)
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if claimed {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one claim, got %d", winners)
	}

	if id, claimed, _ := store.Claim(ctx, key); claimed || id != "" {
		t.Fatalf("expected in-flight claim, got id=%q claimed=%v", id, claimed)
	}
	if err := store.Complete(ctx, key, "order-1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if id, claimed, _ := store.Claim(ctx, key); claimed || id != "order-1" {
		t.Fatalf("expected replay of order-1, got id=%q claimed=%v", id, claimed)
	}
	if err := store.Forget(ctx, key); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, claimed, _ := store.Claim(ctx, key); !claimed {
		t.Fatal("expected claim after forget")
	}
}

func TestCartStoreRoundTrip(t *testing.T) {
	store := NewCartStore(testClient(t))
	ctx := context.Background()
	owner := "guest:" + uuid.NewString()

	items, err := store.GetCartItems(ctx, owner)
	if err != nil || len(items) != 0 {
		t.Fatalf("expected empty cart, got %v err=%v", items, err)
	}
	if err := store.Put(ctx, owner, catalog.CartItem{VariantID: "v1", Quantity: 2}); err != nil {
		t.Fatalf("put: %v", err)
	}
	items, _ = store.GetCartItems(ctx, owner)
	if len(items) != 1 || items[0].Quantity != 2 {
		t.Fatalf("expected one line of 2, got %v", items)
	}
	if err := store.ClearCart(ctx, owner); err != nil {
		t.Fatalf("clear: %v", err)
	}
	items, _ = store.GetCartItems(ctx, owner)
	if len(items) != 0 {
		t.Fatalf("expected cleared cart, got %v", items)
	}
}

func TestSequencerIncrements(t *testing.T) {
	seq := NewSequencer(testClient(t))
	ctx := context.Background()
	day := "t" + uuid.NewString()[:8]

	a, err := seq.Next(ctx, day)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	b, _ := seq.Next(ctx, day)
	if a != 1 || b != 2 {
		t.Fatalf("expected 1 then 2, got %d then %d", a, b)
	}
}
