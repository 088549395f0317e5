package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/banklens/enrichcascade/internal/models"
	"github.com/redis/go-redis/v9"
)

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestRedisKV_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	kv := NewRedisKVFromClient(newTestRedisClient(t))

	if err := kv.Set(ctx, "k1", "v1", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := kv.Get(ctx, "k1")
	if err != nil || !ok || v != "v1" {
		t.Fatalf("Get = (%q, %v, %v), want (v1, true, nil)", v, ok, err)
	}

	if err := kv.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	_, ok, _ = kv.Get(ctx, "k1")
	if ok {
		t.Error("expected key to be gone after Delete")
	}
}

func TestRedisCatalog_UpsertAndLookup(t *testing.T) {
	ctx := context.Background()
	cat := NewRedisCatalog(newTestRedisClient(t))

	entry := models.SubscriptionCatalogEntry{
		Merchant: "Spotify", Product: "Premium", AmountMinor: 1099, Currency: "GBP",
		Verified: true, Confidence: 1.0,
	}
	if err := cat.Upsert(ctx, entry); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	hits, err := cat.Lookup(ctx, "spotify", 1099, 0)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if !hits[0].Verified {
		t.Error("expected the upserted entry to round-trip as verified")
	}
}
