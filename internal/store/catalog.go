package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/banklens/enrichcascade/internal/models"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

// Catalog is the subscription catalog's storage interface (section 6's
// logical schema, keyed on (lower(merchant), lower(product), amount_minor)).
type Catalog interface {
	// Lookup returns catalog entries whose merchant contains the given
	// substring (case-insensitive), sorted verified-first then by smallest
	// price difference to amountMinor, as required by the matcher's
	// catalog-lookup step.
	Lookup(ctx context.Context, merchantSubstring string, amountMinor int64, tolerance int64) ([]models.SubscriptionCatalogEntry, error)
	// Upsert writes or replaces the entry for its composite key, last-writer-wins.
	Upsert(ctx context.Context, entry models.SubscriptionCatalogEntry) error
}

// MemoryCatalog is an in-process Catalog used by tests and as the seed
// implementation when no Redis/Postgres is configured.
type MemoryCatalog struct {
	mu      sync.RWMutex
	entries []models.SubscriptionCatalogEntry
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{}
}

func (c *MemoryCatalog) Lookup(ctx context.Context, merchantSubstring string, amountMinor int64, tolerance int64) ([]models.SubscriptionCatalogEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	needle := strings.ToLower(merchantSubstring)
	var hits []models.SubscriptionCatalogEntry
	for _, e := range c.entries {
		if !strings.Contains(strings.ToLower(e.Merchant), needle) {
			continue
		}
		diff := e.AmountMinor - amountMinor
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			continue
		}
		hits = append(hits, e)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Verified != hits[j].Verified {
			return hits[i].Verified
		}
		di := abs64(hits[i].AmountMinor - amountMinor)
		dj := abs64(hits[j].AmountMinor - amountMinor)
		return di < dj
	})
	return hits, nil
}

func (c *MemoryCatalog) Upsert(ctx context.Context, entry models.SubscriptionCatalogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	entry.UpdatedAt = now
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}

	for i, e := range c.entries {
		if e.Key() == entry.Key() && e.AmountMinor == entry.AmountMinor {
			c.entries[i] = entry
			return nil
		}
	}
	c.entries = append(c.entries, entry)
	return nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// RedisCatalog stores catalog entries as JSON blobs in Redis and serialises
// upserts through a redsync distributed lock, narrowing the last-writer-wins
// window described in section 5 for concurrent orchestrator instances
// sharing one Redis.
type RedisCatalog struct {
	kv   KV
	rs   *redsync.Redsync
}

// NewRedisCatalog builds a RedisCatalog from an existing go-redis client.
func NewRedisCatalog(client *goredislib.Client) *RedisCatalog {
	pool := goredis.NewPool(client)
	return &RedisCatalog{
		kv: NewRedisKVFromClient(client),
		rs: redsync.New(pool),
	}
}

func (c *RedisCatalog) Lookup(ctx context.Context, merchantSubstring string, amountMinor int64, tolerance int64) ([]models.SubscriptionCatalogEntry, error) {
	keys, err := c.kv.Keys(ctx, CatalogPrefix)
	if err != nil {
		return nil, err
	}

	needle := strings.ToLower(merchantSubstring)
	var hits []models.SubscriptionCatalogEntry
	for _, key := range keys {
		var entry models.SubscriptionCatalogEntry
		ok, err := GetJSON(ctx, c.kv, key, &entry)
		if err != nil || !ok {
			continue
		}
		if !strings.Contains(strings.ToLower(entry.Merchant), needle) {
			continue
		}
		diff := abs64(entry.AmountMinor - amountMinor)
		if diff > tolerance {
			continue
		}
		hits = append(hits, entry)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Verified != hits[j].Verified {
			return hits[i].Verified
		}
		di := abs64(hits[i].AmountMinor - amountMinor)
		dj := abs64(hits[j].AmountMinor - amountMinor)
		return di < dj
	})
	return hits, nil
}

func (c *RedisCatalog) Upsert(ctx context.Context, entry models.SubscriptionCatalogEntry) error {
	key := catalogKey(entry)
	mutex := c.rs.NewMutex("lock:" + key)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("acquire catalog lock: %w", err)
	}
	defer mutex.UnlockContext(ctx)

	now := time.Now()
	entry.UpdatedAt = now
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	return SetJSON(ctx, c.kv, key, entry, CatalogTTL)
}

const CatalogPrefix = "catalog:"

func catalogKey(entry models.SubscriptionCatalogEntry) string {
	return fmt.Sprintf(CatalogKeyPattern, fmt.Sprintf("%s:%d", entry.Key(), entry.AmountMinor))
}
