// Package store provides the subscription catalog's storage and the
// key/value abstraction its Redis backend sits on; the queue's stage map and
// the receipt pool are held in memory elsewhere and do not use it. It is
// grounded on the teacher's tools.Cache interface, which
// wrapped an internal/data.Connector that was never part of the retrieved
// reference pack; this package supplies that connector directly, backed by
// Redis in production and an in-process map in tests.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// KV is the narrow get/set/delete surface RedisCatalog is built on.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Key TTLs, mirroring the teacher's cache.go table of named TTL constants
// per data type.
const (
	StageTTL          = 24 * time.Hour
	CatalogTTL        = 0 // catalog entries do not expire
	ReceiptTTL        = 30 * 24 * time.Hour
	NoTTL             = 0
)

// Key patterns, mirroring the teacher's "%s:%s"-style format constants.
const (
	StageKeyPattern   = "stage:%s"
	ResultKeyPattern  = "result:%s"
	CatalogKeyPattern = "catalog:%s"
	ReceiptKeyPattern = "receipt:%s"
)

// RedisKV is the production KV implementation.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV builds a RedisKV from a connection URL.
func NewRedisKV(redisURL string) (*RedisKV, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &RedisKV{client: redis.NewClient(opts)}, nil
}

// NewRedisKVFromClient wraps an already-constructed client (used when tests
// point at a miniredis instance).
func NewRedisKVFromClient(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

func (r *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	return r.client.Keys(ctx, prefix+"*").Result()
}

// MemoryKV is an in-process KV used by unit tests that do not need a real
// Redis instance.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]string)}
}

func (m *MemoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

// GetJSON and SetJSON are convenience wrappers matching the teacher's
// Cache.GetJSON/SetJSON shape.
func GetJSON(ctx context.Context, kv KV, key string, out interface{}) (bool, error) {
	raw, ok, err := kv.Get(ctx, key)
	if err != nil || !ok {
		return ok, err
	}
	return true, json.Unmarshal([]byte(raw), out)
}

func SetJSON(ctx context.Context, kv KV, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return kv.Set(ctx, key, string(raw), ttl)
}
