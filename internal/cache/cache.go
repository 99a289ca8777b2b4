// Package cache is the in-process L1 cache used by read-mostly tools, backed by ristretto.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const DefaultMaxCost = 32 << 20

// Cache wraps a ristretto cache keyed by string with byte slice values.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a cache holding at most maxCostBytes of values.
func New(maxCostBytes int64) (*Cache, error) {
	if maxCostBytes <= 0 {
		maxCostBytes = DefaultMaxCost
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        maxCostBytes / 100 * 10,
		MaxCost:            maxCostBytes,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get returns the cached value for key. A nil Cache always misses.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.c.Get(key)
}

// Set stores value under key for ttl (zero means no expiry). The write is applied
// before Set returns so a following Get observes it, unless the admission policy
// rejected the item.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if c == nil {
		return
	}
	if c.c.SetWithTTL(key, value, int64(len(value)), ttl) {
		c.c.Wait()
	}
}

func (c *Cache) Delete(_ context.Context, key string) {
	if c == nil {
		return
	}
	c.c.Del(key)
}

func (c *Cache) Close() {
	if c == nil {
		return
	}
	c.c.Close()
}

// GetJSON decodes the cached value for key into out.
func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var out T
	data, ok := c.Get(ctx, key)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}
	return out, true
}

// SetJSON stores v encoded as JSON.
func SetJSON(ctx context.Context, c *Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Set(ctx, key, data, ttl)
	return nil
}

// Key joins a namespace and parts into a fixed length cache key.
func Key(namespace string, parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return namespace + ":" + hex.EncodeToString(sum[:16])
}
