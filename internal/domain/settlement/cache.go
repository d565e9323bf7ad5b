package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache remembers the reconciled outcome of a verified settlement keyed by
// the payment authorization, so a replayed request returns the recorded
// result instead of driving the external rail again. Failed settlements are
// never cached, which keeps legitimate retries possible.
type Cache interface {
	Get(ctx context.Context, key string) (*Outcome, bool, error)
	Put(ctx context.Context, key string, out *Outcome) error
}

// CacheKey derives the idempotency key from the claimed identity and the raw
// payment header. Keying on the header alone would let one identity replay
// another's authorization and be served the recorded outcome.
func CacheKey(identity, paymentHeader string) string {
	sum := sha256.Sum256([]byte(identity + "\n" + paymentHeader))
	return hex.EncodeToString(sum[:])
}

// MemoryCache is the default in-process Cache.
type MemoryCache struct {
	mu       sync.RWMutex
	outcomes map[string]Outcome
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{outcomes: make(map[string]Outcome)}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Outcome, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out, ok := c.outcomes[key]
	if !ok {
		return nil, false, nil
	}
	return &out, true, nil
}

func (c *MemoryCache) Put(ctx context.Context, key string, out *Outcome) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outcomes[key] = *out
	return nil
}

const cacheKeyPrefix = "settlement:"

// RedisCache shares settlement outcomes across instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl == 0 {
		ttl = 30 * time.Minute
	}
	return &RedisCache{client: client, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Outcome, bool, error) {
	raw, err := c.client.Get(ctx, cacheKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var out Outcome
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, false, err
	}
	return &out, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, out *Outcome) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKeyPrefix+key, raw, c.ttl).Err()
}
