package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keys negotiation state by identity. The default lives in process
// memory for the process lifetime; the Redis implementation makes the state
// survive restarts without changing the contract.
type Store interface {
	// Get returns the state, or (nil, nil) when the identity has none yet.
	Get(ctx context.Context, identity string) (*State, error)

	// Put stores the state. Concurrent writers for the same identity are
	// last-write-wins.
	Put(ctx context.Context, identity string, st *State) error
}

// MemoryStore is the default in-process Store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]State)}
}

func (m *MemoryStore) Get(ctx context.Context, identity string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.states[identity]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *MemoryStore) Put(ctx context.Context, identity string, st *State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[identity] = *st
	return nil
}

const redisKeyPrefix = "negotiation:"

// RedisStore persists negotiation state as JSON in Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. ttl of zero keeps state indefinitely.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Get(ctx context.Context, identity string) (*State, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+identity).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *RedisStore) Put(ctx context.Context, identity string, st *State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, redisKeyPrefix+identity, raw, r.ttl).Err()
}
