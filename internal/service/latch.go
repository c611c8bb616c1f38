package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Latch is a one-shot flag. Acquire returns true only for the first caller per key.
type Latch interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// NewLatch returns a Redis backed latch, or an in-process one when client is nil.
func NewLatch(client *redis.Client) Latch {
	if client == nil {
		return newMemoryLatch()
	}
	return &redisLatch{client: client}
}

type redisLatch struct {
	client *redis.Client
}

func (l *redisLatch) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

func (l *redisLatch) Release(ctx context.Context, key string) error {
	return l.client.Del(ctx, key).Err()
}

// memoryLatch mirrors the Redis TTL semantics in process. Expired keys are pruned on Acquire.
type memoryLatch struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func newMemoryLatch() *memoryLatch {
	return &memoryLatch{expires: make(map[string]time.Time), now: time.Now}
}

func (l *memoryLatch) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for k, expiry := range l.expires {
		if !expiry.IsZero() && !now.Before(expiry) {
			delete(l.expires, k)
		}
	}

	if _, held := l.expires[key]; held {
		return false, nil
	}

	var expiry time.Time
	if ttl > 0 {
		expiry = now.Add(ttl)
	}
	l.expires[key] = expiry
	return true, nil
}

func (l *memoryLatch) Release(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.expires, key)
	l.mu.Unlock()
	return nil
}

func (l *memoryLatch) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.expires)
}
