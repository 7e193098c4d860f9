package lease

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Leaser grants short-lived exclusive leases on string keys. Used as the
// cheap first line of idempotency for workflow-run correlation ids and
// recurrence keys; the database unique indexes remain the hard guarantee.
type Leaser interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type redisLeaser struct {
	client *redis.Client
	prefix string
}

// NewRedis builds a Leaser backed by redis SETNX.
func NewRedis(client *redis.Client) Leaser {
	return &redisLeaser{client: client, prefix: "docflow:lease"}
}

func (l *redisLeaser) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.prefix+":"+key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

type memoryLeaser struct {
	mu     sync.Mutex
	held   map[string]time.Time
	nextGC time.Time
}

// NewMemory builds an in-process Leaser, used when redis is unavailable.
// Only protects against duplicates within a single process.
func NewMemory() Leaser {
	return &memoryLeaser{
		held:   make(map[string]time.Time),
		nextGC: time.Now().Add(time.Minute),
	}
}

func (l *memoryLeaser) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if exp, ok := l.held[key]; ok && exp.After(now) {
		return false, nil
	}

	l.held[key] = now.Add(ttl)
	if now.After(l.nextGC) {
		for k, exp := range l.held {
			if exp.Before(now) {
				delete(l.held, k)
			}
		}
		l.nextGC = now.Add(time.Minute)
	}

	return true, nil
}
