package delay

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const queueKey = "docflow:delay:queue"

type queueEntry struct {
	ID      string      `json:"id"`
	Payload FirePayload `json:"payload"`
}

// RedisExecutor stores armed triggers in a redis sorted set scored by due
// epoch-millis. Entries persist across process restarts; a poll loop claims
// due members with ZREM so each entry is dispatched by at most one poller.
type RedisExecutor struct {
	client  *redis.Client
	handler Handler
	logger  *zap.Logger

	pollEvery time.Duration
	stop      chan struct{}
	done      chan struct{}
}

func NewRedisExecutor(client *redis.Client, pollEvery time.Duration, logger *zap.Logger) *RedisExecutor {
	if pollEvery <= 0 {
		pollEvery = 5 * time.Second
	}
	return &RedisExecutor{
		client:    client,
		logger:    logger,
		pollEvery: pollEvery,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Bind sets the fire handler. Must be called before Start.
func (e *RedisExecutor) Bind(h Handler) {
	e.handler = h
}

func (e *RedisExecutor) ArmAfter(ctx context.Context, delay time.Duration, p FirePayload) (string, error) {
	entry := queueEntry{ID: uuid.NewString(), Payload: p}
	raw, err := json.Marshal(entry)
	if err != nil {
		return "", err
	}

	due := time.Now().Add(delay).UnixMilli()
	if err := e.client.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(due),
		Member: string(raw),
	}).Err(); err != nil {
		return "", err
	}
	return entry.ID, nil
}

// Start launches the poll loop.
func (e *RedisExecutor) Start() {
	go func() {
		defer close(e.done)
		ticker := time.NewTicker(e.pollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-e.stop:
				return
			case <-ticker.C:
				e.drainDue()
			}
		}
	}()
}

// Stop terminates the poll loop and waits for it to exit. Armed entries stay
// in redis and are picked up on the next start.
func (e *RedisExecutor) Stop() {
	close(e.stop)
	<-e.done
}

func (e *RedisExecutor) drainDue() {
	ctx, cancel := context.WithTimeout(context.Background(), e.pollEvery)
	defer cancel()

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	members, err := e.client.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		e.logger.Error("Failed to read delay queue", zap.Error(err))
		return
	}

	for _, member := range members {
		// ZREM is the claim: removed-count 0 means another poller won.
		removed, err := e.client.ZRem(ctx, queueKey, member).Result()
		if err != nil {
			e.logger.Error("Failed to claim delay entry", zap.Error(err))
			continue
		}
		if removed == 0 {
			continue
		}

		var entry queueEntry
		if err := json.Unmarshal([]byte(member), &entry); err != nil {
			e.logger.Error("Dropping malformed delay entry", zap.Error(err))
			continue
		}
		if e.handler == nil {
			e.logger.Error("Delay entry fired with no handler bound", zap.String("trigger_id", entry.ID))
			continue
		}
		go e.handler(context.Background(), entry.Payload)
	}
}
