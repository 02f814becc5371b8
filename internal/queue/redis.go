package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a list-backed Queue: producers LPUSH, the worker BRPOPs.
type RedisQueue struct {
	rdb  redis.UniversalClient
	key  string
	wait time.Duration
}

func NewRedisQueue(rdb redis.UniversalClient, prefix string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: prefix + "queue:commissions", wait: 5 * time.Second}
}

func (q *RedisQueue) Key() string { return q.key }

func (q *RedisQueue) Enqueue(ctx context.Context, job CommissionJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode commission job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue commission job: %w", err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (CommissionJob, error) {
	for {
		res, err := q.rdb.BRPop(ctx, q.wait, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return CommissionJob{}, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return CommissionJob{}, ctx.Err()
			}
			return CommissionJob{}, fmt.Errorf("dequeue commission job: %w", err)
		}
		// res is [key, value].
		var job CommissionJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return CommissionJob{}, fmt.Errorf("decode commission job: %w", err)
		}
		return job, nil
	}
}
