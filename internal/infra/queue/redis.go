package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

const popTimeout = time.Second

// RedisRecomputeQueue реализует очередь пересчёта рейтинга на Redis list.
// Пересчёт идемпотентен, поэтому задача не добавляется, если очередь уже не пуста.
type RedisRecomputeQueue struct {
	client *redis.Client
	key    string
}

var _ domain.RecomputeQueue = (*RedisRecomputeQueue)(nil)

// NewRedisRecomputeQueue создаёт очередь по указанному ключу.
func NewRedisRecomputeQueue(client *redis.Client, key string) *RedisRecomputeQueue {
	return &RedisRecomputeQueue{client: client, key: key}
}

// Enqueue публикует задачу, если в очереди нет ожидающих.
func (q *RedisRecomputeQueue) Enqueue(ctx context.Context, job domain.RecomputeJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.Watch(ctx, func(tx *redis.Tx) error {
		pending, err := tx.LLen(ctx, q.key).Result()
		if err != nil {
			return err
		}
		if pending > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, q.key, payload)
			return nil
		})
		return err
	}, q.key)
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Pop блокирующе читает задачу из очереди.
func (q *RedisRecomputeQueue) Pop(ctx context.Context) (domain.RecomputeJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.RecomputeJob{}, err
		}

		res, err := q.client.BRPop(ctx, popTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.RecomputeJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.RecomputeJob{}, err
		}
		if len(res) != 2 {
			return domain.RecomputeJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.RecomputeJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.RecomputeJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}
