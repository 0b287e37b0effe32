// Package queue implements core.JobQueue on redis and in memory, plus the worker that drains it.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/darasa/core"
)

// Source is a queue the worker can pop jobs from.
type Source interface {
	// Dequeue blocks up to timeout for the next job. ok is false when none arrived in time.
	Dequeue(ctx context.Context, timeout time.Duration) (job core.Job, ok bool, err error)
}

// RedisQueue keeps jobs in a redis list: LPUSH to enqueue, BRPOP to dequeue (FIFO).
type RedisQueue struct {
	client *redis.Client
	key    string
}

var (
	_ core.JobQueue = (*RedisQueue)(nil)
	_ Source        = (*RedisQueue)(nil)
)

func NewRedisClient(conf core.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	})
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobs ...core.Job) error {
	if len(jobs) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(jobs))
	for _, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return errors.Wrap(err, "marshalling job")
		}
		values = append(values, data)
	}
	return errors.Wrap(q.client.LPush(ctx, q.key, values...).Err(), "pushing jobs")
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (core.Job, bool, error) {
	res, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return core.Job{}, false, nil
	}
	if err != nil {
		return core.Job{}, false, errors.Wrap(err, "popping job")
	}
	var job core.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return core.Job{}, false, errors.Wrap(err, "unmarshalling job")
	}
	return job, true, nil
}

// Len reports the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}
