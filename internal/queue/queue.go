// Package queue hands submitted review jobs from the gateway to workers.
// Delivery is at-most-once per Dequeue call; the claim step that makes a
// job visible as processing belongs to the orchestrator.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"prreview/internal/model"
)

// ErrFull is returned by bounded queues that cannot accept more work.
var ErrFull = errors.New("queue is full")

type Queue interface {
	Enqueue(ctx context.Context, job model.Job) error
	// Dequeue blocks for up to timeout. ok is false when nothing arrived.
	Dequeue(ctx context.Context, timeout time.Duration) (job model.Job, ok bool, err error)
}

// Redis is a FIFO list: LPUSH on enqueue, BRPOP on dequeue.
type Redis struct {
	rdb redis.UniversalClient
	key string
}

func NewRedis(rdb redis.UniversalClient, key string) *Redis {
	return &Redis{rdb: rdb, key: key}
}

func (q *Redis) Enqueue(ctx context.Context, job model.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", job.ID, err)
	}
	return nil
}

func (q *Redis) Dequeue(ctx context.Context, timeout time.Duration) (model.Job, bool, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return model.Job{}, false, nil
	}
	if err != nil {
		return model.Job{}, false, fmt.Errorf("dequeue: %w", err)
	}
	// BRPOP replies with [key, value].
	if len(res) != 2 {
		return model.Job{}, false, fmt.Errorf("dequeue: unexpected reply %v", res)
	}

	var job model.Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return model.Job{}, false, fmt.Errorf("decode job: %w", err)
	}
	return job, true, nil
}

// Len reports the number of queued jobs.
func (q *Redis) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Memory is a bounded in-process queue for single-process deployments
// and tests.
type Memory struct {
	ch chan model.Job
}

func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 1
	}
	return &Memory{ch: make(chan model.Job, size)}
}

func (q *Memory) Enqueue(ctx context.Context, job model.Job) error {
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrFull
	}
}

func (q *Memory) Dequeue(ctx context.Context, timeout time.Duration) (model.Job, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case job := <-q.ch:
		return job, true, nil
	case <-timer.C:
		return model.Job{}, false, nil
	case <-ctx.Done():
		return model.Job{}, false, ctx.Err()
	}
}
