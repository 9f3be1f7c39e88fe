package service

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Queue interface {
	Enqueue(ctx context.Context, jobID string) error
	ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error)
	Ack(ctx context.Context, jobID string) error
	RequeueStale(ctx context.Context, max int64) (int64, error)
}

// redisQueue implements a reliable queue over Redis lists.
// Claim: BRPOPLPUSH queue -> processing
// Ack:   LREM from processing
// A reaper periodically moves stale processing entries back to the queue, so
// delivery is at-least-once.
type redisQueue struct {
	rdb           *redis.Client
	queueKey      string
	processingKey string
}

func NewRedisQueue(rdb *redis.Client, queueKey, processingKey string) Queue {
	return &redisQueue{
		rdb:           rdb,
		queueKey:      queueKey,
		processingKey: processingKey,
	}
}

func (q *redisQueue) Enqueue(ctx context.Context, jobID string) error {
	return q.rdb.LPush(ctx, q.queueKey, jobID).Err()
}

func (q *redisQueue) ClaimBlocking(ctx context.Context, timeout time.Duration) (string, error) {
	return q.rdb.BRPopLPush(ctx, q.queueKey, q.processingKey, timeout).Result()
}

func (q *redisQueue) Ack(ctx context.Context, jobID string) error {
	return q.rdb.LRem(ctx, q.processingKey, 1, jobID).Err()
}

// RequeueStale moves items from processing back to the queue (at most max).
func (q *redisQueue) RequeueStale(ctx context.Context, max int64) (int64, error) {
	var moved int64
	for i := int64(0); i < max; i++ {
		_, err := q.rdb.RPopLPush(ctx, q.processingKey, q.queueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return moved, err
		}
		moved++
	}
	return moved, nil
}
