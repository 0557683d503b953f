package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vietddude/fetcher/internal/core/domain"
)

// FailedFetchQueue holds fetches that failed terminally and wait for replay.
// Entries are ordered by retry count so the least-retried fetch goes first.
type FailedFetchQueue struct {
	rdb *redis.Client
}

// NewFailedFetchQueue creates a new Redis-backed failed fetch queue.
func NewFailedFetchQueue(client *Client) *FailedFetchQueue {
	return &FailedFetchQueue{rdb: client.rdb}
}

// Key helpers
func (q *FailedFetchQueue) queueKey() string {
	return "failed_fetches"
}

func (q *FailedFetchQueue) fetchKey(id string) string {
	return fmt.Sprintf("failed_fetch:%s", id)
}

// Add adds a failed fetch to the queue.
func (q *FailedFetchQueue) Add(ctx context.Context, ff *domain.FailedFetch) error {
	data, err := json.Marshal(ff)
	if err != nil {
		return fmt.Errorf("failed to marshal failed fetch: %w", err)
	}

	if err := q.rdb.Set(ctx, q.fetchKey(ff.ID), data, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to set failed fetch: %w", err)
	}

	// Sorted set score = retry count, lower retries replay first
	if err := q.rdb.ZAdd(ctx, q.queueKey(), redis.Z{
		Score:  float64(ff.RetryCount),
		Member: ff.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	return nil
}

// Next retrieves the next failed fetch to replay, or nil if the queue is empty.
func (q *FailedFetchQueue) Next(ctx context.Context) (*domain.FailedFetch, error) {
	results, err := q.rdb.ZRange(ctx, q.queueKey(), 0, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	id := results[0]

	data, err := q.rdb.Get(ctx, q.fetchKey(id)).Bytes()
	if err == redis.Nil {
		// Payload expired but ID still queued, drop it
		q.rdb.ZRem(ctx, q.queueKey(), id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get failed fetch: %w", err)
	}

	var ff domain.FailedFetch
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("failed to unmarshal failed fetch: %w", err)
	}

	return &ff, nil
}

// Requeue increments the retry count and pushes the fetch back with a higher
// score so fresher failures go first.
func (q *FailedFetchQueue) Requeue(ctx context.Context, ff *domain.FailedFetch) error {
	ff.RetryCount++
	ff.LastAttempt = time.Now().Unix()
	return q.Add(ctx, ff)
}

// Remove deletes a fetch from the queue and its payload.
func (q *FailedFetchQueue) Remove(ctx context.Context, id string) error {
	if err := q.rdb.ZRem(ctx, q.queueKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to remove from queue: %w", err)
	}
	if err := q.rdb.Del(ctx, q.fetchKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete failed fetch: %w", err)
	}
	return nil
}

// Len returns the number of queued failed fetches.
func (q *FailedFetchQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.rdb.ZCard(ctx, q.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return n, nil
}
