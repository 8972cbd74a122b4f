package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisConfig configures the Redis-backed broker.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	// Consumer names this process's processing list; defaults to the hostname.
	// It must be stable across restarts for unfinished jobs to be recovered.
	Consumer string
}

// RedisBroker keeps pending jobs in a Redis list so they survive process restarts.
// Pop moves a job into a per-consumer processing list and Ack removes it from
// there, so a job whose worker dies mid-run is requeued when the consumer starts
// again.
type RedisBroker struct {
	rdb           *goredis.Client
	key           string
	processingKey string
	pollTimeout   time.Duration
	closed        atomic.Bool
}

var _ Broker = (*RedisBroker)(nil)

// NewRedisBroker connects to Redis, verifies the connection with PING and
// requeues jobs left in this consumer's processing list.
func NewRedisBroker(cfg RedisConfig) (*RedisBroker, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	b := newRedisBroker(rdb, cfg)
	if _, err := b.Recover(ctx); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return b, nil
}

func newRedisBroker(rdb *goredis.Client, cfg RedisConfig) *RedisBroker {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "registrar"
	}
	consumer := cfg.Consumer
	if consumer == "" {
		consumer, _ = os.Hostname()
	}
	if consumer == "" {
		consumer = "default"
	}

	return &RedisBroker{
		rdb:           rdb,
		key:           prefix + ":jobs",
		processingKey: prefix + ":processing:" + consumer,
		pollTimeout:   time.Second,
	}
}

// Recover moves every job in the processing list back to the head of the
// pending list, oldest first, and returns how many were moved.
func (b *RedisBroker) Recover(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := b.rdb.LMove(ctx, b.processingKey, b.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, goredis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to requeue unfinished jobs: %w", err)
		}
		moved++
	}
}

func (b *RedisBroker) Push(ctx context.Context, job Job) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}
	if err := b.rdb.LPush(ctx, b.key, data).Err(); err != nil {
		return fmt.Errorf("failed to push job %s: %w", job.ID, err)
	}
	return nil
}

// Pop polls with BLMOVE so that ctx cancellation is observed at least once per
// pollTimeout. The popped job stays in the processing list until Ack.
func (b *RedisBroker) Pop(ctx context.Context) (Job, error) {
	for {
		if b.closed.Load() {
			return Job{}, ErrBrokerClosed
		}
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}

		raw, err := b.rdb.BLMove(ctx, b.key, b.processingKey, "RIGHT", "LEFT", b.pollTimeout).Result()
		if err != nil {
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("failed to pop job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// drop it, it can never be processed
			_ = b.rdb.LRem(ctx, b.processingKey, 1, raw).Err()
			return Job{}, fmt.Errorf("failed to decode job: %w", err)
		}
		job.receipt = raw
		return job, nil
	}
}

// Ack removes the delivered job from the processing list.
func (b *RedisBroker) Ack(ctx context.Context, job Job) error {
	if job.receipt == "" {
		return nil
	}
	if err := b.rdb.LRem(ctx, b.processingKey, 1, job.receipt).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBroker) Close() error {
	if b.closed.Swap(true) {
		return nil
	}
	return b.rdb.Close()
}
