// Package broker redis backend.
// This file implements the redis:// broker used by multi-process
// deployments.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/reviewhub/reviewhub/consts"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

// Redis key layout. All keys share one prefix so a broker database can
// be shared with other applications.
//
//	reviewhub:queue:<name>        LIST   deliverable messages
//	reviewhub:delayed:<name>      ZSET   scheduled messages, scored by ready time
//	reviewhub:processing:<worker> LIST   in-flight ledger per worker
//	reviewhub:workers             SET    known worker names
//	reviewhub:worker:<name>       STRING worker liveness key with TTL
//	reviewhub:result:<task_id>    STRING task outcome with result TTL
const (
	redisKeyPrefix  = "reviewhub:"
	redisWorkersKey = redisKeyPrefix + "workers"

	// promoteBatchSize bounds how many due scheduled messages one
	// dequeue pass moves onto a queue
	promoteBatchSize = 100
)

func redisQueueKey(queue string) string       { return redisKeyPrefix + "queue:" + queue }
func redisDelayedKey(queue string) string     { return redisKeyPrefix + "delayed:" + queue }
func redisProcessingKey(worker string) string { return redisKeyPrefix + "processing:" + worker }
func redisWorkerKey(worker string) string     { return redisKeyPrefix + "worker:" + worker }
func redisResultKey(taskID string) string     { return redisKeyPrefix + "result:" + taskID }

// RedisBroker is the multi-process backend. Dequeue moves a message
// from its queue list to the worker's processing list in a single
// LMOVE, so there is no window where a crash loses it; the message is
// removed only by Ack or Requeue. ReclaimStale returns the processing
// lists of workers whose liveness key has lapsed.
type RedisBroker struct {
	client *redis.Client
	opts   Options
	closed atomic.Bool
}

// NewRedisBroker connects to the redis instance named by the URL
// (redis://[user:pass@]host:port/db, rediss:// for TLS).
func NewRedisBroker(brokerURL string, opts Options) (*RedisBroker, error) {
	ropts, err := redis.ParseURL(brokerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis broker URL: %w", err)
	}

	return &RedisBroker{
		client: redis.NewClient(ropts),
		opts:   opts.withDefaults(),
	}, nil
}

// Enqueue appends the message to its queue
func (b *RedisBroker) Enqueue(ctx context.Context, msg *Message) error {
	return b.EnqueueDelayed(ctx, msg, 0)
}

// EnqueueDelayed schedules the message to become deliverable after delay
func (b *RedisBroker) EnqueueDelayed(ctx context.Context, msg *Message, delay time.Duration) error {
	if msg == nil {
		return nil
	}
	if b.closed.Load() {
		return ErrBrokerClosed
	}

	if msg.Queue == "" {
		msg.Queue = consts.QueueDefault
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	if delay > 0 {
		readyAt := float64(time.Now().Add(delay).UnixMilli())
		err = b.client.ZAdd(ctx, redisDelayedKey(msg.Queue), redis.Z{Score: readyAt, Member: string(raw)}).Err()
	} else {
		err = b.client.LPush(ctx, redisQueueKey(msg.Queue), raw).Err()
	}
	if err != nil {
		return fmt.Errorf("enqueue to %s: %w", msg.Queue, err)
	}
	return nil
}

// Dequeue blocks until a message is available or ctx is done
func (b *RedisBroker) Dequeue(ctx context.Context, worker string, queues []string) (*Delivery, error) {
	if len(queues) == 0 {
		queues = consts.Queues
	}

	for {
		if b.closed.Load() {
			return nil, ErrBrokerClosed
		}
		if err := b.heartbeat(ctx, worker); err != nil {
			return nil, fmt.Errorf("worker heartbeat: %w", err)
		}

		for _, queue := range queues {
			b.promoteDelayed(ctx, queue)

			raw, err := b.client.LMove(ctx, redisQueueKey(queue), redisProcessingKey(worker), "RIGHT", "LEFT").Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("dequeue from %s: %w", queue, err)
			}

			var msg Message
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				// poison entry: drop it from the ledger and move on
				logger.Error("dropping undecodable queue message",
					zap.String("queue", queue),
					zap.String("worker", worker),
					zap.Error(err),
				)
				b.client.LRem(ctx, redisProcessingKey(worker), 1, raw)
				continue
			}

			return &Delivery{Message: &msg, Queue: queue, Worker: worker, receipt: raw}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(b.opts.PollInterval):
		}
	}
}

// heartbeat announces the worker and refreshes its liveness key. The
// key outlives the hard task time limit, so a worker that is busy
// rather than dequeuing is not mistaken for dead.
func (b *RedisBroker) heartbeat(ctx context.Context, worker string) error {
	pipe := b.client.Pipeline()
	pipe.SAdd(ctx, redisWorkersKey, worker)
	pipe.Set(ctx, redisWorkerKey(worker), time.Now().UTC().Format(time.RFC3339), b.opts.VisibilityTimeout)
	_, err := pipe.Exec(ctx)
	return err
}

// promoteDelayed moves due scheduled messages onto the queue. ZREM
// arbitrates between concurrent promoters: only the caller that
// removed the member pushes it.
func (b *RedisBroker) promoteDelayed(ctx context.Context, queue string) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	due, err := b.client.ZRangeByScore(ctx, redisDelayedKey(queue), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatchSize,
	}).Result()
	if err != nil {
		logger.Debug("scheduled message scan failed", zap.String("queue", queue), zap.Error(err))
		return
	}

	for _, raw := range due {
		removed, err := b.client.ZRem(ctx, redisDelayedKey(queue), raw).Result()
		if err != nil || removed == 0 {
			continue
		}
		if err := b.client.LPush(ctx, redisQueueKey(queue), raw).Err(); err != nil {
			logger.Error("failed to promote scheduled message", zap.String("queue", queue), zap.Error(err))
		}
	}
}

// Ack settles the delivery as done
func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	if d == nil || d.receipt == "" {
		return nil
	}
	return b.client.LRem(ctx, redisProcessingKey(d.Worker), 1, d.receipt).Err()
}

// Requeue settles the delivery and schedules its message for redelivery
func (b *RedisBroker) Requeue(ctx context.Context, d *Delivery, delay time.Duration) error {
	if d == nil || d.Message == nil {
		return nil
	}

	msg := d.Message
	if msg.Queue == "" {
		msg.Queue = d.Queue
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	pipe := b.client.TxPipeline()
	pipe.LRem(ctx, redisProcessingKey(d.Worker), 1, d.receipt)
	if delay > 0 {
		readyAt := float64(time.Now().Add(delay).UnixMilli())
		pipe.ZAdd(ctx, redisDelayedKey(msg.Queue), redis.Z{Score: readyAt, Member: string(raw)})
	} else {
		pipe.LPush(ctx, redisQueueKey(msg.Queue), raw)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue to %s: %w", msg.Queue, err)
	}
	return nil
}

// Depths reports deliverable messages per queue
func (b *RedisBroker) Depths(ctx context.Context) (map[string]int64, error) {
	pipe := b.client.Pipeline()
	cmds := make(map[string]*redis.IntCmd, len(consts.Queues))
	for _, queue := range consts.Queues {
		cmds[queue] = pipe.LLen(ctx, redisQueueKey(queue))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("queue depths: %w", err)
	}

	depths := make(map[string]int64, len(cmds))
	for queue, cmd := range cmds {
		depths[queue] = cmd.Val()
	}
	return depths, nil
}

// SetResult stores the task outcome with the result TTL
func (b *RedisBroker) SetResult(ctx context.Context, taskID string, result *TaskResult) error {
	if taskID == "" || result == nil {
		return nil
	}

	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode task result: %w", err)
	}
	if err := b.client.Set(ctx, redisResultKey(taskID), raw, b.opts.ResultTTL).Err(); err != nil {
		return fmt.Errorf("store task result: %w", err)
	}
	return nil
}

// GetResult returns a stored outcome, or ErrResultNotFound
func (b *RedisBroker) GetResult(ctx context.Context, taskID string) (*TaskResult, error) {
	raw, err := b.client.Get(ctx, redisResultKey(taskID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load task result: %w", err)
	}

	var result TaskResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("decode task result: %w", err)
	}
	return &result, nil
}

// ReclaimStale returns the in-flight messages of dead workers to their
// queues. A worker is dead once its liveness key has lapsed; a crash
// mid-push duplicates at most a handful of messages, which downstream
// idempotency absorbs.
func (b *RedisBroker) ReclaimStale(ctx context.Context) (int, error) {
	workers, err := b.client.SMembers(ctx, redisWorkersKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list workers: %w", err)
	}

	reclaimed := 0
	for _, worker := range workers {
		alive, err := b.client.Exists(ctx, redisWorkerKey(worker)).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("check worker %s: %w", worker, err)
		}
		if alive > 0 {
			continue
		}

		entries, err := b.client.LRange(ctx, redisProcessingKey(worker), 0, -1).Result()
		if err != nil {
			return reclaimed, fmt.Errorf("read ledger of %s: %w", worker, err)
		}

		for _, raw := range entries {
			var msg Message
			if err := json.Unmarshal([]byte(raw), &msg); err != nil {
				logger.Error("dropping undecodable in-flight message",
					zap.String("worker", worker),
					zap.Error(err),
				)
				continue
			}
			queue := msg.Queue
			if queue == "" {
				queue = consts.QueueDefault
			}
			if err := b.client.LPush(ctx, redisQueueKey(queue), raw).Err(); err != nil {
				return reclaimed, fmt.Errorf("requeue reclaimed message: %w", err)
			}
			reclaimed++
		}

		pipe := b.client.Pipeline()
		pipe.Del(ctx, redisProcessingKey(worker))
		pipe.SRem(ctx, redisWorkersKey, worker)
		if _, err := pipe.Exec(ctx); err != nil {
			return reclaimed, fmt.Errorf("retire worker %s: %w", worker, err)
		}

		if len(entries) > 0 {
			logger.Info("reclaimed in-flight messages from dead worker",
				zap.String("worker", worker),
				zap.Int("count", len(entries)),
			)
		}
	}

	return reclaimed, nil
}

// Ping verifies the redis connection
func (b *RedisBroker) Ping(ctx context.Context) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	return b.client.Ping(ctx).Err()
}

// Close releases the redis connection. In-flight deliveries stay on
// their processing lists for ReclaimStale.
func (b *RedisBroker) Close() error {
	b.closed.Store(true)
	return b.client.Close()
}
