// Package broker worker pool.
// This file implements the worker slots that consume queues, enforce
// task time limits, and settle each delivery against the task table,
// the result backend, and the retry schedule.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/reviewhub/reviewhub/internal/model"
	"github.com/reviewhub/reviewhub/internal/store"
	"github.com/reviewhub/reviewhub/pkg/logger"
)

const (
	// settleTimeout bounds the bookkeeping calls made after a task
	// finishes; they run on a fresh context so shutdown cannot orphan
	// a finished task in the processing ledger
	settleTimeout = 10 * time.Second

	// storeRetryDelay is the redelivery delay used when the task table
	// itself is unreachable; it does not consume retry budget
	storeRetryDelay = 30 * time.Second

	// defaultKillGrace is how long a worker waits for a handler to
	// observe the hard deadline before abandoning it
	defaultKillGrace = 5 * time.Second
)

// Handler executes one task. The context carries the hard execution
// deadline and a soft deadline (see SoftDeadline) at which handlers
// should stop starting new work and persist what they have. Returned
// errors are retried with backoff unless wrapped with Permanent.
type Handler func(ctx context.Context, task *model.ReviewTask) (any, error)

// PoolConfig holds worker pool configuration
type PoolConfig struct {
	// Concurrency is the number of worker slots
	Concurrency int

	// Queues consumed, in priority order; empty means all
	Queues []string

	// HardTimeout is the hard per-task execution limit
	HardTimeout time.Duration

	// MaxTasksPerSlot recycles a slot after this many tasks, bounding
	// the damage of slow leaks in task code
	MaxTasksPerSlot int

	// Retry is the redelivery schedule for failed tasks
	Retry RetryPolicy

	// ReclaimInterval is how often abandoned deliveries are reclaimed
	ReclaimInterval time.Duration

	// killGrace shortens the hard-kill wait in tests
	killGrace time.Duration
}

// DefaultPoolConfig returns the standard worker pool configuration
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Concurrency:     4,
		HardTimeout:     5 * time.Minute,
		MaxTasksPerSlot: 100,
		Retry:           DefaultRetryPolicy(),
		ReclaimInterval: time.Minute,
	}
}

// softTimeout is the point in a task's budget where it should start
// wrapping up, fixed at 80% of the hard limit
func (c PoolConfig) softTimeout() time.Duration {
	return c.HardTimeout * 8 / 10
}

func (c PoolConfig) hardKillGrace() time.Duration {
	if c.killGrace > 0 {
		return c.killGrace
	}
	return defaultKillGrace
}

type softDeadlineKey struct{}

// SoftDeadline returns the point at which a running task should begin
// wrapping up: finish the current unit of work, persist partial
// progress, and return. It precedes the hard deadline, at which the
// task context is canceled outright.
func SoftDeadline(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(softDeadlineKey{}).(time.Time)
	return t, ok
}

// SoftDeadlineReached reports whether the task's soft deadline has passed
func SoftDeadlineReached(ctx context.Context) bool {
	t, ok := SoftDeadline(ctx)
	return ok && time.Now().After(t)
}

// Pool consumes queues with a fixed set of worker slots. Each slot
// leases one message at a time, executes the registered handler under
// the task time limits, and settles the delivery: acknowledge and store
// the outcome on success or terminal failure, or schedule a redelivery
// on retryable failure.
type Pool struct {
	broker Broker
	store  store.Store
	cfg    PoolConfig
	sink   EventSink

	mu       sync.Mutex
	handlers map[model.TaskType]Handler
	running  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// node prefixes worker names so ledgers of different processes on
	// one host cannot collide
	node string
	gen  atomic.Int64
}

// NewPool creates a worker pool consuming from b and recording task
// state in st. The sink may be nil.
func NewPool(ctx context.Context, b Broker, st store.Store, cfg PoolConfig, sink EventSink) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultPoolConfig().Concurrency
	}
	if cfg.HardTimeout <= 0 {
		cfg.HardTimeout = DefaultPoolConfig().HardTimeout
	}
	if cfg.MaxTasksPerSlot <= 0 {
		cfg.MaxTasksPerSlot = DefaultPoolConfig().MaxTasksPerSlot
	}
	if cfg.ReclaimInterval <= 0 {
		cfg.ReclaimInterval = DefaultPoolConfig().ReclaimInterval
	}

	poolCtx, cancel := context.WithCancel(ctx)

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "local"
	}

	return &Pool{
		broker:   b,
		store:    st,
		cfg:      cfg,
		sink:     sink,
		handlers: make(map[model.TaskType]Handler),
		ctx:      poolCtx,
		cancel:   cancel,
		node:     fmt.Sprintf("%s-%d", hostname, os.Getpid()),
	}
}

// Register installs the handler for a task type. Dispatching a task
// type without a handler fails the task terminally.
func (p *Pool) Register(taskType model.TaskType, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[taskType] = h
}

func (p *Pool) handler(taskType model.TaskType) Handler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handlers[taskType]
}

// Start launches the worker slots and the reclaim janitor
func (p *Pool) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.mu.Unlock()

	logger.Info("starting worker pool",
		zap.String("node", p.node),
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Strings("queues", p.queues()),
		zap.Duration("hard_timeout", p.cfg.HardTimeout),
		zap.Int("max_tasks_per_slot", p.cfg.MaxTasksPerSlot),
	)

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.supervisor(i)
	}

	p.wg.Add(1)
	go p.janitor()
}

// Stop cancels all slots and waits for in-flight tasks to settle
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
	logger.Info("worker pool stopped", zap.String("node", p.node))
}

func (p *Pool) queues() []string {
	if len(p.cfg.Queues) > 0 {
		return p.cfg.Queues
	}
	return nil // backend falls back to all known queues
}

// supervisor keeps one slot position staffed, respawning a fresh worker
// identity whenever a slot retires
func (p *Pool) supervisor(slot int) {
	defer p.wg.Done()

	for p.ctx.Err() == nil {
		worker := fmt.Sprintf("%s-w%d.%d", p.node, slot, p.gen.Add(1))
		p.runSlot(worker)
	}
}

// runSlot consumes deliveries one at a time until the slot's task quota
// is spent, a hard kill dirties it, or the pool shuts down
func (p *Pool) runSlot(worker string) {
	logger.Debug("worker slot started", zap.String("worker", worker))

	processed := 0
	for processed < p.cfg.MaxTasksPerSlot {
		d, err := p.broker.Dequeue(p.ctx, worker, p.queues())
		if err != nil {
			if p.ctx.Err() != nil || errors.Is(err, ErrBrokerClosed) {
				return
			}
			logger.Error("dequeue failed", zap.String("worker", worker), zap.Error(err))
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		recycle := p.process(worker, d)
		processed++
		if recycle {
			logger.Warn("recycling worker slot after hard kill",
				zap.String("worker", worker),
				zap.Int("processed", processed),
			)
			return
		}
	}

	logger.Debug("worker slot reached its task quota, recycling",
		zap.String("worker", worker),
		zap.Int("processed", processed),
	)
}

// process executes one delivery end to end. It reports whether the slot
// must be recycled because a handler ignored the hard deadline.
func (p *Pool) process(worker string, d *Delivery) bool {
	msg := d.Message
	start := time.Now()

	task, err := p.store.Task().GetByID(msg.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// the row aged out of retention or was never persisted
			logger.Warn("dropping message without a task row",
				zap.String("task_id", msg.ID),
				zap.String("queue", d.Queue),
			)
			p.settleAck(d)
			return false
		}
		logger.Error("task lookup failed, redelivering",
			zap.String("task_id", msg.ID),
			zap.Error(err),
		)
		p.settleRequeue(d, storeRetryDelay)
		return false
	}

	if task.Status.Terminal() {
		logger.Debug("duplicate delivery of a finished task",
			zap.String("task_id", msg.ID),
			zap.String("status", string(task.Status)),
		)
		p.settleAck(d)
		return false
	}

	if ok, err := p.store.Task().MarkProcessing(msg.ID, start); err != nil {
		logger.Error("marking task processing failed, redelivering",
			zap.String("task_id", msg.ID),
			zap.Error(err),
		)
		p.settleRequeue(d, storeRetryDelay)
		return false
	} else if !ok {
		p.settleAck(d)
		return false
	}

	emit(p.sink, Event{
		Type:       EventStarted,
		TaskID:     msg.ID,
		TaskType:   msg.Type,
		Queue:      d.Queue,
		Worker:     worker,
		RetryCount: msg.RetryCount,
	})
	logger.Info("task started",
		zap.String("task_id", msg.ID),
		zap.String("type", msg.Type),
		zap.String("queue", d.Queue),
		zap.String("worker", worker),
		zap.Int("retry_count", msg.RetryCount),
	)

	out, outcome, runErr := p.run(task)
	if outcome == runShutdown {
		// hand the message back untouched; recovery or another worker
		// picks it up
		p.settleRequeue(d, 0)
		return false
	}
	if outcome == runHardKilled {
		runErr = fmt.Errorf("hard time limit of %s exceeded", p.cfg.HardTimeout)
	}

	p.settle(worker, d, out, runErr, time.Since(start))
	return outcome == runHardKilled
}

type runOutcome int

const (
	runCompleted runOutcome = iota
	runHardKilled
	runShutdown
)

// run executes the handler under the task time limits. runHardKilled
// means the handler ignored its canceled context past the kill grace;
// the goroutine is abandoned and the slot must be recycled.
func (p *Pool) run(task *model.ReviewTask) (any, runOutcome, error) {
	hardCtx, cancel := context.WithTimeout(p.ctx, p.cfg.HardTimeout)
	defer cancel()
	runCtx := context.WithValue(hardCtx, softDeadlineKey{}, time.Now().Add(p.cfg.softTimeout()))

	type handlerResult struct {
		out any
		err error
	}
	done := make(chan handlerResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- handlerResult{err: Permanent(fmt.Errorf("task panicked: %v\n%s", r, debug.Stack()))}
			}
		}()

		h := p.handler(task.Type)
		if h == nil {
			done <- handlerResult{err: Permanent(fmt.Errorf("no handler registered for task type %q", task.Type))}
			return
		}

		out, err := h(runCtx, task)
		done <- handlerResult{out: out, err: err}
	}()

	select {
	case r := <-done:
		return r.out, runCompleted, r.err
	case <-hardCtx.Done():
		if p.ctx.Err() != nil {
			return nil, runShutdown, p.ctx.Err()
		}
		// the hard deadline fired; give the handler a moment to notice
		select {
		case r := <-done:
			return r.out, runCompleted, r.err
		case <-time.After(p.cfg.hardKillGrace()):
			return nil, runHardKilled, nil
		}
	}
}

// settle records the task outcome and settles the delivery
func (p *Pool) settle(worker string, d *Delivery, out any, runErr error, elapsed time.Duration) {
	msg := d.Message

	if runErr == nil {
		p.storeResult(&TaskResult{
			TaskID:      msg.ID,
			Status:      string(model.TaskStatusCompleted),
			Result:      marshalResult(msg.ID, out),
			CompletedAt: time.Now().UTC(),
		})
		if err := p.store.Task().MarkCompleted(msg.ID); err != nil {
			logger.Error("marking task completed failed", zap.String("task_id", msg.ID), zap.Error(err))
		}
		p.settleAck(d)

		emit(p.sink, Event{
			Type:       EventSucceeded,
			TaskID:     msg.ID,
			TaskType:   msg.Type,
			Queue:      d.Queue,
			Worker:     worker,
			RetryCount: msg.RetryCount,
			Elapsed:    elapsed,
		})
		logger.Info("task succeeded",
			zap.String("task_id", msg.ID),
			zap.String("type", msg.Type),
			zap.String("worker", worker),
			zap.Duration("elapsed", elapsed),
		)
		return
	}

	if IsPermanent(runErr) || p.cfg.Retry.Exhausted(msg.RetryCount) {
		p.storeResult(&TaskResult{
			TaskID:      msg.ID,
			Status:      string(model.TaskStatusFailed),
			Traceback:   runErr.Error(),
			CompletedAt: time.Now().UTC(),
		})
		if err := p.store.Task().MarkFailed(msg.ID, runErr.Error()); err != nil {
			logger.Error("marking task failed failed", zap.String("task_id", msg.ID), zap.Error(err))
		}
		p.settleAck(d)

		emit(p.sink, Event{
			Type:       EventFailed,
			TaskID:     msg.ID,
			TaskType:   msg.Type,
			Queue:      d.Queue,
			Worker:     worker,
			RetryCount: msg.RetryCount,
			Elapsed:    elapsed,
			Err:        runErr,
		})
		logger.Error("task failed",
			zap.String("task_id", msg.ID),
			zap.String("type", msg.Type),
			zap.String("worker", worker),
			zap.Int("retry_count", msg.RetryCount),
			zap.Duration("elapsed", elapsed),
			zap.Error(runErr),
		)
		return
	}

	delay := p.cfg.Retry.Delay(msg.RetryCount + 1)
	if err := p.store.Task().IncrementRetryCount(msg.ID); err != nil {
		logger.Error("incrementing retry count failed", zap.String("task_id", msg.ID), zap.Error(err))
	}
	msg.RetryCount++
	p.settleRequeue(d, delay)

	emit(p.sink, Event{
		Type:       EventRetried,
		TaskID:     msg.ID,
		TaskType:   msg.Type,
		Queue:      d.Queue,
		Worker:     worker,
		RetryCount: msg.RetryCount,
		Elapsed:    elapsed,
		Err:        runErr,
	})
	logger.Warn("task will be retried",
		zap.String("task_id", msg.ID),
		zap.String("type", msg.Type),
		zap.String("worker", worker),
		zap.Int("retry_count", msg.RetryCount),
		zap.Duration("delay", delay),
		zap.Error(runErr),
	)
}

// janitor periodically returns abandoned deliveries to their queues
func (p *Pool) janitor() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.ReclaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			n, err := p.broker.ReclaimStale(p.ctx)
			if err != nil {
				if p.ctx.Err() == nil {
					logger.Warn("reclaiming abandoned deliveries failed", zap.Error(err))
				}
				continue
			}
			if n > 0 {
				logger.Info("reclaimed abandoned deliveries", zap.Int("count", n))
			}
		}
	}
}

// settleAck acknowledges on a fresh context so shutdown cannot strand a
// finished task in the processing ledger
func (p *Pool) settleAck(d *Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := p.broker.Ack(ctx, d); err != nil {
		logger.Error("ack failed", zap.String("task_id", d.Message.ID), zap.Error(err))
	}
}

func (p *Pool) settleRequeue(d *Delivery, delay time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := p.broker.Requeue(ctx, d, delay); err != nil {
		logger.Error("requeue failed", zap.String("task_id", d.Message.ID), zap.Error(err))
	}
}

func (p *Pool) storeResult(result *TaskResult) {
	ctx, cancel := context.WithTimeout(context.Background(), settleTimeout)
	defer cancel()
	if err := p.broker.SetResult(ctx, result.TaskID, result); err != nil {
		logger.Error("storing task result failed", zap.String("task_id", result.TaskID), zap.Error(err))
	}
}

// marshalResult encodes a handler's return value for the result backend
func marshalResult(taskID string, out any) json.RawMessage {
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(out)
	if err != nil {
		logger.Error("encoding task result failed", zap.String("task_id", taskID), zap.Error(err))
		return nil
	}
	return raw
}
