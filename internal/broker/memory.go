// Package broker in-process backend.
// This file implements the memory:// broker used by tests, the check
// command, and single-binary deployments.
package broker

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/reviewhub/reviewhub/consts"
	"github.com/reviewhub/reviewhub/pkg/idgen"
)

// MemoryBroker keeps named FIFO queues, a delay schedule, an in-flight
// ledger, and a result map behind one mutex. Nothing survives a process
// restart; startup recovery rebuilds the queues from the task table.
type MemoryBroker struct {
	mu sync.Mutex

	// queues holds deliverable messages per queue, oldest first
	queues map[string][]*Message

	// delayed holds scheduled messages across all queues
	delayed []delayedMessage

	// inflight tracks leased deliveries by receipt
	inflight map[string]*inflightEntry

	// results holds task outcomes until their TTL lapses
	results map[string]*resultEntry

	// ready wakes waiting Dequeue calls when a message may be available
	ready chan struct{}

	opts   Options
	closed bool

	// now is swappable in tests
	now func() time.Time
}

type delayedMessage struct {
	msg     *Message
	readyAt time.Time
}

type inflightEntry struct {
	msg       *Message
	queue     string
	worker    string
	reclaimAt time.Time
}

type resultEntry struct {
	result    *TaskResult
	expiresAt time.Time
}

// NewMemoryBroker creates an in-process broker
func NewMemoryBroker(opts Options) *MemoryBroker {
	return &MemoryBroker{
		queues:   make(map[string][]*Message),
		inflight: make(map[string]*inflightEntry),
		results:  make(map[string]*resultEntry),
		ready:    make(chan struct{}, 1),
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// Enqueue appends the message to its queue
func (b *MemoryBroker) Enqueue(ctx context.Context, msg *Message) error {
	return b.EnqueueDelayed(ctx, msg, 0)
}

// EnqueueDelayed schedules the message to become deliverable after delay
func (b *MemoryBroker) EnqueueDelayed(_ context.Context, msg *Message, delay time.Duration) error {
	if msg == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}

	queue := msg.Queue
	if queue == "" {
		queue = consts.QueueDefault
		msg.Queue = queue
	}

	if delay > 0 {
		b.delayed = append(b.delayed, delayedMessage{msg: msg, readyAt: b.now().Add(delay)})
	} else {
		b.queues[queue] = append(b.queues[queue], msg)
	}

	b.signalReady()
	return nil
}

// Dequeue blocks until a message is available or ctx is done
func (b *MemoryBroker) Dequeue(ctx context.Context, worker string, queues []string) (*Delivery, error) {
	if len(queues) == 0 {
		queues = consts.Queues
	}

	for {
		d, err := b.tryDequeue(worker, queues)
		if err != nil {
			return nil, err
		}
		if d != nil {
			return d, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-b.ready:
		case <-time.After(b.opts.PollInterval):
			// scheduled messages come due without a ready signal
		}
	}
}

// tryDequeue pops the head of the first non-empty queue, or nil
func (b *MemoryBroker) tryDequeue(worker string, queues []string) (*Delivery, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	b.promoteDelayedLocked()

	for _, queue := range queues {
		pending := b.queues[queue]
		if len(pending) == 0 {
			continue
		}

		msg := pending[0]
		b.queues[queue] = pending[1:]

		receipt := idgen.NewID()
		b.inflight[receipt] = &inflightEntry{
			msg:       msg,
			queue:     queue,
			worker:    worker,
			reclaimAt: b.now().Add(b.opts.VisibilityTimeout),
		}

		return &Delivery{Message: msg, Queue: queue, Worker: worker, receipt: receipt}, nil
	}

	return nil, nil
}

// promoteDelayedLocked moves due scheduled messages onto their queues.
// Caller must hold b.mu.
func (b *MemoryBroker) promoteDelayedLocked() {
	if len(b.delayed) == 0 {
		return
	}

	now := b.now()
	remaining := b.delayed[:0]
	for _, dm := range b.delayed {
		if dm.readyAt.After(now) {
			remaining = append(remaining, dm)
			continue
		}
		b.queues[dm.msg.Queue] = append(b.queues[dm.msg.Queue], dm.msg)
	}
	b.delayed = remaining
}

// Ack settles the delivery as done
func (b *MemoryBroker) Ack(_ context.Context, d *Delivery) error {
	if d == nil || d.receipt == "" {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inflight, d.receipt)
	return nil
}

// Requeue settles the delivery and schedules its message for redelivery
func (b *MemoryBroker) Requeue(ctx context.Context, d *Delivery, delay time.Duration) error {
	if d == nil || d.Message == nil {
		return nil
	}

	b.mu.Lock()
	delete(b.inflight, d.receipt)
	b.mu.Unlock()

	return b.EnqueueDelayed(ctx, d.Message, delay)
}

// Depths reports deliverable messages per queue
func (b *MemoryBroker) Depths(_ context.Context) (map[string]int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	b.promoteDelayedLocked()

	depths := make(map[string]int64, len(consts.Queues))
	for _, queue := range consts.Queues {
		depths[queue] = int64(len(b.queues[queue]))
	}
	for queue, pending := range b.queues {
		depths[queue] = int64(len(pending))
	}
	return depths, nil
}

// SetResult stores the task outcome until its TTL lapses
func (b *MemoryBroker) SetResult(_ context.Context, taskID string, result *TaskResult) error {
	if taskID == "" || result == nil {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}

	b.results[taskID] = &resultEntry{result: result, expiresAt: b.now().Add(b.opts.ResultTTL)}
	return nil
}

// GetResult returns a stored outcome, or ErrResultNotFound
func (b *MemoryBroker) GetResult(_ context.Context, taskID string) (*TaskResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBrokerClosed
	}

	entry, ok := b.results[taskID]
	if !ok {
		return nil, ErrResultNotFound
	}
	if !entry.expiresAt.After(b.now()) {
		delete(b.results, taskID)
		return nil, ErrResultNotFound
	}
	return entry.result, nil
}

// ReclaimStale returns deliveries past their visibility timeout to
// their queues and drops expired results.
func (b *MemoryBroker) ReclaimStale(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrBrokerClosed
	}

	now := b.now()

	var receipts []string
	for receipt, entry := range b.inflight {
		if !entry.reclaimAt.After(now) {
			receipts = append(receipts, receipt)
		}
	}
	// map iteration order is random; keep reclaim deterministic
	sort.Strings(receipts)

	for _, receipt := range receipts {
		entry := b.inflight[receipt]
		delete(b.inflight, receipt)
		b.queues[entry.queue] = append(b.queues[entry.queue], entry.msg)
	}

	for taskID, entry := range b.results {
		if !entry.expiresAt.After(now) {
			delete(b.results, taskID)
		}
	}

	if len(receipts) > 0 {
		b.signalReady()
	}
	return len(receipts), nil
}

// Ping reports whether the broker accepts work
func (b *MemoryBroker) Ping(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	return nil
}

// Close shuts the broker down. Pending and in-flight messages are
// discarded; the task table is what recovery rebuilds from.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// signalReady wakes one waiting Dequeue without blocking
func (b *MemoryBroker) signalReady() {
	select {
	case b.ready <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}
