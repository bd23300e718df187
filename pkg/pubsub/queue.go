package pubsub

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"go.uber.org/zap"
)

// OverflowPolicy decides what a bounded Queue does when it is full.
// Producers are never blocked: the producer is the engine callback.
type OverflowPolicy int

const (
	// OverflowDropOldest evicts the head of the queue to make room.
	OverflowDropOldest OverflowPolicy = iota
	// OverflowReject refuses the new message with ErrQueueFull.
	OverflowReject
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop_oldest"
	case OverflowReject:
		return "reject"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParseOverflowPolicy maps a config value to an OverflowPolicy.
// An empty string selects OverflowDropOldest.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop_oldest", "drop-oldest":
		return OverflowDropOldest, nil
	case "reject":
		return OverflowReject, nil
	default:
		return 0, errors.NewValidationError("overflow", fmt.Sprintf("unknown overflow policy %q", s), s)
	}
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithCapacity bounds the queue. A capacity <= 0 leaves it unbounded.
func WithCapacity(capacity int, policy OverflowPolicy) QueueOption {
	return func(q *Queue) {
		if capacity < 0 {
			capacity = 0
		}
		q.capacity = capacity
		q.policy = policy
	}
}

// WithQueueLogger sets the logger used for overflow reports.
func WithQueueLogger(logger *logging.ColoredLogger) QueueOption {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// Queue is a FIFO of messages safe for many producers and consumers.
//
// Suspended consumers wait on one-shot channels kept in arrival order.
// A waiter is only registered while the buffer is empty, so whenever
// waiters exist the buffer is empty and EnqueueMessage hands the message
// straight to the oldest one.
type Queue struct {
	mu       sync.Mutex
	items    []*Message
	waiters  []chan *Message
	disposed bool
	done     chan struct{}

	capacity int
	policy   OverflowPolicy
	dropped  atomic.Uint64

	logger *logging.ColoredLogger
}

// NewQueue creates an empty queue. It is unbounded unless WithCapacity is given.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		done:   make(chan struct{}),
		logger: logging.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// EnqueueMessage appends msg to the tail, or hands it to the oldest
// suspended consumer. It never blocks.
func (q *Queue) EnqueueMessage(msg *Message) error {
	if msg == nil {
		return errors.NewInvalidArgumentError("message")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.disposed {
		return errors.NewDisposedError("queue")
	}

	if len(q.waiters) > 0 {
		w := q.waiters[0]
		q.waiters[0] = nil
		q.waiters = q.waiters[1:]
		w <- msg // buffered, one send per waiter
		return nil
	}

	if q.capacity > 0 && len(q.items) >= q.capacity {
		if q.policy == OverflowReject {
			return errors.NewQueueFullError(q.capacity)
		}
		evicted := q.popLocked()
		n := q.dropped.Add(1)
		q.logger.ComponentWarn(logging.ComponentPubSub, "Queue full, dropped oldest message",
			zap.String("channel", evicted.Channel()),
			zap.Int("capacity", q.capacity),
			zap.Uint64("dropped_total", n))
	}

	q.items = append(q.items, msg)
	return nil
}

// TryGetMessage removes and returns the head without waiting.
// The bool is false when the queue is empty.
func (q *Queue) TryGetMessage() (*Message, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.disposed {
		return nil, false, errors.NewDisposedError("queue")
	}
	if len(q.items) == 0 {
		return nil, false, nil
	}
	return q.popLocked(), true, nil
}

// GetMessage returns the head of the queue, waiting until a message is
// enqueued, ctx is done, or the queue is disposed. Concurrent callers are
// served in the order they started waiting.
func (q *Queue) GetMessage(ctx context.Context) (*Message, error) {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return nil, errors.NewDisposedError("queue")
	}
	if len(q.items) > 0 {
		msg := q.popLocked()
		q.mu.Unlock()
		return msg, nil
	}
	if err := ctx.Err(); err != nil {
		q.mu.Unlock()
		return nil, errors.NewCancelledError("get message", err)
	}
	w := make(chan *Message, 1)
	q.waiters = append(q.waiters, w)
	q.mu.Unlock()

	select {
	case msg := <-w:
		return msg, nil

	case <-ctx.Done():
		q.mu.Lock()
		q.removeWaiterLocked(w)
		disposed := q.disposed
		q.mu.Unlock()
		// A producer may have handed us a message before we got the lock.
		select {
		case msg := <-w:
			return msg, nil
		default:
		}
		if disposed {
			return nil, errors.NewDisposedError("queue")
		}
		return nil, errors.NewCancelledError("get message", ctx.Err())

	case <-q.done:
		select {
		case msg := <-w:
			return msg, nil
		default:
		}
		return nil, errors.NewDisposedError("queue")
	}
}

// Messages returns a sequence that yields messages as they arrive. When
// ctx is done or the queue is disposed the sequence yields one final
// (nil, err) pair carrying the CancelledError or DisposedError and ends.
// It also ends when the consumer stops ranging. Each call starts a fresh
// sequence.
func (q *Queue) Messages(ctx context.Context) iter.Seq2[*Message, error] {
	return func(yield func(*Message, error) bool) {
		for {
			msg, err := q.GetMessage(ctx)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(msg, nil) {
				return
			}
		}
	}
}

// Count returns the number of buffered messages. It is 0 once disposed.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many messages the drop-oldest policy has evicted.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Capacity returns the configured bound, 0 when unbounded.
func (q *Queue) Capacity() int {
	return q.capacity
}

// IsDisposed reports whether Dispose has been called.
func (q *Queue) IsDisposed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.disposed
}

// Dispose discards buffered messages and releases every suspended
// consumer with ErrDisposed. Further calls do nothing.
func (q *Queue) Dispose() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.disposed {
		return
	}
	q.disposed = true
	if n := len(q.items); n > 0 {
		q.logger.ComponentDebug(logging.ComponentPubSub, "Queue disposed with pending messages",
			zap.Int("pending", n))
	}
	q.items = nil
	q.waiters = nil
	close(q.done)
}

func (q *Queue) popLocked() *Message {
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return msg
}

func (q *Queue) removeWaiterLocked(w chan *Message) bool {
	for i, c := range q.waiters {
		if c == w {
			q.waiters = append(q.waiters[:i], q.waiters[i+1:]...)
			return true
		}
	}
	return false
}
