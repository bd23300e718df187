package pubsub

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"go.uber.org/zap"
)

// ErrNoQueue is returned by Handler.Queue when the handler delivers
// through a callback.
var ErrNoQueue = stderrors.New("handler delivers through a callback and has no queue")

// MessageCallback receives a message together with the state supplied at
// registration. It runs on the engine's delivery goroutine.
type MessageCallback func(msg *Message, state any) error

// HandlerOption configures a Handler.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	logger    *logging.ColoredLogger
	queueOpts []QueueOption
}

// WithLogger sets the logger for callback failures and queue reports.
func WithLogger(logger *logging.ColoredLogger) HandlerOption {
	return func(o *handlerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithQueueOptions passes options to the owned queue in queued mode.
func WithQueueOptions(opts ...QueueOption) HandlerOption {
	return func(o *handlerOptions) {
		o.queueOpts = append(o.queueOpts, opts...)
	}
}

// Handler is the per-client delivery point. With a callback it delivers
// synchronously on the caller's goroutine; without one it buffers into an
// owned Queue. The mode is fixed at construction.
type Handler struct {
	callback MessageCallback
	state    any
	queue    *Queue
	logger   *logging.ColoredLogger

	mu       sync.RWMutex
	disposed bool
}

// NewHandler creates a Handler. A nil callback selects queued mode.
func NewHandler(callback MessageCallback, state any, opts ...HandlerOption) *Handler {
	o := &handlerOptions{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(o)
	}

	h := &Handler{
		callback: callback,
		state:    state,
		logger:   o.logger,
	}
	if callback == nil {
		h.queue = NewQueue(append([]QueueOption{WithQueueLogger(o.logger)}, o.queueOpts...)...)
	}
	return h
}

// HandleMessage delivers msg. Callback errors and panics are logged and
// swallowed so they never reach the engine.
func (h *Handler) HandleMessage(msg *Message) error {
	if msg == nil {
		return errors.NewInvalidArgumentError("message")
	}

	h.mu.RLock()
	disposed := h.disposed
	h.mu.RUnlock()
	if disposed {
		return errors.NewDisposedError("handler")
	}

	if h.callback == nil {
		return h.queue.EnqueueMessage(msg)
	}

	h.invoke(msg)
	return nil
}

func (h *Handler) invoke(msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.ComponentError(logging.ComponentPubSub, "Message callback panicked",
				zap.String("channel", msg.Channel()),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	if err := h.callback(msg, h.state); err != nil {
		h.logger.ComponentWarn(logging.ComponentPubSub, "Message callback returned error",
			zap.String("channel", msg.Channel()),
			zap.Error(err))
	}
}

// Queue returns the owned queue.
func (h *Handler) Queue() (*Queue, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.disposed {
		return nil, errors.NewDisposedError("handler")
	}
	if h.queue == nil {
		return nil, ErrNoQueue
	}
	return h.queue, nil
}

// HasCallback reports whether the handler is in synchronous mode.
func (h *Handler) HasCallback() bool {
	return h.callback != nil
}

// IsDisposed reports whether Dispose has been called.
func (h *Handler) IsDisposed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.disposed
}

// Dispose marks the handler disposed and disposes its queue. A callback
// already running is left to finish. Further calls do nothing.
func (h *Handler) Dispose() {
	h.mu.Lock()
	if h.disposed {
		h.mu.Unlock()
		return
	}
	h.disposed = true
	h.mu.Unlock()

	if h.queue != nil {
		h.queue.Dispose()
	}
}
