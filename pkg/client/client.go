// Package client provides the consumer-facing push client. A Client owns
// one subscription on a push engine and receives its pushes either through
// a callback or through a queue drained by the caller.
package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"iter"
	"runtime"
	"sync"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/callback"
	"github.com/DeBrosOfficial/pushbridge/pkg/contracts"
	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"github.com/DeBrosOfficial/pushbridge/pkg/pubsub"
	"github.com/DeBrosOfficial/pushbridge/pkg/registry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager is the callback manager type that routes pushes to Clients.
type Manager = callback.Manager[Client]

var (
	defaultManagerOnce sync.Once
	defaultManager     *Manager
)

func route(c *Client) callback.Router {
	return c.handler
}

// NewManager creates a Manager for Clients.
func NewManager(opts ...callback.Option) (*Manager, error) {
	return callback.NewManager(route, opts...)
}

// DefaultManager returns the process-wide Manager used when New is not
// given one. It is created on first use and lives for the whole process.
func DefaultManager() *Manager {
	defaultManagerOnce.Do(func() {
		m, err := NewManager()
		if err != nil {
			panic(fmt.Sprintf("client: default manager: %v", err))
		}
		defaultManager = m
	})
	return defaultManager
}

// Option configures New.
type Option func(*clientOptions)

type clientOptions struct {
	manager *callback.Manager[Client]
	logger  *logging.ColoredLogger
}

// WithManager routes the client's pushes through m instead of DefaultManager.
func WithManager(m *Manager) Option {
	return func(o *clientOptions) {
		if m != nil {
			o.manager = m
		}
	}
}

// WithLogger sets the base logger for the client.
func WithLogger(logger *logging.ColoredLogger) Option {
	return func(o *clientOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Client is one subscription on a push engine.
type Client struct {
	id      string
	handle  registry.Handle
	config  ClientConfig
	engine  contracts.PushEngine
	manager *callback.Manager[Client]
	handler *pubsub.Handler
	logger  *logging.ColoredLogger
	created time.Time

	cleanup   runtime.Cleanup
	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// releaseArgs is what the GC cleanup needs. It must not reference the Client.
type releaseArgs struct {
	handle  registry.Handle
	engine  contracts.PushEngine
	manager *callback.Manager[Client]
	handler *pubsub.Handler
	timeout time.Duration
}

// New creates a client and subscribes it on engine. The client is
// registered before the subscription handshake, so pushes that race the
// handshake are not lost.
func New(ctx context.Context, engine contracts.PushEngine, cfg *ClientConfig, opts ...Option) (*Client, error) {
	if engine == nil {
		return nil, NewClientError("new", "engine is required", errors.NewInvalidArgumentError("engine"))
	}
	if cfg == nil {
		return nil, NewClientError("new", "config is required", errors.NewInvalidArgumentError("config"))
	}
	if err := cfg.validate(); err != nil {
		return nil, NewClientError("new", "invalid configuration", fmt.Errorf("%w: %w", ErrInvalidConfig, err))
	}

	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}
	if o.manager == nil {
		o.manager = DefaultManager()
	}

	id := uuid.NewString()
	config := *cfg
	if config.CloseTimeout == 0 {
		config.CloseTimeout = DefaultCloseTimeout
	}
	logger := newClientLogger(o.logger, &config, id)

	c := &Client{
		id:      id,
		handle:  registry.NextHandle(),
		config:  config,
		engine:  engine,
		manager: o.manager,
		logger:  logger,
		created: time.Now(),
		closed:  make(chan struct{}),
	}
	c.handler = pubsub.NewHandler(config.Callback, config.CallbackState,
		pubsub.WithLogger(logger),
		pubsub.WithQueueOptions(pubsub.WithCapacity(config.Queue.Capacity, config.Queue.Overflow)))

	if err := c.manager.RegisterClient(c.handle, c); err != nil {
		c.handler.Dispose()
		return nil, NewClientError("new", "failed to register client", err)
	}

	ep, err := c.manager.NativeCallback()
	if err != nil {
		c.manager.UnregisterClient(c.handle)
		c.handler.Dispose()
		logger.ComponentError(logging.ComponentClient, "Native entry point unavailable", zap.Error(err))
		return nil, NewClientError("new", "native entry point unavailable", err)
	}

	if err := engine.Subscribe(ctx, c.handle, config.Subscriptions, ep); err != nil {
		c.manager.UnregisterClient(c.handle)
		c.handler.Dispose()
		logger.ComponentWarn(logging.ComponentClient, "Subscription handshake failed", zap.Error(err))
		return nil, NewClientError("subscribe", "subscription handshake failed", errors.NewEngineError("subscribe", "", err))
	}

	// A client dropped without Close still releases its engine subscription.
	c.cleanup = runtime.AddCleanup(c, release, releaseArgs{
		handle:  c.handle,
		engine:  engine,
		manager: c.manager,
		handler: c.handler,
		timeout: config.CloseTimeout,
	})

	logger.ComponentInfo(logging.ComponentClient, "Client subscribed",
		zap.Uint64("handle", uint64(c.handle)),
		zap.Strings("channels", config.Subscriptions.Channels),
		zap.Strings("patterns", config.Subscriptions.Patterns),
		zap.Strings("sharded", config.Subscriptions.Sharded),
		zap.Bool("callback_mode", c.handler.HasCallback()))
	return c, nil
}

func release(a releaseArgs) {
	a.manager.UnregisterClient(a.handle)
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	_ = a.engine.Unsubscribe(ctx, a.handle)
	a.handler.Dispose()
}

// ID returns the client's instance ID.
func (c *Client) ID() string { return c.id }

// Handle returns the handle the engine addresses this client by.
func (c *Client) Handle() registry.Handle { return c.handle }

// Name returns the configured client name.
func (c *Client) Name() string { return c.config.Name }

// Subscriptions returns the channels the client listens on.
func (c *Client) Subscriptions() contracts.Subscriptions { return c.config.Subscriptions }

// CallbackMode reports whether pushes go to a callback rather than a queue.
func (c *Client) CallbackMode() bool { return c.handler.HasCallback() }

func (c *Client) queue() (*pubsub.Queue, error) {
	q, err := c.handler.Queue()
	if err == nil {
		return q, nil
	}
	if stderrors.Is(err, pubsub.ErrNoQueue) {
		return nil, ErrCallbackMode
	}
	return nil, errors.NewDisposedError("client")
}

// TryGetMessage returns the next queued message without waiting.
func (c *Client) TryGetMessage() (*pubsub.Message, bool, error) {
	q, err := c.queue()
	if err != nil {
		return nil, false, err
	}
	return q.TryGetMessage()
}

// GetMessage waits for the next message until ctx is done or the client closes.
func (c *Client) GetMessage(ctx context.Context) (*pubsub.Message, error) {
	q, err := c.queue()
	if err != nil {
		return nil, err
	}
	return q.GetMessage(ctx)
}

// Messages returns a sequence of incoming messages. When ctx is done or
// the client closes it yields a final (nil, err) pair and ends. The
// returned error is ErrCallbackMode for callback clients.
func (c *Client) Messages(ctx context.Context) (iter.Seq2[*pubsub.Message, error], error) {
	q, err := c.queue()
	if err != nil {
		return nil, err
	}
	return q.Messages(ctx), nil
}

// Pending returns the number of queued messages, 0 in callback mode.
func (c *Client) Pending() int {
	q, err := c.queue()
	if err != nil {
		return 0
	}
	return q.Count()
}

// Dropped returns how many messages the queue's overflow policy evicted.
func (c *Client) Dropped() uint64 {
	q, err := c.queue()
	if err != nil {
		return 0
	}
	return q.Dropped()
}

// Done is closed once Close has finished.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Close unregisters the client, unsubscribes it from the engine and
// releases any consumer blocked in GetMessage or Messages. It is safe to
// call more than once; later calls return the first call's result.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cleanup.Stop()
		c.manager.UnregisterClient(c.handle)

		ctx, cancel := context.WithTimeout(context.Background(), c.config.CloseTimeout)
		err := c.engine.Unsubscribe(ctx, c.handle)
		cancel()

		c.handler.Dispose()

		if err != nil {
			if ctx.Err() == context.DeadlineExceeded {
				c.closeErr = NewClientError("close", "engine unsubscribe", errors.NewTimeoutError("unsubscribe", c.config.CloseTimeout.String()))
			} else {
				c.closeErr = NewClientError("close", "engine unsubscribe", errors.NewEngineError("unsubscribe", "", err))
			}
			c.logger.ComponentWarn(logging.ComponentClient, "Engine unsubscribe failed", zap.Error(err))
		}
		c.logger.ComponentInfo(logging.ComponentClient, "Client closed",
			zap.Uint64("handle", uint64(c.handle)),
			zap.Duration("lifetime", time.Since(c.created)))
		close(c.closed)
	})
	return c.closeErr
}
