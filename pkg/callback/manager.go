// Package callback routes pushes from the engine to registered clients.
//
// A Manager owns one pinned EntryPoint that the engine calls for every push.
// The entry point resolves the client handle through a weak registry and
// forwards the message to that client's Router. Pushes for handles that are
// unknown or already collected are dropped, since they are the normal
// result of a client closing while the engine still has pushes in flight.
package callback

import (
	stderrors "errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"github.com/DeBrosOfficial/pushbridge/pkg/pubsub"
	"github.com/DeBrosOfficial/pushbridge/pkg/registry"
	"go.uber.org/zap"
)

// ErrClientsRegistered is returned by Close while clients are still registered.
var ErrClientsRegistered = stderrors.New("callback manager still has registered clients")

// Router receives messages for one client. *pubsub.Handler implements it.
type Router interface {
	HandleMessage(msg *pubsub.Message) error
}

// Stats is a snapshot of dispatch counters.
type Stats struct {
	Delivered            uint64 `json:"delivered"`
	DroppedUnknownHandle uint64 `json:"dropped_unknown_handle"`
	DroppedInvalid       uint64 `json:"dropped_invalid"`
	DroppedRejected      uint64 `json:"dropped_rejected"`
	Control              uint64 `json:"control"`
	Unhandled            uint64 `json:"unhandled"`
	Clients              int    `json:"clients"`
}

type counters struct {
	delivered     atomic.Uint64
	unknownHandle atomic.Uint64
	invalid       atomic.Uint64
	rejected      atomic.Uint64
	control       atomic.Uint64
	unhandled     atomic.Uint64
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	logger *logging.ColoredLogger
}

// WithLogger sets the logger used by the manager, its registry and entry point.
func WithLogger(logger *logging.ColoredLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Manager routes engine pushes to clients of type T.
type Manager[T any] struct {
	registry *registry.Registry[T]
	route    func(*T) Router
	logger   *logging.ColoredLogger
	stats    counters

	mu     sync.Mutex
	ep     *EntryPoint
	pinner runtime.Pinner
	closed bool
}

// NewManager creates a Manager. route returns the Router of a live client.
func NewManager[T any](route func(*T) Router, opts ...Option) (*Manager[T], error) {
	if route == nil {
		return nil, errors.NewInvalidArgumentError("route")
	}
	o := &options{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(o)
	}
	return &Manager[T]{
		registry: registry.New[T](registry.WithLogger(o.logger)),
		route:    route,
		logger:   o.logger,
	}, nil
}

// RegisterClient makes client reachable by h. The registry holds it weakly.
func (m *Manager[T]) RegisterClient(h registry.Handle, client *T) error {
	if err := m.registry.Register(h, client); err != nil {
		return err
	}
	m.logger.ComponentDebug(logging.ComponentCallback, "Client registered",
		zap.Uint64("handle", uint64(h)))
	return nil
}

// UnregisterClient removes h. Unknown handles are ignored.
func (m *Manager[T]) UnregisterClient(h registry.Handle) {
	if m.registry.Unregister(h) {
		m.logger.ComponentDebug(logging.ComponentCallback, "Client unregistered",
			zap.Uint64("handle", uint64(h)))
	}
}

// LookupClient returns the live client registered under h.
func (m *Manager[T]) LookupClient(h registry.Handle) (*T, bool) {
	return m.registry.Lookup(h)
}

// ClientCount returns the number of tracked clients.
func (m *Manager[T]) ClientCount() int {
	return m.registry.Count()
}

// CleanupDeadReferences prunes clients collected without unregistering.
func (m *Manager[T]) CleanupDeadReferences() int {
	return m.registry.CleanupDeadReferences()
}

// NativeCallback returns the manager's entry point, creating and pinning
// it on first use. Every call returns the same EntryPoint.
func (m *Manager[T]) NativeCallback() (*EntryPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, errors.NewDisposedError("callback manager")
	}
	if m.ep != nil {
		return m.ep, nil
	}

	ep := &EntryPoint{dispatch: m.Dispatch, logger: m.logger}
	if err := m.pin(ep); err != nil {
		return nil, err
	}
	m.ep = ep
	m.logger.ComponentInfo(logging.ComponentCallback, "Native entry point created",
		zap.Uintptr("addr", ep.Addr()))
	return ep, nil
}

func (m *Manager[T]) pin(ep *EntryPoint) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError(fmt.Sprintf("pin entry point: %v", r), nil).
				WithOperation("native_callback")
		}
	}()
	m.pinner.Pin(ep)
	return nil
}

// Dispatch converts one push into a Message and hands it to the client
// registered under h. It never returns an error: invalid data and unknown
// handles are logged, counted and dropped.
func (m *Manager[T]) Dispatch(kind PushKind, h registry.Handle, content, channel, pattern RawBuffer) {
	mode, ok := kind.ChannelMode()
	if !ok {
		m.handleControl(kind, h, content, channel)
		return
	}

	msg, err := toMessage(mode, content, channel, pattern)
	if err != nil {
		m.stats.invalid.Add(1)
		m.logger.ComponentError(logging.ComponentCallback, "Dropping invalid push",
			zap.Stringer("kind", kind),
			zap.Uint64("handle", uint64(h)),
			zap.Error(err))
		return
	}

	client, ok := m.registry.Lookup(h)
	if !ok {
		m.stats.unknownHandle.Add(1)
		m.logger.ComponentDebug(logging.ComponentCallback, "Dropping push for unknown client",
			zap.Uint64("handle", uint64(h)),
			zap.String("channel", msg.Channel()))
		return
	}

	router := m.route(client)
	if router == nil {
		m.stats.unknownHandle.Add(1)
		return
	}

	if err := router.HandleMessage(msg); err != nil {
		m.stats.rejected.Add(1)
		if errors.IsDisposed(err) {
			m.logger.ComponentDebug(logging.ComponentCallback, "Dropping push for closing client",
				zap.Uint64("handle", uint64(h)))
			return
		}
		m.logger.ComponentWarn(logging.ComponentCallback, "Client rejected push",
			zap.Uint64("handle", uint64(h)),
			zap.String("channel", msg.Channel()),
			zap.Error(err))
		return
	}
	m.stats.delivered.Add(1)
}

// handleControl logs pushes that carry no message. Confirmations carry the
// remaining subscription count as content.
func (m *Manager[T]) handleControl(kind PushKind, h registry.Handle, content, channel RawBuffer) {
	ch, _ := channel.copyString("channel")
	fields := []zap.Field{
		zap.Stringer("kind", kind),
		zap.Uint64("handle", uint64(h)),
		zap.String("channel", ch),
	}
	if count, err := content.copyString("content"); err == nil && count != "" {
		fields = append(fields, zap.String("count", count))
	}

	switch {
	case kind.IsConfirmation():
		m.stats.control.Add(1)
		m.logger.ComponentDebug(logging.ComponentCallback, "Subscription change acknowledged", fields...)
	case kind == PushDisconnection:
		m.stats.control.Add(1)
		m.logger.ComponentInfo(logging.ComponentCallback, "Engine reported disconnection", fields...)
	default:
		m.stats.unhandled.Add(1)
		m.logger.ComponentWarn(logging.ComponentCallback, "Ignoring unsupported push", fields...)
	}
}

// Stats returns a snapshot of the dispatch counters.
func (m *Manager[T]) Stats() Stats {
	return Stats{
		Delivered:            m.stats.delivered.Load(),
		DroppedUnknownHandle: m.stats.unknownHandle.Load(),
		DroppedInvalid:       m.stats.invalid.Load(),
		DroppedRejected:      m.stats.rejected.Load(),
		Control:              m.stats.control.Load(),
		Unhandled:            m.stats.unhandled.Load(),
		Clients:              m.registry.Count(),
	}
}

// Close unpins the entry point. It refuses while live clients remain
// registered, because the engine may still call the entry point for them.
func (m *Manager[T]) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.registry.CleanupDeadReferences()
	if n := m.registry.Count(); n > 0 {
		return fmt.Errorf("%w: %d", ErrClientsRegistered, n)
	}
	if m.ep != nil {
		m.pinner.Unpin()
	}
	m.closed = true
	m.logger.ComponentInfo(logging.ComponentCallback, "Callback manager closed")
	return nil
}

// Shutdown drops every registration and unpins the entry point. It is for
// process teardown, once the engine has stopped calling the entry point.
func (m *Manager[T]) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.registry.Clear()
	if m.ep != nil {
		m.pinner.Unpin()
	}
	m.closed = true
	m.logger.ComponentInfo(logging.ComponentCallback, "Callback manager shut down")
}
