// Package loopback is an in-process push engine. Each subscribed client
// gets its own pump goroutine that hands pushes to the callback entry
// point as borrowed buffers, the same way a native engine would. A
// forwarder per client drains the topic bus into a private backlog, so a
// client whose callback blocks only delays itself.
package loopback

import (
	"bytes"
	"context"
	"path"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/DeBrosOfficial/pushbridge/pkg/callback"
	"github.com/DeBrosOfficial/pushbridge/pkg/contracts"
	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"github.com/DeBrosOfficial/pushbridge/pkg/registry"
	"github.com/cskr/pubsub"
	"go.uber.org/zap"
)

const (
	exactPrefix   = "exact:"
	patternPrefix = "pattern:"
	shardedPrefix = "sharded:"
)

// DefaultBufferSize is the per-subscriber depth of the topic bus.
const DefaultBufferSize = 64

// push is what travels on the bus. data is shared by all receivers and
// must not be modified.
type push struct {
	kind    callback.PushKind
	channel string
	pattern string
	data    []byte
}

type subscription struct {
	handle   registry.Handle
	subs     contracts.Subscriptions
	ch       chan interface{}
	done     chan struct{}
	shutdown atomic.Bool

	mu      sync.Mutex
	backlog []push
	drained bool // bus channel closed
	wake    chan struct{}
}

// forward moves pushes from the bus into the backlog. It never waits on
// the entry point, so the bus goroutine is never held up by this client.
func (s *subscription) forward() {
	for v := range s.ch {
		p, ok := v.(push)
		if !ok {
			continue
		}
		s.mu.Lock()
		s.backlog = append(s.backlog, p)
		s.mu.Unlock()
		s.signal()
	}
	s.mu.Lock()
	s.drained = true
	s.mu.Unlock()
	s.signal()
}

func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// next returns the oldest backlog entry. ok is false once the bus channel
// is closed and the backlog is empty.
func (s *subscription) next() (push, bool) {
	for {
		s.mu.Lock()
		if len(s.backlog) > 0 {
			p := s.backlog[0]
			s.backlog[0] = push{}
			s.backlog = s.backlog[1:]
			if len(s.backlog) == 0 {
				s.backlog = nil
			}
			s.mu.Unlock()
			return p, true
		}
		drained := s.drained
		s.mu.Unlock()
		if drained {
			return push{}, false
		}
		<-s.wake
	}
}

func (s *subscription) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.backlog)
}

// Config configures an Engine.
type Config struct {
	BufferSize int
	Logger     *logging.ColoredLogger
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Pushed      uint64 `json:"pushed"`
	Backlog     int    `json:"backlog"`
}

// Engine implements contracts.PushEngine and contracts.Publisher on top
// of an in-memory topic bus.
type Engine struct {
	bus    *pubsub.PubSub
	logger *logging.ColoredLogger

	mu        sync.RWMutex
	clients   map[registry.Handle]*subscription
	topicSubs map[string]int // bus topic -> subscriber count
	patterns  map[string]int // pattern -> subscriber count
	closed    bool

	wg        sync.WaitGroup // pumps and forwarders
	ops       sync.WaitGroup // bus calls made outside mu
	published atomic.Uint64
	pushed    atomic.Uint64
}

var (
	_ contracts.PushEngine = (*Engine)(nil)
	_ contracts.Publisher  = (*Engine)(nil)
)

// New creates an Engine.
func New(cfg Config) *Engine {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	return &Engine{
		bus:       pubsub.New(cfg.BufferSize),
		logger:    cfg.Logger,
		clients:   make(map[registry.Handle]*subscription),
		topicSubs: make(map[string]int),
		patterns:  make(map[string]int),
	}
}

func busTopics(subs contracts.Subscriptions) []string {
	topics := make([]string, 0, len(subs.Channels)+len(subs.Patterns)+len(subs.Sharded))
	for _, c := range subs.Channels {
		topics = append(topics, exactPrefix+c)
	}
	for _, p := range subs.Patterns {
		topics = append(topics, patternPrefix+p)
	}
	for _, s := range subs.Sharded {
		topics = append(topics, shardedPrefix+s)
	}
	return topics
}

// Subscribe starts a pump for h. Subscribe confirmations are pushed first,
// then messages in publish order.
func (e *Engine) Subscribe(ctx context.Context, h registry.Handle, subs contracts.Subscriptions, ep *callback.EntryPoint) error {
	if ep == nil {
		return errors.NewInvalidArgumentError("entry point")
	}
	if subs.IsEmpty() {
		return errors.NewValidationError("subscriptions", "nothing to subscribe to", nil)
	}
	for _, p := range subs.Patterns {
		if _, err := path.Match(p, ""); err != nil {
			return errors.NewValidationError("patterns", "malformed pattern", p)
		}
	}
	if err := ctx.Err(); err != nil {
		return errors.NewCancelledError("subscribe", err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.NewEngineError("subscribe", "engine is closed", nil)
	}
	if _, exists := e.clients[h]; exists {
		e.mu.Unlock()
		return errors.NewEngineError("subscribe", "handle already subscribed", nil)
	}

	topics := busTopics(subs)
	sub := &subscription{
		handle: h,
		subs:   subs,
		ch:     e.bus.Sub(topics...),
		done:   make(chan struct{}),
		wake:   make(chan struct{}, 1),
	}
	e.clients[h] = sub
	for _, t := range topics {
		e.topicSubs[t]++
	}
	for _, p := range subs.Patterns {
		e.patterns[p]++
	}
	e.wg.Add(2)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		sub.forward()
	}()
	go e.pump(sub, ep)

	e.logger.ComponentDebug(logging.ComponentEngine, "Subscribed",
		zap.Uint64("handle", uint64(h)),
		zap.Int("topics", len(topics)))
	return nil
}

// Unsubscribe removes h from the bus. Its pump drains what was already
// queued for it and then pushes unsubscribe confirmations.
func (e *Engine) Unsubscribe(ctx context.Context, h registry.Handle) error {
	e.mu.Lock()
	sub, ok := e.clients[h]
	if !ok || e.closed {
		e.mu.Unlock()
		return nil
	}
	delete(e.clients, h)
	for _, t := range busTopics(sub.subs) {
		if e.topicSubs[t]--; e.topicSubs[t] <= 0 {
			delete(e.topicSubs, t)
		}
	}
	for _, p := range sub.subs.Patterns {
		if e.patterns[p]--; e.patterns[p] <= 0 {
			delete(e.patterns, p)
		}
	}
	e.ops.Add(1)
	e.mu.Unlock()

	unsubbed := make(chan struct{})
	go func() {
		defer e.ops.Done()
		e.bus.Unsub(sub.ch)
		close(unsubbed)
	}()

	select {
	case <-unsubbed:
		e.logger.ComponentDebug(logging.ComponentEngine, "Unsubscribed",
			zap.Uint64("handle", uint64(h)))
		return nil
	case <-ctx.Done():
		return errors.NewCancelledError("unsubscribe", ctx.Err())
	}
}

// Publish sends data to exact subscribers of channel and to every pattern
// subscriber whose pattern matches it. Pushes from one publisher reach each
// subscriber in publish order.
func (e *Engine) Publish(ctx context.Context, channel string, data []byte) (int, error) {
	if channel == "" {
		return 0, errors.NewValidationError("channel", "must not be empty", channel)
	}
	if len(data) == 0 {
		return 0, errors.NewValidationError("data", "must not be empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancelledError("publish", err)
	}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return 0, errors.NewEngineError("publish", "engine is closed", nil)
	}
	receivers := e.topicSubs[exactPrefix+channel]
	var matched []string
	for p := range e.patterns {
		if ok, _ := path.Match(p, channel); ok {
			matched = append(matched, p)
			receivers += e.topicSubs[patternPrefix+p]
		}
	}
	e.ops.Add(1)
	e.mu.RUnlock()
	defer e.ops.Done()

	payload := bytes.Clone(data)
	e.bus.Pub(push{kind: callback.PushMessage, channel: channel, data: payload}, exactPrefix+channel)
	for _, p := range matched {
		e.bus.Pub(push{kind: callback.PushPMessage, channel: channel, pattern: p, data: payload}, patternPrefix+p)
	}

	e.published.Add(1)
	return receivers, nil
}

// SPublish sends data to subscribers of a sharded channel.
func (e *Engine) SPublish(ctx context.Context, channel string, data []byte) (int, error) {
	if channel == "" {
		return 0, errors.NewValidationError("channel", "must not be empty", channel)
	}
	if len(data) == 0 {
		return 0, errors.NewValidationError("data", "must not be empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return 0, errors.NewCancelledError("spublish", err)
	}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return 0, errors.NewEngineError("spublish", "engine is closed", nil)
	}
	receivers := e.topicSubs[shardedPrefix+channel]
	e.ops.Add(1)
	e.mu.RUnlock()
	defer e.ops.Done()

	e.bus.Pub(push{kind: callback.PushSMessage, channel: channel, data: bytes.Clone(data)}, shardedPrefix+channel)
	e.published.Add(1)
	return receivers, nil
}

func (e *Engine) pump(sub *subscription, ep *callback.EntryPoint) {
	defer e.wg.Done()
	defer close(sub.done)

	e.confirm(ep, sub, true)

	for {
		p, ok := sub.next()
		if !ok {
			break
		}
		channel := []byte(p.channel)
		var pattern []byte
		if p.pattern != "" {
			pattern = []byte(p.pattern)
		}
		ep.InvokeBuffers(p.kind, sub.handle,
			callback.BytesBuffer(p.data),
			callback.BytesBuffer(channel),
			callback.BytesBuffer(pattern))
		e.pushed.Add(1)
	}

	if sub.shutdown.Load() {
		ep.InvokeBuffers(callback.PushDisconnection, sub.handle, callback.RawBuffer{}, callback.RawBuffer{}, callback.RawBuffer{})
		return
	}
	e.confirm(ep, sub, false)
}

// confirm pushes one confirmation per channel with the client's
// subscription count after that change as content. Exact channels and
// patterns share a count; sharded channels keep their own.
func (e *Engine) confirm(ep *callback.EntryPoint, sub *subscription, subscribe bool) {
	kinds := [3]callback.PushKind{callback.PushUnsubscribe, callback.PushPUnsubscribe, callback.PushSUnsubscribe}
	if subscribe {
		kinds = [3]callback.PushKind{callback.PushSubscribe, callback.PushPSubscribe, callback.PushSSubscribe}
	}
	groups := []struct {
		kind    callback.PushKind
		names   []string
		pattern bool
		sharded bool
	}{
		{kinds[0], sub.subs.Channels, false, false},
		{kinds[1], sub.subs.Patterns, true, false},
		{kinds[2], sub.subs.Sharded, false, true},
	}

	regular := len(sub.subs.Channels) + len(sub.subs.Patterns)
	sharded := len(sub.subs.Sharded)
	var nRegular, nSharded int
	if !subscribe {
		nRegular, nSharded = regular, sharded
	}

	for _, g := range groups {
		for _, name := range g.names {
			n := &nRegular
			if g.sharded {
				n = &nSharded
			}
			if subscribe {
				*n++
			} else {
				*n--
			}
			count := []byte(strconv.Itoa(*n))
			channel := []byte(name)
			var pattern []byte
			if g.pattern {
				pattern = channel
			}
			ep.InvokeBuffers(g.kind, sub.handle,
				callback.BytesBuffer(count),
				callback.BytesBuffer(channel),
				callback.BytesBuffer(pattern))
		}
	}
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	n := len(e.clients)
	backlog := 0
	for _, sub := range e.clients {
		backlog += sub.pending()
	}
	e.mu.RUnlock()
	return Stats{
		Subscribers: n,
		Published:   e.published.Load(),
		Pushed:      e.pushed.Load(),
		Backlog:     backlog,
	}
}

// Close stops the bus. Every pump delivers its backlog, pushes a
// disconnection and exits, so Close waits on callbacks still running.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for h, sub := range e.clients {
		sub.shutdown.Store(true)
		delete(e.clients, h)
	}
	clear(e.topicSubs)
	clear(e.patterns)
	e.mu.Unlock()

	// No bus call may be in flight once the bus loop stops.
	e.ops.Wait()
	e.bus.Shutdown()
	e.wg.Wait()
	e.logger.ComponentInfo(logging.ComponentEngine, "Loopback engine closed")
	return nil
}
