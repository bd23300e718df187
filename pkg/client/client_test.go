package client

import (
	"context"
	stderrors "errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/callback"
	"github.com/DeBrosOfficial/pushbridge/pkg/contracts"
	"github.com/DeBrosOfficial/pushbridge/pkg/engine/loopback"
	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/pubsub"
	"github.com/DeBrosOfficial/pushbridge/pkg/registry"
)

// fakeEngine records calls and lets tests inject pushes and failures.
type fakeEngine struct {
	mu           sync.Mutex
	subscribed   map[registry.Handle]*callback.EntryPoint
	unsubscribed []registry.Handle
	subscribeErr error
	onSubscribe  func(h registry.Handle, ep *callback.EntryPoint)
	blockUnsub   bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{subscribed: make(map[registry.Handle]*callback.EntryPoint)}
}

func (f *fakeEngine) Subscribe(ctx context.Context, h registry.Handle, subs contracts.Subscriptions, ep *callback.EntryPoint) error {
	if f.onSubscribe != nil {
		f.onSubscribe(h, ep)
	}
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.mu.Lock()
	f.subscribed[h] = ep
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Unsubscribe(ctx context.Context, h registry.Handle) error {
	if f.blockUnsub {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribed, h)
	f.unsubscribed = append(f.unsubscribed, h)
	return nil
}

func (f *fakeEngine) Close() error { return nil }

func (f *fakeEngine) wasUnsubscribed(h registry.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.unsubscribed {
		if u == h {
			return true
		}
	}
	return false
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(m.Shutdown)
	return m
}

func testConfig(channels ...string) *ClientConfig {
	cfg := DefaultClientConfig("test")
	cfg.Subscriptions = contracts.Subscriptions{Channels: channels}
	return cfg
}

func push(ep *callback.EntryPoint, h registry.Handle, content, channel string) {
	c, ch := []byte(content), []byte(channel)
	ep.InvokeBuffers(callback.PushMessage, h, callback.BytesBuffer(c), callback.BytesBuffer(ch), callback.RawBuffer{})
}

func TestNew_Validation(t *testing.T) {
	m := newTestManager(t)
	engine := newFakeEngine()

	noName := testConfig("a")
	noName.Name = ""
	badQueue := testConfig("a")
	badQueue.Queue.Capacity = -1
	emptyChannel := testConfig("")

	tests := []struct {
		name       string
		engine     contracts.PushEngine
		cfg        *ClientConfig
		wantConfig bool
	}{
		{"nil engine", nil, testConfig("a"), false},
		{"nil config", engine, nil, false},
		{"no name", engine, noName, true},
		{"no subscriptions", engine, testConfig(), true},
		{"empty channel name", engine, emptyChannel, true},
		{"negative capacity", engine, badQueue, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(context.Background(), tt.engine, tt.cfg, WithManager(m))
			if err == nil {
				c.Close()
				t.Fatal("expected error")
			}
			var ce *ClientError
			if !stderrors.As(err, &ce) {
				t.Errorf("expected ClientError, got %T", err)
			}
			if tt.wantConfig && !stderrors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !tt.wantConfig && !errors.IsInvalidArgument(err) {
				t.Errorf("expected invalid argument, got %v", err)
			}
		})
	}
	if m.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d", m.ClientCount())
	}
}

func TestClient_QueuedConsumption(t *testing.T) {
	m := newTestManager(t)
	engine := loopback.New(loopback.Config{})
	defer engine.Close()

	c, err := New(context.Background(), engine, testConfig("news"), WithManager(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer c.Close()

	if c.CallbackMode() {
		t.Fatal("expected queued mode")
	}
	if c.Handle() == 0 || c.ID() == "" || c.Name() != "test" {
		t.Errorf("identity: handle=%d id=%q name=%q", c.Handle(), c.ID(), c.Name())
	}

	for _, s := range []string{"one", "two", "three"} {
		if _, err := engine.Publish(context.Background(), "news", []byte(s)); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	msg, err := c.GetMessage(ctx)
	if err != nil || msg.Content() != "one" {
		t.Fatalf("GetMessage = %v, %v", msg, err)
	}

	seq, err := c.Messages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var rest []string
	for msg, err := range seq {
		if err != nil {
			t.Fatalf("Messages yielded error: %v", err)
		}
		rest = append(rest, msg.Content())
		if len(rest) == 2 {
			break
		}
	}
	if len(rest) != 2 || rest[0] != "two" || rest[1] != "three" {
		t.Errorf("Messages yielded %v", rest)
	}
	if _, ok, err := c.TryGetMessage(); ok || err != nil {
		t.Errorf("TryGetMessage on empty queue: ok=%v err=%v", ok, err)
	}
}

func TestClient_MessagesEndsWithReason(t *testing.T) {
	m := newTestManager(t)
	engine := newFakeEngine()

	t.Run("close", func(t *testing.T) {
		c, err := New(context.Background(), engine, testConfig("ch"), WithManager(m))
		if err != nil {
			t.Fatal(err)
		}
		seq, err := c.Messages(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		done := make(chan error, 1)
		go func() {
			var last error
			for _, err := range seq {
				last = err
			}
			done <- last
		}()
		time.Sleep(20 * time.Millisecond)
		c.Close()

		select {
		case err := <-done:
			if !errors.IsDisposed(err) {
				t.Errorf("final error = %v, want disposed", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("sequence did not end on Close")
		}
	})

	t.Run("cancel", func(t *testing.T) {
		c, err := New(context.Background(), engine, testConfig("ch"), WithManager(m))
		if err != nil {
			t.Fatal(err)
		}
		defer c.Close()
		ctx, cancel := context.WithCancel(context.Background())
		seq, err := c.Messages(ctx)
		if err != nil {
			t.Fatal(err)
		}
		cancel()
		var last error
		for _, err := range seq {
			last = err
		}
		if !errors.IsCancelled(last) || errors.IsDisposed(last) {
			t.Errorf("final error = %v, want cancellation", last)
		}
	})
}

func TestClient_CallbackMode(t *testing.T) {
	m := newTestManager(t)
	engine := newFakeEngine()

	type state struct{ id int }
	st := &state{id: 7}
	got := make(chan *pubsub.Message, 1)

	cfg := testConfig("ch")
	cfg.Callback = func(msg *pubsub.Message, s any) error {
		if s != st {
			t.Errorf("state = %v", s)
		}
		got <- msg
		return nil
	}
	cfg.CallbackState = st

	c, err := New(context.Background(), engine, cfg, WithManager(m))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	push(engine.subscribed[c.Handle()], c.Handle(), "hi", "ch")
	select {
	case msg := <-got:
		if msg.Content() != "hi" {
			t.Errorf("got %v", msg)
		}
	default:
		t.Fatal("callback not invoked synchronously")
	}

	if _, _, err := c.TryGetMessage(); !stderrors.Is(err, ErrCallbackMode) {
		t.Errorf("TryGetMessage: %v", err)
	}
	if _, err := c.GetMessage(context.Background()); !stderrors.Is(err, ErrCallbackMode) {
		t.Errorf("GetMessage: %v", err)
	}
	if _, err := c.Messages(context.Background()); !stderrors.Is(err, ErrCallbackMode) {
		t.Errorf("Messages: %v", err)
	}
	if c.Pending() != 0 {
		t.Errorf("Pending() = %d", c.Pending())
	}
}

func TestNew_RegistersBeforeHandshake(t *testing.T) {
	m := newTestManager(t)
	engine := newFakeEngine()
	// The engine pushes before the handshake returns.
	engine.onSubscribe = func(h registry.Handle, ep *callback.EntryPoint) {
		push(ep, h, "early", "ch")
	}

	c, err := New(context.Background(), engine, testConfig("ch"), WithManager(m))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	msg, ok, err := c.TryGetMessage()
	if err != nil || !ok || msg.Content() != "early" {
		t.Fatalf("early push lost: %v %v %v", msg, ok, err)
	}
	if m.Stats().DroppedUnknownHandle != 0 {
		t.Errorf("stats = %+v", m.Stats())
	}
}

func TestNew_HandshakeFailure(t *testing.T) {
	m := newTestManager(t)
	engine := newFakeEngine()
	engine.subscribeErr = stderrors.New("connection refused")

	var ep *callback.EntryPoint
	var handle registry.Handle
	engine.onSubscribe = func(h registry.Handle, e *callback.EntryPoint) { handle, ep = h, e }

	_, err := New(context.Background(), engine, testConfig("ch"), WithManager(m))
	if !errors.IsEngine(err) {
		t.Fatalf("expected engine error, got %v", err)
	}
	if m.ClientCount() != 0 {
		t.Errorf("failed client left registered: %d", m.ClientCount())
	}

	// A straggling push for the failed client is dropped quietly.
	push(ep, handle, "late", "ch")
	if m.Stats().DroppedUnknownHandle != 1 {
		t.Errorf("stats = %+v", m.Stats())
	}
}

func TestNew_EntryPointUnavailable(t *testing.T) {
	m, err := NewManager()
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}

	_, err = New(context.Background(), newFakeEngine(), testConfig("ch"), WithManager(m))
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.IsDisposed(err) {
		t.Errorf("expected disposed manager error, got %v", err)
	}
	if m.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d", m.ClientCount())
	}
}

func TestClient_Close(t *testing.T) {
	m := newTestManager(t)
	engine := newFakeEngine()

	c, err := New(context.Background(), engine, testConfig("ch"), WithManager(m))
	if err != nil {
		t.Fatal(err)
	}
	ep := engine.subscribed[c.Handle()]

	waitErr := make(chan error, 1)
	go func() {
		_, err := c.GetMessage(context.Background())
		waitErr <- err
	}()
	time.Sleep(20 * time.Millisecond)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	select {
	case err := <-waitErr:
		if !errors.IsDisposed(err) {
			t.Errorf("waiter got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter not released by Close")
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done not closed")
	}

	if !engine.wasUnsubscribed(c.Handle()) {
		t.Error("engine not unsubscribed")
	}
	if m.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d", m.ClientCount())
	}
	if _, _, err := c.TryGetMessage(); !errors.IsDisposed(err) {
		t.Errorf("TryGetMessage after Close: %v", err)
	}

	// In-flight pushes after Close are dropped, not faults.
	push(ep, c.Handle(), "late", "ch")
	if m.Stats().DroppedUnknownHandle != 1 {
		t.Errorf("stats = %+v", m.Stats())
	}
}

func TestClient_CloseTimeout(t *testing.T) {
	m := newTestManager(t)
	engine := newFakeEngine()
	engine.blockUnsub = true

	cfg := testConfig("ch")
	cfg.CloseTimeout = 30 * time.Millisecond
	c, err := New(context.Background(), engine, cfg, WithManager(m))
	if err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	err = c.Close()
	if !errors.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Close took %v", elapsed)
	}
	if _, _, err := c.TryGetMessage(); !errors.IsDisposed(err) {
		t.Errorf("client must be disposed even when the engine times out: %v", err)
	}
	if again := c.Close(); again != err {
		t.Errorf("second Close returned %v", again)
	}
}

func TestClient_BoundedQueue(t *testing.T) {
	m := newTestManager(t)
	engine := newFakeEngine()

	cfg := testConfig("ch")
	cfg.Queue = QueueConfig{Capacity: 2, Overflow: pubsub.OverflowDropOldest}
	c, err := New(context.Background(), engine, cfg, WithManager(m))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	ep := engine.subscribed[c.Handle()]
	for _, s := range []string{"1", "2", "3", "4"} {
		push(ep, c.Handle(), s, "ch")
	}
	if c.Pending() != 2 || c.Dropped() != 2 {
		t.Errorf("Pending=%d Dropped=%d", c.Pending(), c.Dropped())
	}
	msg, _, _ := c.TryGetMessage()
	if msg.Content() != "3" {
		t.Errorf("head = %v", msg)
	}
}

//go:noinline
func abandonClient(t *testing.T, m *Manager, engine *fakeEngine) registry.Handle {
	c, err := New(context.Background(), engine, testConfig("ch"), WithManager(m))
	if err != nil {
		t.Fatal(err)
	}
	return c.Handle()
}

func TestClient_AbandonedClientIsReleased(t *testing.T) {
	m := newTestManager(t)
	engine := newFakeEngine()

	h := abandonClient(t, m, engine)

	deadline := time.Now().Add(3 * time.Second)
	for !engine.wasUnsubscribed(h) {
		if time.Now().After(deadline) {
			t.Skip("abandoned client not collected in time")
		}
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	if _, ok := m.LookupClient(h); ok {
		t.Error("abandoned client still reachable")
	}
}

func TestDefaultManager(t *testing.T) {
	if DefaultManager() != DefaultManager() {
		t.Fatal("DefaultManager is not a singleton")
	}

	c, err := New(context.Background(), newFakeEngine(), testConfig("ch"))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := DefaultManager().LookupClient(c.Handle()); !ok {
		t.Error("client not registered with the default manager")
	}
	c.Close()
	if _, ok := DefaultManager().LookupClient(c.Handle()); ok {
		t.Error("client still registered after Close")
	}
}
