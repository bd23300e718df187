package loopback

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/callback"
	"github.com/DeBrosOfficial/pushbridge/pkg/contracts"
	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"github.com/DeBrosOfficial/pushbridge/pkg/pubsub"
	"github.com/DeBrosOfficial/pushbridge/pkg/registry"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type sink struct {
	handler *pubsub.Handler
}

func routeSink(s *sink) callback.Router { return s.handler }

type harness struct {
	engine  *Engine
	manager *callback.Manager[sink]
	ep      *callback.EntryPoint
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, logs := logging.NewObservedLogger(zapcore.DebugLevel)
	m, err := callback.NewManager(routeSink, callback.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	ep, err := m.NativeCallback()
	if err != nil {
		t.Fatal(err)
	}
	e := New(Config{BufferSize: 16})
	t.Cleanup(func() {
		_ = e.Close()
		m.Shutdown()
	})
	return &harness{engine: e, manager: m, ep: ep, logs: logs}
}

func (h *harness) subscribe(t *testing.T, handle registry.Handle, subs contracts.Subscriptions) *pubsub.Queue {
	t.Helper()
	s := h.subscribeHandler(t, handle, subs, pubsub.NewHandler(nil, nil))
	q, _ := s.handler.Queue()
	return q
}

func (h *harness) subscribeHandler(t *testing.T, handle registry.Handle, subs contracts.Subscriptions, handler *pubsub.Handler) *sink {
	t.Helper()
	s := &sink{handler: handler}
	t.Cleanup(func() {
		s.handler.Dispose()
		runtime.KeepAlive(s)
	})
	if err := h.manager.RegisterClient(handle, s); err != nil {
		t.Fatal(err)
	}
	if err := h.engine.Subscribe(context.Background(), handle, subs, h.ep); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	return s
}

// confirmations returns the channel and count of each logged confirmation
// of kind, in delivery order.
func (h *harness) confirmations(kind callback.PushKind) [][2]string {
	var out [][2]string
	for _, e := range h.logs.FilterMessageSnippet("Subscription change acknowledged").All() {
		fields := e.ContextMap()
		if fields["kind"] != kind.String() {
			continue
		}
		ch, _ := fields["channel"].(string)
		count, _ := fields["count"].(string)
		out = append(out, [2]string{ch, count})
	}
	return out
}

func receive(t *testing.T, q *pubsub.Queue) *pubsub.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := q.GetMessage(ctx)
	if err != nil {
		t.Fatalf("GetMessage: %v", err)
	}
	return msg
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestEngine_PublishExactInOrder(t *testing.T) {
	h := newHarness(t)
	q := h.subscribe(t, 1, contracts.Subscriptions{Channels: []string{"news"}})

	for i := 0; i < 20; i++ {
		n, err := h.engine.Publish(context.Background(), "news", []byte(fmt.Sprint(i)))
		if err != nil {
			t.Fatalf("Publish: %v", err)
		}
		if n != 1 {
			t.Fatalf("receivers = %d, want 1", n)
		}
	}
	for i := 0; i < 20; i++ {
		msg := receive(t, q)
		if msg.Content() != fmt.Sprint(i) || msg.Channel() != "news" || msg.Mode() != pubsub.ModeExact {
			t.Fatalf("message %d = %v", i, msg)
		}
	}
}

func TestEngine_PatternAndSharded(t *testing.T) {
	h := newHarness(t)
	pq := h.subscribe(t, 1, contracts.Subscriptions{Patterns: []string{"news.*"}})
	sq := h.subscribe(t, 2, contracts.Subscriptions{Sharded: []string{"orders{1}"}})

	n, err := h.engine.Publish(context.Background(), "news.eu", []byte("hello"))
	if err != nil || n != 1 {
		t.Fatalf("Publish = %d, %v", n, err)
	}
	if n, _ := h.engine.Publish(context.Background(), "sports", []byte("nope")); n != 0 {
		t.Errorf("non-matching publish reached %d receivers", n)
	}

	msg := receive(t, pq)
	if p, ok := msg.Pattern(); !ok || p != "news.*" || msg.Channel() != "news.eu" {
		t.Errorf("pattern message = %v", msg)
	}

	if n, err := h.engine.SPublish(context.Background(), "orders{1}", []byte("o")); err != nil || n != 1 {
		t.Fatalf("SPublish = %d, %v", n, err)
	}
	msg = receive(t, sq)
	if msg.Mode() != pubsub.ModeSharded || msg.Channel() != "orders{1}" {
		t.Errorf("sharded message = %v", msg)
	}

	// A sharded channel is not reachable through Publish.
	if n, _ := h.engine.Publish(context.Background(), "orders{1}", []byte("x")); n != 0 {
		t.Errorf("Publish reached sharded subscriber")
	}
	if pq.Count() != 0 || sq.Count() != 0 {
		t.Errorf("unexpected extra messages: %d, %d", pq.Count(), sq.Count())
	}
}

func TestEngine_SubscribeConfirmations(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, 1, contracts.Subscriptions{
		Channels: []string{"a", "b"},
		Patterns: []string{"c.*"},
		Sharded:  []string{"d"},
	})

	eventually(t, func() bool { return h.manager.Stats().Control == 4 }, "subscribe confirmations")
	if h.manager.Stats().Delivered != 0 {
		t.Error("confirmations must not produce messages")
	}

	tests := []struct {
		kind callback.PushKind
		want [][2]string
	}{
		{callback.PushSubscribe, [][2]string{{"a", "1"}, {"b", "2"}}},
		{callback.PushPSubscribe, [][2]string{{"c.*", "3"}}},
		{callback.PushSSubscribe, [][2]string{{"d", "1"}}},
	}
	for _, tt := range tests {
		if got := h.confirmations(tt.kind); !slices.Equal(got, tt.want) {
			t.Errorf("%s confirmations = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestEngine_UnsubscribeConfirmationCounts(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, 1, contracts.Subscriptions{
		Channels: []string{"a", "b"},
		Patterns: []string{"c.*"},
		Sharded:  []string{"d", "e"},
	})
	eventually(t, func() bool { return h.manager.Stats().Control == 5 }, "subscribe confirmations")

	if err := h.engine.Unsubscribe(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return h.manager.Stats().Control == 10 }, "unsubscribe confirmations")

	tests := []struct {
		kind callback.PushKind
		want [][2]string
	}{
		{callback.PushUnsubscribe, [][2]string{{"a", "2"}, {"b", "1"}}},
		{callback.PushPUnsubscribe, [][2]string{{"c.*", "0"}}},
		{callback.PushSUnsubscribe, [][2]string{{"d", "1"}, {"e", "0"}}},
	}
	for _, tt := range tests {
		if got := h.confirmations(tt.kind); !slices.Equal(got, tt.want) {
			t.Errorf("%s confirmations = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestEngine_Unsubscribe(t *testing.T) {
	h := newHarness(t)
	q := h.subscribe(t, 1, contracts.Subscriptions{Channels: []string{"news"}, Patterns: []string{"n*"}})
	eventually(t, func() bool { return h.manager.Stats().Control == 2 }, "subscribe confirmations")

	if err := h.engine.Unsubscribe(context.Background(), 1); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	eventually(t, func() bool { return h.manager.Stats().Control == 4 }, "unsubscribe confirmations")

	n, err := h.engine.Publish(context.Background(), "news", []byte("late"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("receivers = %d after unsubscribe", n)
	}
	if q.Count() != 0 {
		t.Error("message delivered after unsubscribe")
	}
	if err := h.engine.Unsubscribe(context.Background(), 1); err != nil {
		t.Errorf("second Unsubscribe: %v", err)
	}
	if h.engine.Stats().Subscribers != 0 {
		t.Errorf("stats = %+v", h.engine.Stats())
	}
}

func TestEngine_SubscribeValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		subs contracts.Subscriptions
		ep   *callback.EntryPoint
	}{
		{"nil entry point", contracts.Subscriptions{Channels: []string{"a"}}, nil},
		{"empty subscriptions", contracts.Subscriptions{}, h.ep},
		{"bad pattern", contracts.Subscriptions{Patterns: []string{"news.["}}, h.ep},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := h.engine.Subscribe(context.Background(), 9, tt.subs, tt.ep); err == nil {
				t.Fatal("expected error")
			}
		})
	}

	h.subscribe(t, 1, contracts.Subscriptions{Channels: []string{"a"}})
	if err := h.engine.Subscribe(context.Background(), 1, contracts.Subscriptions{Channels: []string{"b"}}, h.ep); !errors.IsEngine(err) {
		t.Errorf("duplicate handle: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.engine.Subscribe(ctx, 2, contracts.Subscriptions{Channels: []string{"a"}}, h.ep); !errors.IsCancelled(err) {
		t.Errorf("cancelled subscribe: %v", err)
	}
}

func TestEngine_PublishValidation(t *testing.T) {
	h := newHarness(t)
	if _, err := h.engine.Publish(context.Background(), "", []byte("x")); !errors.IsValidation(err) {
		t.Errorf("empty channel: %v", err)
	}
	if _, err := h.engine.Publish(context.Background(), "a", nil); !errors.IsValidation(err) {
		t.Errorf("empty data: %v", err)
	}
	if _, err := h.engine.SPublish(context.Background(), "", []byte("x")); !errors.IsValidation(err) {
		t.Errorf("empty sharded channel: %v", err)
	}
}

func TestEngine_PublishCopiesData(t *testing.T) {
	h := newHarness(t)
	q := h.subscribe(t, 1, contracts.Subscriptions{Channels: []string{"a"}})

	data := []byte("before")
	if _, err := h.engine.Publish(context.Background(), "a", data); err != nil {
		t.Fatal(err)
	}
	copy(data, "AFTER!")

	if msg := receive(t, q); msg.Content() != "before" {
		t.Errorf("content = %q", msg.Content())
	}
}

func TestEngine_CloseDisconnects(t *testing.T) {
	h := newHarness(t)
	h.subscribe(t, 1, contracts.Subscriptions{Channels: []string{"a"}})
	h.subscribe(t, 2, contracts.Subscriptions{Channels: []string{"b"}})
	eventually(t, func() bool { return h.manager.Stats().Control == 2 }, "subscribe confirmations")

	if err := h.engine.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close waits for the pumps, so the disconnections are already counted.
	if got := h.manager.Stats().Control; got != 4 {
		t.Errorf("control pushes = %d, want 4", got)
	}
	if _, err := h.engine.Publish(context.Background(), "a", []byte("x")); !errors.IsEngine(err) {
		t.Errorf("Publish after Close: %v", err)
	}
	if err := h.engine.Subscribe(context.Background(), 3, contracts.Subscriptions{Channels: []string{"a"}}, h.ep); !errors.IsEngine(err) {
		t.Errorf("Subscribe after Close: %v", err)
	}
	if err := h.engine.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestEngine_FanOut(t *testing.T) {
	h := newHarness(t)
	const clients = 5
	queues := make([]*pubsub.Queue, clients)
	for i := range queues {
		queues[i] = h.subscribe(t, registry.Handle(i+1), contracts.Subscriptions{Channels: []string{"all"}})
	}

	n, err := h.engine.Publish(context.Background(), "all", []byte("hi"))
	if err != nil || n != clients {
		t.Fatalf("Publish = %d, %v", n, err)
	}
	for i, q := range queues {
		if msg := receive(t, q); msg.Content() != "hi" {
			t.Errorf("client %d got %v", i, msg)
		}
	}
	eventually(t, func() bool { return h.engine.Stats().Pushed == clients }, "pushes")
}

func TestEngine_BlockedCallbackDoesNotStallOthers(t *testing.T) {
	h := newHarness(t)

	release := make(chan struct{})
	var releaseOnce sync.Once
	t.Cleanup(func() { releaseOnce.Do(func() { close(release) }) })

	var mu sync.Mutex
	var slowSeen []string
	slow := pubsub.NewHandler(func(msg *pubsub.Message, _ any) error {
		<-release
		mu.Lock()
		slowSeen = append(slowSeen, msg.Content())
		mu.Unlock()
		return nil
	}, nil)
	h.subscribeHandler(t, 1, contracts.Subscriptions{Channels: []string{"shared"}}, slow)
	fast := h.subscribe(t, 2, contracts.Subscriptions{Channels: []string{"shared"}})
	h.subscribe(t, 3, contracts.Subscriptions{Channels: []string{"other"}})

	const total = 100
	published := make(chan error, 1)
	go func() {
		for i := 0; i < total; i++ {
			if _, err := h.engine.Publish(context.Background(), "shared", []byte(fmt.Sprint(i))); err != nil {
				published <- err
				return
			}
		}
		published <- nil
	}()
	select {
	case err := <-published:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("publisher stalled behind a blocked callback")
	}

	for i := 0; i < total; i++ {
		if msg := receive(t, fast); msg.Content() != fmt.Sprint(i) {
			t.Fatalf("fast client message %d = %v", i, msg)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.engine.Unsubscribe(ctx, 3); err != nil {
		t.Fatalf("unrelated Unsubscribe stalled: %v", err)
	}

	releaseOnce.Do(func() { close(release) })
	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(slowSeen) == total
	}, "slow client backlog")
	mu.Lock()
	defer mu.Unlock()
	for i, c := range slowSeen {
		if c != fmt.Sprint(i) {
			t.Fatalf("slow client message %d = %q", i, c)
		}
	}
}
