package pubsub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/client"
	"github.com/DeBrosOfficial/pushbridge/pkg/contracts"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
)

// Options tunes the WebSocket stream.
type Options struct {
	WriteTimeout time.Duration
	PingInterval time.Duration // 0 disables pings
	Queue        client.QueueConfig
	CloseTimeout time.Duration
	// EngineStats, when set, is included in the stats response.
	EngineStats func() any
}

// PubSubHandlers handles all pubsub-related HTTP and WebSocket endpoints
type PubSubHandlers struct {
	engine    contracts.PushEngine
	publisher contracts.Publisher
	manager   *client.Manager
	logger    *logging.ColoredLogger
	opts      Options

	// Open WebSocket streams by connection ID
	conns   map[string]*client.Client
	mu      sync.RWMutex
	streams atomic.Uint64
}

// NewPubSubHandlers creates a new PubSubHandlers instance
func NewPubSubHandlers(engine contracts.PushEngine, publisher contracts.Publisher, manager *client.Manager, logger *logging.ColoredLogger, opts Options) *PubSubHandlers {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &PubSubHandlers{
		engine:    engine,
		publisher: publisher,
		manager:   manager,
		logger:    logger,
		opts:      opts,
		conns:     make(map[string]*client.Client),
	}
}

// PublishRequest represents the request body for publishing a message
type PublishRequest struct {
	Channel string `json:"channel"`
	DataB64 string `json:"data_base64"`
	Sharded bool   `json:"sharded,omitempty"`
}

// PublishResponse is returned by a successful publish.
type PublishResponse struct {
	Status    string `json:"status"`
	Receivers int    `json:"receivers"`
}

// Envelope is one pushed message as sent over the WebSocket. In JSON
// frames Data is base64 encoded; in CBOR frames it is a byte string.
type Envelope struct {
	Channel   string `json:"channel" cbor:"channel"`
	Pattern   string `json:"pattern,omitempty" cbor:"pattern,omitempty"`
	Mode      string `json:"mode" cbor:"mode"`
	Data      []byte `json:"data" cbor:"data"`
	Timestamp int64  `json:"timestamp" cbor:"timestamp"`
}

// StatsResponse is returned by the stats endpoint.
type StatsResponse struct {
	Streams      int    `json:"streams"`
	TotalStreams uint64 `json:"total_streams"`
	Dispatch     any    `json:"dispatch"`
	Engine       any    `json:"engine,omitempty"`
}

func (p *PubSubHandlers) track(connID string, c *client.Client) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[connID] = c
	p.streams.Add(1)
	return len(p.conns)
}

func (p *PubSubHandlers) untrack(connID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.conns, connID)
	return len(p.conns)
}

// Close closes every open stream's client. The sockets notice on their
// next write.
func (p *PubSubHandlers) Close() {
	p.mu.RLock()
	clients := make([]*client.Client, 0, len(p.conns))
	for _, c := range p.conns {
		clients = append(clients, c)
	}
	p.mu.RUnlock()

	for _, c := range clients {
		_ = c.Close()
	}
}
