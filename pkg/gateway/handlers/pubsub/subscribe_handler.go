package pubsub

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/client"
	"github.com/DeBrosOfficial/pushbridge/pkg/contracts"
	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/httputil"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebsocketHandler upgrades to WS, creates one queued push client for the
// connection and streams its messages as envelopes. Frames sent by the peer
// are published to the connection's exact channels.
//
// Query: channel=a&channel=b&pattern=news.*&sharded=s&encoding=json|cbor
func (p *PubSubHandlers) WebsocketHandler(w http.ResponseWriter, r *http.Request) {
	if p.engine == nil || p.manager == nil {
		p.logger.ComponentWarn(logging.ComponentGateway, "pubsub ws: engine not initialized")
		httputil.WriteError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}
	if !httputil.CheckMethod(w, r, http.MethodGet) {
		return
	}

	subs := contracts.Subscriptions{
		Channels: httputil.QueryValues(r, "channel"),
		Patterns: httputil.QueryValues(r, "pattern"),
		Sharded:  httputil.QueryValues(r, "sharded"),
	}
	if subs.IsEmpty() {
		p.logger.ComponentWarn(logging.ComponentGateway, "pubsub ws: missing subscriptions")
		httputil.WriteError(w, http.StatusBadRequest, "missing 'channel', 'pattern' or 'sharded'")
		return
	}
	for _, name := range slices.Concat(subs.Channels, subs.Sharded) {
		if !httputil.ValidateChannelName(name) {
			httputil.WriteError(w, http.StatusBadRequest, "invalid channel name: "+name)
			return
		}
	}
	for _, pat := range subs.Patterns {
		if !httputil.ValidatePattern(pat) {
			httputil.WriteError(w, http.StatusBadRequest, "malformed pattern: "+pat)
			return
		}
	}
	enc, ok := parseEncoding(r.URL.Query().Get("encoding"))
	if !ok {
		httputil.WriteError(w, http.StatusBadRequest, "unsupported encoding; expected json or cbor")
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.ComponentWarn(logging.ComponentGateway, "pubsub ws: upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.New().String()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := client.DefaultClientConfig("ws-" + connID)
	cfg.Subscriptions = subs
	cfg.Queue = p.opts.Queue
	if p.opts.CloseTimeout > 0 {
		cfg.CloseTimeout = p.opts.CloseTimeout
	}

	c, err := client.New(ctx, p.engine, cfg, client.WithManager(p.manager), client.WithLogger(p.logger))
	if err != nil {
		p.logger.ComponentWarn(logging.ComponentGateway, "pubsub ws: client setup failed",
			zap.String("conn_id", connID),
			zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"),
			time.Now().Add(5*time.Second))
		return
	}

	total := p.track(connID, c)
	p.logger.ComponentInfo(logging.ComponentGateway, "pubsub ws: stream opened",
		zap.String("conn_id", connID),
		zap.Strings("channels", subs.Channels),
		zap.Strings("patterns", subs.Patterns),
		zap.Strings("sharded", subs.Sharded),
		zap.String("encoding", string(enc)),
		zap.Int("open_streams", total))

	defer func() {
		_ = c.Close()
		remaining := p.untrack(connID)
		p.logger.ComponentInfo(logging.ComponentGateway, "pubsub ws: stream closed",
			zap.String("conn_id", connID),
			zap.Int("open_streams", remaining))
	}()

	ws := newWSClient(conn, connID, enc, p.opts.WriteTimeout, p.logger)
	done := make(chan struct{})
	go p.writerLoop(ctx, ws, c, done)

	p.readerLoop(ctx, ws, subs.Channels)
	cancel()
	<-done
}

// writerLoop drains the client's queue into the socket until the peer goes
// away, ctx is cancelled or the client is closed.
func (p *PubSubHandlers) writerLoop(ctx context.Context, ws *wsClient, c *client.Client, done chan struct{}) {
	defer close(done)
	// Unblocks the reader when the writer stops first.
	defer ws.close()

	msgs, err := c.Messages(ctx)
	if err != nil {
		return
	}

	if p.opts.PingInterval > 0 {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			ticker := time.NewTicker(p.opts.PingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					// Ping keepalive
					_ = ws.writeControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
				case <-stop:
					return
				}
			}
		}()
	}

	closeCode, reason := websocket.CloseNormalClosure, ""
	for msg, err := range msgs {
		if err != nil {
			if errors.IsDisposed(err) {
				closeCode, reason = websocket.CloseGoingAway, "client closed"
			}
			break
		}
		if err := ws.writeMessage(msg); err != nil {
			return
		}
	}

	_ = ws.writeControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, reason),
		time.Now().Add(5*time.Second))
}

// readerLoop handles reading messages from the WebSocket client and publishing them
func (p *PubSubHandlers) readerLoop(ctx context.Context, ws *wsClient, channels []string) {
	for {
		mt, data, err := ws.readMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 || p.publisher == nil || len(channels) == 0 {
			continue
		}

		// Filter out heartbeat messages
		var msg map[string]interface{}
		if err := json.Unmarshal(data, &msg); err == nil {
			if msgType, ok := msg["type"].(string); ok && msgType == "ping" {
				continue
			}
		}

		for _, ch := range channels {
			if _, err := p.publisher.Publish(ctx, ch, data); err != nil {
				// Best-effort notify client
				_ = ws.writeText([]byte("publish_error"))
				break
			}
		}
	}
}
