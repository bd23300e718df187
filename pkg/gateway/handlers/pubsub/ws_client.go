package pubsub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"github.com/DeBrosOfficial/pushbridge/pkg/pubsub"
	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Any origin is accepted; put the gateway behind a proxy to restrict it.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Encoding selects the frame format of a stream.
type Encoding string

const (
	EncodingJSON Encoding = "json"
	EncodingCBOR Encoding = "cbor"
)

// parseEncoding defaults to JSON.
func parseEncoding(s string) (Encoding, bool) {
	switch Encoding(s) {
	case "", EncodingJSON:
		return EncodingJSON, true
	case EncodingCBOR:
		return EncodingCBOR, true
	default:
		return "", false
	}
}

func newEnvelope(msg *pubsub.Message) Envelope {
	pattern, _ := msg.Pattern()
	return Envelope{
		Channel:   msg.Channel(),
		Pattern:   pattern,
		Mode:      msg.Mode().String(),
		Data:      []byte(msg.Content()),
		Timestamp: time.Now().UnixMilli(),
	}
}

// encodeEnvelope returns the websocket message type and payload for env.
func encodeEnvelope(enc Encoding, env Envelope) (int, []byte, error) {
	if enc == EncodingCBOR {
		b, err := cbor.Marshal(env)
		return websocket.BinaryMessage, b, err
	}
	b, err := json.Marshal(env)
	return websocket.TextMessage, b, err
}

// wsClient wraps a WebSocket connection with message handling
type wsClient struct {
	conn         *websocket.Conn
	connID       string
	encoding     Encoding
	writeTimeout time.Duration
	logger       *logging.ColoredLogger
	writeMu      sync.Mutex
}

// newWSClient creates a new WebSocket client wrapper
func newWSClient(conn *websocket.Conn, connID string, enc Encoding, writeTimeout time.Duration, logger *logging.ColoredLogger) *wsClient {
	return &wsClient{
		conn:         conn,
		connID:       connID,
		encoding:     enc,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// writeMessage sends a message to the WebSocket client with proper envelope formatting
func (c *wsClient) writeMessage(msg *pubsub.Message) error {
	mt, payload, err := encodeEnvelope(c.encoding, newEnvelope(msg))
	if err != nil {
		c.logger.ComponentWarn(logging.ComponentGateway, "pubsub ws: failed to encode envelope",
			zap.String("conn_id", c.connID),
			zap.String("channel", msg.Channel()),
			zap.Error(err))
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(mt, payload); err != nil {
		c.logger.ComponentWarn(logging.ComponentGateway, "pubsub ws: failed to write to websocket",
			zap.String("conn_id", c.connID),
			zap.Error(err))
		return err
	}

	c.logger.ComponentDebug(logging.ComponentGateway, "pubsub ws: message sent",
		zap.String("conn_id", c.connID),
		zap.String("channel", msg.Channel()),
		zap.Int("bytes", len(payload)))
	return nil
}

// writeText sends a raw text frame, used for publish errors.
func (c *wsClient) writeText(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// writeControl sends a WebSocket control message
func (c *wsClient) writeControl(messageType int, data []byte, deadline time.Time) error {
	return c.conn.WriteControl(messageType, data, deadline)
}

// readMessage reads a message from the WebSocket client
func (c *wsClient) readMessage() (messageType int, data []byte, err error) {
	return c.conn.ReadMessage()
}

// close closes the WebSocket connection
func (c *wsClient) close() error {
	return c.conn.Close()
}
