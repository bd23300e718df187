//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"math/rand"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/client"
	"github.com/DeBrosOfficial/pushbridge/pkg/engine/loopback"
	"github.com/DeBrosOfficial/pushbridge/pkg/gateway"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// GetGatewayURL returns the gateway under test. PUSHGW_URL points the
// suite at a running process; otherwise an in-process gateway is started.
func GetGatewayURL(t *testing.T) string {
	t.Helper()
	if u := strings.TrimSpace(os.Getenv("PUSHGW_URL")); u != "" {
		return strings.TrimRight(u, "/")
	}
	return startLocalGateway(t)
}

func startLocalGateway(t *testing.T) string {
	t.Helper()
	logger := logging.NewNopLogger()
	if os.Getenv("E2E_VERBOSE") != "" {
		var err error
		logger, err = logging.NewLogger(logging.Options{Level: "debug", Format: "console"})
		require.NoError(t, err)
	}

	engine := loopback.New(loopback.Config{Logger: logger})
	manager, err := client.NewManager()
	require.NoError(t, err)

	gw, err := gateway.New(logger, &gateway.Config{
		WriteTimeout: 5 * time.Second,
		PingInterval: time.Second,
	}, gateway.Dependencies{
		Engine:      engine,
		Publisher:   engine,
		Manager:     manager,
		EngineStats: func() any { return engine.Stats() },
	})
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Routes())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
		srv.Close()
		_ = engine.Close()
		manager.Shutdown()
	})
	return srv.URL
}

// GenerateChannel returns a channel name unique to this run.
func GenerateChannel() string {
	return fmt.Sprintf("e2e-%d-%d", time.Now().UnixNano(), rand.Intn(100000))
}

// DialStream opens a WebSocket stream with the given query.
func DialStream(t *testing.T, baseURL, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/v1/pubsub/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
