// Package gateway exposes the push bridge over HTTP: a WebSocket stream
// per subscriber, a publish endpoint and dispatch statistics.
package gateway

import (
	"context"
	"net/http"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/client"
	"github.com/DeBrosOfficial/pushbridge/pkg/contracts"
	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	pubsubhandlers "github.com/DeBrosOfficial/pushbridge/pkg/gateway/handlers/pubsub"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"go.uber.org/zap"
)

// Dependencies are the services the gateway fronts.
type Dependencies struct {
	Engine    contracts.PushEngine
	Publisher contracts.Publisher
	Manager   *client.Manager

	// EngineStats is optional and reported by the stats endpoint.
	EngineStats func() any
}

type Gateway struct {
	logger      *logging.ColoredLogger
	cfg         *Config
	deps        Dependencies
	pubsub      *pubsubhandlers.PubSubHandlers
	rateLimiter *RateLimiter
	startedAt   time.Time
	server      *http.Server
}

// New creates and initializes a new Gateway instance
func New(logger *logging.ColoredLogger, cfg *Config, deps Dependencies) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.NewInvalidArgumentError("config")
	}
	if deps.Engine == nil || deps.Manager == nil {
		return nil, errors.NewInvalidArgumentError("dependencies")
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	gw := &Gateway{
		logger:    logger,
		cfg:       cfg,
		deps:      deps,
		startedAt: time.Now(),
	}
	gw.pubsub = pubsubhandlers.NewPubSubHandlers(deps.Engine, deps.Publisher, deps.Manager, logger, pubsubhandlers.Options{
		WriteTimeout: cfg.WriteTimeout,
		PingInterval: cfg.PingInterval,
		Queue:        cfg.Queue,
		CloseTimeout: cfg.CloseTimeout,
		EngineStats:  deps.EngineStats,
	})

	if cfg.RateLimitPerMinute > 0 {
		gw.rateLimiter = NewRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	}

	logger.ComponentInfo(logging.ComponentGateway, "Gateway created",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.Int("queue_capacity", cfg.Queue.Capacity),
		zap.Stringer("queue_overflow", cfg.Queue.Overflow),
		zap.Int("rate_limit_per_minute", cfg.RateLimitPerMinute))
	return gw, nil
}

// ListenAndServe serves Routes on the configured address until Shutdown.
func (g *Gateway) ListenAndServe() error {
	g.server = &http.Server{
		Addr:              g.cfg.ListenAddr,
		Handler:           g.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if g.rateLimiter != nil {
		g.rateLimiter.StartCleanup(time.Minute, 10*time.Minute)
	}

	g.logger.ComponentInfo(logging.ComponentGateway, "Gateway HTTP server starting",
		zap.String("addr", g.cfg.ListenAddr))
	if err := g.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown ends every WebSocket stream and stops the HTTP server.
func (g *Gateway) Shutdown(ctx context.Context) error {
	// Hijacked connections are not tracked by http.Server.
	g.pubsub.Close()
	if g.rateLimiter != nil {
		g.rateLimiter.Stop()
	}
	if g.server == nil {
		return nil
	}
	return g.server.Shutdown(ctx)
}
