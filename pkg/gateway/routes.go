package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes returns the http.Handler with all routes and middleware configured.
// No request timeout middleware is installed since WebSocket streams are
// long lived.
func (g *Gateway) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(g.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(g.corsMiddleware)

	// root and v1 health/status
	r.Get("/health", g.healthHandler)
	r.Get("/v1/health", g.healthHandler)
	r.Get("/v1/status", g.statusHandler)

	// pubsub
	r.Route("/v1/pubsub", func(r chi.Router) {
		r.Get("/ws", g.pubsub.WebsocketHandler)
		r.With(g.rateLimitMiddleware).Post("/publish", g.pubsub.PublishHandler)
		r.Get("/stats", g.pubsub.StatsHandler)
	})

	return r
}
