package gateway

import (
	"net/http"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/httputil"
)

// healthResponse is the JSON structure used by healthHandler
type healthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}

func (g *Gateway) healthHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		StartedAt: g.startedAt,
		Uptime:    time.Since(g.startedAt).String(),
	})
}

// statusHandler reports uptime together with registry and dispatch counters.
func (g *Gateway) statusHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"server": map[string]any{
			"started_at": g.startedAt,
			"uptime":     time.Since(g.startedAt).String(),
		},
		"clients":  g.deps.Manager.ClientCount(),
		"dispatch": g.deps.Manager.Stats(),
	})
}
