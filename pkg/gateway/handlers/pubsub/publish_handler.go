package pubsub

import (
	"net/http"

	"github.com/DeBrosOfficial/pushbridge/pkg/httputil"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"go.uber.org/zap"
)

// PublishHandler handles POST /v1/pubsub/publish {channel, data_base64, sharded}
func (p *PubSubHandlers) PublishHandler(w http.ResponseWriter, r *http.Request) {
	if p.publisher == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "publisher not initialized")
		return
	}
	if !httputil.CheckMethod(w, r, http.MethodPost) {
		return
	}
	var body PublishRequest
	if err := httputil.DecodeJSON(w, r, &body); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid body: expected {channel,data_base64}")
		return
	}
	if !httputil.RequireNotEmpty(w, body.Channel, "channel") || !httputil.RequireNotEmpty(w, body.DataB64, "data_base64") {
		return
	}
	if !httputil.ValidateChannelName(body.Channel) {
		httputil.WriteError(w, http.StatusBadRequest, "invalid channel name")
		return
	}
	data, err := httputil.DecodeBase64(body.DataB64)
	if err != nil || len(data) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid base64 data")
		return
	}

	var receivers int
	if body.Sharded {
		receivers, err = p.publisher.SPublish(r.Context(), body.Channel, data)
	} else {
		receivers, err = p.publisher.Publish(r.Context(), body.Channel, data)
	}
	if err != nil {
		p.logger.ComponentWarn(logging.ComponentGateway, "pubsub publish failed",
			zap.String("channel", body.Channel),
			zap.Error(err))
		httputil.WriteErr(w, r, err)
		return
	}

	p.logger.ComponentDebug(logging.ComponentGateway, "pubsub publish",
		zap.String("channel", body.Channel),
		zap.Bool("sharded", body.Sharded),
		zap.Int("data_len", len(data)),
		zap.Int("receivers", receivers))

	httputil.WriteJSON(w, http.StatusOK, PublishResponse{Status: "ok", Receivers: receivers})
}

// StatsHandler handles GET /v1/pubsub/stats
func (p *PubSubHandlers) StatsHandler(w http.ResponseWriter, r *http.Request) {
	if p.manager == nil {
		httputil.WriteError(w, http.StatusServiceUnavailable, "engine not initialized")
		return
	}

	p.mu.RLock()
	open := len(p.conns)
	p.mu.RUnlock()

	resp := StatsResponse{
		Streams:      open,
		TotalStreams: p.streams.Load(),
		Dispatch:     p.manager.Stats(),
	}
	if p.opts.EngineStats != nil {
		resp.Engine = p.opts.EngineStats()
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
