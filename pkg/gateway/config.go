package gateway

import (
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/client"
	"github.com/DeBrosOfficial/pushbridge/pkg/config"
	"github.com/DeBrosOfficial/pushbridge/pkg/pubsub"
)

// Config holds configuration for the gateway server
type Config struct {
	ListenAddr   string
	WriteTimeout time.Duration
	PingInterval time.Duration // 0 disables WebSocket pings

	// Applied to the push client behind every WebSocket stream.
	Queue        client.QueueConfig
	CloseTimeout time.Duration

	// Per-IP limit on publish requests. 0 disables it.
	RateLimitPerMinute int
	RateLimitBurst     int
}

// ConfigFromFile maps the process config onto gateway settings.
func ConfigFromFile(cfg *config.Config) (*Config, error) {
	overflow := pubsub.OverflowDropOldest
	if cfg.Queue.Capacity > 0 {
		var err error
		if overflow, err = pubsub.ParseOverflowPolicy(cfg.Queue.Overflow); err != nil {
			return nil, err
		}
	}
	return &Config{
		ListenAddr:   cfg.Gateway.ListenAddr,
		WriteTimeout: cfg.Gateway.WriteTimeout,
		PingInterval: cfg.Gateway.PingInterval,
		Queue: client.QueueConfig{
			Capacity: cfg.Queue.Capacity,
			Overflow: overflow,
		},
		CloseTimeout:       cfg.Client.CloseTimeout,
		RateLimitPerMinute: cfg.Gateway.RateLimitPerMinute,
		RateLimitBurst:     cfg.Gateway.RateLimitBurst,
	}, nil
}
