package config

import (
	"os"
	"time"
)

// Config represents the full configuration of a push bridge process.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Queue   QueueConfig   `yaml:"queue"`
	Engine  EngineConfig  `yaml:"engine"`
	Client  ClientConfig  `yaml:"client"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// QueueConfig holds the back-pressure policy applied to every queued-mode
// client. Capacity 0 means unbounded.
type QueueConfig struct {
	Capacity int    `yaml:"capacity"`
	Overflow string `yaml:"overflow"` // drop_oldest, reject
}

// EngineConfig configures the in-process loopback push engine.
type EngineConfig struct {
	// BufferSize is the per-subscription channel depth of the topic bus.
	BufferSize int `yaml:"buffer_size"`
}

// ClientConfig holds defaults applied to every managed client.
type ClientConfig struct {
	CloseTimeout time.Duration `yaml:"close_timeout"` // bound on engine unsubscribe during Close
}

// GatewayConfig configures the HTTP/WebSocket gateway.
type GatewayConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PingInterval time.Duration `yaml:"ping_interval"`

	// Per-IP token bucket on the publish endpoint. 0 disables it.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	RateLimitBurst     int `yaml:"rate_limit_burst"`
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Queue: QueueConfig{
			Capacity: 0,
			Overflow: "drop_oldest",
		},
		Engine: EngineConfig{
			BufferSize: 64,
		},
		Client: ClientConfig{
			CloseTimeout: 5 * time.Second,
		},
		Gateway: GatewayConfig{
			ListenAddr:   ":6380",
			WriteTimeout: 10 * time.Second,
			PingInterval: 30 * time.Second,

			RateLimitPerMinute: 600,
			RateLimitBurst:     100,
		},
	}
}

// LoadFile reads a YAML config from path on top of DefaultConfig.
// Unknown keys are rejected.
func LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := DefaultConfig()
	if err := DecodeStrict(f, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
