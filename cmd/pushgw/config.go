package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/config"
)

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

func getEnvIntDefault(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvDurationDefault(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// loadConfig builds the process config.
// Priority: flags > env > config file > defaults.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("pushgw", flag.ContinueOnError)
	path := fs.String("config", getEnvDefault("PUSHGW_CONFIG", ""), "Path to a YAML config file")
	addr := fs.String("addr", "", "HTTP listen address (e.g., :6380)")
	level := fs.String("log-level", "", "Log level: debug, info, warn, error")
	capacity := fs.Int("queue-capacity", -1, "Per-client queue capacity, 0 for unbounded")
	overflow := fs.String("queue-overflow", "", "Overflow policy for bounded queues: drop_oldest, reject")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if *path != "" {
		loaded, err := config.LoadFile(*path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", *path, err)
		}
		cfg = loaded
	}

	cfg.Gateway.ListenAddr = getEnvDefault("PUSHGW_ADDR", cfg.Gateway.ListenAddr)
	cfg.Logging.Level = getEnvDefault("PUSHGW_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnvDefault("PUSHGW_LOG_FORMAT", cfg.Logging.Format)
	cfg.Queue.Capacity = getEnvIntDefault("PUSHGW_QUEUE_CAPACITY", cfg.Queue.Capacity)
	cfg.Queue.Overflow = getEnvDefault("PUSHGW_QUEUE_OVERFLOW", cfg.Queue.Overflow)
	cfg.Client.CloseTimeout = getEnvDurationDefault("PUSHGW_CLOSE_TIMEOUT", cfg.Client.CloseTimeout)

	if *addr != "" {
		cfg.Gateway.ListenAddr = *addr
	}
	if *level != "" {
		cfg.Logging.Level = *level
	}
	if *capacity >= 0 {
		cfg.Queue.Capacity = *capacity
	}
	if *overflow != "" {
		cfg.Queue.Overflow = *overflow
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return nil, fmt.Errorf("invalid configuration:\n  %s", strings.Join(msgs, "\n  "))
	}
	return cfg, nil
}
