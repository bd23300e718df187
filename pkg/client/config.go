package client

import (
	"time"

	"github.com/DeBrosOfficial/pushbridge/pkg/contracts"
	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/pubsub"
)

// QueueConfig bounds the message queue of a queued-mode client.
// Capacity 0 means unbounded.
type QueueConfig struct {
	Capacity int                   `json:"capacity"`
	Overflow pubsub.OverflowPolicy `json:"overflow"`
}

// ClientConfig represents configuration for a push client
type ClientConfig struct {
	Name          string                  `json:"name"`
	Subscriptions contracts.Subscriptions `json:"subscriptions"`

	// Callback selects synchronous delivery. Leave nil to consume through
	// TryGetMessage, GetMessage or Messages.
	Callback      pubsub.MessageCallback `json:"-"`
	CallbackState any                    `json:"-"`

	Queue        QueueConfig   `json:"queue"`
	QuietMode    bool          `json:"quiet_mode"`    // Suppress debug/info logs
	CloseTimeout time.Duration `json:"close_timeout"` // Bound on engine unsubscribe during Close
}

// DefaultCloseTimeout bounds how long Close waits for the engine.
const DefaultCloseTimeout = 5 * time.Second

// DefaultClientConfig returns a default client configuration
func DefaultClientConfig(name string) *ClientConfig {
	return &ClientConfig{
		Name:         name,
		Queue:        QueueConfig{Capacity: 0, Overflow: pubsub.OverflowDropOldest},
		QuietMode:    false,
		CloseTimeout: DefaultCloseTimeout,
	}
}

func (c *ClientConfig) validate() error {
	if c.Name == "" {
		return errors.NewValidationError("name", "is required", c.Name)
	}
	if c.Subscriptions.IsEmpty() {
		return errors.NewValidationError("subscriptions", "at least one channel, pattern or sharded channel is required", nil)
	}
	for field, list := range map[string][]string{
		"subscriptions.channels": c.Subscriptions.Channels,
		"subscriptions.patterns": c.Subscriptions.Patterns,
		"subscriptions.sharded":  c.Subscriptions.Sharded,
	} {
		for _, name := range list {
			if name == "" {
				return errors.NewValidationError(field, "must not contain empty names", list)
			}
		}
	}
	if c.Queue.Capacity < 0 {
		return errors.NewValidationError("queue.capacity", "must be >= 0", c.Queue.Capacity)
	}
	if c.CloseTimeout < 0 {
		return errors.NewValidationError("close_timeout", "must be >= 0", c.CloseTimeout)
	}
	return nil
}
