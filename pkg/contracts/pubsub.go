package contracts

import (
	"context"

	"github.com/DeBrosOfficial/pushbridge/pkg/callback"
	"github.com/DeBrosOfficial/pushbridge/pkg/registry"
)

// Subscriptions lists the channels a client listens on.
type Subscriptions struct {
	// Exact channel names.
	Channels []string `json:"channels,omitempty" yaml:"channels"`
	// Glob patterns, e.g. "news.*".
	Patterns []string `json:"patterns,omitempty" yaml:"patterns"`
	// Sharded channel names.
	Sharded []string `json:"sharded,omitempty" yaml:"sharded"`
}

// IsEmpty reports whether no channel of any kind is listed.
func (s Subscriptions) IsEmpty() bool {
	return len(s.Channels) == 0 && len(s.Patterns) == 0 && len(s.Sharded) == 0
}

// PushEngine delivers pub/sub pushes for subscribed client handles.
// Pushes may arrive on any goroutine, concurrently, and before Subscribe
// returns.
type PushEngine interface {
	// Subscribe starts delivering pushes for h through ep. The client must
	// already be registered with the manager that owns ep.
	Subscribe(ctx context.Context, h registry.Handle, subs Subscriptions, ep *callback.EntryPoint) error

	// Unsubscribe stops deliveries for h. Pushes already in flight may
	// still reach the entry point afterwards.
	Unsubscribe(ctx context.Context, h registry.Handle) error

	// Close stops the engine and all its deliveries.
	Close() error
}

// Publisher sends messages into an engine.
type Publisher interface {
	// Publish sends data to subscribers of an exact channel and to pattern
	// subscribers whose pattern matches it. It returns the receiver count.
	Publish(ctx context.Context, channel string, data []byte) (int, error)

	// SPublish sends data to subscribers of a sharded channel.
	SPublish(ctx context.Context, channel string, data []byte) (int, error)
}
