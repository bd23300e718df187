package pubsub

import (
	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
)

// ChannelMode tells how a subscriber was matched to a message's channel.
type ChannelMode int

const (
	// ModeExact is a plain channel subscription.
	ModeExact ChannelMode = iota
	// ModePattern is a glob pattern subscription; the message carries the pattern.
	ModePattern
	// ModeSharded is a sharded channel subscription.
	ModeSharded
)

// String returns the lowercase mode name used in logs and envelopes.
func (m ChannelMode) String() string {
	switch m {
	case ModeExact:
		return "exact"
	case ModePattern:
		return "pattern"
	case ModeSharded:
		return "sharded"
	default:
		return "unknown"
	}
}

// Message is an immutable push notification delivered to a subscriber.
type Message struct {
	content string
	channel string
	pattern string
	mode    ChannelMode
}

// NewMessage validates and builds a Message. Content and channel must be
// non-empty, and pattern must be set exactly when mode is ModePattern.
func NewMessage(content, channel, pattern string, mode ChannelMode) (*Message, error) {
	if content == "" {
		return nil, errors.NewValidationError("content", "must not be empty", content)
	}
	if channel == "" {
		return nil, errors.NewValidationError("channel", "must not be empty", channel)
	}
	switch mode {
	case ModeExact, ModeSharded:
		if pattern != "" {
			return nil, errors.NewValidationError("pattern", "only allowed for pattern subscriptions", pattern)
		}
	case ModePattern:
		if pattern == "" {
			return nil, errors.NewValidationError("pattern", "required for pattern subscriptions", pattern)
		}
	default:
		return nil, errors.NewValidationError("mode", "unknown channel mode", int(mode))
	}
	return &Message{content: content, channel: channel, pattern: pattern, mode: mode}, nil
}

// Content returns the message payload.
func (m *Message) Content() string { return m.content }

// Channel returns the channel the message was published to.
func (m *Message) Channel() string { return m.channel }

// Pattern returns the matching pattern and whether one is present.
func (m *Message) Pattern() (string, bool) { return m.pattern, m.mode == ModePattern }

// Mode returns the channel mode.
func (m *Message) Mode() ChannelMode { return m.mode }

// Equal reports whether two messages carry the same fields.
func (m *Message) Equal(other *Message) bool {
	if m == nil || other == nil {
		return m == other
	}
	return *m == *other
}

func (m *Message) String() string {
	if m.mode == ModePattern {
		return "pattern " + m.pattern + " on " + m.channel + ": " + m.content
	}
	return m.mode.String() + " " + m.channel + ": " + m.content
}
