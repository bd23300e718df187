package callback

import (
	"fmt"

	"github.com/DeBrosOfficial/pushbridge/pkg/pubsub"
)

// PushKind tags every push the engine delivers. Values match the engine's
// numbering and must not be reordered.
type PushKind uint32

const (
	PushDisconnection PushKind = iota
	PushOther
	PushInvalidate
	PushMessage
	PushPMessage
	PushSMessage
	PushUnsubscribe
	PushPUnsubscribe
	PushSUnsubscribe
	PushSubscribe
	PushPSubscribe
	PushSSubscribe
)

var pushKindNames = [...]string{
	PushDisconnection: "disconnection",
	PushOther:         "other",
	PushInvalidate:    "invalidate",
	PushMessage:       "message",
	PushPMessage:      "pmessage",
	PushSMessage:      "smessage",
	PushUnsubscribe:   "unsubscribe",
	PushPUnsubscribe:  "punsubscribe",
	PushSUnsubscribe:  "sunsubscribe",
	PushSubscribe:     "subscribe",
	PushPSubscribe:    "psubscribe",
	PushSSubscribe:    "ssubscribe",
}

func (k PushKind) String() string {
	if int(k) < len(pushKindNames) {
		return pushKindNames[k]
	}
	return fmt.Sprintf("PushKind(%d)", uint32(k))
}

// ChannelMode returns the message mode for data-carrying kinds.
// The bool is false for confirmations and other control pushes.
func (k PushKind) ChannelMode() (pubsub.ChannelMode, bool) {
	switch k {
	case PushMessage:
		return pubsub.ModeExact, true
	case PushPMessage:
		return pubsub.ModePattern, true
	case PushSMessage:
		return pubsub.ModeSharded, true
	default:
		return 0, false
	}
}

// IsConfirmation reports whether k acknowledges a subscribe or unsubscribe.
func (k PushKind) IsConfirmation() bool {
	return k >= PushUnsubscribe && k <= PushSSubscribe
}

// KindForMode returns the data-carrying kind for a channel mode.
func KindForMode(mode pubsub.ChannelMode) PushKind {
	switch mode {
	case pubsub.ModePattern:
		return PushPMessage
	case pubsub.ModeSharded:
		return PushSMessage
	default:
		return PushMessage
	}
}
