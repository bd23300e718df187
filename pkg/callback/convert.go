package callback

import (
	"unsafe"

	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/pubsub"
)

// maxBufferLen caps a single borrowed buffer (512 MiB, the engine's bulk string limit).
const maxBufferLen = 512 << 20

// RawBuffer is a borrowed (pointer, length) pair owned by the engine.
// It is only valid for the duration of the callback.
type RawBuffer struct {
	Ptr unsafe.Pointer
	Len uint64
}

// BytesBuffer borrows b as a RawBuffer. b must outlive the callback.
func BytesBuffer(b []byte) RawBuffer {
	if len(b) == 0 {
		return RawBuffer{}
	}
	return RawBuffer{Ptr: unsafe.Pointer(unsafe.SliceData(b)), Len: uint64(len(b))}
}

// IsEmpty reports whether the buffer carries no bytes.
func (b RawBuffer) IsEmpty() bool {
	return b.Len == 0
}

// copyString copies the borrowed bytes into a Go string.
func (b RawBuffer) copyString(field string) (string, error) {
	if b.Len == 0 {
		return "", nil
	}
	if b.Ptr == nil {
		return "", errors.NewInvalidDataError(field, "null pointer with non-zero length", b.Len)
	}
	if b.Len > maxBufferLen {
		return "", errors.NewInvalidDataError(field, "buffer exceeds maximum length", b.Len)
	}
	return string(unsafe.Slice((*byte)(b.Ptr), int(b.Len))), nil
}

// toMessage validates borrowed buffers and copies them into a Message.
// A pattern sent with a non-pattern kind is ignored.
func toMessage(mode pubsub.ChannelMode, content, channel, pattern RawBuffer) (*pubsub.Message, error) {
	if content.IsEmpty() {
		return nil, errors.NewInvalidDataError("content", "empty buffer", 0)
	}
	if channel.IsEmpty() {
		return nil, errors.NewInvalidDataError("channel", "empty buffer", 0)
	}

	c, err := content.copyString("content")
	if err != nil {
		return nil, err
	}
	ch, err := channel.copyString("channel")
	if err != nil {
		return nil, err
	}

	var pat string
	if mode == pubsub.ModePattern {
		if pattern.IsEmpty() {
			return nil, errors.NewInvalidDataError("pattern", "missing for pattern push", 0)
		}
		if pat, err = pattern.copyString("pattern"); err != nil {
			return nil, err
		}
	}

	msg, err := pubsub.NewMessage(c, ch, pat, mode)
	if err != nil {
		return nil, errors.NewInvalidDataError("message", err.Error(), content.Len)
	}
	return msg, nil
}
