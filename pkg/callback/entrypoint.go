package callback

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"github.com/DeBrosOfficial/pushbridge/pkg/registry"
	"go.uber.org/zap"
)

// NativeCallback is the signature the push engine calls for every push.
// All buffers are borrowed and only valid until the call returns.
type NativeCallback func(
	kind PushKind,
	h registry.Handle,
	msgPtr unsafe.Pointer, msgLen uint64,
	chPtr unsafe.Pointer, chLen uint64,
	patPtr unsafe.Pointer, patLen uint64,
)

// EntryPoint is the single engine-facing callback of a Manager. It is
// pinned while the Manager is open so its address stays valid.
type EntryPoint struct {
	dispatch func(kind PushKind, h registry.Handle, content, channel, pattern RawBuffer)
	logger   *logging.ColoredLogger

	calls  atomic.Uint64
	panics atomic.Uint64
}

// Invoke routes one push. It is safe for concurrent use and never panics.
func (e *EntryPoint) Invoke(
	kind PushKind,
	h registry.Handle,
	msgPtr unsafe.Pointer, msgLen uint64,
	chPtr unsafe.Pointer, chLen uint64,
	patPtr unsafe.Pointer, patLen uint64,
) {
	e.calls.Add(1)
	defer func() {
		if r := recover(); r != nil {
			e.panics.Add(1)
			e.logger.ComponentError(logging.ComponentCallback, "Recovered panic in push dispatch",
				zap.Stringer("kind", kind),
				zap.Uint64("handle", uint64(h)),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	e.dispatch(kind, h,
		RawBuffer{Ptr: msgPtr, Len: msgLen},
		RawBuffer{Ptr: chPtr, Len: chLen},
		RawBuffer{Ptr: patPtr, Len: patLen})
}

// InvokeBuffers is Invoke for callers that already hold RawBuffers.
func (e *EntryPoint) InvokeBuffers(kind PushKind, h registry.Handle, content, channel, pattern RawBuffer) {
	e.Invoke(kind, h, content.Ptr, content.Len, channel.Ptr, channel.Len, pattern.Ptr, pattern.Len)
}

// Func returns the entry point as a NativeCallback value.
func (e *EntryPoint) Func() NativeCallback {
	return e.Invoke
}

// Addr returns the stable address handed to the engine.
func (e *EntryPoint) Addr() uintptr {
	return uintptr(unsafe.Pointer(e))
}

// Calls returns how many pushes have entered through this entry point.
func (e *EntryPoint) Calls() uint64 {
	return e.calls.Load()
}

// Panics returns how many dispatches panicked and were recovered.
func (e *EntryPoint) Panics() uint64 {
	return e.panics.Load()
}
