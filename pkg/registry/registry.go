// Package registry maps client handles to clients without keeping the
// clients alive.
package registry

import (
	"sync"
	"sync/atomic"
	"weak"

	"github.com/DeBrosOfficial/pushbridge/pkg/errors"
	"github.com/DeBrosOfficial/pushbridge/pkg/logging"
	"go.uber.org/zap"
)

// Handle identifies a client to the push engine. Zero is never assigned.
type Handle uint64

var lastHandle atomic.Uint64

// NextHandle returns a process-unique, non-zero handle.
func NextHandle() Handle {
	return Handle(lastHandle.Add(1))
}

// entry is what the map stores. Entries are compared by pointer in
// CompareAndDelete, so each Register allocates a fresh one.
type entry[T any] struct {
	ref weak.Pointer[T]
}

// Registry is a concurrent handle to client table holding weak references.
// Reads never take a lock. A client that is collected without being
// unregistered shows up as not-found and its entry is pruned lazily.
type Registry[T any] struct {
	entries sync.Map // Handle -> *entry[T]
	count   atomic.Int64
	logger  *logging.ColoredLogger
}

// Option configures a Registry.
type Option func(*options)

type options struct {
	logger *logging.ColoredLogger
}

// WithLogger sets the registry logger.
func WithLogger(logger *logging.ColoredLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// New creates an empty Registry.
func New[T any](opts ...Option) *Registry[T] {
	o := &options{logger: logging.NewNopLogger()}
	for _, opt := range opts {
		opt(o)
	}
	return &Registry[T]{logger: o.logger}
}

// Register stores a weak reference to client under h, replacing any
// previous entry for the same handle.
func (r *Registry[T]) Register(h Handle, client *T) error {
	if client == nil {
		return errors.NewInvalidArgumentError("client")
	}

	e := &entry[T]{ref: weak.Make(client)}
	// Count first so a concurrent delete of this entry can never drive it negative.
	r.count.Add(1)
	if _, replaced := r.entries.Swap(h, e); replaced {
		r.count.Add(-1)
		r.logger.ComponentDebug(logging.ComponentRegistry, "Handle re-registered",
			zap.Uint64("handle", uint64(h)))
	}
	return nil
}

// Lookup returns the live client for h. If the client has been collected
// the dead entry is removed and false is returned.
func (r *Registry[T]) Lookup(h Handle) (*T, bool) {
	v, ok := r.entries.Load(h)
	if !ok {
		return nil, false
	}
	e := v.(*entry[T])
	if client := e.ref.Value(); client != nil {
		return client, true
	}
	r.prune(h, e)
	return nil, false
}

// Unregister removes h. It reports whether an entry was present.
func (r *Registry[T]) Unregister(h Handle) bool {
	if _, loaded := r.entries.LoadAndDelete(h); loaded {
		r.count.Add(-1)
		return true
	}
	return false
}

// CleanupDeadReferences removes every entry whose client has been
// collected and returns how many were removed.
func (r *Registry[T]) CleanupDeadReferences() int {
	pruned := 0
	r.entries.Range(func(key, value any) bool {
		e := value.(*entry[T])
		if e.ref.Value() == nil && r.prune(key.(Handle), e) {
			pruned++
		}
		return true
	})
	if pruned > 0 {
		r.logger.ComponentDebug(logging.ComponentRegistry, "Pruned dead client references",
			zap.Int("pruned", pruned))
	}
	return pruned
}

// Count returns the number of tracked entries, dead ones included.
func (r *Registry[T]) Count() int {
	n := r.count.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Clear removes all entries.
func (r *Registry[T]) Clear() {
	r.entries.Range(func(key, _ any) bool {
		if _, loaded := r.entries.LoadAndDelete(key); loaded {
			r.count.Add(-1)
		}
		return true
	})
}

// prune deletes exactly the dead entry e. A newer entry registered under
// the same handle is left alone.
func (r *Registry[T]) prune(h Handle, e *entry[T]) bool {
	if r.entries.CompareAndDelete(h, e) {
		r.count.Add(-1)
		r.logger.ComponentDebug(logging.ComponentRegistry, "Dropped dead client reference",
			zap.Uint64("handle", uint64(h)))
		return true
	}
	return false
}
