// Package rref implements the remote reference registry.
//
// A Handle is a cross-process pointer to a value owned by exactly one
// worker. The owning worker keeps the value in its Registry under an opaque
// key; any process holding the handle keeps the value alive through an
// explicit reference count. When the count reaches zero the owner reclaims
// the value and later lookups fail with ErrUnknownHandle.
package rref

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrUnknownHandle is returned when a handle refers to a value the owner
// has already reclaimed, or never created.
var ErrUnknownHandle = errors.New("rref: unknown handle")

// Handle identifies a value owned by a single worker process.
//
// Handles are comparable and JSON-serializable so they can be used as map
// keys and travel over the RPC surface.
type Handle struct {
	Owner string `json:"owner"`
	Key   uint64 `json:"key"`
}

func (h Handle) String() string {
	return fmt.Sprintf("%s/%d", h.Owner, h.Key)
}

type entry struct {
	value any
	refs  atomic.Int32
}

// Registry holds the values one worker owns on behalf of remote handle
// holders. All methods are safe for concurrent use; reference counts use
// atomic updates so retain/release from multiple in-flight RPCs cannot
// lose increments.
type Registry struct {
	owner string

	mu      sync.Mutex
	nextKey uint64
	entries map[uint64]*entry
}

// NewRegistry creates a registry for the worker named owner.
func NewRegistry(owner string) *Registry {
	return &Registry{
		owner:   owner,
		entries: make(map[uint64]*entry),
	}
}

// Owner returns the name of the owning worker.
func (r *Registry) Owner() string {
	return r.owner
}

// Create registers a local value and returns its handle with an initial
// reference count of one.
func (r *Registry) Create(value any) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextKey++
	e := &entry{value: value}
	e.refs.Store(1)
	r.entries[r.nextKey] = e

	return Handle{Owner: r.owner, Key: r.nextKey}
}

// Resolve returns the local value behind a handle.
func (r *Registry) Resolve(h Handle) (any, error) {
	e, err := r.lookup(h)
	if err != nil {
		return nil, err
	}
	return e.value, nil
}

// Retain increments the handle's reference count. The increment happens
// under the table lock, so a concurrent final Release cannot reclaim the
// value between the lookup and the increment.
func (r *Registry) Retain(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.Owner != r.owner {
		return fmt.Errorf("rref: handle %s retained on owner %q", h, r.owner)
	}
	e, ok := r.entries[h.Key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	e.refs.Add(1)
	return nil
}

// Release decrements the handle's reference count. When the count reaches
// zero the value is reclaimed and the handle becomes unknown.
func (r *Registry) Release(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h.Owner != r.owner {
		return fmt.Errorf("rref: handle %s released on owner %q", h, r.owner)
	}
	e, ok := r.entries[h.Key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if e.refs.Add(-1) == 0 {
		delete(r.entries, h.Key)
	}
	return nil
}

// RefCount returns the current reference count, or zero for unknown
// handles. Intended for tests and diagnostics.
func (r *Registry) RefCount(h Handle) int {
	e, err := r.lookup(h)
	if err != nil {
		return 0
	}
	return int(e.refs.Load())
}

// Live returns the number of values the registry currently holds.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Values returns a snapshot of the live values the registry holds, for
// owner-side maintenance sweeps.
func (r *Registry) Values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]any, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.value)
	}
	return out
}

func (r *Registry) lookup(h Handle) (*entry, error) {
	if h.Owner != r.owner {
		return nil, fmt.Errorf("rref: handle %s resolved on owner %q", h, r.owner)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h.Key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return e, nil
}
