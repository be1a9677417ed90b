// Package autograd implements the gradient context store and the driver-side
// tape for distributed backward passes.
//
// A context is a scoped grouping of the gradients one distributed backward
// computation produced. The driver begins a context and hands its id to every
// worker it touches; each worker keeps its own Store and records gradients
// for the parameters it owns under that id. The optimizer step later pulls
// gradients from the owner-local store, so gradient values never leave the
// process that will consume them.
package autograd

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/born-ml/drift/internal/rref"
	"github.com/born-ml/drift/internal/tensor"
)

var (
	// ErrNoGradient is returned when a context holds no record for a
	// parameter. This means the parameter did not participate in the
	// backward pass, a caller usage error.
	ErrNoGradient = errors.New("autograd: no gradient recorded for parameter")

	// ErrContextClosed is returned for any operation against a context
	// that has been ended, or that was never attached on this store.
	ErrContextClosed = errors.New("autograd: context closed")
)

// ContextID identifies one distributed backward computation.
type ContextID int64

// Store is one worker's table of per-context gradients.
//
// Records are append-only while a context is active and immutable once
// written, so concurrent readers need no coordination beyond the table
// lock. Running two backward passes into the same context is not
// supported; the first record for a context/parameter pair wins.
type Store struct {
	mu       sync.Mutex
	origin   int64
	nextSeq  int64
	contexts map[ContextID]map[rref.Handle]*tensor.Matrix
	closed   map[ContextID]struct{}
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		// Ids from different driver processes must not collide on a
		// shared worker, so each store salts the ids it generates.
		origin:   rand.Int63n(1<<16) << 40,
		contexts: make(map[ContextID]map[rref.Handle]*tensor.Matrix),
		closed:   make(map[ContextID]struct{}),
	}
}

// Begin opens a fresh context and returns its id.
func (s *Store) Begin() ContextID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSeq++
	id := ContextID(s.origin | s.nextSeq)
	s.contexts[id] = make(map[rref.Handle]*tensor.Matrix)
	return id
}

// Attach activates a context created elsewhere, typically by the driver
// process. Attaching an already-active context is a no-op; attaching an
// ended one fails with ErrContextClosed.
func (s *Store) Attach(id ContextID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.closed[id]; ok {
		return fmt.Errorf("%w: %d", ErrContextClosed, id)
	}
	if _, ok := s.contexts[id]; !ok {
		s.contexts[id] = make(map[rref.Handle]*tensor.Matrix)
	}
	return nil
}

// Record stores the gradient for a parameter under the given context.
func (s *Store) Record(id ContextID, param rref.Handle, grad *tensor.Matrix) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grads, err := s.active(id)
	if err != nil {
		return err
	}
	if _, ok := grads[param]; !ok {
		grads[param] = grad
	}
	return nil
}

// Gradient returns the gradient recorded for a parameter in a context.
func (s *Store) Gradient(id ContextID, param rref.Handle) (*tensor.Matrix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grads, err := s.active(id)
	if err != nil {
		return nil, err
	}
	g, ok := grads[param]
	if !ok {
		return nil, fmt.Errorf("%w: %s in context %d", ErrNoGradient, param, id)
	}
	return g, nil
}

// Gradients pulls the gradients for an ordered parameter list, preserving
// order. It fails on the first parameter with no record.
func (s *Store) Gradients(id ContextID, params []rref.Handle) ([]*tensor.Matrix, error) {
	out := make([]*tensor.Matrix, len(params))
	for i, p := range params {
		g, err := s.Gradient(id, p)
		if err != nil {
			return nil, err
		}
		out[i] = g
	}
	return out, nil
}

// End releases every record held for the context. The id is tombstoned:
// later Record and Gradient calls fail with ErrContextClosed rather than
// silently recreating the context.
func (s *Store) End(id ContextID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contexts[id]; !ok {
		return fmt.Errorf("%w: %d", ErrContextClosed, id)
	}
	delete(s.contexts, id)
	s.closed[id] = struct{}{}
	return nil
}

// active returns the gradient table for an id, which must be locked by the
// caller.
func (s *Store) active(id ContextID) (map[rref.Handle]*tensor.Matrix, error) {
	grads, ok := s.contexts[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrContextClosed, id)
	}
	return grads, nil
}
