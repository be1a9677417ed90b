// Package optim implements functional optimizers and their registry.
//
// A functional optimizer is bound to its parameter list at construction and
// applies one update rule per Step call, mutating exactly those parameters
// in place. Variants are registered by name with a uniform Args bag, so the
// distributed dispatcher can name a variant on the wire and have each
// owning worker construct its own local instance.
package optim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/drift/internal/tensor"
)

// ErrInvalidConfiguration is returned when a variant is unknown or rejects
// its construction arguments.
var ErrInvalidConfiguration = errors.New("optim: invalid configuration")

// Args is the opaque construction bag for an optimizer variant. It passes
// through the dispatcher and the wire unmodified.
type Args map[string]float64

// Get returns the named argument, or def if absent.
func (a Args) Get(key string, def float64) float64 {
	if v, ok := a[key]; ok {
		return v
	}
	return def
}

// FunctionalOptimizer applies an update rule to the parameters it was
// constructed with. The gradient slice must have the same length and order
// as the construction-time parameter list.
type FunctionalOptimizer interface {
	Step(grads []*tensor.Matrix) error
}

// Factory constructs an optimizer variant bound to params. A factory must
// reject bad args with ErrInvalidConfiguration even when params is empty,
// so configurations can be validated before any remote call is made.
type Factory func(params []*tensor.Matrix, args Args) (FunctionalOptimizer, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a variant constructible by name. Registering a name twice
// panics; variants are process-global like encoding codecs.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("optim: variant %q registered twice", name))
	}
	registry[name] = factory
}

// New constructs the named variant bound to params.
func New(name string, params []*tensor.Matrix, args Args) (FunctionalOptimizer, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown variant %q", ErrInvalidConfiguration, name)
	}
	return factory(params, args)
}

// Validate checks that the named variant accepts args, without binding any
// parameters.
func Validate(name string, args Args) error {
	_, err := New(name, nil, args)
	return err
}

// checkGrads verifies the gradient list matches the bound parameter list.
func checkGrads(params, grads []*tensor.Matrix) error {
	if len(grads) != len(params) {
		return fmt.Errorf("optim: got %d gradients for %d parameters", len(grads), len(params))
	}
	return nil
}
