// Package distoptim implements the distributed optimizer dispatcher.
//
// A DistributedOptimizer holds remote handles to parameters spread across
// owning workers. Step partitions the handles by owner and issues one
// optimizer-step call per owner: the owner constructs (or reuses) its local
// instance of the named variant, pulls each parameter's gradient from its
// gradient store for the given context, and applies the functional update
// rule in place. The dispatcher itself never touches parameter values.
package distoptim

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/drift/internal/autograd"
	"github.com/born-ml/drift/internal/optim"
	"github.com/born-ml/drift/internal/rref"
)

// ErrStepFailed wraps any failure raised inside an owner's local optimizer
// step, preserving the originating message.
var ErrStepFailed = errors.New("distoptim: optimizer step failed")

// StepCaller is the transport the dispatcher drives. Calls to the worker
// named by LocalOwner execute in process; calls to other owners go over
// the wire.
type StepCaller interface {
	// LocalOwner names the caller's own worker, or "" when the caller
	// does not host parameters itself.
	LocalOwner() string

	// OptimStep runs one local optimizer step on owner for the given
	// parameter subset, pulling gradients recorded under id.
	OptimStep(ctx context.Context, owner, instance, variant string, args optim.Args, params []rref.Handle, id autograd.ContextID) error

	// OptimClose drops the optimizer instance owner caches under the
	// dispatcher's instance id.
	OptimClose(ctx context.Context, owner, instance string) error

	// Retain and Release adjust the reference count of a remote handle
	// on its owner.
	Retain(ctx context.Context, h rref.Handle) error
	Release(ctx context.Context, h rref.Handle) error
}

// DistributedOptimizer dispatches optimizer steps to the owners of its
// parameter handles.
type DistributedOptimizer struct {
	caller   StepCaller
	variant  string
	args     optim.Args
	handles  []rref.Handle
	instance string
}

// New validates the configuration, retains every parameter handle on its
// owner, and returns a dispatcher for the named optimizer variant.
//
// The variant must be constructible with args; an unknown variant or
// rejected arguments fail with optim.ErrInvalidConfiguration before any
// handle is retained.
func New(ctx context.Context, caller StepCaller, variant string, handles []rref.Handle, args optim.Args) (*DistributedOptimizer, error) {
	if len(handles) == 0 {
		return nil, fmt.Errorf("%w: no parameter handles", optim.ErrInvalidConfiguration)
	}
	if err := optim.Validate(variant, args); err != nil {
		return nil, err
	}

	d := &DistributedOptimizer{
		caller:  caller,
		variant: variant,
		args:    args,
		handles: handles,
		// One instance id per dispatcher: owners key their local
		// optimizer on it, so state like momentum survives across
		// steps without re-construction.
		instance: uuid.NewString(),
	}

	for i, h := range handles {
		if err := caller.Retain(ctx, h); err != nil {
			// Give back what we already took.
			for _, held := range handles[:i] {
				_ = caller.Release(ctx, held)
			}
			return nil, fmt.Errorf("distoptim: retain %s: %w", h, err)
		}
	}
	return d, nil
}

// Step applies one optimizer step for the gradients recorded under id.
//
// Owners are processed independently: the caller's own worker runs inline,
// every remote owner gets one concurrent call. Step returns only after all
// owner calls have completed, so no call is left in flight holding the
// context. The first failure is reported wrapped in ErrStepFailed; when
// both the local owner and a remote owner fail, the local error takes
// precedence. Owners that succeeded keep their updated parameters (no
// rollback).
func (d *DistributedOptimizer) Step(ctx context.Context, id autograd.ContextID) error {
	groups := groupByOwner(d.handles)
	local := d.caller.LocalOwner()

	var g errgroup.Group
	for pair := groups.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key == local {
			continue
		}
		owner, params := pair.Key, pair.Value
		g.Go(func() error {
			return d.caller.OptimStep(ctx, owner, d.instance, d.variant, d.args, params, id)
		})
	}

	var localErr error
	if params, ok := groups.Get(local); ok {
		localErr = d.caller.OptimStep(ctx, local, d.instance, d.variant, d.args, params, id)
	}

	// Wait awaits every remote call even when one already failed.
	remoteErr := g.Wait()

	err := localErr
	if err == nil {
		err = remoteErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStepFailed, err)
	}
	return nil
}

// Handles returns the managed parameter handles in construction order.
func (d *DistributedOptimizer) Handles() []rref.Handle {
	return d.handles
}

// Close tells every owner to drop its local optimizer instance and
// releases every handle retained at construction. The dispatcher must not
// be used afterwards.
func (d *DistributedOptimizer) Close(ctx context.Context) error {
	var firstErr error
	for pair := groupByOwner(d.handles).Oldest(); pair != nil; pair = pair.Next() {
		if err := d.caller.OptimClose(ctx, pair.Key, d.instance); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, h := range d.handles {
		if err := d.caller.Release(ctx, h); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// groupByOwner partitions handles by owning worker, preserving the order
// in which each owner first appears.
func groupByOwner(handles []rref.Handle) *orderedmap.OrderedMap[string, []rref.Handle] {
	groups := orderedmap.New[string, []rref.Handle]()
	for _, h := range handles {
		params, _ := groups.Get(h.Owner)
		groups.Set(h.Owner, append(params, h))
	}
	return groups
}
