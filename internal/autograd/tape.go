package autograd

import (
	"context"
	"fmt"

	"github.com/born-ml/drift/internal/rref"
	"github.com/born-ml/drift/internal/tensor"
)

// BackwardCaller propagates an upstream gradient through a module that
// lives on a (possibly remote) worker. The owner records the gradient of
// its own parameter into its local store and returns the gradient with
// respect to the module's input.
type BackwardCaller interface {
	ModuleBackward(ctx context.Context, owner string, module rref.Handle, id ContextID, upstream *tensor.Matrix) (*tensor.Matrix, error)
}

// Tape records the forward operations of one distributed computation and
// replays them in reverse to drive the backward pass.
//
// The tape lives on the driver. Remote module applications are recorded as
// opaque steps; at backward time each one turns into a single backward call
// to the owning worker. Local leaves registered with Watch get their
// gradients recorded into the driver's own store.
//
// A tape belongs to a single goroutine; it is not safe for concurrent use.
type Tape struct {
	store  *Store
	id     ContextID
	ops    []operation
	leaves []watched
}

type watched struct {
	param rref.Handle
	value *tensor.Matrix
}

// operation is one recorded forward step. backward consumes the upstream
// gradient of the output and accumulates gradients onto the inputs.
type operation interface {
	output() *tensor.Matrix
	backward(ctx context.Context, caller BackwardCaller, t *Tape, upstream *tensor.Matrix, grads map[*tensor.Matrix]*tensor.Matrix) error
}

// NewTape creates a tape recording into the given store under context id.
func NewTape(store *Store, id ContextID) *Tape {
	return &Tape{store: store, id: id}
}

// ContextID returns the context the tape records under.
func (t *Tape) ContextID() ContextID {
	return t.id
}

// Watch marks a driver-local leaf value whose gradient should be recorded
// into the driver's store under the watched parameter handle.
func (t *Tape) Watch(param rref.Handle, value *tensor.Matrix) {
	t.leaves = append(t.leaves, watched{param: param, value: value})
}

// RecordApply records a module application executed on owner: out = f(in).
// The cluster transport calls this after every forward RPC.
func (t *Tape) RecordApply(owner string, module rref.Handle, in, out *tensor.Matrix) {
	t.ops = append(t.ops, &applyOp{owner: owner, module: module, in: in, out: out})
}

// Add computes a + b and records the operation.
func (t *Tape) Add(a, b *tensor.Matrix) (*tensor.Matrix, error) {
	out, err := tensor.Add(a, b)
	if err != nil {
		return nil, err
	}
	t.ops = append(t.ops, &addOp{a: a, b: b, out: out})
	return out, nil
}

// Backward runs the backward pass from output, treating the loss as
// output.Sum() so the seed gradient is a ones matrix.
//
// The tape is walked in reverse: every recorded remote application issues
// one backward call to its owner, which records the owner-side parameter
// gradient and returns the input gradient for the chain to continue.
// Gradients for watched local leaves are recorded into the driver's store
// last.
func (t *Tape) Backward(ctx context.Context, caller BackwardCaller, output *tensor.Matrix) error {
	if len(t.ops) == 0 {
		return fmt.Errorf("autograd: backward on empty tape")
	}

	rows, cols := output.Dims()
	grads := map[*tensor.Matrix]*tensor.Matrix{
		output: tensor.Ones(rows, cols),
	}

	for i := len(t.ops) - 1; i >= 0; i-- {
		op := t.ops[i]
		upstream, ok := grads[op.output()]
		if !ok {
			// Not on the path from the output; nothing flows through it.
			continue
		}
		if err := op.backward(ctx, caller, t, upstream, grads); err != nil {
			return err
		}
	}

	for _, w := range t.leaves {
		g, ok := grads[w.value]
		if !ok {
			continue
		}
		if err := t.store.Record(t.id, w.param, g); err != nil {
			return err
		}
	}
	return nil
}

func accumulate(grads map[*tensor.Matrix]*tensor.Matrix, key, g *tensor.Matrix) error {
	existing, ok := grads[key]
	if !ok {
		grads[key] = g.Clone()
		return nil
	}
	return existing.AddScaled(1, g)
}

// applyOp is a module application out = f(in) executed on owner.
type applyOp struct {
	owner  string
	module rref.Handle
	in     *tensor.Matrix
	out    *tensor.Matrix
}

func (o *applyOp) output() *tensor.Matrix { return o.out }

func (o *applyOp) backward(ctx context.Context, caller BackwardCaller, t *Tape, upstream *tensor.Matrix, grads map[*tensor.Matrix]*tensor.Matrix) error {
	inGrad, err := caller.ModuleBackward(ctx, o.owner, o.module, t.id, upstream)
	if err != nil {
		return fmt.Errorf("autograd: backward through %s on %s: %w", o.module, o.owner, err)
	}
	return accumulate(grads, o.in, inGrad)
}

// addOp is an element-wise addition out = a + b on the driver.
type addOp struct {
	a, b, out *tensor.Matrix
}

func (o *addOp) output() *tensor.Matrix { return o.out }

func (o *addOp) backward(_ context.Context, _ BackwardCaller, _ *Tape, upstream *tensor.Matrix, grads map[*tensor.Matrix]*tensor.Matrix) error {
	if err := accumulate(grads, o.a, upstream); err != nil {
		return err
	}
	return accumulate(grads, o.b, upstream)
}
