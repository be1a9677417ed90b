// Package worker implements the per-process node of a Drift cluster.
//
// A worker owns three things: a remote reference registry for the values it
// holds on behalf of other processes, a gradient context store, and the
// modules whose parameters it is the authority for. Parameter values are
// only ever mutated here, by an optimizer step executed on this worker.
package worker

import (
	"fmt"
	"sync"

	"github.com/born-ml/drift/internal/autograd"
	"github.com/born-ml/drift/internal/optim"
	"github.com/born-ml/drift/internal/rref"
	"github.com/born-ml/drift/internal/tensor"
)

// Worker is one node of the cluster.
type Worker struct {
	name     string
	registry *rref.Registry
	store    *autograd.Store

	mu         sync.Mutex
	optimizers map[string]optim.FunctionalOptimizer
}

// New creates a worker named name.
func New(name string) *Worker {
	return &Worker{
		name:       name,
		registry:   rref.NewRegistry(name),
		store:      autograd.NewStore(),
		optimizers: make(map[string]optim.FunctionalOptimizer),
	}
}

// Name returns the worker's name.
func (w *Worker) Name() string { return w.name }

// Registry returns the worker's remote reference registry.
func (w *Worker) Registry() *rref.Registry { return w.registry }

// Store returns the worker's gradient context store.
func (w *Worker) Store() *autograd.Store { return w.store }

// Module is a linear module out = weight @ input whose weight lives on this
// worker. The input of each forward call is cached per context so the
// backward call can compute the weight gradient.
type Module struct {
	mu     sync.Mutex
	weight *tensor.Matrix
	param  rref.Handle
	inputs map[autograd.ContextID]*tensor.Matrix
}

// CreateModule constructs a module with a rows x cols weight drawn from the
// given seed and returns a handle to it. Identical seeds produce identical
// weights on every worker, which the equivalence tests rely on.
func (w *Worker) CreateModule(rows, cols int, seed int64) rref.Handle {
	m := &Module{
		weight: tensor.Rand(rows, cols, seed),
		inputs: make(map[autograd.ContextID]*tensor.Matrix),
	}
	return w.registry.Create(m)
}

// ModuleParam returns a handle to the module's weight, creating it on
// first use. Repeated calls return the same handle.
func (w *Worker) ModuleParam(module rref.Handle) (rref.Handle, error) {
	m, err := w.resolveModule(module)
	if err != nil {
		return rref.Handle{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.param == (rref.Handle{}) {
		m.param = w.registry.Create(m.weight)
	}
	return m.param, nil
}

// Forward computes weight @ input under the given context, attaching the
// context on this worker's store on first use. The input is cached so a
// later Backward for the same context can run.
func (w *Worker) Forward(id autograd.ContextID, module rref.Handle, input *tensor.Matrix) (*tensor.Matrix, error) {
	m, err := w.resolveModule(module)
	if err != nil {
		return nil, err
	}
	if err := w.store.Attach(id); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out, err := tensor.MatMul(m.weight, input)
	if err != nil {
		return nil, fmt.Errorf("worker %s: forward: %w", w.name, err)
	}
	m.inputs[id] = input
	return out, nil
}

// ModuleBackward propagates an upstream gradient through the module:
// records dLoss/dWeight = upstream @ inputᵀ into this worker's store under
// the context, and returns dLoss/dInput = weightᵀ @ upstream for the chain
// to continue on the caller.
func (w *Worker) ModuleBackward(id autograd.ContextID, module rref.Handle, upstream *tensor.Matrix) (*tensor.Matrix, error) {
	m, err := w.resolveModule(module)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	input, ok := m.inputs[id]
	if !ok {
		return nil, fmt.Errorf("worker %s: backward without forward in context %d", w.name, id)
	}

	gradW, err := tensor.MatMul(upstream, input.T())
	if err != nil {
		return nil, fmt.Errorf("worker %s: backward: %w", w.name, err)
	}
	if m.param == (rref.Handle{}) {
		m.param = w.registry.Create(m.weight)
	}
	if err := w.store.Attach(id); err != nil {
		return nil, err
	}
	if err := w.store.Record(id, m.param, gradW); err != nil {
		return nil, err
	}
	return tensor.MatMul(m.weight.T(), upstream)
}

// ParamValue returns a copy of the parameter behind a handle.
func (w *Worker) ParamValue(param rref.Handle) (*tensor.Matrix, error) {
	p, err := w.resolveParam(param)
	if err != nil {
		return nil, err
	}
	return p.Clone(), nil
}

// Retain increments the reference count of a handle this worker owns.
func (w *Worker) Retain(h rref.Handle) error { return w.registry.Retain(h) }

// Release decrements the reference count of a handle this worker owns.
func (w *Worker) Release(h rref.Handle) error { return w.registry.Release(h) }

// EndContext releases every gradient record held under id and drops the
// per-context forward caches of this worker's modules. Workers that never
// saw the context report autograd.ErrContextClosed.
func (w *Worker) EndContext(id autograd.ContextID) error {
	for _, v := range w.registry.Values() {
		if m, ok := v.(*Module); ok {
			m.mu.Lock()
			delete(m.inputs, id)
			m.mu.Unlock()
		}
	}
	return w.store.End(id)
}

// OptimStep runs one local optimizer step: resolve the parameter handles,
// construct (or reuse) the named variant bound to them, pull each
// parameter's gradient from the store under the context, and apply the
// update rule in place.
//
// Instances are keyed by the dispatcher-supplied instance id so stateful
// variants keep their buffers across steps.
func (w *Worker) OptimStep(instance, variant string, args optim.Args, params []rref.Handle, id autograd.ContextID) error {
	values := make([]*tensor.Matrix, len(params))
	for i, h := range params {
		p, err := w.resolveParam(h)
		if err != nil {
			return err
		}
		values[i] = p
	}

	w.mu.Lock()
	opt, ok := w.optimizers[instance]
	if !ok {
		var err error
		opt, err = optim.New(variant, values, args)
		if err != nil {
			w.mu.Unlock()
			return err
		}
		w.optimizers[instance] = opt
	}
	w.mu.Unlock()

	grads, err := w.store.Gradients(id, params)
	if err != nil {
		return err
	}
	return opt.Step(grads)
}

// CloseOptimizer drops the optimizer instance cached under the given
// dispatcher id. Unknown instances are a no-op.
func (w *Worker) CloseOptimizer(instance string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.optimizers, instance)
}

func (w *Worker) resolveModule(h rref.Handle) (*Module, error) {
	v, err := w.registry.Resolve(h)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*Module)
	if !ok {
		return nil, fmt.Errorf("worker %s: handle %s is not a module", w.name, h)
	}
	return m, nil
}

func (w *Worker) resolveParam(h rref.Handle) (*tensor.Matrix, error) {
	v, err := w.registry.Resolve(h)
	if err != nil {
		return nil, err
	}
	p, ok := v.(*tensor.Matrix)
	if !ok {
		return nil, fmt.Errorf("worker %s: handle %s is not a parameter", w.name, h)
	}
	return p, nil
}
