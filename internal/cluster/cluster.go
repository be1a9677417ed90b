// Package cluster routes calls to the workers of a Drift deployment.
//
// A Cluster knows one optional local worker (the process it runs in) and a
// client per remote worker. Calls addressed to the local worker execute in
// process; everything else goes over the worker RPC surface. Cluster is
// the transport behind both the distributed optimizer dispatcher and the
// tape's backward pass.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/born-ml/drift/internal/autograd"
	"github.com/born-ml/drift/internal/distoptim"
	"github.com/born-ml/drift/internal/optim"
	"github.com/born-ml/drift/internal/rpc"
	"github.com/born-ml/drift/internal/rref"
	"github.com/born-ml/drift/internal/tensor"
	"github.com/born-ml/drift/internal/worker"
)

var (
	_ distoptim.StepCaller    = (*Cluster)(nil)
	_ autograd.BackwardCaller = (*Cluster)(nil)
)

// Cluster is the caller-side view of a set of workers.
type Cluster struct {
	local *worker.Worker

	mu      sync.RWMutex
	remotes map[string]*rpc.Client
}

// New creates a cluster around an optional local worker.
func New(local *worker.Worker) *Cluster {
	return &Cluster{
		local:   local,
		remotes: make(map[string]*rpc.Client),
	}
}

// AddRemote registers the client for a remote worker by name.
func (c *Cluster) AddRemote(name string, client *rpc.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remotes[name] = client
}

// LocalWorker returns the local worker, or nil.
func (c *Cluster) LocalWorker() *worker.Worker {
	return c.local
}

// LocalOwner returns the local worker's name, or "" when this process does
// not host parameters.
func (c *Cluster) LocalOwner() string {
	if c.local == nil {
		return ""
	}
	return c.local.Name()
}

func (c *Cluster) clientFor(owner string) (*rpc.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	client, ok := c.remotes[owner]
	if !ok {
		return nil, fmt.Errorf("cluster: unknown worker %q", owner)
	}
	return client, nil
}

// BeginContext opens a gradient context on the local worker's store and
// returns a tape recording under it.
func (c *Cluster) BeginContext() (autograd.ContextID, *autograd.Tape, error) {
	if c.local == nil {
		return 0, nil, errors.New("cluster: no local worker to host a gradient context")
	}
	id := c.local.Store().Begin()
	return id, autograd.NewTape(c.local.Store(), id), nil
}

// EndContext tears the context down on the local worker and every remote.
// Workers that never attached the context are skipped.
func (c *Cluster) EndContext(ctx context.Context, id autograd.ContextID) error {
	var firstErr error

	if c.local != nil {
		if err := c.local.EndContext(id); err != nil && !errors.Is(err, autograd.ErrContextClosed) {
			firstErr = err
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for name, client := range c.remotes {
		if err := client.EndContext(ctx, id); err != nil && !errors.Is(err, autograd.ErrContextClosed) && firstErr == nil {
			firstErr = fmt.Errorf("worker %s: %w", name, err)
		}
	}
	return firstErr
}

// CreateModule constructs a module on the named worker.
func (c *Cluster) CreateModule(ctx context.Context, owner string, rows, cols int, seed int64) (rref.Handle, error) {
	if owner == c.LocalOwner() {
		return c.local.CreateModule(rows, cols, seed), nil
	}
	client, err := c.clientFor(owner)
	if err != nil {
		return rref.Handle{}, err
	}
	return client.CreateModule(ctx, rows, cols, seed)
}

// ModuleParam fetches a handle to a module's weight from its owner.
func (c *Cluster) ModuleParam(ctx context.Context, module rref.Handle) (rref.Handle, error) {
	if module.Owner == c.LocalOwner() {
		return c.local.ModuleParam(module)
	}
	client, err := c.clientFor(module.Owner)
	if err != nil {
		return rref.Handle{}, err
	}
	return client.ModuleParam(ctx, module)
}

// Forward applies a module on its owner under the tape's context and
// records the application for the backward pass.
func (c *Cluster) Forward(ctx context.Context, tape *autograd.Tape, module rref.Handle, input *tensor.Matrix) (*tensor.Matrix, error) {
	var out *tensor.Matrix
	var err error

	if module.Owner == c.LocalOwner() {
		out, err = c.local.Forward(tape.ContextID(), module, input)
	} else {
		var client *rpc.Client
		client, err = c.clientFor(module.Owner)
		if err == nil {
			out, err = client.Forward(ctx, tape.ContextID(), module, input)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("worker %s: forward: %w", module.Owner, err)
	}

	tape.RecordApply(module.Owner, module, input, out)
	return out, nil
}

// ModuleBackward implements autograd.BackwardCaller.
func (c *Cluster) ModuleBackward(ctx context.Context, owner string, module rref.Handle, id autograd.ContextID, upstream *tensor.Matrix) (*tensor.Matrix, error) {
	if owner == c.LocalOwner() {
		return c.local.ModuleBackward(id, module, upstream)
	}
	client, err := c.clientFor(owner)
	if err != nil {
		return nil, err
	}
	return client.Backward(ctx, id, module, upstream)
}

// ParamValue reads the current value behind a parameter handle from its
// owner.
func (c *Cluster) ParamValue(ctx context.Context, param rref.Handle) (*tensor.Matrix, error) {
	if param.Owner == c.LocalOwner() {
		return c.local.ParamValue(param)
	}
	client, err := c.clientFor(param.Owner)
	if err != nil {
		return nil, err
	}
	return client.ParamValue(ctx, param)
}

// OptimStep implements distoptim.StepCaller.
func (c *Cluster) OptimStep(ctx context.Context, owner, instance, variant string, args optim.Args, params []rref.Handle, id autograd.ContextID) error {
	if owner == c.LocalOwner() {
		return c.local.OptimStep(instance, variant, args, params, id)
	}
	client, err := c.clientFor(owner)
	if err != nil {
		return err
	}
	if err := client.OptimStep(ctx, instance, variant, args, params, id); err != nil {
		return fmt.Errorf("worker %s: %w", owner, err)
	}
	return nil
}

// OptimClose implements distoptim.StepCaller.
func (c *Cluster) OptimClose(ctx context.Context, owner, instance string) error {
	if owner == c.LocalOwner() {
		c.local.CloseOptimizer(instance)
		return nil
	}
	client, err := c.clientFor(owner)
	if err != nil {
		return err
	}
	return client.OptimClose(ctx, instance)
}

// Retain implements distoptim.StepCaller.
func (c *Cluster) Retain(ctx context.Context, h rref.Handle) error {
	if h.Owner == c.LocalOwner() {
		return c.local.Retain(h)
	}
	client, err := c.clientFor(h.Owner)
	if err != nil {
		return err
	}
	return client.Retain(ctx, h)
}

// Release implements distoptim.StepCaller.
func (c *Cluster) Release(ctx context.Context, h rref.Handle) error {
	if h.Owner == c.LocalOwner() {
		return c.local.Release(h)
	}
	client, err := c.clientFor(h.Owner)
	if err != nil {
		return err
	}
	return client.Release(ctx, h)
}
