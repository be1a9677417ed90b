// Copyright 2025 Drift Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package optim

import (
	"context"

	"github.com/born-ml/drift/internal/distoptim"
	"github.com/born-ml/drift/internal/optim"
	"github.com/born-ml/drift/internal/rref"
	"github.com/born-ml/drift/internal/tensor"
)

// FunctionalOptimizer applies an update rule to the parameters it was
// constructed with.
type FunctionalOptimizer = optim.FunctionalOptimizer

// Args is the opaque construction bag for an optimizer variant.
type Args = optim.Args

// Factory constructs an optimizer variant bound to a parameter list.
type Factory = optim.Factory

// ErrInvalidConfiguration is returned when a variant is unknown or rejects
// its construction arguments.
var ErrInvalidConfiguration = optim.ErrInvalidConfiguration

// Register makes a variant constructible by name.
func Register(name string, factory Factory) {
	optim.Register(name, factory)
}

// New constructs the named variant bound to params.
func New(name string, params []*tensor.Matrix, args Args) (FunctionalOptimizer, error) {
	return optim.New(name, params, args)
}

// Validate checks that the named variant accepts args.
func Validate(name string, args Args) error {
	return optim.Validate(name, args)
}

// Distributed dispatches optimizer steps to the owners of its parameter
// handles.
type Distributed = distoptim.DistributedOptimizer

// StepCaller is the transport a Distributed optimizer drives.
type StepCaller = distoptim.StepCaller

// ErrStepFailed wraps any failure raised inside an owner's local optimizer
// step.
var ErrStepFailed = distoptim.ErrStepFailed

// NewDistributed validates the configuration, retains every parameter
// handle on its owner, and returns a dispatcher for the named variant.
func NewDistributed(ctx context.Context, caller StepCaller, variant string, handles []rref.Handle, args Args) (*Distributed, error) {
	return distoptim.New(ctx, caller, variant, handles, args)
}
