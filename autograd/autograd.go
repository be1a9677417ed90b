// Copyright 2025 Drift Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autograd provides the public API for gradient contexts and the
// distributed backward tape.
//
// A context scopes the gradients of one distributed backward computation:
//
//	id, tape, err := c.BeginContext()
//	// forward through remote modules, recording on the tape
//	err = tape.Backward(ctx, c, loss)
//	// ... dispatch the optimizer step for id ...
//	err = c.EndContext(ctx, id)
package autograd

import (
	"github.com/born-ml/drift/internal/autograd"
)

// ContextID identifies one distributed backward computation.
type ContextID = autograd.ContextID

// Store is one worker's table of per-context gradients.
type Store = autograd.Store

// Tape records the forward operations of one distributed computation and
// replays them in reverse to drive the backward pass.
type Tape = autograd.Tape

// BackwardCaller propagates an upstream gradient through a module on a
// (possibly remote) worker.
type BackwardCaller = autograd.BackwardCaller

var (
	// ErrNoGradient is returned when a context holds no record for a
	// parameter.
	ErrNoGradient = autograd.ErrNoGradient

	// ErrContextClosed is returned for any operation against an ended
	// context.
	ErrContextClosed = autograd.ErrContextClosed
)

// NewStore creates an empty gradient context store.
func NewStore() *Store {
	return autograd.NewStore()
}

// NewTape creates a tape recording into the given store under context id.
func NewTape(store *Store, id ContextID) *Tape {
	return autograd.NewTape(store, id)
}
