// Copyright 2025 Drift Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package optim provides functional optimizers and the distributed
// optimizer dispatcher.
//
// # Overview
//
// This package contains:
//   - FunctionalOptimizer: the update-rule interface, bound to its
//     parameters at construction
//   - SGD and Adam variants, constructible by name through the registry
//   - Distributed: the dispatcher that routes one optimizer step to each
//     worker owning a subset of the parameters
//
// # Functional optimizers
//
//	params := []*tensor.Matrix{w}
//	opt, err := optim.New("sgd", params, optim.Args{"lr": 0.05})
//	err = opt.Step(grads) // w -= 0.05 * grads[0], in place
//
// # Distributed dispatch
//
//	dist, err := optim.NewDistributed(ctx, c, "sgd", handles, optim.Args{"lr": 0.05})
//	// run a forward/backward under a gradient context ...
//	err = dist.Step(ctx, contextID)
//
// Each owning worker constructs its own local instance of the named
// variant, pulls the gradients recorded under the context from its own
// store, and applies the update in place. Failures on any owner surface as
// ErrStepFailed with the original message preserved.
package optim
