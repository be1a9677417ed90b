// Copyright 2025 Drift Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for Drift's dense matrix type.
//
// # Overview
//
// Matrix is the value that moves between workers: parameters, activations
// and gradients are all matrices. The type wraps a gonum mat.Dense and
// adds seeded construction and a JSON wire form.
//
// # Basic Usage
//
//	w := tensor.Rand(3, 3, 0) // deterministic: same seed, same values
//	g := tensor.Ones(3, 3)
//
//	// SGD-style in-place update: w -= 0.05 * g
//	if err := w.AddScaled(-0.05, g); err != nil {
//	    log.Fatal(err)
//	}
package tensor
