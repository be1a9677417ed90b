// Copyright 2025 Drift Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/drift/internal/tensor"
)

// Matrix is a dense, row-major float64 matrix.
type Matrix = tensor.Matrix

// New creates a matrix from row-major data.
func New(rows, cols int, data []float64) (*Matrix, error) {
	return tensor.New(rows, cols, data)
}

// Zeros creates a rows x cols matrix filled with zeros.
func Zeros(rows, cols int) *Matrix {
	return tensor.Zeros(rows, cols)
}

// Ones creates a rows x cols matrix filled with ones.
func Ones(rows, cols int) *Matrix {
	return tensor.Ones(rows, cols)
}

// Full creates a rows x cols matrix filled with value.
func Full(rows, cols int, value float64) *Matrix {
	return tensor.Full(rows, cols, value)
}

// Rand creates a rows x cols matrix with uniform values in [0, 1) drawn
// from a PRNG seeded with seed.
func Rand(rows, cols int, seed int64) *Matrix {
	return tensor.Rand(rows, cols, seed)
}

// MatMul returns a @ b.
func MatMul(a, b *Matrix) (*Matrix, error) {
	return tensor.MatMul(a, b)
}

// Add returns a + b.
func Add(a, b *Matrix) (*Matrix, error) {
	return tensor.Add(a, b)
}

// Sub returns a - b.
func Sub(a, b *Matrix) (*Matrix, error) {
	return tensor.Sub(a, b)
}
