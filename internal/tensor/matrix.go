// Package tensor provides the dense matrix type used throughout Drift.
//
// Drift moves gradients and parameters between worker processes; it does not
// implement its own math kernels. Matrix is a thin wrapper around a gonum
// mat.Dense that adds the handful of operations the optimizers and the
// remote modules need, a deterministic seeded initializer, and a JSON wire
// form so matrices can travel over the worker RPC surface.
package tensor

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Matrix is a dense, row-major float64 matrix.
//
// The zero value is not usable; construct with New, Zeros, Ones, Full or
// Rand. Matrices are mutable: optimizer steps update parameter matrices in
// place, so two handles to the same Matrix observe each other's writes.
type Matrix struct {
	d *mat.Dense
}

// New creates a matrix from row-major data.
//
// The data slice is used directly, not copied.
func New(rows, cols int, data []float64) (*Matrix, error) {
	if rows <= 0 || cols <= 0 {
		return nil, fmt.Errorf("tensor: invalid dims %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("tensor: data length %d does not match dims %dx%d", len(data), rows, cols)
	}
	return &Matrix{d: mat.NewDense(rows, cols, data)}, nil
}

// Zeros creates a rows x cols matrix filled with zeros.
func Zeros(rows, cols int) *Matrix {
	return &Matrix{d: mat.NewDense(rows, cols, nil)}
}

// Ones creates a rows x cols matrix filled with ones.
func Ones(rows, cols int) *Matrix {
	return Full(rows, cols, 1)
}

// Full creates a rows x cols matrix filled with value.
func Full(rows, cols int, value float64) *Matrix {
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = value
	}
	return &Matrix{d: mat.NewDense(rows, cols, data)}
}

// Rand creates a rows x cols matrix with uniform values in [0, 1) drawn
// from a PRNG seeded with seed.
//
// Two workers that construct a matrix with the same seed get identical
// values, which is what makes the local-vs-distributed equivalence tests
// possible.
func Rand(rows, cols int, seed int64) *Matrix {
	rng := rand.New(rand.NewSource(seed))
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = rng.Float64()
	}
	return &Matrix{d: mat.NewDense(rows, cols, data)}
}

// Dims returns the matrix dimensions.
func (m *Matrix) Dims() (rows, cols int) {
	return m.d.Dims()
}

// At returns the element at (i, j).
func (m *Matrix) At(i, j int) float64 {
	return m.d.At(i, j)
}

// Set assigns the element at (i, j).
func (m *Matrix) Set(i, j int, v float64) {
	m.d.Set(i, j, v)
}

// Data returns the backing row-major slice. Mutations are visible through
// the matrix.
func (m *Matrix) Data() []float64 {
	return m.d.RawMatrix().Data
}

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	var out mat.Dense
	out.CloneFrom(m.d)
	return &Matrix{d: &out}
}

// CopyFrom overwrites m with the contents of src.
func (m *Matrix) CopyFrom(src *Matrix) error {
	if err := sameDims("CopyFrom", m, src); err != nil {
		return err
	}
	m.d.Copy(src.d)
	return nil
}

// MatMul returns a @ b.
func MatMul(a, b *Matrix) (*Matrix, error) {
	_, ac := a.d.Dims()
	br, _ := b.d.Dims()
	if ac != br {
		ar, _ := a.d.Dims()
		_, bc := b.d.Dims()
		return nil, fmt.Errorf("tensor: MatMul dimension mismatch %dx%d @ %dx%d", ar, ac, br, bc)
	}
	var out mat.Dense
	out.Mul(a.d, b.d)
	return &Matrix{d: &out}, nil
}

// Add returns a + b.
func Add(a, b *Matrix) (*Matrix, error) {
	if err := sameDims("Add", a, b); err != nil {
		return nil, err
	}
	var out mat.Dense
	out.Add(a.d, b.d)
	return &Matrix{d: &out}, nil
}

// Sub returns a - b.
func Sub(a, b *Matrix) (*Matrix, error) {
	if err := sameDims("Sub", a, b); err != nil {
		return nil, err
	}
	var out mat.Dense
	out.Sub(a.d, b.d)
	return &Matrix{d: &out}, nil
}

// Scale returns alpha * m as a new matrix.
func (m *Matrix) Scale(alpha float64) *Matrix {
	var out mat.Dense
	out.Scale(alpha, m.d)
	return &Matrix{d: &out}
}

// AddScaled performs m += alpha * other in place.
//
// This is the optimizer update primitive: p.AddScaled(-lr, grad).
func (m *Matrix) AddScaled(alpha float64, other *Matrix) error {
	if err := sameDims("AddScaled", m, other); err != nil {
		return err
	}
	md := m.Data()
	od := other.Data()
	for i := range md {
		md[i] += alpha * od[i]
	}
	return nil
}

// T returns the transpose as a new matrix.
func (m *Matrix) T() *Matrix {
	var out mat.Dense
	out.CloneFrom(m.d.T())
	return &Matrix{d: &out}
}

// Sum returns the sum of all elements.
func (m *Matrix) Sum() float64 {
	return mat.Sum(m.d)
}

// Equal reports exact element-wise equality.
func (m *Matrix) Equal(other *Matrix) bool {
	return mat.Equal(m.d, other.d)
}

// AllClose reports element-wise equality within eps.
func (m *Matrix) AllClose(other *Matrix, eps float64) bool {
	mr, mc := m.d.Dims()
	or, oc := other.d.Dims()
	if mr != or || mc != oc {
		return false
	}
	md := m.Data()
	od := other.Data()
	for i := range md {
		if math.Abs(md[i]-od[i]) > eps {
			return false
		}
	}
	return true
}

// String renders the matrix for debugging.
func (m *Matrix) String() string {
	return fmt.Sprintf("%.6v", mat.Formatted(m.d))
}

func sameDims(op string, a, b *Matrix) error {
	ar, ac := a.d.Dims()
	br, bc := b.d.Dims()
	if ar != br || ac != bc {
		return fmt.Errorf("tensor: %s dimension mismatch %dx%d vs %dx%d", op, ar, ac, br, bc)
	}
	return nil
}
