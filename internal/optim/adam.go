package optim

import (
	"fmt"
	"math"

	"github.com/born-ml/drift/internal/tensor"
)

func init() {
	Register("adam", NewAdam)
}

// Adam implements Adaptive Moment Estimation with bias correction.
//
// Update rule:
//
//	m = beta1 * m + (1 - beta1) * grad
//	v = beta2 * v + (1 - beta2) * grad²
//	mHat = m / (1 - beta1^t)
//	vHat = v / (1 - beta2^t)
//	param = param - lr * mHat / (sqrt(vHat) + epsilon)
type Adam struct {
	params  []*tensor.Matrix
	lr      float64
	beta1   float64
	beta2   float64
	epsilon float64
	step    int
	m       []*tensor.Matrix
	v       []*tensor.Matrix
}

// NewAdam constructs an Adam optimizer. Recognized args: "lr" (default
// 0.001), "beta1" (default 0.9), "beta2" (default 0.999), "epsilon"
// (default 1e-8).
func NewAdam(params []*tensor.Matrix, args Args) (FunctionalOptimizer, error) {
	lr := args.Get("lr", 0.001)
	beta1 := args.Get("beta1", 0.9)
	beta2 := args.Get("beta2", 0.999)
	epsilon := args.Get("epsilon", 1e-8)

	if lr <= 0 {
		return nil, fmt.Errorf("%w: adam lr %v must be positive", ErrInvalidConfiguration, lr)
	}
	if beta1 < 0 || beta1 >= 1 {
		return nil, fmt.Errorf("%w: adam beta1 %v must be in [0, 1)", ErrInvalidConfiguration, beta1)
	}
	if beta2 < 0 || beta2 >= 1 {
		return nil, fmt.Errorf("%w: adam beta2 %v must be in [0, 1)", ErrInvalidConfiguration, beta2)
	}
	if epsilon <= 0 {
		return nil, fmt.Errorf("%w: adam epsilon %v must be positive", ErrInvalidConfiguration, epsilon)
	}

	return &Adam{
		params:  params,
		lr:      lr,
		beta1:   beta1,
		beta2:   beta2,
		epsilon: epsilon,
		m:       make([]*tensor.Matrix, len(params)),
		v:       make([]*tensor.Matrix, len(params)),
	}, nil
}

// Step applies one Adam update to every bound parameter.
func (a *Adam) Step(grads []*tensor.Matrix) error {
	if err := checkGrads(a.params, grads); err != nil {
		return err
	}

	a.step++
	bc1 := 1 - math.Pow(a.beta1, float64(a.step))
	bc2 := 1 - math.Pow(a.beta2, float64(a.step))

	for i, param := range a.params {
		rows, cols := param.Dims()
		if a.m[i] == nil {
			a.m[i] = tensor.Zeros(rows, cols)
			a.v[i] = tensor.Zeros(rows, cols)
		}

		gd := grads[i].Data()
		md := a.m[i].Data()
		vd := a.v[i].Data()
		pd := param.Data()
		if len(gd) != len(pd) {
			return fmt.Errorf("adam: parameter %d: gradient shape mismatch", i)
		}

		for j := range pd {
			md[j] = a.beta1*md[j] + (1-a.beta1)*gd[j]
			vd[j] = a.beta2*vd[j] + (1-a.beta2)*gd[j]*gd[j]

			mHat := md[j] / bc1
			vHat := vd[j] / bc2
			pd[j] -= a.lr * mHat / (math.Sqrt(vHat) + a.epsilon)
		}
	}
	return nil
}
