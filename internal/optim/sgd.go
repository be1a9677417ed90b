package optim

import (
	"fmt"

	"github.com/born-ml/drift/internal/tensor"
)

func init() {
	Register("sgd", NewSGD)
}

// SGD implements stochastic gradient descent with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	params     []*tensor.Matrix
	lr         float64
	momentum   float64
	velocities []*tensor.Matrix
}

// NewSGD constructs an SGD optimizer. Recognized args: "lr" (default 0.01)
// and "momentum" (default 0, range [0, 1)).
func NewSGD(params []*tensor.Matrix, args Args) (FunctionalOptimizer, error) {
	lr := args.Get("lr", 0.01)
	momentum := args.Get("momentum", 0)

	if lr <= 0 {
		return nil, fmt.Errorf("%w: sgd lr %v must be positive", ErrInvalidConfiguration, lr)
	}
	if momentum < 0 || momentum >= 1 {
		return nil, fmt.Errorf("%w: sgd momentum %v must be in [0, 1)", ErrInvalidConfiguration, momentum)
	}

	return &SGD{
		params:     params,
		lr:         lr,
		momentum:   momentum,
		velocities: make([]*tensor.Matrix, len(params)),
	}, nil
}

// Step applies one update to every bound parameter, in parameter order.
func (s *SGD) Step(grads []*tensor.Matrix) error {
	if err := checkGrads(s.params, grads); err != nil {
		return err
	}

	for i, param := range s.params {
		grad := grads[i]

		if s.momentum == 0 {
			if err := param.AddScaled(-s.lr, grad); err != nil {
				return fmt.Errorf("sgd: parameter %d: %w", i, err)
			}
			continue
		}

		v := s.velocities[i]
		if v == nil {
			rows, cols := param.Dims()
			v = tensor.Zeros(rows, cols)
			s.velocities[i] = v
		}
		// velocity = momentum * velocity + grad
		vd := v.Data()
		for j := range vd {
			vd[j] *= s.momentum
		}
		if err := v.AddScaled(1, grad); err != nil {
			return fmt.Errorf("sgd: parameter %d: %w", i, err)
		}
		if err := param.AddScaled(-s.lr, v); err != nil {
			return fmt.Errorf("sgd: parameter %d: %w", i, err)
		}
	}
	return nil
}
