package worker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/drift/internal/autograd"
	"github.com/born-ml/drift/internal/optim"
	"github.com/born-ml/drift/internal/rref"
	"github.com/born-ml/drift/internal/tensor"
)

func TestCreateModule_SeededWeight(t *testing.T) {
	w1 := New("worker1")
	w2 := New("worker2")

	m1 := w1.CreateModule(3, 3, 0)
	m2 := w2.CreateModule(3, 3, 0)

	p1, err := w1.ModuleParam(m1)
	require.NoError(t, err)
	p2, err := w2.ModuleParam(m2)
	require.NoError(t, err)

	v1, err := w1.ParamValue(p1)
	require.NoError(t, err)
	v2, err := w2.ParamValue(p2)
	require.NoError(t, err)

	assert.True(t, v1.Equal(v2), "same seed must give the same weight on every worker")
}

func TestModuleParam_Stable(t *testing.T) {
	w := New("worker1")
	m := w.CreateModule(3, 3, 0)

	p1, err := w.ModuleParam(m)
	require.NoError(t, err)
	p2, err := w.ModuleParam(m)
	require.NoError(t, err)

	assert.Equal(t, p1, p2, "repeated ModuleParam must return the same handle")
}

func TestForwardBackward(t *testing.T) {
	w := New("worker1")
	m := w.CreateModule(3, 3, 0)

	id := w.Store().Begin()
	input := tensor.Rand(3, 3, 5)

	out, err := w.Forward(id, m, input)
	require.NoError(t, err)

	param, err := w.ModuleParam(m)
	require.NoError(t, err)
	weight, err := w.ParamValue(param)
	require.NoError(t, err)

	wantOut, err := tensor.MatMul(weight, input)
	require.NoError(t, err)
	assert.True(t, out.Equal(wantOut))

	upstream := tensor.Ones(3, 3)
	inGrad, err := w.ModuleBackward(id, m, upstream)
	require.NoError(t, err)

	wantInGrad, err := tensor.MatMul(weight.T(), upstream)
	require.NoError(t, err)
	assert.True(t, inGrad.Equal(wantInGrad))

	// The weight gradient landed in the store under the context.
	gradW, err := w.Store().Gradient(id, param)
	require.NoError(t, err)
	wantGradW, err := tensor.MatMul(upstream, input.T())
	require.NoError(t, err)
	assert.True(t, gradW.Equal(wantGradW))
}

func TestBackward_WithoutForward(t *testing.T) {
	w := New("worker1")
	m := w.CreateModule(3, 3, 0)

	id := w.Store().Begin()
	_, err := w.ModuleBackward(id, m, tensor.Ones(3, 3))
	require.Error(t, err)
}

func TestOptimStep_UpdatesParameter(t *testing.T) {
	w := New("worker1")
	m := w.CreateModule(3, 3, 0)

	param, err := w.ModuleParam(m)
	require.NoError(t, err)
	before, err := w.ParamValue(param)
	require.NoError(t, err)

	id := w.Store().Begin()
	grad := tensor.Ones(3, 3)
	require.NoError(t, w.Store().Record(id, param, grad))

	require.NoError(t, w.OptimStep("inst-1", "sgd", optim.Args{"lr": 0.05}, []rref.Handle{param}, id))

	after, err := w.ParamValue(param)
	require.NoError(t, err)

	want := before.Clone()
	require.NoError(t, want.AddScaled(-0.05, grad))
	assert.True(t, after.Equal(want))
	assert.False(t, after.Equal(before), "step must change the weight")
}

func TestOptimStep_InstanceReuseKeepsMomentum(t *testing.T) {
	w := New("worker1")
	m := w.CreateModule(1, 1, 0)

	param, err := w.ModuleParam(m)
	require.NoError(t, err)
	start, err := w.ParamValue(param)
	require.NoError(t, err)

	args := optim.Args{"lr": 0.1, "momentum": 0.9}
	grad := tensor.Ones(1, 1)

	id1 := w.Store().Begin()
	require.NoError(t, w.Store().Record(id1, param, grad))
	require.NoError(t, w.OptimStep("inst", "sgd", args, []rref.Handle{param}, id1))

	id2 := w.Store().Begin()
	require.NoError(t, w.Store().Record(id2, param, grad))
	require.NoError(t, w.OptimStep("inst", "sgd", args, []rref.Handle{param}, id2))

	// With velocity carried over: x2 = x0 - 0.1*1 - 0.1*(0.9*1 + 1).
	after, err := w.ParamValue(param)
	require.NoError(t, err)
	want := start.At(0, 0) - 0.1 - 0.1*1.9
	assert.InDelta(t, want, after.At(0, 0), 1e-9)
}

func TestOptimStep_NoGradient(t *testing.T) {
	w := New("worker1")
	m := w.CreateModule(3, 3, 0)

	param, err := w.ModuleParam(m)
	require.NoError(t, err)

	id := w.Store().Begin()
	err = w.OptimStep("inst", "sgd", nil, []rref.Handle{param}, id)
	assert.True(t, errors.Is(err, autograd.ErrNoGradient), "got %v", err)
}

func TestOptimStep_UnknownHandle(t *testing.T) {
	w := New("worker1")
	id := w.Store().Begin()

	err := w.OptimStep("inst", "sgd", nil, []rref.Handle{{Owner: "worker1", Key: 404}}, id)
	assert.True(t, errors.Is(err, rref.ErrUnknownHandle), "got %v", err)
}

func TestOptimStep_InvalidVariant(t *testing.T) {
	w := New("worker1")
	m := w.CreateModule(3, 3, 0)
	param, err := w.ModuleParam(m)
	require.NoError(t, err)

	id := w.Store().Begin()
	err = w.OptimStep("inst", "bogus", nil, []rref.Handle{param}, id)
	assert.True(t, errors.Is(err, optim.ErrInvalidConfiguration), "got %v", err)
}

func TestEndContext_DropsCachedInputs(t *testing.T) {
	w := New("worker1")
	h := w.CreateModule(3, 3, 0)

	for i := 0; i < 5; i++ {
		id := w.Store().Begin()
		_, err := w.Forward(id, h, tensor.Rand(3, 3, int64(i)))
		require.NoError(t, err)
		require.NoError(t, w.EndContext(id))
	}

	m, err := w.resolveModule(h)
	require.NoError(t, err)
	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Empty(t, m.inputs, "ended contexts must not leave cached inputs behind")
}

func TestCloseOptimizer_DropsInstance(t *testing.T) {
	w := New("worker1")
	m := w.CreateModule(1, 1, 0)
	param, err := w.ModuleParam(m)
	require.NoError(t, err)

	id := w.Store().Begin()
	require.NoError(t, w.Store().Record(id, param, tensor.Ones(1, 1)))
	require.NoError(t, w.OptimStep("inst", "sgd", nil, []rref.Handle{param}, id))

	w.mu.Lock()
	cached := len(w.optimizers)
	w.mu.Unlock()
	require.Equal(t, 1, cached)

	w.CloseOptimizer("inst")

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Empty(t, w.optimizers, "closed instance must be evicted")
}

func TestRetainRelease_RoundTrip(t *testing.T) {
	w := New("worker1")
	m := w.CreateModule(3, 3, 0)
	param, err := w.ModuleParam(m)
	require.NoError(t, err)

	require.NoError(t, w.Retain(param))
	require.NoError(t, w.Release(param))
	require.NoError(t, w.Release(param))

	_, err = w.ParamValue(param)
	assert.True(t, errors.Is(err, rref.ErrUnknownHandle), "got %v", err)
}
