package distoptim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/drift/internal/autograd"
	"github.com/born-ml/drift/internal/optim"
	"github.com/born-ml/drift/internal/rref"
)

// fakeCaller records dispatch traffic and fails on demand.
type fakeCaller struct {
	mu       sync.Mutex
	local    string
	steps    map[string][]rref.Handle // owner -> params of last step call
	retained map[rref.Handle]int
	closed   []string         // owners told to drop their instance
	failOn   map[string]error // owner -> error to return from OptimStep
}

func newFakeCaller(local string) *fakeCaller {
	return &fakeCaller{
		local:    local,
		steps:    make(map[string][]rref.Handle),
		retained: make(map[rref.Handle]int),
		failOn:   make(map[string]error),
	}
}

func (f *fakeCaller) LocalOwner() string { return f.local }

func (f *fakeCaller) OptimStep(_ context.Context, owner, _, _ string, _ optim.Args, params []rref.Handle, _ autograd.ContextID) error {
	f.mu.Lock()
	f.steps[owner] = params
	err := f.failOn[owner]
	f.mu.Unlock()
	return err
}

func (f *fakeCaller) OptimClose(_ context.Context, owner, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, owner)
	return nil
}

func (f *fakeCaller) Retain(_ context.Context, h rref.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retained[h]++
	return nil
}

func (f *fakeCaller) Release(_ context.Context, h rref.Handle) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retained[h]--
	return nil
}

func handlesFor(owners ...string) []rref.Handle {
	out := make([]rref.Handle, len(owners))
	for i, o := range owners {
		out[i] = rref.Handle{Owner: o, Key: uint64(i + 1)}
	}
	return out
}

func TestNew_EmptyHandles(t *testing.T) {
	_, err := New(context.Background(), newFakeCaller("driver"), "sgd", nil, nil)
	require.ErrorIs(t, err, optim.ErrInvalidConfiguration)
}

func TestNew_UnknownVariant(t *testing.T) {
	_, err := New(context.Background(), newFakeCaller("driver"), "no-such-optimizer", handlesFor("w1"), nil)
	require.ErrorIs(t, err, optim.ErrInvalidConfiguration)
}

func TestNew_BadArgs(t *testing.T) {
	caller := newFakeCaller("driver")
	_, err := New(context.Background(), caller, "sgd", handlesFor("w1"), optim.Args{"lr": -1})
	require.ErrorIs(t, err, optim.ErrInvalidConfiguration)
	assert.Empty(t, caller.retained, "no handle may be retained when validation fails")
}

func TestNew_RetainsHandles(t *testing.T) {
	ctx := context.Background()
	caller := newFakeCaller("driver")
	handles := handlesFor("w1", "w2", "w1")

	d, err := New(ctx, caller, "sgd", handles, optim.Args{"lr": 0.05})
	require.NoError(t, err)

	for _, h := range handles {
		assert.Equal(t, 1, caller.retained[h], "handle %s", h)
	}

	require.NoError(t, d.Close(ctx))
	for _, h := range handles {
		assert.Equal(t, 0, caller.retained[h], "handle %s after Close", h)
	}
	// Each owner is told exactly once to drop its optimizer instance.
	assert.Equal(t, []string{"w1", "w2"}, caller.closed)
}

func TestStep_OneCallPerOwner(t *testing.T) {
	ctx := context.Background()
	caller := newFakeCaller("driver")
	handles := []rref.Handle{
		{Owner: "w1", Key: 1},
		{Owner: "w2", Key: 2},
		{Owner: "w1", Key: 3},
		{Owner: "driver", Key: 4},
	}

	d, err := New(ctx, caller, "sgd", handles, optim.Args{"lr": 0.05})
	require.NoError(t, err)

	require.NoError(t, d.Step(ctx, autograd.ContextID(1)))

	require.Len(t, caller.steps, 3)
	// Each owner sees exactly its own subset, in first-appearance order.
	assert.Equal(t, []rref.Handle{{Owner: "w1", Key: 1}, {Owner: "w1", Key: 3}}, caller.steps["w1"])
	assert.Equal(t, []rref.Handle{{Owner: "w2", Key: 2}}, caller.steps["w2"])
	assert.Equal(t, []rref.Handle{{Owner: "driver", Key: 4}}, caller.steps["driver"])
}

func TestStep_FailurePreservesMessageAndPartialSuccess(t *testing.T) {
	ctx := context.Background()
	caller := newFakeCaller("driver")
	caller.failOn["w2"] = fmt.Errorf("Error running optimizer.")

	d, err := New(ctx, caller, "sgd", handlesFor("w1", "w2"), optim.Args{"lr": 0.05})
	require.NoError(t, err)

	err = d.Step(ctx, autograd.ContextID(7))
	require.ErrorIs(t, err, ErrStepFailed)
	assert.Contains(t, err.Error(), "Error running optimizer.")

	// The failing owner does not stop the other owner's call.
	assert.Contains(t, caller.steps, "w1")
}

func TestStep_LocalFailureReportedFirst(t *testing.T) {
	ctx := context.Background()
	caller := newFakeCaller("driver")
	caller.failOn["driver"] = errors.New("local boom")
	caller.failOn["w1"] = errors.New("remote boom")

	d, err := New(ctx, caller, "sgd", handlesFor("driver", "w1"), nil)
	require.NoError(t, err)

	err = d.Step(ctx, autograd.ContextID(2))
	require.ErrorIs(t, err, ErrStepFailed)
	assert.Contains(t, err.Error(), "local boom")
}

func TestGroupByOwner_Order(t *testing.T) {
	handles := []rref.Handle{
		{Owner: "b", Key: 1},
		{Owner: "a", Key: 2},
		{Owner: "b", Key: 3},
		{Owner: "c", Key: 4},
	}

	groups := groupByOwner(handles)

	var owners []string
	for pair := groups.Oldest(); pair != nil; pair = pair.Next() {
		owners = append(owners, pair.Key)
	}
	assert.Equal(t, []string{"b", "a", "c"}, owners)
}
