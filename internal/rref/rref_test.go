package rref

import (
	"errors"
	"sync"
	"testing"
)

func TestCreateResolve(t *testing.T) {
	reg := NewRegistry("worker0")

	h := reg.Create("hello")
	if h.Owner != "worker0" {
		t.Errorf("Owner: got %q, want %q", h.Owner, "worker0")
	}

	v, err := reg.Resolve(h)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if v != "hello" {
		t.Errorf("Resolve: got %v, want hello", v)
	}
}

func TestResolve_WrongOwner(t *testing.T) {
	reg := NewRegistry("worker0")
	h := reg.Create(1)
	h.Owner = "worker1"

	if _, err := reg.Resolve(h); err == nil {
		t.Error("expected error resolving foreign handle")
	}
}

func TestRetainRelease(t *testing.T) {
	reg := NewRegistry("worker0")
	h := reg.Create(42)

	if got := reg.RefCount(h); got != 1 {
		t.Fatalf("initial refcount: got %d, want 1", got)
	}

	if err := reg.Retain(h); err != nil {
		t.Fatalf("Retain: %v", err)
	}
	if got := reg.RefCount(h); got != 2 {
		t.Errorf("refcount after retain: got %d, want 2", got)
	}

	if err := reg.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := reg.RefCount(h); got != 1 {
		t.Errorf("refcount after release: got %d, want 1", got)
	}

	// Final release reclaims the value.
	if err := reg.Release(h); err != nil {
		t.Fatalf("final Release: %v", err)
	}
	if _, err := reg.Resolve(h); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("Resolve after reclaim: got %v, want ErrUnknownHandle", err)
	}
	if reg.Live() != 0 {
		t.Errorf("Live: got %d, want 0", reg.Live())
	}
}

func TestRelease_Unknown(t *testing.T) {
	reg := NewRegistry("worker0")

	err := reg.Release(Handle{Owner: "worker0", Key: 99})
	if !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("got %v, want ErrUnknownHandle", err)
	}
}

func TestRetain_RaceWithFinalRelease(t *testing.T) {
	reg := NewRegistry("worker0")

	for i := 0; i < 1000; i++ {
		h := reg.Create(1)

		done := make(chan error, 1)
		go func() { done <- reg.Release(h) }()
		retainErr := reg.Retain(h)

		if err := <-done; err != nil {
			t.Fatalf("Release: %v", err)
		}

		switch {
		case retainErr == nil:
			// The retain won: it must have pinned the value.
			if _, err := reg.Resolve(h); err != nil {
				t.Fatalf("Retain returned nil but handle is gone: %v", err)
			}
			if err := reg.Release(h); err != nil {
				t.Fatalf("cleanup Release: %v", err)
			}
		case errors.Is(retainErr, ErrUnknownHandle):
			// The final release won: the handle must be fully gone.
			if _, err := reg.Resolve(h); !errors.Is(err, ErrUnknownHandle) {
				t.Fatalf("Resolve after losing race: got %v, want ErrUnknownHandle", err)
			}
		default:
			t.Fatalf("Retain: %v", retainErr)
		}
	}
}

func TestValues_Snapshot(t *testing.T) {
	reg := NewRegistry("worker0")
	reg.Create("a")
	h := reg.Create("b")

	if got := len(reg.Values()); got != 2 {
		t.Fatalf("Values: got %d, want 2", got)
	}

	if err := reg.Release(h); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if got := len(reg.Values()); got != 1 {
		t.Errorf("Values after release: got %d, want 1", got)
	}
}

func TestConcurrentRetainRelease(t *testing.T) {
	reg := NewRegistry("worker0")
	h := reg.Create("shared")

	const goroutines = 10
	const iterations = 100

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for it := 0; it < iterations; it++ {
				if err := reg.Retain(h); err != nil {
					t.Errorf("Retain: %v", err)
					return
				}
				if err := reg.Release(h); err != nil {
					t.Errorf("Release: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := reg.RefCount(h); got != 1 {
		t.Errorf("refcount after concurrent churn: got %d, want 1", got)
	}
}
