package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSupply_Value(t *testing.T) {
	f := Supply(Go, func() (int, error) { return 42, nil })
	v, err := f.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Errorf("got %d, want 42", v)
	}
}

func TestSupply_Error(t *testing.T) {
	boom := errors.New("boom")
	f := Supply(Inline, func() (string, error) { return "", boom })
	if _, err := f.Await(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestSupply_PanicBecomesError(t *testing.T) {
	f := Supply(Go, func() (int, error) { panic("kaboom") })
	_, err := f.Await(context.Background())
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
}

func TestSupply_RejectedSubmission(t *testing.T) {
	reject := ExecutorFunc(func(func()) error { return ErrQueueFull })
	f := Supply(reject, func() (int, error) { return 1, nil })

	select {
	case <-f.Done():
	default:
		t.Fatal("future should be completed immediately")
	}
	if _, err := f.Await(context.Background()); !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}
}

func TestSupply_NilExecutor(t *testing.T) {
	_, err := Supply[int](nil, func() (int, error) { return 1, nil }).Await(context.Background())
	if !errors.Is(err, ErrNilExecutor) {
		t.Errorf("expected ErrNilExecutor, got %v", err)
	}
}

func TestAwait_ContextDone(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	f := Supply(Go, func() (int, error) {
		<-release
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestThen_Chains(t *testing.T) {
	f := Supply(Go, func() (int, error) { return 2, nil })
	g := Then(f, Go, func(v int) (string, error) {
		if v != 2 {
			return "", errors.New("wrong input")
		}
		return "two", nil
	})
	got, err := g.Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "two" {
		t.Errorf("got %q", got)
	}
}

func TestThen_PropagatesFailureWithoutRunning(t *testing.T) {
	boom := errors.New("boom")
	var ran atomic.Bool
	g := Then(Failed[int](boom), Go, func(int) (int, error) {
		ran.Store(true)
		return 0, nil
	})
	if _, err := g.Await(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
	if ran.Load() {
		t.Error("continuation must not run after failure")
	}
}

func TestThen_RegisteredBeforeCompletion(t *testing.T) {
	release := make(chan struct{})
	f := Supply(Go, func() (int, error) {
		<-release
		return 5, nil
	})
	g := Then(f, Inline, func(v int) (int, error) { return v * 2, nil })
	close(release)

	v, err := g.Await(context.Background())
	if err != nil || v != 10 {
		t.Errorf("got %d, %v", v, err)
	}
}

func TestCompleted(t *testing.T) {
	v, err := Completed("x").Await(context.Background())
	if err != nil || v != "x" {
		t.Errorf("got %q, %v", v, err)
	}
}

func TestComplete_OnlyOnce(t *testing.T) {
	f := newFuture[int]()
	f.complete(1, nil)
	f.complete(2, errors.New("late"))
	v, err := f.Await(context.Background())
	if v != 1 || err != nil {
		t.Errorf("got %d, %v", v, err)
	}
}
