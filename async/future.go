package async

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Errors reported through futures.
var (
	ErrNilExecutor = errors.New("async: nil executor")
	ErrPanic       = errors.New("async: task panicked")
)

// Future is the eventual result of an asynchronous operation. It completes
// exactly once, with either a value or an error.
type Future[T any] struct {
	done chan struct{}

	mu        sync.Mutex
	completed bool
	val       T
	err       error
	callbacks []func()
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Completed returns a future already holding v.
func Completed[T any](v T) *Future[T] {
	f := newFuture[T]()
	f.complete(v, nil)
	return f
}

// Failed returns a future already holding err.
func Failed[T any](err error) *Future[T] {
	f := newFuture[T]()
	var zero T
	f.complete(zero, err)
	return f
}

// Supply runs fn on exec and completes the future with its result. A panic
// in fn or a rejected submission fails the future.
func Supply[T any](exec Executor, fn func() (T, error)) *Future[T] {
	if exec == nil {
		return Failed[T](ErrNilExecutor)
	}
	f := newFuture[T]()
	if err := exec.Execute(func() {
		v, err := call(fn)
		f.complete(v, err)
	}); err != nil {
		var zero T
		f.complete(zero, fmt.Errorf("async: submit task: %w", err))
	}
	return f
}

// Then schedules fn on exec once f succeeds. A failure of f propagates
// without running fn. Scheduling happens from f's completion, no goroutine
// waits on f.
func Then[T, U any](f *Future[T], exec Executor, fn func(T) (U, error)) *Future[U] {
	if exec == nil {
		return Failed[U](ErrNilExecutor)
	}
	next := newFuture[U]()
	f.onComplete(func() {
		v, err := f.result()
		if err != nil {
			var zero U
			next.complete(zero, err)
			return
		}
		if err := exec.Execute(func() {
			u, err := call(func() (U, error) { return fn(v) })
			next.complete(u, err)
		}); err != nil {
			var zero U
			next.complete(zero, fmt.Errorf("async: submit continuation: %w", err))
		}
	})
	return next
}

// Done is closed when the future completes.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the future completes or ctx is done. Abandoning a
// future does not cancel the underlying work.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.result()
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (f *Future[T]) result() (T, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.err
}

func (f *Future[T]) complete(v T, err error) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		return
	}
	f.completed = true
	f.val, f.err = v, err
	cbs := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mu.Unlock()

	for _, cb := range cbs {
		cb()
	}
}

func (f *Future[T]) onComplete(cb func()) {
	f.mu.Lock()
	if f.completed {
		f.mu.Unlock()
		cb()
		return
	}
	f.callbacks = append(f.callbacks, cb)
	f.mu.Unlock()
}

func call[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return fn()
}
