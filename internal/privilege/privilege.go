// Package privilege scopes engine access to explicitly elevated calls.
//
// Run derives a context carrying an elevation token and hands it to the
// wrapped function only. Guard wraps an engine and refuses calls whose
// context was not produced by Run.
package privilege

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// ErrNotPrivileged is returned for engine calls made outside Run.
var ErrNotPrivileged = errors.New("privilege: call requires elevated context")

// ErrPanic wraps a panic recovered inside Run.
var ErrPanic = errors.New("privilege: operation panicked")

type elevatedKey struct{}

// Run calls fn with an elevated context and returns its result. A panic in
// fn is returned as an error wrapping ErrPanic.
func Run[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v = zero
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, r, debug.Stack())
		}
	}()
	return fn(context.WithValue(ctx, elevatedKey{}, true))
}

// Elevated reports whether ctx was produced by Run.
func Elevated(ctx context.Context) bool {
	v, _ := ctx.Value(elevatedKey{}).(bool)
	return v
}

// Check returns ErrNotPrivileged unless ctx is elevated.
func Check(ctx context.Context) error {
	if !Elevated(ctx) {
		return ErrNotPrivileged
	}
	return nil
}
