package berth

import (
	"context"
	"fmt"
)

// Lazy is the handle a factory receives for a lazy dependency. The target
// is resolved on Get, never during the owning factory's own construction,
// which is what lets lazy edges close a cycle.
//
// A factory must not call Get on a handle that leads back to the binding it
// is constructing.
type Lazy struct {
	key     Key
	resolve func(ctx context.Context) (any, error)
}

func (*Lazy) deferred() {}

// Key returns the key the handle resolves.
func (l *Lazy) Key() Key { return l.key }

// Available reports whether the dependency is bound at all. Only lazy
// optional dependencies can be unavailable.
func (l *Lazy) Available() bool { return l.resolve != nil }

// Get resolves the dependency. Constants are cached by their scope, so
// repeated calls return the same instance; prototypes yield a fresh
// instance per call. An unbound optional dependency yields nil.
func (l *Lazy) Get(ctx context.Context) (any, error) {
	if l.resolve == nil {
		return nil, nil
	}

	return l.resolve(ctx)
}

// MustGet resolves the dependency, panicking on error.
func (l *Lazy) MustGet(ctx context.Context) any {
	v, err := l.Get(ctx)
	if err != nil {
		panic(fmt.Sprintf("lazy dependency %s failed: %v", l.key, err))
	}

	return v
}

// LazyAs resolves l and asserts the result to T.
func LazyAs[T any](ctx context.Context, l *Lazy) (T, error) {
	var zero T

	v, err := l.Get(ctx)
	if err != nil || v == nil {
		return zero, err
	}

	typed, ok := v.(T)
	if !ok {
		return zero, ErrInstanceTypeMismatch(l.key, v)
	}

	return typed, nil
}
