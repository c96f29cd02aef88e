package berth

import (
	"context"
	"fmt"
)

// Lookup resolves T (qualified by qualifiers) with type safety.
func Lookup[T any](ctx context.Context, r *Registry, qualifiers ...any) (T, error) {
	var zero T

	key, err := KeyOf[T](qualifiers...)
	if err != nil {
		return zero, err
	}

	return LookupKey[T](ctx, r, key)
}

// LookupKey resolves key and asserts the instance to T.
func LookupKey[T any](ctx context.Context, r *Registry, key Key) (T, error) {
	var zero T

	instance, err := r.Lookup(ctx, key)
	if err != nil {
		return zero, err
	}

	if instance == nil {
		return zero, nil
	}

	typed, ok := instance.(T)
	if !ok {
		return zero, ErrInstanceTypeMismatch(key, instance)
	}

	return typed, nil
}

// MustLookup resolves or panics - use only during startup.
func MustLookup[T any](ctx context.Context, r *Registry, qualifiers ...any) T {
	instance, err := Lookup[T](ctx, r, qualifiers...)
	if err != nil {
		panic(fmt.Sprintf("failed to look up %T: %v", instance, err))
	}

	return instance
}

// Provide declares a typed constant binding for T.
//
// Usage:
//
//	b.Add(berth.Provide(func(ctx context.Context, args berth.Args) (*Cache, error) {
//	    return NewCache(args.Value(0).(*redis.Client)), nil
//	}, berth.DependsOn(berth.Inject[*redis.Client]())))
func Provide[T any](factory func(ctx context.Context, args Args) (T, error), opts ...BindOption) *BindingBuilder {
	opts = append([]BindOption{At(CallerSite(1))}, opts...)

	return Bind(MustKeyOf[T](), func(ctx context.Context, args Args) (any, error) {
		return factory(ctx, args)
	}, opts...)
}

// ProvideValue declares a constant binding that always yields v.
func ProvideValue[T any](v T, qualifiers ...any) *BindingBuilder {
	return Bind(MustKeyOf[T](qualifiers...), func(context.Context, Args) (any, error) {
		return v, nil
	}, At(CallerSite(1)))
}
