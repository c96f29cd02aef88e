package berth

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRegistry_ConstantIsConstructedOnce(t *testing.T) {
	var calls atomic.Int32

	b := NewBuilder()
	b.Add(Bind(keyA, func(context.Context, Args) (any, error) {
		calls.Add(1)
		time.Sleep(5 * time.Millisecond)

		return &svcA{}, nil
	}))

	s := mustBuild(t, b, nil)
	r := s.Registry()

	instances := make([]any, 64)

	var g errgroup.Group
	for i := range instances {
		g.Go(func() error {
			v, err := r.Lookup(context.Background(), keyA)
			instances[i] = v

			return err
		})
	}

	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range instances {
		assert.Same(t, instances[0], v)
	}

	assert.True(t, r.Instantiated(keyA))
	assert.Equal(t, 1, s.Arena().Written())
}

func TestRegistry_PrototypeIsConstructedPerLookup(t *testing.T) {
	var calls atomic.Int32

	b := NewBuilder()
	b.Add(counting(keyA, &calls, AsPrototype()))

	s := mustBuild(t, b, nil)
	ctx := context.Background()

	first, err := s.Registry().Lookup(ctx, keyA)
	require.NoError(t, err)

	second, err := s.Registry().Lookup(ctx, keyA)
	require.NoError(t, err)

	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), calls.Load())
	assert.False(t, s.Registry().Instantiated(keyA))
	assert.Equal(t, 0, s.Arena().Size())
}

func TestRegistry_InjectsDependencies(t *testing.T) {
	b := NewBuilder()
	b.Add(
		Bind(keyC, func(_ context.Context, args Args) (any, error) {
			return &svcC{b: args.Value(0).(*svcB)}, nil
		}, DependsOn(Require(keyB))),
		Bind(keyB, func(_ context.Context, args Args) (any, error) {
			return &svcB{a: args.Value(0).(*svcA)}, nil
		}, DependsOn(Require(keyA))),
		constant(keyA, &svcA{name: "root"}),
	)

	s := mustBuild(t, b, nil)

	c, err := Lookup[*svcC](context.Background(), s.Registry())
	require.NoError(t, err)
	assert.Equal(t, "root", c.b.a.name)

	a, err := Lookup[*svcA](context.Background(), s.Registry())
	require.NoError(t, err)
	assert.Same(t, c.b.a, a)
}

func TestRegistry_DeclaringBindingIsReceiver(t *testing.T) {
	b := NewBuilder()

	owner := b.Bind(keyA, func(context.Context, Args) (any, error) {
		return &svcA{name: "owner"}, nil
	})
	b.Bind(keyB, func(_ context.Context, args Args) (any, error) {
		return &svcB{a: args.Receiver.(*svcA)}, nil
	}, DeclaredBy(owner))

	s := mustBuild(t, b, nil)

	v, err := Lookup[*svcB](context.Background(), s.Registry())
	require.NoError(t, err)
	assert.Equal(t, "owner", v.a.name)
}

func TestRegistry_FailedConstructionIsRetried(t *testing.T) {
	boom := errors.New("boom")

	var calls atomic.Int32

	b := NewBuilder()
	b.Add(Bind(keyA, func(context.Context, Args) (any, error) {
		if calls.Add(1) == 1 {
			return nil, boom
		}

		return &svcA{}, nil
	}))

	s := mustBuild(t, b, nil)
	ctx := context.Background()

	_, err := s.Registry().Lookup(ctx, keyA)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrInstantiation)

	var ie *InstantiationError
	require.ErrorAs(t, err, &ie)
	assert.True(t, ie.Key.Equal(keyA))

	assert.False(t, s.Registry().Instantiated(keyA))

	_, err = s.Registry().Lookup(ctx, keyA)
	require.NoError(t, err)
}

func TestRegistry_DependencyFailurePropagates(t *testing.T) {
	boom := errors.New("boom")

	b := NewBuilder()
	b.Add(
		Bind(keyA, func(context.Context, Args) (any, error) { return nil, boom }),
		noop(keyB, Require(keyA)),
	)

	s := mustBuild(t, b, nil)

	_, err := s.Registry().Lookup(context.Background(), keyB)
	assert.ErrorIs(t, err, boom)
}

func TestRegistry_FactoryTypeMismatch(t *testing.T) {
	b := NewBuilder()
	b.Add(constant(keyA, &svcB{}))

	s := mustBuild(t, b, nil)

	_, err := s.Registry().Lookup(context.Background(), keyA)
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.ErrorIs(t, err, ErrInstantiation)
}

func TestRegistry_AncestorFallback(t *testing.T) {
	pb := NewBuilder(WithName("parent"))
	pb.Add(constant(keyA, &svcA{name: "parent"}))
	parent := mustBuild(t, pb, nil)

	cb := NewBuilder(WithName("child"))
	cb.Add(Bind(keyB, func(_ context.Context, args Args) (any, error) {
		return &svcB{a: args.Value(0).(*svcA)}, nil
	}, DependsOn(Require(keyA))))
	child := mustBuild(t, cb, parent)

	r := child.Registry()
	ctx := context.Background()

	assert.True(t, r.Has(keyA))
	_, ok := r.Local(keyA)
	assert.False(t, ok)

	v, err := Lookup[*svcB](ctx, r)
	require.NoError(t, err)

	fromParent, err := Lookup[*svcA](ctx, parent.Registry())
	require.NoError(t, err)
	assert.Same(t, fromParent, v.a)

	rb, ok := r.Binding(keyA)
	require.True(t, ok)
	assert.Same(t, parent, rb.Scope())

	assert.False(t, parent.Registry().Has(keyB))
	assert.Equal(t, []Key{keyB}, r.Keys())
	assert.Equal(t, 1, r.Len())
	assert.Same(t, parent, child.Parent())
}

func TestRegistry_ChildShadowsParent(t *testing.T) {
	pb := NewBuilder()
	pb.Add(constant(keyA, &svcA{name: "parent"}))
	parent := mustBuild(t, pb, nil)

	cb := NewBuilder()
	cb.Add(constant(keyA, &svcA{name: "child"}))
	child := mustBuild(t, cb, parent)

	v, err := Lookup[*svcA](context.Background(), child.Registry())
	require.NoError(t, err)
	assert.Equal(t, "child", v.name)
}

func TestRegistry_LookupAfterTermination(t *testing.T) {
	b := NewBuilder()
	b.Add(constant(keyA, &svcA{}))
	s := mustBuild(t, b, nil)

	ctx := context.Background()
	require.NoError(t, s.Controller().Launch(ctx))
	require.NoError(t, s.Controller().Stop(ctx))

	_, err := s.Registry().Lookup(ctx, keyA)
	assert.ErrorIs(t, err, ErrIllegalState)

	_, err = s.Registry().Lookup(ctx, keyB)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_RuntimeBindingKinds(t *testing.T) {
	b := NewBuilder()
	b.Add(
		constant(keyA, &svcA{}),
		Bind(keyB, func(context.Context, Args) (any, error) { return &svcB{}, nil }, AsPrototype()),
	)
	s := mustBuild(t, b, nil)

	rb, ok := s.Registry().Local(keyA)
	require.True(t, ok)
	cb, ok := rb.(*ConstantBinding)
	require.True(t, ok)
	assert.True(t, cb.Slot().Valid())
	assert.Equal(t, Constant, cb.Mode())

	rb, ok = s.Registry().Local(keyB)
	require.True(t, ok)
	_, ok = rb.(*PrototypeBinding)
	assert.True(t, ok)
	assert.Equal(t, Prototype, rb.Mode())
}
