package berth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildReport(t *testing.T, err error) *Report {
	t.Helper()

	require.Error(t, err)
	require.ErrorIs(t, err, ErrBuildFailed)

	var be *BuildError
	require.ErrorAs(t, err, &be)

	return be.Report
}

func TestResolve_OrdersDependenciesFirst(t *testing.T) {
	c := noop(keyC, Require(keyB))
	b := noop(keyB, Require(keyA))
	a := noop(keyA)

	g, err := Resolve([]*BindingBuilder{c, b, a}, nil, nil)
	require.NoError(t, err)

	order := g.Order()
	require.Len(t, order, 3)
	assert.True(t, order[0].Key().Equal(keyA))
	assert.True(t, order[1].Key().Equal(keyB))
	assert.True(t, order[2].Key().Equal(keyC))

	assert.Equal(t, 0, g.Position(keyA))
	assert.Equal(t, 2, g.Position(keyC))
	assert.Equal(t, -1, g.Position(MustKeyOf[string]()))
	assert.Equal(t, 3, g.Slots())

	assert.True(t, c.Frozen())
}

func TestResolve_DuplicateReportsEverySite(t *testing.T) {
	first := noop(keyA)
	second := noop(keyA)

	_, err := Resolve([]*BindingBuilder{first, second, noop(keyB)}, nil, nil)
	report := buildReport(t, err)

	require.Len(t, report.Duplicates, 1)
	dup := report.Duplicates[0]
	assert.True(t, dup.Key.Equal(keyA))
	assert.Len(t, dup.Sites, 2)
	assert.ErrorIs(t, err, ErrDuplicateBinding)

	assert.False(t, first.Frozen())
}

func TestResolve_DuplicateWithImport(t *testing.T) {
	parent := NewBuilder()
	parent.Add(noop(keyA))
	ps := mustBuild(t, parent, nil)

	set, err := Import(ps.Registry())
	require.NoError(t, err)

	_, err = Resolve([]*BindingBuilder{noop(keyA)}, set, nil)
	report := buildReport(t, err)
	require.Len(t, report.Duplicates, 1)
}

func TestResolve_Unresolved(t *testing.T) {
	_, err := Resolve([]*BindingBuilder{noop(keyB, Require(keyA))}, nil, nil)
	report := buildReport(t, err)

	require.Len(t, report.Unresolved, 1)
	u := report.Unresolved[0]
	assert.True(t, u.Key.Equal(keyB))
	assert.True(t, u.Dependency.Equal(keyA))
	assert.False(t, u.Declaring)
	assert.ErrorIs(t, err, ErrUnresolvedDependency)
}

func TestResolve_UnresolvedLazyIsStillReported(t *testing.T) {
	_, err := Resolve([]*BindingBuilder{noop(keyB, Deferred(keyA))}, nil, nil)
	report := buildReport(t, err)

	assert.Len(t, report.Unresolved, 1)
}

func TestResolve_OptionalMissingIsFine(t *testing.T) {
	g, err := Resolve([]*BindingBuilder{noop(keyB, Optional(keyA), DeferredOptional(keyC))}, nil, nil)
	require.NoError(t, err)

	b, ok := g.Lookup(keyB)
	require.True(t, ok)

	deps := b.Dependencies()
	require.Len(t, deps, 2)
	assert.Nil(t, deps[0].Target)
	assert.Nil(t, deps[1].Target)
}

func TestResolve_TwoCycle(t *testing.T) {
	tests := []struct {
		name     string
		bindings func() []*BindingBuilder
	}{
		{"a first", func() []*BindingBuilder {
			return []*BindingBuilder{noop(keyA, Require(keyB)), noop(keyB, Require(keyA))}
		}},
		{"b first", func() []*BindingBuilder {
			return []*BindingBuilder{noop(keyB, Require(keyA)), noop(keyA, Require(keyB))}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.bindings(), nil, nil)
			report := buildReport(t, err)

			require.Len(t, report.Cycles, 1)
			path := report.Cycles[0].Path
			require.Len(t, path, 3)
			assert.True(t, path[0].Equal(keyA))
			assert.True(t, path[1].Equal(keyB))
			assert.True(t, path[2].Equal(keyA))
			assert.False(t, report.Cycles[0].ViaDeclaring)
			assert.ErrorIs(t, err, ErrCircularDependency)
		})
	}
}

func TestResolve_SelfCycle(t *testing.T) {
	_, err := Resolve([]*BindingBuilder{noop(keyA, Require(keyA))}, nil, nil)
	report := buildReport(t, err)

	require.Len(t, report.Cycles, 1)
	assert.Len(t, report.Cycles[0].Path, 2)
}

func TestResolve_CycleThroughDeclaringBinding(t *testing.T) {
	b := noop(keyB, Require(keyA))
	a := noop(keyA)
	DeclaredBy(b)(a)

	_, err := Resolve([]*BindingBuilder{a, b}, nil, nil)
	report := buildReport(t, err)

	require.Len(t, report.Cycles, 1)
	assert.True(t, report.Cycles[0].ViaDeclaring)
}

func TestResolve_MissingDeclaringBinding(t *testing.T) {
	outside := noop(keyA)

	_, err := Resolve([]*BindingBuilder{noop(keyB), Bind(keyC, nil)}, nil, nil)
	report := buildReport(t, err)
	assert.Len(t, report.Invalid, 1)

	_, err = Resolve([]*BindingBuilder{Bind(keyB, func(context.Context, Args) (any, error) {
		return nil, nil
	}, DeclaredBy(outside))}, nil, nil)
	report = buildReport(t, err)

	require.Len(t, report.Unresolved, 1)
	assert.True(t, report.Unresolved[0].Declaring)
	assert.True(t, report.Unresolved[0].Dependency.Equal(keyA))
}

func TestResolve_LazyEdgesMayCloseCycles(t *testing.T) {
	_, err := Resolve([]*BindingBuilder{
		noop(keyA, Deferred(keyB)),
		noop(keyB, Require(keyA)),
	}, nil, nil)
	assert.NoError(t, err)
}

func TestResolve_ReportIsIndependentOfOrder(t *testing.T) {
	keyD := MustKeyOf[*svcA](Name("d"))
	missing := MustKeyOf[*svcA](Name("missing"))

	bindings := []*BindingBuilder{
		noop(keyA, Require(keyB)),
		noop(keyB, Require(keyA)),
		noop(keyC, Require(missing)),
		noop(keyD, Require(keyD)),
	}

	permutations := [][]int{
		{0, 1, 2, 3},
		{3, 2, 1, 0},
		{1, 3, 0, 2},
		{2, 0, 3, 1},
	}

	var want string

	for _, perm := range permutations {
		ordered := make([]*BindingBuilder, len(perm))
		for i, p := range perm {
			ordered[i] = bindings[p]
		}

		_, err := Resolve(ordered, nil, nil)
		report := buildReport(t, err)

		assert.Len(t, report.Cycles, 2)
		assert.Len(t, report.Unresolved, 1)

		if want == "" {
			want = err.Error()

			continue
		}

		assert.Equal(t, want, err.Error())
	}
}

func TestResolve_OverlappingCyclesIndependentOfOrder(t *testing.T) {
	keyX := MustKeyOf[*svcA](Name("x"))
	keyY := MustKeyOf[*svcA](Name("y"))
	keyZ := MustKeyOf[*svcA](Name("z"))

	mesh := func() []*BindingBuilder {
		return []*BindingBuilder{
			noop(keyX, Require(keyY), Require(keyZ)),
			noop(keyY, Require(keyX), Require(keyZ)),
			noop(keyZ, Require(keyX), Require(keyY)),
		}
	}

	permutations := [][]int{
		{0, 1, 2},
		{0, 2, 1},
		{1, 0, 2},
		{1, 2, 0},
		{2, 0, 1},
		{2, 1, 0},
	}

	var want []string

	for _, perm := range permutations {
		bindings := mesh()

		ordered := make([]*BindingBuilder, len(perm))
		for i, p := range perm {
			ordered[i] = bindings[p]
		}

		_, err := Resolve(ordered, nil, nil)
		report := buildReport(t, err)

		paths := make([]string, len(report.Cycles))
		for i, c := range report.Cycles {
			paths[i] = pathString(c.Path)
		}

		require.Len(t, paths, 3, "order %v", perm)

		if want == nil {
			want = paths

			continue
		}

		assert.Equal(t, want, paths, "order %v", perm)
	}
}

func TestResolve_FrozenBuilderIsRejected(t *testing.T) {
	a := noop(keyA)

	_, err := Resolve([]*BindingBuilder{a}, nil, nil)
	require.NoError(t, err)

	_, err = Resolve([]*BindingBuilder{a}, nil, nil)
	report := buildReport(t, err)
	require.Len(t, report.Invalid, 1)
	assert.ErrorIs(t, report.Invalid[0], ErrIllegalState)

	assert.Error(t, a.Rekey(keyB))
	assert.Error(t, a.DependOn(Require(keyB)))
}

func TestResolve_ParentGraph(t *testing.T) {
	parent, err := Resolve([]*BindingBuilder{noop(keyA)}, nil, nil)
	require.NoError(t, err)

	child, err := Resolve([]*BindingBuilder{noop(keyB, Require(keyA))}, nil, parent)
	require.NoError(t, err)

	b, ok := child.Lookup(keyB)
	require.True(t, ok)
	assert.Equal(t, 1, b.Dependencies()[0].Depth)

	_, depth, ok := child.Find(keyA)
	assert.True(t, ok)
	assert.Equal(t, 1, depth)

	_, ok = child.Lookup(keyA)
	assert.False(t, ok)
	assert.Same(t, parent, child.Parent())
}

func TestResolve_PrototypesTakeNoSlot(t *testing.T) {
	g, err := Resolve([]*BindingBuilder{
		noop(keyA),
		Bind(keyB, func(context.Context, Args) (any, error) { return nil, nil }, AsPrototype()),
	}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, g.Slots())
	assert.Equal(t, 2, g.Len())
}

func TestBindingBuilder_RekeyOnce(t *testing.T) {
	a := noop(keyA)

	require.NoError(t, a.Rekey(keyC))
	assert.True(t, a.Key().Equal(keyC))

	err := a.Rekey(keyB)
	assert.True(t, errors.Is(err, ErrIllegalState))
	assert.ErrorIs(t, noop(keyA).Rekey(Key{}), ErrInvalidKey)
}
