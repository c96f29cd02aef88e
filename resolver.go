package berth

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// ForeignBinding is a binding that already lives in another resolved scope.
// It joins a build as a delegating binding: it takes part in duplicate
// detection but adds no dependency edges.
type ForeignBinding struct {
	key    Key
	target RuntimeBinding
	site   Site
}

// Key returns the key the binding will occupy in the importing scope.
func (f ForeignBinding) Key() Key { return f.key }

// Target returns the runtime binding the delegate forwards to.
func (f ForeignBinding) Target() RuntimeBinding { return f.target }

// Site returns the site of the original declaration.
func (f ForeignBinding) Site() Site { return f.site }

// Report collects every build diagnostic. It is sorted by key so that the
// same bindings registered in any order produce the same report.
type Report struct {
	Invalid    []error
	Duplicates []*DuplicateBindingError
	Unresolved []*UnresolvedDependencyError
	Cycles     []*CircularDependencyError
}

// Empty reports whether the build produced no diagnostics.
func (r *Report) Empty() bool {
	return len(r.Invalid) == 0 && len(r.Duplicates) == 0 && len(r.Unresolved) == 0 && len(r.Cycles) == 0
}

// Len returns the number of diagnostics.
func (r *Report) Len() int {
	return len(r.Invalid) + len(r.Duplicates) + len(r.Unresolved) + len(r.Cycles)
}

// Err returns nil for an empty report and a *BuildError otherwise.
func (r *Report) Err() error {
	if r.Empty() {
		return nil
	}

	var err error
	for _, e := range r.Invalid {
		err = multierr.Append(err, e)
	}

	for _, e := range r.Duplicates {
		err = multierr.Append(err, e)
	}

	for _, e := range r.Unresolved {
		err = multierr.Append(err, e)
	}

	for _, e := range r.Cycles {
		err = multierr.Append(err, e)
	}

	return &BuildError{Report: r, err: err}
}

func (r *Report) sort() {
	sort.SliceStable(r.Invalid, func(i, j int) bool {
		return r.Invalid[i].Error() < r.Invalid[j].Error()
	})
	sort.SliceStable(r.Duplicates, func(i, j int) bool {
		return r.Duplicates[i].Key.String() < r.Duplicates[j].Key.String()
	})
	sort.SliceStable(r.Unresolved, func(i, j int) bool {
		a, b := r.Unresolved[i], r.Unresolved[j]
		if a.Key.String() != b.Key.String() {
			return a.Key.String() < b.Key.String()
		}

		return a.Dependency.String() < b.Dependency.String()
	})
	sort.SliceStable(r.Cycles, func(i, j int) bool {
		return pathString(r.Cycles[i].Path) < pathString(r.Cycles[j].Path)
	})
}

// BuildError fails a build atomically; no graph is produced.
type BuildError struct {
	Report *Report
	err    error
}

func (e *BuildError) Error() string {
	msgs := make([]string, 0, e.Report.Len())
	for _, err := range multierr.Errors(e.err) {
		msgs = append(msgs, err.Error())
	}

	return fmt.Sprintf("build failed with %d diagnostic(s): %s", len(msgs), strings.Join(msgs, "; "))
}

func (e *BuildError) Unwrap() []error {
	return append([]error{ErrBuildFailed}, multierr.Errors(e.err)...)
}

type candidate struct {
	builder *BindingBuilder
	foreign *ForeignBinding
	site    Site
}

// Resolve validates bindings and imports against each other and against
// parent, and freezes the result. Every diagnostic is collected before
// failing; duplicates stop the build before dependency resolution.
func Resolve(bindings []*BindingBuilder, imports []ForeignBinding, parent *Graph) (*Graph, error) {
	return resolve(bindings, imports, parent, nil)
}

// resolve is Resolve with diagnostics found by the caller folded into the
// same report.
func resolve(bindings []*BindingBuilder, imports []ForeignBinding, parent *Graph, pre []error) (*Graph, error) {
	report := &Report{Invalid: append([]error(nil), pre...)}
	cands := make(map[keyID][]candidate)
	keys := make(map[keyID]Key)

	var order []keyID

	add := func(k Key, c candidate) {
		id := k.id()
		if _, ok := cands[id]; !ok {
			order = append(order, id)
			keys[id] = k
		}

		cands[id] = append(cands[id], c)
	}

	for _, b := range bindings {
		if b == nil {
			continue
		}

		if err := validateBuilder(b); err != nil {
			report.Invalid = append(report.Invalid, err)

			continue
		}

		add(b.key, candidate{builder: b, site: b.site})
	}

	for i := range imports {
		f := &imports[i]
		if f.key.IsZero() {
			report.Invalid = append(report.Invalid, &InvalidKeyError{Reason: "imported binding has a zero key"})

			continue
		}

		if f.target == nil {
			report.Invalid = append(report.Invalid, illegalState("resolve", "imported binding %s has no target", f.key))

			continue
		}

		add(f.key, candidate{foreign: f, site: f.site})
	}

	for _, id := range order {
		if c := cands[id]; len(c) > 1 {
			sites := make([]Site, len(c))
			for i := range c {
				sites[i] = c[i].site
			}

			sort.SliceStable(sites, func(i, j int) bool { return sites[i].String() < sites[j].String() })
			report.Duplicates = append(report.Duplicates, &DuplicateBindingError{Key: keys[id], Sites: sites})
		}
	}

	if !report.Empty() {
		report.sort()

		return nil, report.Err()
	}

	g := &Graph{
		parent:   parent,
		bindings: make([]*Binding, 0, len(order)),
		index:    make(map[keyID]*Binding, len(order)),
		position: make(map[keyID]int, len(order)),
		layout:   &Layout{},
	}

	byBuilder := make(map[*BindingBuilder]*Binding, len(order))

	for i, id := range order {
		c := cands[id][0]
		n := &Binding{key: keys[id], site: c.site, index: i}

		if c.foreign != nil {
			n.foreign = c.foreign.target
			n.mode = c.foreign.target.Mode()
		} else {
			n.mode = c.builder.mode
			n.factory = c.builder.factory
			n.exported = c.builder.exported
			byBuilder[c.builder] = n
		}

		g.bindings = append(g.bindings, n)
		g.index[id] = n
	}

	for b, n := range byBuilder {
		if b.declaring != nil {
			decl, ok := byBuilder[b.declaring]
			if !ok {
				report.Unresolved = append(report.Unresolved, &UnresolvedDependencyError{
					Key:        n.key,
					Dependency: b.declaring.key,
					Site:       n.site,
					Declaring:  true,
				})
			}

			n.declaring = decl
		}

		n.deps = make([]Edge, 0, len(b.deps))

		for _, dep := range b.deps {
			if dep.Key.IsZero() {
				report.Invalid = append(report.Invalid, &InvalidKeyError{Reason: fmt.Sprintf("dependency of %s has a zero key", n.key)})

				continue
			}

			target, depth, ok := g.Find(dep.Key)
			if !ok && !dep.Optional {
				report.Unresolved = append(report.Unresolved, &UnresolvedDependencyError{
					Key:        n.key,
					Dependency: dep.Key,
					Site:       n.site,
				})
			}

			n.deps = append(n.deps, Edge{Dependency: dep, Target: target, Depth: depth})
		}
	}

	sorted, cycles := topoSort(g.bindings)
	for _, cycle := range cycles {
		report.Cycles = append(report.Cycles, newCycleError(cycle))
	}

	if !report.Empty() {
		report.sort()

		return nil, report.Err()
	}

	g.order = sorted
	for i, n := range sorted {
		g.position[n.key.id()] = i
	}

	for _, n := range g.bindings {
		if n.foreign == nil && n.mode == Constant {
			n.slot = g.layout.Reserve(n.key.typ)
		}
	}

	for b := range byBuilder {
		b.frozen = true
	}

	return g, nil
}

func validateBuilder(b *BindingBuilder) error {
	switch {
	case b.frozen:
		return illegalState("resolve", "binding %s already belongs to a resolved graph", b.key)
	case b.key.IsZero():
		return &InvalidKeyError{Reason: fmt.Sprintf("binding declared at %s has a zero key", b.site)}
	case b.factory == nil:
		return illegalState("resolve", "binding %s has no factory", b.key)
	case b.mode != Constant && b.mode != Prototype:
		return illegalState("resolve", "binding %s has unknown mode %s", b.key, b.mode)
	}

	return nil
}

func newCycleError(cycle []*Binding) *CircularDependencyError {
	e := &CircularDependencyError{
		Path:  make([]Key, len(cycle)),
		Sites: make([]Site, len(cycle)),
	}

	for i, n := range cycle {
		e.Path[i] = n.key
		e.Sites[i] = n.site

		if i+1 < len(cycle) && n.declaring == cycle[i+1] {
			e.ViaDeclaring = true
		}
	}

	return e
}

func pathString(path []Key) string {
	parts := make([]string, len(path))
	for i, k := range path {
		parts[i] = k.String()
	}

	return strings.Join(parts, "->")
}
