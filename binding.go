package berth

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime"
)

// Mode is a binding's instantiation mode.
type Mode int

const (
	// Constant bindings are instantiated at most once per scope and cached
	// in the scope's arena.
	Constant Mode = iota

	// Prototype bindings run their factory on every lookup.
	Prototype
)

func (m Mode) String() string {
	switch m {
	case Constant:
		return "constant"
	case Prototype:
		return "prototype"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Site is the source location that declared a binding.
type Site struct {
	File     string
	Line     int
	Function string
}

// CallerSite captures the location skip frames above the caller.
func CallerSite(skip int) Site {
	pc, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{}
	}

	site := Site{File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		site.Function = fn.Name()
	}

	return site
}

func (s Site) String() string {
	if s.File == "" {
		if s.Function != "" {
			return s.Function
		}

		return "<unknown>"
	}

	return fmt.Sprintf("%s:%d", filepath.Base(s.File), s.Line)
}

// Dependency points at the key a binding needs. It is a lookup relation,
// never ownership.
type Dependency struct {
	Key      Key
	Optional bool

	// Lazy dependencies are handed to the factory as a *Lazy handle and do
	// not take part in cycle detection or lifecycle ordering.
	Lazy bool
}

func (d Dependency) String() string {
	s := d.Key.String()
	if d.Optional {
		s += "?"
	}

	if d.Lazy {
		s = "lazy " + s
	}

	return s
}

// Args is what a factory receives: the declaring binding's instance (if any)
// and one value per declared dependency, in declaration order. A missing
// optional dependency is nil; a lazy dependency is a *Lazy.
type Args struct {
	Receiver any
	Values   []any
}

// Value returns the i-th dependency value.
func (a Args) Value(i int) any {
	if i < 0 || i >= len(a.Values) {
		return nil
	}

	return a.Values[i]
}

// Factory produces an instance for a binding.
type Factory func(ctx context.Context, args Args) (any, error)

// BindingBuilder is the build-time, mutable form of a binding. It is owned
// by the goroutine assembling the scope and is frozen once the scope
// resolves successfully.
type BindingBuilder struct {
	key       Key
	deps      []Dependency
	mode      Mode
	factory   Factory
	declaring *BindingBuilder
	exported  bool
	site      Site
	rekeyed   bool
	frozen    bool
}

// Bind declares a binding for key. Without options the binding is a
// constant with no dependencies.
func Bind(key Key, factory Factory, opts ...BindOption) *BindingBuilder {
	b := &BindingBuilder{
		key:     key,
		factory: factory,
		mode:    Constant,
		site:    CallerSite(1),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Key returns the binding's current key.
func (b *BindingBuilder) Key() Key { return b.key }

// Site returns where the binding was declared.
func (b *BindingBuilder) Site() Site { return b.site }

// Frozen reports whether the binding has been resolved into a graph.
func (b *BindingBuilder) Frozen() bool { return b.frozen }

// Rekey moves the binding to a new key. It may be called once, before the
// binding is frozen.
func (b *BindingBuilder) Rekey(key Key) error {
	if b.frozen {
		return illegalState("rekey", "binding %s is frozen", b.key)
	}

	if b.rekeyed {
		return illegalState("rekey", "binding %s was already rekeyed", b.key)
	}

	if key.IsZero() {
		return &InvalidKeyError{Reason: "zero key"}
	}

	b.key = key
	b.rekeyed = true

	return nil
}

// DependOn appends dependencies.
func (b *BindingBuilder) DependOn(deps ...Dependency) error {
	if b.frozen {
		return illegalState("depend", "binding %s is frozen", b.key)
	}

	b.deps = append(b.deps, deps...)

	return nil
}

// Binding is the frozen form of a BindingBuilder. It is immutable and safe
// for concurrent reads.
type Binding struct {
	key       Key
	deps      []Edge
	mode      Mode
	factory   Factory
	declaring *Binding
	exported  bool
	site      Site
	slot      Slot
	foreign   RuntimeBinding
	index     int
}

// Edge is a resolved dependency. Depth is 0 for the local graph and n for
// the n-th ancestor; Target is nil for a missing optional dependency.
type Edge struct {
	Dependency
	Target *Binding
	Depth  int
}

// Key returns the binding's key.
func (b *Binding) Key() Key { return b.key }

// Mode returns the instantiation mode. Delegating bindings report the mode
// of their target.
func (b *Binding) Mode() Mode {
	if b.foreign != nil {
		return b.foreign.Mode()
	}

	return b.mode
}

// Site returns where the binding was declared.
func (b *Binding) Site() Site { return b.site }

// Exported reports whether the binding is offered to export.
func (b *Binding) Exported() bool { return b.exported }

// Declaring returns the binding whose instance receives this binding's
// factory call, or nil.
func (b *Binding) Declaring() *Binding { return b.declaring }

// Delegating reports whether the binding forwards to a foreign binding.
func (b *Binding) Delegating() bool { return b.foreign != nil }

// Dependencies returns a copy of the resolved edges.
func (b *Binding) Dependencies() []Edge {
	out := make([]Edge, len(b.deps))
	copy(out, b.deps)

	return out
}

func (b *Binding) String() string {
	return fmt.Sprintf("%s %s (%s)", b.Mode(), b.key, b.site)
}
