package berth

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Builder collects the declarations of one scope and builds it exactly once.
type Builder struct {
	cfg       Config
	logger    *zap.Logger
	observers []Observer
	keys      *KeyCache

	mu       sync.Mutex
	bindings []*BindingBuilder
	imports  []ForeignBinding
	ops      []Operation
	entry    EntryPoint
	built    bool
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithObserver adds an observer for runtime events.
func WithObserver(o Observer) BuilderOption {
	return func(b *Builder) {
		if o != nil {
			b.observers = append(b.observers, o)
		}
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg Config) BuilderOption {
	return func(b *Builder) { b.cfg = cfg }
}

// WithName sets the scope ID.
func WithName(name string) BuilderOption {
	return func(b *Builder) { b.cfg.Name = name }
}

// WithKeyCache shares a key cache between builders.
func WithKeyCache(c *KeyCache) BuilderOption {
	return func(b *Builder) {
		if c != nil {
			b.keys = c
		}
	}
}

// NewBuilder creates an empty builder.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		cfg:    DefaultConfig(),
		logger: zap.NewNop(),
		keys:   NewKeyCache(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Keys returns the builder's key cache.
func (b *Builder) Keys() *KeyCache { return b.keys }

// Bind declares a binding for key and returns its builder so options can
// still be applied before Build.
func (b *Builder) Bind(key Key, factory Factory, opts ...BindOption) *BindingBuilder {
	opts = append([]BindOption{At(CallerSite(1))}, opts...)
	bb := Bind(key, factory, opts...)

	b.Add(bb)

	return bb
}

// Add registers binding builders created elsewhere.
func (b *Builder) Add(bindings ...*BindingBuilder) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bindings = append(b.bindings, bindings...)

	return b
}

// Import adds bindings from another scope, typically from Export or Import.
func (b *Builder) Import(set ForeignSet) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.imports = append(b.imports, set...)

	return b
}

// Lifecycle adds lifecycle operations. They are sequenced at build time.
func (b *Builder) Lifecycle(ops ...Operation) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.ops = append(b.ops, ops...)

	return b
}

// EntryPoint sets the function Launch runs once the scope is RUNNING.
func (b *Builder) EntryPoint(fn EntryPoint) *Builder {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entry = fn

	return b
}

// Build resolves the declarations against parent (nil for a root scope) and
// returns the new scope. Every build diagnostic is reported at once; a
// failed build produces nothing. A builder builds at most once.
func (b *Builder) Build(parent *Scope) (*Scope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.built {
		return nil, illegalState("build", "builder already built")
	}

	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	var parentGraph *Graph
	if parent != nil {
		parentGraph = parent.graph
	}

	g, err := resolve(b.bindings, b.imports, parentGraph, b.checkOperations())
	if err != nil {
		b.logger.Debug("build failed", zap.Error(err))

		return nil, err
	}

	b.built = true

	id := b.cfg.Name
	if id == "" {
		id = uuid.NewString()
	}

	chain := newObserverChain(append([]Observer{NewLogObserver(b.logger)}, b.observers...)...)

	s := newScope(id, g, parent, b.logger, chain)
	s.controller = newController(s, b.ops, b.entry, b.cfg.StopTimeout)

	s.logger.Debug("scope built",
		zap.Int("bindings", g.Len()),
		zap.Int("slots", g.Slots()),
		zap.Int("operations", len(b.ops)),
	)

	return s, nil
}

// checkOperations validates lifecycle operations against the declared keys.
func (b *Builder) checkOperations() []error {
	modes := make(map[keyID]Mode, len(b.bindings)+len(b.imports))

	for _, bb := range b.bindings {
		if bb != nil {
			modes[bb.key.id()] = bb.mode
		}
	}

	for _, f := range b.imports {
		if f.target != nil {
			modes[f.key.id()] = f.target.Mode()
		}
	}

	var errs []error

	for _, op := range b.ops {
		mode, ok := modes[op.Key.id()]

		switch {
		case op.Invoke == nil:
			errs = append(errs, illegalState("build", "operation %s has no function", op))
		case !ok:
			errs = append(errs, illegalState("build", "operation %s targets an unbound key", op))
		case mode == Prototype && b.cfg.StrictOperations:
			errs = append(errs, illegalState("build", "operation %s targets a prototype binding", op))
		}
	}

	return errs
}
