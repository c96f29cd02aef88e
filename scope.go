package berth

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Scope is one lifetime scope: a resolved graph, the arena holding its
// constants, the registry exposing it and the controller driving it.
type Scope struct {
	id         string
	graph      *Graph
	arena      *Arena
	parent     *Scope
	registry   *Registry
	controller *Controller
	bindings   map[keyID]RuntimeBinding
	flight     singleflight.Group
	logger     *zap.Logger
	observers  *observerChain
}

func newScope(id string, g *Graph, parent *Scope, logger *zap.Logger, observers *observerChain) *Scope {
	s := &Scope{
		id:        id,
		graph:     g,
		arena:     NewArena(g.Slots()),
		parent:    parent,
		bindings:  make(map[keyID]RuntimeBinding, g.Len()),
		logger:    logger.With(zap.String("scope", id)),
		observers: observers,
	}

	order := make([]Key, 0, g.Len())
	for _, b := range g.bindings {
		s.bindings[b.key.id()] = newRuntimeBinding(s, b)
		order = append(order, b.key)
	}

	s.registry = &Registry{scope: s, order: order}

	return s
}

// ID returns the scope identifier used in logs and metrics.
func (s *Scope) ID() string { return s.id }

// Graph returns the resolved graph.
func (s *Scope) Graph() *Graph { return s.graph }

// Arena returns the constant pool.
func (s *Scope) Arena() *Arena { return s.arena }

// Parent returns the enclosing scope, or nil.
func (s *Scope) Parent() *Scope { return s.parent }

// Registry returns the scope's lookup surface.
func (s *Scope) Registry() *Registry { return s.registry }

// Controller returns the scope's lifecycle controller.
func (s *Scope) Controller() *Controller { return s.controller }

func (s *Scope) ancestor(depth int) *Scope {
	cur := s
	for i := 0; i < depth && cur != nil; i++ {
		cur = cur.parent
	}

	return cur
}

func (s *Scope) terminated() bool {
	return s.controller != nil && s.controller.current() == Terminated
}

// instantiate returns the instance behind rb, constructing it when needed.
func instantiate(ctx context.Context, rb RuntimeBinding) (any, error) {
	switch b := rb.(type) {
	case *ConstantBinding:
		return b.scope.constant(ctx, b)
	case *PrototypeBinding:
		if b.scope.terminated() {
			return nil, illegalState("lookup", "scope %s is terminated", b.scope.id)
		}

		return b.scope.construct(ctx, b.binding)
	case *DelegatingBinding:
		return instantiate(ctx, b.target)
	default:
		panic(fmt.Sprintf("berth: unknown runtime binding %T", rb))
	}
}

// peek returns an instance only if it already exists.
func peek(rb RuntimeBinding) (any, bool) {
	switch b := rb.(type) {
	case *ConstantBinding:
		return b.scope.arena.Read(b.binding.slot)
	case *PrototypeBinding:
		return nil, false
	case *DelegatingBinding:
		return peek(b.target)
	default:
		panic(fmt.Sprintf("berth: unknown runtime binding %T", rb))
	}
}

func (s *Scope) constant(ctx context.Context, b *ConstantBinding) (any, error) {
	slot := b.binding.slot
	if v, ok := s.arena.Read(slot); ok {
		return v, nil
	}

	if s.terminated() {
		return nil, illegalState("lookup", "scope %s is terminated", s.id)
	}

	v, err, _ := s.flight.Do(strconv.Itoa(slot.index), func() (any, error) {
		if v, ok := s.arena.Read(slot); ok {
			return v, nil
		}

		v, err := s.construct(ctx, b.binding)
		if err != nil {
			return nil, err
		}

		if err := s.arena.Write(slot, v); err != nil {
			return nil, err
		}

		return v, nil
	})

	return v, err
}

func (s *Scope) construct(ctx context.Context, b *Binding) (any, error) {
	args := Args{Values: make([]any, len(b.deps))}

	if b.declaring != nil {
		recv, err := instantiate(ctx, s.bindings[b.declaring.key.id()])
		if err != nil {
			return nil, err
		}

		args.Receiver = recv
	}

	for i, e := range b.deps {
		v, err := s.dependency(ctx, e)
		if err != nil {
			return nil, err
		}

		args.Values[i] = v
	}

	start := time.Now()
	v, err := b.factory(ctx, args)

	if err == nil && v != nil && !reflect.TypeOf(v).AssignableTo(b.key.typ) {
		err = ErrInstanceTypeMismatch(b.key, v)
		v = nil
	}

	if err != nil {
		err = &InstantiationError{Key: b.key, Site: b.site, Err: err}
	}

	s.observers.instantiated(ctx, s.id, b.key, b.mode, time.Since(start), err)

	return v, err
}

func (s *Scope) dependency(ctx context.Context, e Edge) (any, error) {
	if e.Target == nil {
		if e.Lazy {
			return &Lazy{key: e.Key}, nil
		}

		return nil, nil
	}

	owner := s.ancestor(e.Depth)
	if owner == nil {
		return nil, illegalState("resolve dependency", "scope %s has no ancestor at depth %d", s.id, e.Depth)
	}

	rb := owner.bindings[e.Target.key.id()]

	if e.Lazy {
		return &Lazy{key: e.Key, resolve: func(ctx context.Context) (any, error) {
			return instantiate(ctx, rb)
		}}, nil
	}

	return instantiate(ctx, rb)
}
