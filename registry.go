package berth

import "context"

// Registry is the lookup surface of a scope: the map from key to runtime
// binding. Keys bound by an ancestor scope are visible too.
type Registry struct {
	scope *Scope
	order []Key
}

// Scope returns the owning scope.
func (r *Registry) Scope() *Scope { return r.scope }

// Lookup returns the instance bound to key, constructing it if needed.
// Constants are constructed at most once; prototypes on every call.
func (r *Registry) Lookup(ctx context.Context, key Key) (any, error) {
	rb, ok := r.Binding(key)
	if !ok {
		return nil, ErrKeyNotFound(key)
	}

	if r.scope.terminated() {
		return nil, illegalState("lookup", "scope %s is terminated", r.scope.id)
	}

	return instantiate(ctx, rb)
}

// Binding returns the runtime binding for key, searching ancestors.
func (r *Registry) Binding(key Key) (RuntimeBinding, bool) {
	for s := r.scope; s != nil; s = s.parent {
		if rb, ok := s.bindings[key.id()]; ok {
			return rb, true
		}
	}

	return nil, false
}

// Local returns the runtime binding for key in this scope only.
func (r *Registry) Local(key Key) (RuntimeBinding, bool) {
	rb, ok := r.scope.bindings[key.id()]

	return rb, ok
}

// Has reports whether key is bound here or in an ancestor.
func (r *Registry) Has(key Key) bool {
	_, ok := r.Binding(key)

	return ok
}

// Keys returns the keys bound in this scope, in registration order.
func (r *Registry) Keys() []Key {
	out := make([]Key, len(r.order))
	copy(out, r.order)

	return out
}

// Len returns the number of keys bound in this scope.
func (r *Registry) Len() int { return len(r.order) }

// Instantiated reports whether key resolves to an instance that already
// exists. Prototype bindings never report true.
func (r *Registry) Instantiated(key Key) bool {
	rb, ok := r.Binding(key)
	if !ok {
		return false
	}

	_, ok = peek(rb)

	return ok
}
