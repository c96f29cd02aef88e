package berth

import "fmt"

// ForeignSet is a batch of foreign bindings crossing a scope boundary. It is
// produced by Export or Import and consumed by Builder.Import.
type ForeignSet []ForeignBinding

// Keys returns the keys of the set in order.
func (s ForeignSet) Keys() []Key {
	keys := make([]Key, len(s))
	for i, f := range s {
		keys[i] = f.key
	}

	return keys
}

// RekeyAs moves the binding at from to to. It fails if from is not in the
// set or to is already occupied. Only the boundary key changes: edges
// resolved inside the source scope keep pointing at the original binding.
func (s ForeignSet) RekeyAs(from, to Key) (ForeignSet, error) {
	if to.IsZero() {
		return nil, &InvalidKeyError{Reason: "rekey destination is the zero key"}
	}

	at := -1

	for i, f := range s {
		if f.key.Equal(to) {
			return nil, &DuplicateBindingError{Key: to, Sites: []Site{f.site, s.siteOf(from)}}
		}

		if f.key.Equal(from) {
			at = i
		}
	}

	if at < 0 {
		return nil, ErrKeyNotFound(from)
	}

	out := make(ForeignSet, len(s))
	copy(out, s)
	out[at].key = to

	return out, nil
}

func (s ForeignSet) siteOf(key Key) Site {
	for _, f := range s {
		if f.key.Equal(key) {
			return f.site
		}
	}

	return Site{}
}

// ExportOption configures Export.
type ExportOption func(*exportOptions)

type exportOptions struct {
	all    bool
	keys   []Key
	rename func(Key) Key
}

// ExportAll exports every binding of the child scope.
func ExportAll() ExportOption {
	return func(o *exportOptions) { o.all = true }
}

// ExportKeys exports exactly keys. Each must be bound in the child scope.
func ExportKeys(keys ...Key) ExportOption {
	return func(o *exportOptions) { o.keys = append(o.keys, keys...) }
}

// ExportAs renames keys as they cross the boundary.
func ExportAs(rename func(Key) Key) ExportOption {
	return func(o *exportOptions) { o.rename = rename }
}

// Export produces delegating bindings for a parent build that forward to
// child's runtime bindings. Without ExportAll or ExportKeys, the bindings
// declared with Exported are exported. Exporting a binding that is itself a
// delegate chains the delegation; the chain always ends in an already built
// scope, so it cannot loop.
func Export(child *Scope, opts ...ExportOption) (ForeignSet, error) {
	if child == nil {
		return nil, illegalState("export", "nil scope")
	}

	var o exportOptions
	for _, opt := range opts {
		opt(&o)
	}

	var selected []*Binding

	switch {
	case len(o.keys) > 0:
		for _, k := range o.keys {
			b, ok := child.graph.Lookup(k)
			if !ok {
				return nil, fmt.Errorf("export from scope %s: %w", child.id, ErrKeyNotFound(k))
			}

			selected = append(selected, b)
		}
	case o.all:
		selected = child.graph.Bindings()
	default:
		for _, b := range child.graph.bindings {
			if b.exported {
				selected = append(selected, b)
			}
		}
	}

	set := make(ForeignSet, 0, len(selected))
	for _, b := range selected {
		key := b.key
		if o.rename != nil {
			key = o.rename(key)
		}

		set = append(set, ForeignBinding{key: key, target: child.bindings[b.key.id()], site: b.site})
	}

	return set.checked("export")
}

// ImportOption configures Import.
type ImportOption func(*importOptions)

type importOptions struct {
	filter func(Key) bool
	rename func(Key) Key
}

// ImportFilter keeps only the keys for which keep returns true.
func ImportFilter(keep func(Key) bool) ImportOption {
	return func(o *importOptions) { o.filter = keep }
}

// ImportAs renames keys as they are imported.
func ImportAs(rename func(Key) Key) ImportOption {
	return func(o *importOptions) { o.rename = rename }
}

// Import produces delegating bindings for a local build from every binding
// of a foreign registry's scope. Imported bindings count as resolved: they
// add no edges to the local cycle check but do collide with local keys.
func Import(r *Registry, opts ...ImportOption) (ForeignSet, error) {
	if r == nil {
		return nil, illegalState("import", "nil registry")
	}

	var o importOptions
	for _, opt := range opts {
		opt(&o)
	}

	set := make(ForeignSet, 0, r.Len())
	for _, key := range r.order {
		if o.filter != nil && !o.filter(key) {
			continue
		}

		rb := r.scope.bindings[key.id()]
		target := key
		if o.rename != nil {
			target = o.rename(key)
		}

		set = append(set, ForeignBinding{key: target, target: rb, site: rb.Binding().site})
	}

	return set.checked("import")
}

// checked rejects zero keys produced by a rename.
func (s ForeignSet) checked(op string) (ForeignSet, error) {
	for _, f := range s {
		if f.key.IsZero() {
			return nil, fmt.Errorf("%s: %w", op, &InvalidKeyError{Reason: "rename produced the zero key"})
		}
	}

	return s, nil
}
