package berth

import "reflect"

// BindingInfo is a diagnostic snapshot of one binding.
type BindingInfo struct {
	Key          Key
	Mode         Mode
	Delegating   bool
	Exported     bool
	Site         Site
	Dependencies []Key
	Instantiated bool
	Scope        string
}

// Inspect returns diagnostic information about the binding for key.
func (r *Registry) Inspect(key Key) (BindingInfo, bool) {
	rb, ok := r.Binding(key)
	if !ok {
		return BindingInfo{}, false
	}

	b := rb.Binding()
	info := BindingInfo{
		Key:        b.key,
		Mode:       b.Mode(),
		Delegating: b.Delegating(),
		Exported:   b.exported,
		Site:       b.site,
		Scope:      rb.Scope().id,
	}

	for _, e := range b.deps {
		info.Dependencies = append(info.Dependencies, e.Key)
	}

	_, info.Instantiated = peek(rb)

	return info, true
}

// BindingQuery defines criteria for querying a registry. Zero fields match
// everything.
type BindingQuery struct {
	// Mode filters by instantiation mode.
	Mode *Mode

	// Exported filters by the Exported flag.
	Exported *bool

	// Delegating filters by whether the binding forwards to another scope.
	Delegating *bool

	// Instantiated filters by whether an instance exists.
	Instantiated *bool

	// Qualifier keeps keys carrying this exact qualifier.
	Qualifier any
}

// Query returns information about the local bindings matching q, in
// registration order.
//
// Example:
//
//	constant := berth.Constant
//	infos := berth.Query(scope.Registry(), berth.BindingQuery{Mode: &constant})
func Query(r *Registry, q BindingQuery) []BindingInfo {
	var results []BindingInfo

	for _, key := range r.order {
		info, _ := r.Inspect(key)

		if q.Mode != nil && info.Mode != *q.Mode {
			continue
		}

		if q.Exported != nil && info.Exported != *q.Exported {
			continue
		}

		if q.Delegating != nil && info.Delegating != *q.Delegating {
			continue
		}

		if q.Instantiated != nil && info.Instantiated != *q.Instantiated {
			continue
		}

		if q.Qualifier != nil && !hasQualifier(key, q.Qualifier) {
			continue
		}

		results = append(results, info)
	}

	return results
}

// QueryKeys returns the keys of the bindings matching q.
func QueryKeys(r *Registry, q BindingQuery) []Key {
	results := Query(r, q)
	keys := make([]Key, len(results))

	for i, info := range results {
		keys[i] = info.Key
	}

	return keys
}

func hasQualifier(k Key, q any) bool {
	if !reflect.TypeOf(q).Comparable() {
		return false
	}

	for _, have := range k.quals {
		if have == q {
			return true
		}
	}

	return false
}
