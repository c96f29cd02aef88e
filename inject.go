package berth

// Require declares a required dependency on key.
func Require(key Key) Dependency {
	return Dependency{Key: key}
}

// Optional declares a dependency that is nil when nothing binds key.
func Optional(key Key) Dependency {
	return Dependency{Key: key, Optional: true}
}

// Deferred declares a lazy dependency: the factory receives a *Lazy and
// resolves it on first use. Lazy edges may close a cycle.
func Deferred(key Key) Dependency {
	return Dependency{Key: key, Lazy: true}
}

// DeferredOptional declares a lazy dependency that yields nil when nothing
// binds key.
func DeferredOptional(key Key) Dependency {
	return Dependency{Key: key, Lazy: true, Optional: true}
}

// Inject creates a required dependency on T.
//
// Usage:
//
//	berth.Bind(userKey, newUserService,
//	    berth.DependsOn(berth.Inject[*sql.DB](berth.Name("primary"))),
//	)
func Inject[T any](qualifiers ...any) Dependency {
	return Require(MustKeyOf[T](qualifiers...))
}

// OptionalInject creates an optional dependency on T.
func OptionalInject[T any](qualifiers ...any) Dependency {
	return Optional(MustKeyOf[T](qualifiers...))
}

// LazyInject creates a lazy dependency on T.
func LazyInject[T any](qualifiers ...any) Dependency {
	return Deferred(MustKeyOf[T](qualifiers...))
}

// DependencyKeys extracts the keys of deps.
func DependencyKeys(deps []Dependency) []Key {
	keys := make([]Key, len(deps))
	for i, d := range deps {
		keys[i] = d.Key
	}

	return keys
}
