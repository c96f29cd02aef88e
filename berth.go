// Package berth is a dependency-injection runtime organised around scopes.
//
// A Builder collects bindings (a key plus a factory and its dependencies),
// foreign bindings imported from other scopes and lifecycle operations.
// Build resolves them into an immutable Graph, reporting every duplicate,
// unresolved dependency and cycle at once, and returns a Scope. The scope's
// Registry looks instances up by Key; constants are constructed at most
// once and kept in the scope's Arena, prototypes are constructed per
// lookup. The scope's Controller runs the init, start and stop phases.
//
//	b := berth.NewBuilder(berth.WithLogger(logger))
//	b.Add(berth.MustConstructor(NewDatabase), berth.MustConstructor(NewServer))
//	b.Lifecycle(berth.Managed(berth.MustKeyOf[*Server]())...)
//
//	scope, err := b.Build(nil)
//	if err != nil {
//	    return err
//	}
//
//	return berth.Run(ctx, scope)
package berth

import "context"

// Run launches s and blocks until it terminates. It is the usual way to
// drive a scope built with an entry point; without one, Run stops the scope
// when ctx is done.
func Run(ctx context.Context, s *Scope) error {
	c := s.Controller()

	if c.entry != nil {
		return c.Launch(ctx)
	}

	if err := c.Launch(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-c.Done():
		return c.Err()
	}

	return c.Stop(context.WithoutCancel(ctx))
}
