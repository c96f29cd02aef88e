package berth

// BindOption configures a binding at declaration.
type BindOption func(*BindingBuilder)

// AsConstant makes the binding a constant (default).
func AsConstant() BindOption {
	return func(b *BindingBuilder) { b.mode = Constant }
}

// AsPrototype makes the binding run its factory on every lookup.
func AsPrototype() BindOption {
	return func(b *BindingBuilder) { b.mode = Prototype }
}

// WithMode sets the instantiation mode.
func WithMode(mode Mode) BindOption {
	return func(b *BindingBuilder) { b.mode = mode }
}

// DependsOn declares dependencies.
func DependsOn(deps ...Dependency) BindOption {
	return func(b *BindingBuilder) { b.deps = append(b.deps, deps...) }
}

// DeclaredBy makes the factory a member of the declaring binding's
// instance: it receives that instance as Args.Receiver.
func DeclaredBy(declaring *BindingBuilder) BindOption {
	return func(b *BindingBuilder) { b.declaring = declaring }
}

// Exported offers the binding to Export when no explicit key set is given.
func Exported() BindOption {
	return func(b *BindingBuilder) { b.exported = true }
}

// At overrides the captured declaration site.
func At(site Site) BindOption {
	return func(b *BindingBuilder) { b.site = site }
}
