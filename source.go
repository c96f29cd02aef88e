package berth

// Source is a reusable group of declarations, for example the bindings
// and lifecycle operations of one subsystem.
type Source interface {
	Declare(b *Builder) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(b *Builder) error

// Declare implements Source.
func (f SourceFunc) Declare(b *Builder) error { return f(b) }

// Declarations is a static Source.
//
// Example:
//
//	var storage = berth.Declarations{
//	    Bindings: []*berth.BindingBuilder{
//	        berth.MustConstructor(NewDatabase),
//	        berth.MustConstructor(NewCache),
//	    },
//	    Operations: berth.Managed(berth.MustKeyOf[*Database]()),
//	}
type Declarations struct {
	Bindings   []*BindingBuilder
	Imports    ForeignSet
	Operations []Operation
}

// Declare implements Source.
func (d Declarations) Declare(b *Builder) error {
	b.Add(d.Bindings...)
	b.Import(d.Imports)
	b.Lifecycle(d.Operations...)

	return nil
}

// Load declares every source in order and stops at the first error.
func (b *Builder) Load(sources ...Source) error {
	for _, src := range sources {
		if src == nil {
			continue
		}

		if err := src.Declare(b); err != nil {
			return err
		}
	}

	return nil
}
