package berth

// RuntimeBinding is the executable form of a frozen binding. The set of
// implementations is closed: *ConstantBinding, *PrototypeBinding and
// *DelegatingBinding.
type RuntimeBinding interface {
	Key() Key
	Mode() Mode
	Binding() *Binding
	Scope() *Scope

	runtimeBinding()
}

// ConstantBinding reads its instance from the scope arena, constructing it
// on first access.
type ConstantBinding struct {
	binding *Binding
	scope   *Scope
}

func (b *ConstantBinding) Key() Key          { return b.binding.key }
func (b *ConstantBinding) Mode() Mode        { return Constant }
func (b *ConstantBinding) Binding() *Binding { return b.binding }
func (b *ConstantBinding) Scope() *Scope     { return b.scope }
func (b *ConstantBinding) Slot() Slot        { return b.binding.slot }
func (*ConstantBinding) runtimeBinding()     {}

// PrototypeBinding invokes its factory on every lookup.
type PrototypeBinding struct {
	binding *Binding
	scope   *Scope
}

func (b *PrototypeBinding) Key() Key          { return b.binding.key }
func (b *PrototypeBinding) Mode() Mode        { return Prototype }
func (b *PrototypeBinding) Binding() *Binding { return b.binding }
func (b *PrototypeBinding) Scope() *Scope     { return b.scope }
func (*PrototypeBinding) runtimeBinding()     {}

// DelegatingBinding forwards to a binding owned by another scope, created by
// Export or Import.
type DelegatingBinding struct {
	binding *Binding
	scope   *Scope
	target  RuntimeBinding
}

func (b *DelegatingBinding) Key() Key          { return b.binding.key }
func (b *DelegatingBinding) Mode() Mode        { return b.target.Mode() }
func (b *DelegatingBinding) Binding() *Binding { return b.binding }
func (b *DelegatingBinding) Scope() *Scope     { return b.scope }
func (*DelegatingBinding) runtimeBinding()     {}

// Target returns the binding the delegate forwards to.
func (b *DelegatingBinding) Target() RuntimeBinding { return b.target }

// Origin follows delegation to the binding that owns the factory.
func (b *DelegatingBinding) Origin() RuntimeBinding {
	var cur RuntimeBinding = b
	for {
		d, ok := cur.(*DelegatingBinding)
		if !ok {
			return cur
		}

		cur = d.target
	}
}

func newRuntimeBinding(s *Scope, b *Binding) RuntimeBinding {
	switch {
	case b.foreign != nil:
		return &DelegatingBinding{binding: b, scope: s, target: b.foreign}
	case b.mode == Prototype:
		return &PrototypeBinding{binding: b, scope: s}
	default:
		return &ConstantBinding{binding: b, scope: s}
	}
}
