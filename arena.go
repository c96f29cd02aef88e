package berth

import (
	"reflect"
	"sync/atomic"
)

// Slot addresses one constant in an arena. Slots are reserved at build time
// and never reused.
type Slot struct {
	index int
	typ   reflect.Type
	valid bool
}

// Index returns the slot's position in the arena.
func (s Slot) Index() int { return s.index }

// Type returns the type the slot holds.
func (s Slot) Type() reflect.Type { return s.typ }

// Valid reports whether the slot was reserved.
func (s Slot) Valid() bool { return s.valid }

// Layout reserves arena slots during a build. It is single-threaded like the
// rest of the build phase.
type Layout struct {
	types []reflect.Type
}

// Reserve returns the next slot, typed typ.
func (l *Layout) Reserve(typ reflect.Type) Slot {
	l.types = append(l.types, typ)

	return Slot{index: len(l.types) - 1, typ: typ, valid: true}
}

// Size returns the number of reserved slots.
func (l *Layout) Size() int { return len(l.types) }

// Arena stores the constant instances of one scope. Each slot is written at
// most once; reads are lock-free.
type Arena struct {
	cells []atomic.Pointer[cell]
}

type cell struct {
	value any
}

// NewArena allocates an arena with size empty slots.
func NewArena(size int) *Arena {
	return &Arena{cells: make([]atomic.Pointer[cell], size)}
}

// Size returns the number of slots.
func (a *Arena) Size() int { return len(a.cells) }

// Read returns the slot's value. ok is false while the slot is unwritten.
func (a *Arena) Read(slot Slot) (value any, ok bool) {
	if !slot.valid || slot.index >= len(a.cells) {
		return nil, false
	}

	c := a.cells[slot.index].Load()
	if c == nil {
		return nil, false
	}

	return c.value, true
}

// Write stores value in slot. A second write, from any goroutine, fails with
// an IllegalStateError and leaves the first value in place.
func (a *Arena) Write(slot Slot, value any) error {
	if !slot.valid || slot.index >= len(a.cells) {
		return illegalState("arena write", "slot %d was not reserved", slot.index)
	}

	if value != nil && slot.typ != nil && !reflect.TypeOf(value).AssignableTo(slot.typ) {
		return illegalState("arena write", "slot %d holds %s, got %T", slot.index, slot.typ, value)
	}

	if !a.cells[slot.index].CompareAndSwap(nil, &cell{value: value}) {
		return illegalState("arena write", "slot %d already written", slot.index)
	}

	return nil
}

// Written returns the number of written slots.
func (a *Arena) Written() int {
	n := 0

	for i := range a.cells {
		if a.cells[i].Load() != nil {
			n++
		}
	}

	return n
}
