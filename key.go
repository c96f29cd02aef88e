package berth

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Name is the stock qualifier tag. Key{*DB, Name("primary")} and
// Key{*DB, Name("replica")} are distinct keys.
type Name string

// Key identifies a binding by type and an optional set of qualifiers.
// The dynamic type of each qualifier value is its tag-type; a key carries at
// most one qualifier per tag-type. Keys are immutable values and safe to
// share between goroutines.
type Key struct {
	typ   reflect.Type
	quals []any
	canon string // identity, tags spelled with their import path
	label string
	hash  uint64
}

// keyID is the comparable projection of a Key used as a map key.
type keyID struct {
	typ   reflect.Type
	canon string
}

// wrapperType marks the deferred handles that may never be bound directly.
var wrapperType = reflect.TypeOf((*deferredHandle)(nil)).Elem()

type deferredHandle interface {
	deferred()
}

// Of creates a key for typ qualified by qualifiers. Qualifier order does not
// matter.
func Of(typ reflect.Type, qualifiers ...any) (Key, error) {
	if typ == nil {
		return Key{}, &InvalidKeyError{Reason: "type descriptor is nil"}
	}

	if isReservedWrapper(typ) {
		return Key{}, &InvalidKeyError{Type: typ, Reason: "deferred handles cannot be bound"}
	}

	quals := make([]any, 0, len(qualifiers))
	seen := make(map[reflect.Type]bool, len(qualifiers))

	for _, q := range qualifiers {
		if q == nil {
			return Key{}, &InvalidKeyError{Type: typ, Reason: "nil qualifier"}
		}

		qt := reflect.TypeOf(q)
		if !qt.Comparable() {
			return Key{}, &InvalidKeyError{Type: typ, Reason: fmt.Sprintf("qualifier of type %s is not comparable", qt)}
		}

		if seen[qt] {
			return Key{}, &InvalidKeyError{Type: typ, Reason: fmt.Sprintf("qualifier tag %s supplied twice", qt)}
		}

		seen[qt] = true
		quals = append(quals, q)
	}

	return newKey(typ, quals), nil
}

// KeyOf creates a key for the static type T.
//
// Example:
//
//	primary, err := berth.KeyOf[*sql.DB](berth.Name("primary"))
func KeyOf[T any](qualifiers ...any) (Key, error) {
	return Of(reflect.TypeOf((*T)(nil)).Elem(), qualifiers...)
}

// MustKeyOf is KeyOf that panics on an invalid key. Use for package-level
// key variables.
func MustKeyOf[T any](qualifiers ...any) Key {
	k, err := KeyOf[T](qualifiers...)
	if err != nil {
		panic(err)
	}

	return k
}

func newKey(typ reflect.Type, quals []any) Key {
	sort.SliceStable(quals, func(i, j int) bool {
		return qualifierID(quals[i]) < qualifierID(quals[j])
	})

	var canon, label strings.Builder
	for i, q := range quals {
		if i > 0 {
			canon.WriteByte(',')
			label.WriteByte(',')
		}

		canon.WriteString(qualifierID(q))
		label.WriteString(qualifierString(q))
	}

	return Key{
		typ:   typ,
		quals: quals,
		canon: canon.String(),
		label: label.String(),
		hash:  xxhash.Sum64String(typ.String() + "|" + canon.String()),
	}
}

// qualifierID spells the tag-type with its import path so that same-named
// tags from different packages stay distinct.
func qualifierID(q any) string {
	qt := reflect.TypeOf(q)
	if qt.Name() == "" || qt.PkgPath() == "" {
		return fmt.Sprintf("%s=%#v", qt, q)
	}

	return fmt.Sprintf("%s.%s=%#v", qt.PkgPath(), qt.Name(), q)
}

func qualifierString(q any) string {
	return fmt.Sprintf("%s=%#v", reflect.TypeOf(q), q)
}

func isReservedWrapper(typ reflect.Type) bool {
	if typ.Implements(wrapperType) {
		return true
	}

	return typ.Kind() != reflect.Interface && reflect.PointerTo(typ).Implements(wrapperType)
}

// Type returns the key's type descriptor.
func (k Key) Type() reflect.Type { return k.typ }

// Qualifiers returns a copy of the qualifiers in canonical order.
func (k Key) Qualifiers() []any {
	out := make([]any, len(k.quals))
	copy(out, k.quals)

	return out
}

// Qualifier returns the qualifier with the same tag-type as tag.
func (k Key) Qualifier(tag any) (any, bool) {
	tt := reflect.TypeOf(tag)
	for _, q := range k.quals {
		if reflect.TypeOf(q) == tt {
			return q, true
		}
	}

	return nil, false
}

// IsZero reports whether k is the zero key.
func (k Key) IsZero() bool { return k.typ == nil }

// Equal reports whether k and other name the same type and qualifier set.
func (k Key) Equal(other Key) bool {
	return k.hash == other.hash && k.typ == other.typ && k.canon == other.canon
}

// Hash returns the hash precomputed at construction.
func (k Key) Hash() uint64 { return k.hash }

// WithQualifier returns a key with tag added, replacing any qualifier of the
// same tag-type.
func (k Key) WithQualifier(tag any) (Key, error) {
	if k.IsZero() {
		return Key{}, &InvalidKeyError{Reason: "zero key"}
	}

	quals := make([]any, 0, len(k.quals)+1)
	tt := reflect.TypeOf(tag)
	for _, q := range k.quals {
		if reflect.TypeOf(q) != tt {
			quals = append(quals, q)
		}
	}

	return Of(k.typ, append(quals, tag)...)
}

// WithoutQualifiers returns the bare key for the same type.
func (k Key) WithoutQualifiers() Key {
	if k.IsZero() || len(k.quals) == 0 {
		return k
	}

	return newKey(k.typ, nil)
}

func (k Key) String() string {
	if k.label == "" {
		return typeName(k.typ)
	}

	return fmt.Sprintf("%s[%s]", typeName(k.typ), k.label)
}

// rank orders keys deterministically; it is String with the qualifier
// identity appended.
func (k Key) rank() string {
	return k.String() + "|" + k.canon
}

func (k Key) id() keyID {
	return keyID{typ: k.typ, canon: k.canon}
}

// KeyCache interns keys so that repeated declarations share one Key value.
// A cache is created with the process or the test that owns it; there is no
// package-level cache.
type KeyCache struct {
	mu   sync.RWMutex
	keys map[keyID]Key
}

// NewKeyCache creates an empty key cache.
func NewKeyCache() *KeyCache {
	return &KeyCache{keys: make(map[keyID]Key)}
}

// Of creates or returns the interned key for typ and qualifiers.
func (c *KeyCache) Of(typ reflect.Type, qualifiers ...any) (Key, error) {
	k, err := Of(typ, qualifiers...)
	if err != nil {
		return Key{}, err
	}

	c.mu.RLock()
	cached, ok := c.keys[k.id()]
	c.mu.RUnlock()

	if ok {
		return cached, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.keys[k.id()]; ok {
		return cached, nil
	}

	c.keys[k.id()] = k

	return k, nil
}

// Len returns the number of interned keys.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.keys)
}
