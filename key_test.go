package berth

import (
	"math/rand"
	randv2 "math/rand/v2"
	"reflect"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type region string

type shard int

func TestKey_EqualityIgnoresQualifierOrder(t *testing.T) {
	k1, err := KeyOf[*svcA](Name("db"), region("eu"))
	require.NoError(t, err)

	k2, err := KeyOf[*svcA](region("eu"), Name("db"))
	require.NoError(t, err)

	assert.True(t, k1.Equal(k2))
	assert.Equal(t, k1.Hash(), k2.Hash())
	assert.Equal(t, k1.String(), k2.String())
	assert.Equal(t, k1.id(), k2.id())
}

func TestKey_DistinctQualifiers(t *testing.T) {
	tests := []struct {
		name string
		a, b Key
	}{
		{"bare vs named", MustKeyOf[*svcA](), MustKeyOf[*svcA](Name("x"))},
		{"different names", MustKeyOf[*svcA](Name("x")), MustKeyOf[*svcA](Name("y"))},
		{"same value different tag", MustKeyOf[*svcA](Name("1")), MustKeyOf[*svcA](region("1"))},
		{"different types", MustKeyOf[*svcA](), MustKeyOf[*svcB]()},
		{"same tag name different package", MustKeyOf[*svcA](rand.Zipf{}), MustKeyOf[*svcA](randv2.Zipf{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, tt.a.Equal(tt.b))
			assert.NotEqual(t, tt.a.id(), tt.b.id())
			assert.NotEqual(t, tt.a.Hash(), tt.b.Hash())
		})
	}
}

func TestKey_Invalid(t *testing.T) {
	tests := []struct {
		name string
		make func() (Key, error)
	}{
		{"nil type", func() (Key, error) { return Of(nil) }},
		{"nil qualifier", func() (Key, error) { return KeyOf[*svcA](nil) }},
		{"repeated tag", func() (Key, error) { return KeyOf[*svcA](Name("a"), Name("b")) }},
		{"uncomparable qualifier", func() (Key, error) { return KeyOf[*svcA]([]string{"a"}) }},
		{"lazy handle", func() (Key, error) { return KeyOf[*Lazy]() }},
		{"lazy value", func() (Key, error) { return KeyOf[Lazy]() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.make()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidKey)

			var ike *InvalidKeyError
			assert.ErrorAs(t, err, &ike)
		})
	}
}

func TestMustKeyOf_Panic(t *testing.T) {
	assert.Panics(t, func() { MustKeyOf[*svcA](Name("a"), Name("b")) })
}

func TestKey_Accessors(t *testing.T) {
	k := MustKeyOf[*svcA](shard(3), Name("db"))

	assert.Equal(t, reflect.TypeOf(&svcA{}), k.Type())
	assert.Len(t, k.Qualifiers(), 2)

	q, ok := k.Qualifier(Name(""))
	require.True(t, ok)
	assert.Equal(t, Name("db"), q)

	_, ok = k.Qualifier(region(""))
	assert.False(t, ok)

	assert.True(t, k.WithoutQualifiers().Equal(MustKeyOf[*svcA]()))
	assert.False(t, k.IsZero())
	assert.True(t, Key{}.IsZero())
}

func TestKey_WithQualifierReplacesSameTag(t *testing.T) {
	k := MustKeyOf[*svcA](Name("a"), shard(1))

	k2, err := k.WithQualifier(Name("b"))
	require.NoError(t, err)

	assert.True(t, k2.Equal(MustKeyOf[*svcA](shard(1), Name("b"))))

	_, err = Key{}.WithQualifier(Name("b"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestKeyCache_Interns(t *testing.T) {
	c := NewKeyCache()
	typ := reflect.TypeOf(&svcA{})

	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := c.Of(typ, Name("x"))
			assert.NoError(t, err)
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, c.Len())

	_, err := c.Of(typ, nil)
	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
}
