package sets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := MakeWith(3, 1, 2)
	require.Len(t, s, 3)
	assert.True(t, s.Has(1))
	assert.False(t, s.Has(7))

	s.Insert(7, 7)
	assert.True(t, s.Has(7))
	require.Len(t, s, 4)

	s.Delete(7)
	assert.False(t, s.Has(7))
	s.Delete(7) // no-op

	assert.Equal(t, []int{1, 2, 3}, Sorted(s))
}

func TestSetSubAndEqual(t *testing.T) {
	a := MakeWith("x", "y", "z")
	b := MakeWith("y")
	assert.Equal(t, []string{"x", "z"}, Sorted(a.Sub(b)))
	assert.True(t, a.Equal(MakeWith("z", "y", "x")))
	assert.False(t, a.Equal(b))
}

func TestNilSetHas(t *testing.T) {
	var s Set[int]
	assert.False(t, s.Has(0))
}
