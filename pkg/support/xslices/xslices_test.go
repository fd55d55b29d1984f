package xslices

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtAndLast(t *testing.T) {
	s := []int{10, 20, 30}
	assert.Equal(t, 10, At(s, 0))
	assert.Equal(t, 30, At(s, -1))
	assert.Equal(t, 20, At(s, -2))
	assert.Equal(t, 30, Last(s))
}

func TestCopy(t *testing.T) {
	s := []string{"a", "b"}
	c := Copy(s)
	assert.Equal(t, s, c)
	c[0] = "z"
	assert.Equal(t, "a", s[0])
	assert.Nil(t, Copy([]string(nil)))
}

func TestMap(t *testing.T) {
	assert.Equal(t, []int{2, 4, 6}, Map([]int{1, 2, 3}, func(e int) int { return 2 * e }))
}

func TestIotaAndSliceWithValue(t *testing.T) {
	assert.Equal(t, []float32{2, 3, 4}, Iota(float32(2), 3))
	assert.Equal(t, []int64{7, 7, 7}, SliceWithValue(3, int64(7)))
}
