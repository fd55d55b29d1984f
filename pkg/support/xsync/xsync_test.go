package xsync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMap(t *testing.T) {
	var m SyncMap[string, int]
	_, ok := m.Load("a")
	assert.False(t, ok)

	m.Store("a", 1)
	v, ok := m.Load("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	actual, loaded := m.LoadOrStore("a", 2)
	assert.True(t, loaded)
	assert.Equal(t, 1, actual)
	actual, loaded = m.LoadOrStore("b", 2)
	assert.False(t, loaded)
	assert.Equal(t, 2, actual)

	count := 0
	m.Range(func(key string, value int) bool {
		count++
		return true
	})
	assert.Equal(t, 2, count)

	m.Delete("a")
	_, ok = m.Load("a")
	assert.False(t, ok)
}

func TestSyncMapConcurrent(t *testing.T) {
	var m SyncMap[int, int]
	var wg sync.WaitGroup
	for ii := 0; ii < 16; ii++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for jj := 0; jj < 100; jj++ {
				m.Store(base*100+jj, jj)
			}
		}(ii)
	}
	wg.Wait()
	for ii := 0; ii < 16; ii++ {
		v, ok := m.Load(ii*100 + 50)
		require.True(t, ok)
		assert.Equal(t, 50, v)
	}
}
