package lru_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xDarkicex/vecengine/internal/lru"
)

func TestPutGetRoundTrip(t *testing.T) {
	c := lru.New[int](3)
	c.Put("a", 1)
	c.Put("b", 2)

	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := lru.New[int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // a is now most recently used
	c.Put("c", 3) // evicts b

	assert.True(t, c.Contains("a"))
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
}

func TestContainsDoesNotAffectRecency(t *testing.T) {
	c := lru.New[int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Contains("a")
	c.Put("c", 3) // a was not touched by Contains, so it's still LRU and gets evicted

	assert.False(t, c.Contains("a"))
	assert.True(t, c.Contains("b"))
	assert.True(t, c.Contains("c"))
}

func TestClearEmptiesCache(t *testing.T) {
	c := lru.New[int](4)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Contains("a"))
}

func TestResizeRecomputesCapacityFromDimension(t *testing.T) {
	c := lru.New[int](1)
	c.Put("a", 1)

	c.Resize(800, 10) // 800 / (8*10) = 10 entries
	assert.Equal(t, 10, c.Capacity())
	assert.Equal(t, 0, c.Len()) // resize discards existing entries

	for i := 0; i < 10; i++ {
		c.Put(keyFor(i), i)
	}
	assert.Equal(t, 10, c.Len())
}

func TestResizeFloorsCapacityAtOne(t *testing.T) {
	c := lru.New[int](5)
	c.Resize(1, 1000) // far less than one entry's worth of budget
	assert.Equal(t, 1, c.Capacity())
}

func TestNewFloorsCapacityAtOne(t *testing.T) {
	c := lru.New[int](0)
	assert.Equal(t, 1, c.Capacity())
}

func keyFor(i int) string {
	return string(rune('a' + i))
}
