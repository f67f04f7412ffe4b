package workflow

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_PutGet(t *testing.T) {
	c := NewCache(4)

	_, ok := c.Get("missing")
	assert.False(t, ok)

	c.Put("a", "1")
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestCache_EvictsOldestInsertedFirst(t *testing.T) {
	c := NewCache(2)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("c", "3")

	_, ok := c.Get("a")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = c.Get("b")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCache_OverwriteKeepsInsertionPosition(t *testing.T) {
	c := NewCache(2)
	c.Put("a", "1")
	c.Put("b", "2")
	c.Put("a", "updated")

	// "a" keeps its original (oldest) slot, so the next insert evicts it.
	c.Put("c", "3")
	_, ok := c.Get("a")
	assert.False(t, ok)

	v, ok := c.Get("b")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestCache_MinimumCapacity(t *testing.T) {
	c := NewCache(0)
	for i := 0; i < 10; i++ {
		c.Put(fmt.Sprintf("k%d", i), "v")
	}
	assert.Equal(t, 1, c.Len())
}
