package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	c := New[int](0)
	defer c.Close()

	c.Set("a", 1)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestExpiration(t *testing.T) {
	var mu sync.Mutex
	var evicted []string
	c := New[string](20*time.Millisecond, WithEvict(func(k string, _ string) {
		mu.Lock()
		evicted = append(evicted, k)
		mu.Unlock()
	}))
	defer c.Close()

	c.Set("a", "x")
	time.Sleep(40 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)

	mu.Lock()
	assert.Equal(t, []string{"a"}, evicted)
	mu.Unlock()
}

func TestTouchExtends(t *testing.T) {
	c := New[string](60 * time.Millisecond)
	defer c.Close()

	c.Set("a", "x")
	time.Sleep(40 * time.Millisecond)
	_, ok := c.Touch("a")
	require.True(t, ok)
	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("a")
	assert.True(t, ok)
}

func TestCleanupLoop(t *testing.T) {
	done := make(chan string, 1)
	c := New[int](10*time.Millisecond,
		WithCleanup[int](5*time.Millisecond),
		WithEvict(func(k string, _ int) { done <- k }),
	)
	defer c.Close()

	c.Set("gone", 1)
	select {
	case k := <-done:
		assert.Equal(t, "gone", k)
	case <-time.After(time.Second):
		t.Fatal("expired item not evicted")
	}
	assert.Zero(t, c.Count())
}

func TestRangeAndClose(t *testing.T) {
	var closed []string
	c := New[int](0, WithEvict(func(k string, _ int) { closed = append(closed, k) }))
	c.Set("a", 1)
	c.Set("b", 2)

	sum := 0
	c.Range(func(_ string, v int) bool {
		sum += v
		return true
	})
	assert.Equal(t, 3, sum)

	c.Close()
	c.Close()
	assert.ElementsMatch(t, []string{"a", "b"}, closed)
	assert.Zero(t, c.Count())
}
