package ttlcache

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutIfAbsentKeepsFirstValue(t *testing.T) {
	t.Parallel()
	c := New[string, int](0, 0)

	got, stored := c.PutIfAbsent("a", 1)
	assert.True(t, stored)
	assert.Equal(t, 1, got)

	got, stored = c.PutIfAbsent("a", 2)
	assert.False(t, stored)
	assert.Equal(t, 1, got)

	c.Set("a", 3)
	v, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
	assert.Equal(t, 1, c.Len())
}

func TestEntriesExpire(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	c := New[string, int](time.Minute, 0, WithClock(func() time.Time { return now }))

	c.Set("a", 1)
	now = now.Add(59 * time.Second)
	_, ok := c.Get("a")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())

	_, stored := c.PutIfAbsent("a", 2)
	assert.True(t, stored)
}

func TestExpiredEntriesAreSweptOnWrite(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	c := New[string, int](time.Minute, 0, WithClock(func() time.Time { return now }))

	for i := range 100 {
		c.Set(strconv.Itoa(i), i)
	}
	require.Equal(t, 100, c.Len())

	now = now.Add(time.Hour)
	c.Set("fresh", 1)
	assert.Equal(t, 1, c.Len())
}

func TestFullCacheEvictsOldestWrite(t *testing.T) {
	t.Parallel()
	c := New[string, int](0, 2)

	c.Set("old", 1)
	c.Set("mid", 2)
	c.Set("old", 10)
	c.Set("new", 3)

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get("mid")
	assert.False(t, ok)
	v, ok := c.Get("old")
	require.True(t, ok)
	assert.Equal(t, 10, v)
	_, ok = c.Get("new")
	assert.True(t, ok)
}

func TestBoundHoldsUnderManyKeys(t *testing.T) {
	t.Parallel()
	c := New[int, int](time.Hour, 1000)
	for i := range 100_000 {
		c.PutIfAbsent(i, i)
	}
	assert.Equal(t, 1000, c.Len())
	_, ok := c.Get(99_999)
	assert.True(t, ok)
	_, ok = c.Get(0)
	assert.False(t, ok)

	c.Clear()
	assert.Zero(t, c.Len())
}
