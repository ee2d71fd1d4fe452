package pubquery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoopCache_AlwaysMisses(t *testing.T) {
	c := NoopCache{}
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Set(context.Background(), "k", []byte("v"), 0))
}

func TestLRUCache_SetGetInvalidate(t *testing.T) {
	c, err := NewLRUCache(2)
	require.NoError(t, err)

	require.NoError(t, c.Set(context.Background(), "a", []byte("1"), 0))
	v, ok, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	require.NoError(t, c.Invalidate(context.Background(), "a"))
	_, ok, _ = c.Get(context.Background(), "a")
	assert.False(t, ok)
}

// invariant 4: two queries with identical rendered SQL+params hit the same
// cache entry and return the same rows.
func TestLRUCache_IdenticalSQLParamsShareEntry(t *testing.T) {
	c, err := NewLRUCache(10)
	require.NoError(t, err)
	core := newTestCore()
	core.cache = c

	calls := 0
	exec := &fakeExec{route: func(sql string) ([][]any, []string) {
		calls++
		return [][]any{{int64(1), "Alice"}}, []string{"id", "name"}
	}}

	build := func() *ComposedQuery {
		cq := core.NewQuery("author", "a").AndCondition("a.id", 1, "=", false, true)
		cq.exec = exec
		return cq
	}

	rows1, err := build().Execute(context.Background())
	require.NoError(t, err)
	rows2, err := build().Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, rows1, rows2)
	assert.Equal(t, 1, calls, "second identical query should be served from cache, not re-executed")
}

func TestLRUCache_EvictsByCapacity(t *testing.T) {
	c, err := NewLRUCache(1)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), "a", []byte("1"), 0))
	require.NoError(t, c.Set(context.Background(), "b", []byte("2"), 0))
	assert.Equal(t, 1, c.Len())
}
