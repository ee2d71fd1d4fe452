package pubquery

import (
	"context"
	"testing"

	"github.com/gwngames/pubquery/internal/sqlutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposedQuery_RenderAndExecute(t *testing.T) {
	core := newTestCore()
	cq := core.NewQuery("author", "a").NoCache().
		AndCondition("a.name", "Alice", "=", false, true).
		Limit(10)

	exec := &fakeExec{route: func(sql string) ([][]any, []string) {
		assert.Contains(t, sql, "$1")
		return [][]any{{int64(1), "Alice"}}, []string{"id", "name"}
	}}
	cq.exec = exec

	rows, err := cq.Execute(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Alice", rows[0]["name"])
	require.Len(t, exec.lastArgs, 1)
	assert.Equal(t, "Alice", exec.lastArgs[0])
}

// invariant 1: every ":name" placeholder in rendered SQL has a matching
// parameter key, and no unreferenced params exist.
func TestComposedQuery_PlaceholderInvariant(t *testing.T) {
	core := newTestCore()
	cq := core.NewQuery("publication", "p").
		AndCondition("p.publication_year", 2020, ">=", false, true).
		AndCondition("p.title", "graphs", "ILIKE", false, false)

	sql, params := cq.render()
	for _, name := range sqlutil.Placeholders(sql) {
		_, ok := params[name]
		assert.True(t, ok, "placeholder %q has no matching parameter", name)
	}
	assert.Len(t, params, len(sqlutil.Placeholders(sql)))
}

// invariant 2: cloning yields identical rendered SQL, and mutating the clone
// never alters the original.
func TestComposedQuery_CloneInvariant(t *testing.T) {
	core := newTestCore()
	original := core.NewQuery("journal", "j").
		AndCondition("j.q_rank", "Q1", "=", false, true).
		Limit(5).Offset(10)

	origSQL, _ := original.render()
	clone := original.Clone(false, false)
	cloneSQL, _ := clone.render()
	assert.Equal(t, origSQL, cloneSQL)

	clone.AndCondition("j.year", 2021, ">=", false, true)
	clone.Limit(1)
	mutatedSQL, _ := clone.render()
	assert.NotEqual(t, origSQL, mutatedSQL)

	afterSQL, _ := original.render()
	assert.Equal(t, origSQL, afterSQL, "mutating the clone must not affect the original")
}

// invariant 3: merging a child under a prefix is injective -- a child
// parameter "p1" becomes exactly "alias_p1" in the parent, with no
// collisions or orphan references.
func TestComposedQuery_SubqueryPrefixInjective(t *testing.T) {
	core := newTestCore()
	child := core.NewQuery("author", "a").
		AndCondition("a.organization", "MIT", "=", false, true)

	parent := core.NewQuery("x", "outer")
	parent.FromSubquery(child, "sub")

	sql, params := parent.render()
	for name := range params {
		assert.Contains(t, name, "sub_")
	}
	for _, name := range sqlutil.Placeholders(sql) {
		_, ok := params[name]
		assert.True(t, ok)
	}
}

func TestComposedQuery_WithCTE(t *testing.T) {
	core := newTestCore()
	inner := core.NewQuery("interest", "i").Select("i.id, i.name")
	outer := core.NewQuery("interest_cte", "ic").WithCTE("interest_cte", inner)
	sql, _ := outer.render()
	assert.Contains(t, sql, "WITH interest_cte AS (")
	assert.Contains(t, sql, "FROM interest_cte ic")
}

func TestComposedQuery_JoinRequiresOnCondition(t *testing.T) {
	core := newTestCore()
	cq := core.NewQuery("author", "a").JoinOn(JoinLeft, "publication_author", "pa", "", "")
	_, err := cq.Execute(context.Background())
	require.Error(t, err)
	var ce *CoreError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, KindBadRequest, ce.Kind)
}

func TestComposedQuery_CountQuery(t *testing.T) {
	core := newTestCore()
	base := core.NewQuery("conference", "c").Limit(100).Offset(50)
	count := base.CountQuery()
	sql, _ := count.render()
	assert.Contains(t, sql, "COUNT(*) AS total_count")
	assert.NotContains(t, sql, "LIMIT 100")
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"a""b"`, QuoteIdentifier(`a"b`))
}
