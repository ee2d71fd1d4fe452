package pubquery

import (
	"fmt"
)

// pairValuesExpr renders a bare parenthesized VALUES table expression over
// author id pairs, e.g. "(VALUES (1,2), (3,4))" -- callers supply the
// "pair(a, b)" alias/column-list separately via NewQuery's alias parameter,
// since a table expression and its alias render as separate tokens. Used by
// PairJointPublicationsQuery so a whole edge set is resolved in one round
// trip instead of one query per pair.
func pairValuesExpr(pairs [][2]int) string {
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = fmt.Sprintf("(%d,%d)", p[0], p[1])
	}
	return "(VALUES " + joinStrings(parts, ", ") + ")"
}

func joinStrings(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// RootAuthorsQuery resolves the graph materializer's seed author ids to
// their display rows, its root lookup step (spec.md §4.4 step 1).
func RootAuthorsQuery(core *Core, authorIDs []int) *ComposedQuery {
	if len(authorIDs) == 0 {
		return core.NewQuery("author", "a").Select("a.id, a.name, a.image_url").AndCondition("1", 0, "=", true, true)
	}
	return core.NewQuery("author", "a").
		Select("a.id, a.name, a.image_url").
		Join(JoinInner, valuesListExpr(authorIDs), "root_id(id)", "a.id = root_id.id")
}

// CoauthorEdgeBatchQuery returns every author_coauthor edge touching any id
// in frontierIDs, normalized to (sid, slabel, simg, eid, elabel, eimg)
// regardless of which side of the stored edge the frontier id was on, for
// one BFS expansion round (spec.md §4.4 step 2: the tuple shape the pipeline
// consumes directly, avoiding a separate per-node label lookup). Grounded on
// the direction-agnostic traversal AuthorCoauthorsQuery already establishes
// for the single-author case.
func CoauthorEdgeBatchQuery(core *Core, frontierIDs []int) *ComposedQuery {
	if len(frontierIDs) == 0 {
		return core.NewQuery("author_coauthor", "ac").
			Select("ac.author_id AS sid, '' AS slabel, '' AS simg, ac.coauthor_id AS eid, '' AS elabel, '' AS eimg").
			AndCondition("1", 0, "=", true, true)
	}
	forward := core.NewQuery("author_coauthor", "ac").
		Select("ac.author_id AS frontier_id, ac.coauthor_id AS neighbor_id").
		Join(JoinInner, valuesListExpr(frontierIDs), "frontier(id)", "ac.author_id = frontier.id")
	backward := core.NewQuery("author_coauthor", "ac").
		Select("ac.coauthor_id AS frontier_id, ac.author_id AS neighbor_id").
		Join(JoinInner, valuesListExpr(frontierIDs), "frontier(id)", "ac.coauthor_id = frontier.id")

	union := core.NewQuery("author_coauthor", "ac0").Select("frontier_id, neighbor_id")
	fsql, fparams := forward.render()
	bsql, bparams := backward.render()
	rewrittenF := union.mergeChild(fsql, fparams, "fwd_")
	rewrittenB := union.mergeChild(bsql, bparams, "bwd_")
	union.table = fmt.Sprintf("(%s UNION %s)", rewrittenF, rewrittenB)
	union.alias = "edges"
	union.selectExpr = "edges.frontier_id, edges.neighbor_id"

	edgesSQL, edgesParams := union.render()
	outer := core.NewQuery("", "edges")
	rewrittenEdges := outer.mergeChild(edgesSQL, edgesParams, "e_")
	outer.table = "(" + rewrittenEdges + ")"
	return outer.
		Select("edges.frontier_id AS sid, sa.name AS slabel, sa.image_url AS simg, edges.neighbor_id AS eid, ea.name AS elabel, ea.image_url AS eimg").
		JoinOn(JoinInner, "author", "sa", "sa.id", "edges.frontier_id").
		JoinOn(JoinInner, "author", "ea", "ea.id", "edges.neighbor_id")
}

// PairJointPublicationsQuery returns every joint publication for each
// (a, b) author pair in one round trip: the row carries the pair, the
// publication's year, and its conference/journal rank, the raw material the
// Graph Materializer's pair-enrichment and edge-classification steps
// (spec.md §4.4 steps 5-7) aggregate into avg ranks and per-year counts.
// Consolidates what spec.md describes as two separate batches (a pair rank
// batch and a pair year batch) into a single round trip, since both sets of
// columns come from the same join; the split/merge is recorded as a
// deliberate consolidation in DESIGN.md.
func PairJointPublicationsQuery(core *Core, pairs [][2]int) *ComposedQuery {
	if len(pairs) == 0 {
		return core.NewQuery("publication", "p").
			Select("0 AS a, 0 AS b, p.id AS publication_id, p.publication_year, NULL::text AS conference_rank, NULL::text AS journal_rank").
			AndCondition("1", 0, "=", true, true)
	}
	return core.NewQuery(pairValuesExpr(pairs), "pair(a, b)").
		Select(`pair.a, pair.b, p.id AS publication_id, p.publication_year,
			c.rank AS conference_rank, j.q_rank AS journal_rank`).
		JoinOn(JoinInner, "publication_author", "pa1", "pa1.author_id", "pair.a").
		Join(JoinInner, "publication_author", "pa2", "pa2.author_id = pair.b AND pa2.publication_id = pa1.publication_id").
		JoinOn(JoinInner, "publication", "p", "p.id", "pa1.publication_id").
		JoinOn(JoinLeft, "journal", "j", "j.id", "p.journal_id").
		JoinOn(JoinLeft, "conference", "c", "c.id", "p.conference_id")
}
