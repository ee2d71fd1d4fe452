package pubquery

import (
	"fmt"

	pubcore "github.com/gwngames/pubquery/internal/core"
)

// AuthorDetailQuery builds the single-author detail query: author profile
// fields plus aggregated interests, most-frequent conference/journal rank,
// and average journal SJR score across the author's publications. Grounded
// on original_source's AuthorQuery.build_author_query_with_filter.
func AuthorDetailQuery(core *Core, authorID int) *ComposedQuery {
	q := core.NewQuery("author", "a").
		Select(`a.id, a.name, a.role, a.organization, a.image_url, a.homepage_url,
			g.profile_url, g.verified, g.h_index, g.i10_index,
			STRING_AGG(DISTINCT i.name, ', ') AS interests,
			CASE WHEN COUNT(c.rank) > 0 THEN MODE() WITHIN GROUP (ORDER BY c.rank) ELSE 'N/A' END AS freq_conf_rank,
			CASE WHEN COUNT(j.q_rank) > 0 THEN MODE() WITHIN GROUP (ORDER BY j.q_rank) ELSE 'N/A' END AS freq_journal_rank,
			COALESCE(AVG(CAST(REGEXP_REPLACE(j.sjr, '[^0-9.]', '', 'g') AS FLOAT)), 0) AS avg_sjr_score`).
		JoinOn(JoinLeft, "scholar_author", "g", "g.author_id", "a.id").
		JoinOn(JoinLeft, "publication_author", "pa", "pa.author_id", "a.id").
		JoinOn(JoinLeft, "publication", "p", "p.id", "pa.publication_id").
		JoinOn(JoinLeft, "journal", "j", "j.id", "p.journal_id").
		JoinOn(JoinLeft, "conference", "c", "c.id", "p.conference_id").
		JoinOn(JoinLeft, "author_interest", "ai", "ai.author_id", "a.id").
		JoinOn(JoinLeft, "interest", "i", "i.id", "ai.interest_id").
		AndCondition("a.id", authorID, "=", false, true).
		GroupBy("a.id", "g.author_id", "a.role", "a.organization", "a.image_url", "a.homepage_url",
			"g.profile_url", "g.verified", "g.h_index", "g.i10_index").
		Limit(1)
	return q
}

// FormatAuthorRow renders the display-only "organization" column as
// "role - org", or bare "org" when role is the '?' placeholder, per spec.md
// §4.2's Authors overview projection. Callers of AuthorDetailQuery and
// AuthorsOverviewQuery apply this to every returned row before handing rows
// to a presentation layer; the query itself still projects raw role/
// organization columns since the formatting is a display concern, not a
// storage or filtering one.
func FormatAuthorRow(row map[string]any) map[string]any {
	role, _ := row["role"].(string)
	org, _ := row["organization"].(string)
	row["organization"] = pubcore.FormatOrganization(role, org)
	return row
}

// FormatAuthorRows applies FormatAuthorRow to every row in place, returning
// the same slice for chaining.
func FormatAuthorRows(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		FormatAuthorRow(row)
	}
	return rows
}

// AuthorsOverviewQuery builds the authors overview table via six CTEs
// (author_base, interests, freq_conf_rank, freq_journal_rank, avg_sjr_score,
// and scholar for h-index/i10-index) rather than the original's single
// flattened join+HAVING query. author_base holds every author, not only
// those with a scholar profile; the final WHERE keeps an author that has a
// conference rank, a journal rank, or a scholar_author row -- a
// redesign recorded in DESIGN.md since the five-way aggregation over
// publication/journal/conference produces a combinatorial row blow-up before
// the GROUP BY collapses it, which the CTE split avoids. Project rows
// through FormatAuthorRows for the "role - org" / "org" Organization display.
func AuthorsOverviewQuery(core *Core) *ComposedQuery {
	base := core.NewQuery("author", "a").
		Select("a.id, a.name, a.role, a.organization, a.image_url, a.homepage_url")

	interests := core.NewQuery("author_interest", "ai").
		Select("ai.author_id, STRING_AGG(DISTINCT i.name, ', ') AS interests").
		JoinOn(JoinInner, "interest", "i", "i.id", "ai.interest_id").
		GroupBy("ai.author_id")

	freqConf := core.NewQuery("publication_author", "pa").
		Select("pa.author_id, MODE() WITHIN GROUP (ORDER BY c.rank) AS freq_conf_rank, COUNT(c.rank) AS conf_rank_count").
		JoinOn(JoinInner, "publication", "p", "p.id", "pa.publication_id").
		JoinOn(JoinInner, "conference", "c", "c.id", "p.conference_id").
		AndCondition("c.rank", "", "IS NOT NULL", true, true).
		GroupBy("pa.author_id")

	freqJournal := core.NewQuery("publication_author", "pa").
		Select("pa.author_id, MODE() WITHIN GROUP (ORDER BY j.q_rank) AS freq_journal_rank, COUNT(j.q_rank) AS journal_rank_count").
		JoinOn(JoinInner, "publication", "p", "p.id", "pa.publication_id").
		JoinOn(JoinInner, "journal", "j", "j.id", "p.journal_id").
		AndCondition("j.q_rank", "", "IS NOT NULL", true, true).
		GroupBy("pa.author_id")

	avgSJR := core.NewQuery("publication_author", "pa").
		Select("pa.author_id, AVG(CAST(REGEXP_REPLACE(j.sjr, '[^0-9.]', '', 'g') AS FLOAT)) AS avg_sjr_score").
		JoinOn(JoinInner, "publication", "p", "p.id", "pa.publication_id").
		JoinOn(JoinInner, "journal", "j", "j.id", "p.journal_id").
		AndCondition("j.sjr", "", "IS NOT NULL", true, true).
		GroupBy("pa.author_id")

	scholar := core.NewQuery("scholar_author", "gsa").
		Select("gsa.author_id, gsa.h_index, gsa.i10_index")

	out := core.NewQuery("author_base", "a").
		Select(`a.id, a.name, a.role, a.organization, a.image_url, a.homepage_url,
			interests.interests,
			COALESCE(freq_conf_rank.freq_conf_rank, 'N/A') AS freq_conf_rank,
			COALESCE(freq_journal_rank.freq_journal_rank, 'N/A') AS freq_journal_rank,
			avg_sjr_score.avg_sjr_score,
			scholar.h_index, scholar.i10_index`).
		WithCTE("author_base", base).
		WithCTE("interests", interests).
		WithCTE("freq_conf_rank", freqConf).
		WithCTE("freq_journal_rank", freqJournal).
		WithCTE("avg_sjr_score", avgSJR).
		WithCTE("scholar", scholar).
		JoinOn(JoinLeft, "interests", "interests", "interests.author_id", "a.id").
		JoinOn(JoinLeft, "freq_conf_rank", "freq_conf_rank", "freq_conf_rank.author_id", "a.id").
		JoinOn(JoinLeft, "freq_journal_rank", "freq_journal_rank", "freq_journal_rank.author_id", "a.id").
		JoinOn(JoinLeft, "avg_sjr_score", "avg_sjr_score", "avg_sjr_score.author_id", "a.id").
		JoinOn(JoinLeft, "scholar", "scholar", "scholar.author_id", "a.id").
		AndCondition("(freq_conf_rank.freq_conf_rank IS NOT NULL OR freq_journal_rank.freq_journal_rank IS NOT NULL OR scholar.author_id IS NOT NULL)", "", "", true, true)
	return out
}

// AuthorsOverviewByIDsQuery restricts AuthorsOverviewQuery to a specific set
// of author ids, joined against a VALUES expression. Used by the graph
// materializer's node-enrichment step (spec.md §4.4 step 9) to fetch
// freq_conf_rank/freq_journal_rank for exactly the nodes discovered by BFS.
func AuthorsOverviewByIDsQuery(core *Core, ids []int) *ComposedQuery {
	q := AuthorsOverviewQuery(core)
	if len(ids) == 0 {
		return q.AndCondition("1", 0, "=", true, true)
	}
	return q.Join(JoinInner, valuesListExpr(ids), "node_id(id)", "a.id = node_id.id")
}

// AuthorCoauthorsQuery lists authorID's co-authors by unioning both
// directions of the author_coauthor edge table, so the edge's storage
// direction never leaks into the caller's view of the relationship.
func AuthorCoauthorsQuery(core *Core, authorID int) *ComposedQuery {
	outer := core.NewQuery("author", "a").
		Select("a.id, a.name, a.organization, a.image_url")

	forward := core.NewQuery("author_coauthor", "ac").
		Select("ac.coauthor_id AS coauthor_id").
		AndCondition("ac.author_id", authorID, "=", false, true)
	backward := core.NewQuery("author_coauthor", "ac").
		Select("ac.author_id AS coauthor_id").
		AndCondition("ac.coauthor_id", authorID, "=", false, true)

	fsql, fparams := forward.render()
	bsql, bparams := backward.render()
	rewrittenF := outer.mergeChild(fsql, fparams, "fwd_")
	rewrittenB := outer.mergeChild(bsql, bparams, "bwd_")
	unionExpr := fmt.Sprintf("(%s UNION %s)", rewrittenF, rewrittenB)

	return outer.JoinOn(JoinInner, unionExpr, "co", "co.coauthor_id", "a.id")
}
