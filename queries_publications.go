package pubquery

import (
	"fmt"

	pubcore "github.com/gwngames/pubquery/internal/core"
)

// FormatPublicationRow renders a publication row's display fields: id as a
// string, title camel-cased through internal/core.ToCamelCase (substituting
// for the original's database-side to_camel_case(), not assumed to exist on
// the target Postgres instance), and publication_year blanked when it falls
// below 1950, per spec.md §3's data-quality note. Applied by callers of
// PublicationDetailQuery/PublicationsOverviewQuery to every returned row.
func FormatPublicationRow(row map[string]any) map[string]any {
	if title, ok := row["title"].(string); ok {
		row["title"] = pubcore.ToCamelCase(title)
	}
	if id, ok := row["id"]; ok {
		row["id"] = fmt.Sprintf("%v", id)
	}
	if year, ok := row["publication_year"]; ok {
		if n, isInt := asInt(year); isInt && n < 1950 {
			row["publication_year"] = ""
		}
	}
	return row
}

// FormatPublicationRows applies FormatPublicationRow to every row in place,
// returning the same slice for chaining.
func FormatPublicationRows(rows []map[string]any) []map[string]any {
	for _, row := range rows {
		FormatPublicationRow(row)
	}
	return rows
}

// PublicationDetailQuery builds the single-publication detail query: basic
// publication fields, venue names, Google Scholar citation counts, and the
// venue's aggregated rank/SJR score. Grounded on original_source's
// PublicationQuery.build_filtered_publication_query. Project rows through
// FormatPublicationRow for the id-as-string/camel-cased-title/blanked-year
// display transforms.
func PublicationDetailQuery(core *Core, title string) *ComposedQuery {
	return core.NewQuery("publication", "p").
		Select(`p.id, p.title, p.url, p.publication_year, p.pages, p.publisher, p.description,
			j.title AS journal_title, c.title AS conference_title,
			gsp.total_citations, gsp.title_link, gsp.pdf_link,
			CASE WHEN COUNT(c.rank) > 0 THEN MODE() WITHIN GROUP (ORDER BY c.rank) ELSE 'N/A' END AS conference_rank,
			CASE WHEN COUNT(j.q_rank) > 0 THEN MODE() WITHIN GROUP (ORDER BY j.q_rank) ELSE 'N/A' END AS journal_rank,
			MODE() WITHIN GROUP (ORDER BY REGEXP_REPLACE(j.sjr, '[^0-9.]', '', 'g')) AS journal_score`).
		JoinOn(JoinLeft, "journal", "j", "j.id", "p.journal_id").
		JoinOn(JoinLeft, "conference", "c", "c.id", "p.conference_id").
		JoinOn(JoinLeft, "scholar_publication", "gsp", "gsp.publication_id", "p.id").
		AndCondition("p.title", title, "=", false, true).
		GroupBy("p.id", "p.title", "p.url", "p.publication_year", "p.pages", "p.publisher", "p.description",
			"j.title", "c.title", "gsp.total_citations", "gsp.title_link", "gsp.pdf_link").
		Limit(1)
}

// PublicationsOverviewQuery builds the publications overview table: author
// list, venue names/ranks, restricted to publications carrying at least one
// ranked venue or a Google Scholar record. Grounded on original_source's
// PublicationQuery.build_overview_publication_query. Project rows through
// FormatPublicationRows before returning them to a presentation layer.
func PublicationsOverviewQuery(core *Core) *ComposedQuery {
	return core.NewQuery("publication", "p").
		Select(`p.id, p.title, p.publication_year, p.publisher,
			STRING_AGG(DISTINCT a.name, ', ') AS authors,
			j.title AS journal_title, j.q_rank AS journal_qrank,
			MODE() WITHIN GROUP (ORDER BY REGEXP_REPLACE(j.sjr, '[^0-9.]', '', 'g')) AS journal_sjr,
			c.title AS conference_title,
			CASE WHEN COUNT(c.rank) > 0 THEN MODE() WITHIN GROUP (ORDER BY c.rank) ELSE 'N/A' END AS conference_rank`).
		JoinOn(JoinLeft, "journal", "j", "j.id", "p.journal_id").
		JoinOn(JoinLeft, "conference", "c", "c.id", "p.conference_id").
		JoinOn(JoinLeft, "scholar_publication", "gsp", "gsp.publication_id", "p.id").
		JoinOn(JoinLeft, "publication_author", "pa", "pa.publication_id", "p.id").
		JoinOn(JoinLeft, "author", "a", "a.id", "pa.author_id").
		AndCondition("(c.rank IS NOT NULL OR j.q_rank IS NOT NULL OR gsp.id IS NOT NULL)", "", "", true, true).
		GroupBy("p.id", "p.title", "p.publication_year", "p.publisher", "j.title", "j.q_rank", "c.title")
}

// PublicationsByAuthorQuery lists a single author's publications with their
// venue and rank. The Graph Materializer does not use it; its pair
// enrichment step reads joint publications through PairJointPublicationsQuery.
func PublicationsByAuthorQuery(core *Core, authorID int) *ComposedQuery {
	return core.NewQuery("publication_author", "pa").
		Select(`p.id, p.title, p.publication_year, c.rank AS conference_rank, j.q_rank AS journal_rank`).
		JoinOn(JoinInner, "publication", "p", "p.id", "pa.publication_id").
		JoinOn(JoinLeft, "journal", "j", "j.id", "p.journal_id").
		JoinOn(JoinLeft, "conference", "c", "c.id", "p.conference_id").
		AndCondition("pa.author_id", authorID, "=", false, true)
}
