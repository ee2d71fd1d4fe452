package pubquery

import (
	"strconv"
	"strings"
)

// ConferencesQuery lists ranked conferences. Grounded on original_source's
// ConferenceQuery.get_conferences.
func ConferencesQuery(core *Core) *ComposedQuery {
	return core.NewQuery("conference", "c").
		Select(`c.id, c.title, c.acronym, c.publisher, c.rank, c.note, c.dblp_link, c.primary_for,
			c.comments, c.average_rating`).
		AndCondition("c.rank", "", "IS NOT NULL", true, true)
}

// JournalsQuery lists ranked journals. Grounded on original_source's
// JournalQuery.get_journals. The title is projected as stored (no
// camel-casing is applied, in SQL or in Go), and link is prefixed with the
// SCImago base URL here, matching the original's string-concatenated `link`
// expression.
func JournalsQuery(core *Core) *ComposedQuery {
	return core.NewQuery("journal", "j").
		Select(`j.id, j.title, ('https://scimagojr.com/' || j.link) AS link, j.year, j.sjr, j.q_rank,
			j.h_index, j.total_docs, j.total_docs_3years, j.total_refs, j.total_cites_3years,
			j.citable_docs_3years, j.cites_per_doc_2years, j.refs_per_doc, j.female_percent`).
		AndCondition("(j.q_rank IS NOT NULL AND j.title IS NOT NULL)", "", "", true, true)
}

// valuesListExpr renders a parenthesized VALUES table expression over ids,
// e.g. "(VALUES (1), (2), (3))". Every batched constructor in this file uses
// this form rather than a plain IN-list, per DESIGN.md's design decision
// to make batch joins uniform (the original's build_publications_from_journals_query
// used a plain IN-list where its sibling used VALUES; that inconsistency is
// not carried forward).
func valuesListExpr(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = "(" + strconv.Itoa(id) + ")"
	}
	return "(VALUES " + strings.Join(parts, ", ") + ")"
}

// AuthorsByJournalsQuery returns the distinct authors who published in any of
// journalIDs, joined through publication_author/publication against a VALUES
// expression of the requested ids. Grounded on original_source's
// JournalQuery.build_authors_from_journals_query.
func AuthorsByJournalsQuery(core *Core, journalIDs []int) *ComposedQuery {
	if len(journalIDs) == 0 {
		return core.NewQuery("author", "a").Select("a.id, a.name").AndCondition("1", 0, "=", true, true)
	}
	return core.NewQuery("author", "a").
		Select("DISTINCT a.name, a.id").
		JoinOn(JoinInner, "publication_author", "pa", "a.id", "pa.author_id").
		JoinOn(JoinInner, "publication", "p", "pa.publication_id", "p.id").
		JoinOn(JoinInner, "scholar_author", "gsa", "gsa.author_id", "a.id").
		Join(JoinInner, valuesListExpr(journalIDs), "journ_id(id)", "p.journal_id = journ_id.id")
}

// PublicationsByJournalsQuery returns the publications belonging to any of
// journalIDs, joined against a VALUES expression for consistency with
// AuthorsByJournalsQuery (the batched-join uniformity noted above).
func PublicationsByJournalsQuery(core *Core, journalIDs []int) *ComposedQuery {
	if len(journalIDs) == 0 {
		return core.NewQuery("publication", "p").Select("p.id, p.title").AndCondition("1", 0, "=", true, true)
	}
	return core.NewQuery("publication", "p").
		Select("p.id, p.title, p.publication_year").
		Join(JoinInner, valuesListExpr(journalIDs), "journ_id(id)", "p.journal_id = journ_id.id")
}
