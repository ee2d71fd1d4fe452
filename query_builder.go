package pubquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gwngames/pubquery/internal/sqlutil"
)

// JoinKind is the SQL join keyword a ComposedQuery.Join call renders.
type JoinKind string

const (
	JoinInner JoinKind = "JOIN"
	JoinLeft  JoinKind = "LEFT JOIN"
	JoinRight JoinKind = "RIGHT JOIN"
	JoinFull  JoinKind = "FULL JOIN"
)

type cteDef struct {
	name string
	sql  string
}

// ComposedQuery is the fluent, named-placeholder SQL builder spec.md §4.1
// describes: it composes a SELECT (with joins, nested predicates, GROUP BY,
// HAVING, ORDER BY, LIMIT/OFFSET, CTEs and subqueries), rewrites its stable
// ":name" placeholders to the driver's positional form at execution time,
// and optionally caches its rows. Grounded on the teacher's QueryBuilder
// (fluent chain, kn/exec wiring, Find()'s row->map[string]any scan) and on
// original_source's com/gwngames/server/query/QueryBuilder.py for the exact
// placeholder-naming and fragment-assembly semantics.
type ComposedQuery struct {
	core *Core
	exec dbExecuter

	table      string // table name, or an already-parenthesized subquery expression
	alias      string
	selectExpr string

	joins   []string
	wheres  []string
	havings []string
	groupBy []string
	orderBy []string
	limitN  int
	offsetN int

	params       map[string]any
	paramCounter int
	ctes         []cteDef

	cacheResults bool
	forceDebug   bool
	err          error
}

// NewQuery constructs a ComposedQuery rooted at table (a bare table name or
// a parenthesized subquery expression) under alias. cacheResults defaults to
// true, per spec.md §4.1's construction contract; callers performing
// fast-changing aggregate queries opt out via NoCache().
func (core *Core) NewQuery(table, alias string) *ComposedQuery {
	return &ComposedQuery{
		core:         core,
		exec:         core.executer(),
		table:        table,
		alias:        alias,
		selectExpr:   alias + ".*",
		params:       make(map[string]any),
		cacheResults: true,
	}
}

// NoCache opts this builder out of the process-wide result cache.
func (cq *ComposedQuery) NoCache() *ComposedQuery { cq.cacheResults = false; return cq }

// Debug forces SQL/arg logging for this chain regardless of the global LogMode.
func (cq *ComposedQuery) Debug() *ComposedQuery { cq.forceDebug = true; return cq }

// Select replaces the SELECT list with a raw, already-composed expression.
func (cq *ComposedQuery) Select(expr string) *ComposedQuery {
	cq.selectExpr = expr
	return cq
}

func (cq *ComposedQuery) nextParamName(base string) string {
	name := sqlutil.NextParamName(base, cq.paramCounter)
	cq.paramCounter++
	return name
}

func appendFragment(list []string, connector, frag string) []string {
	if len(list) == 0 {
		return append(list, frag)
	}
	return append(list, connector+" "+frag)
}

func (cq *ComposedQuery) addCondition(target *[]string, connector, field string, value any, op string, custom, caseSensitive bool) *ComposedQuery {
	var frag string
	if custom {
		frag = fmt.Sprintf("%s %s %v", field, op, value)
	} else {
		col := field
		v := value
		if !caseSensitive && strings.EqualFold(op, "LIKE") {
			col = "LOWER(" + field + ")"
			if s, ok := value.(string); ok {
				v = strings.ToLower(s)
			}
		}
		name := cq.nextParamName(field)
		cq.params[name] = v
		frag = fmt.Sprintf("%s %s :%s", col, op, name)
	}
	*target = appendFragment(*target, connector, frag)
	return cq
}

// AndCondition appends a WHERE fragment joined to the rest by AND. When
// custom is true, value is inserted verbatim (no placeholder allocated).
func (cq *ComposedQuery) AndCondition(field string, value any, op string, custom, caseSensitive bool) *ComposedQuery {
	return cq.addCondition(&cq.wheres, "AND", field, value, op, custom, caseSensitive)
}

// OrCondition appends a WHERE fragment joined to the rest by OR.
func (cq *ComposedQuery) OrCondition(field string, value any, op string, custom, caseSensitive bool) *ComposedQuery {
	return cq.addCondition(&cq.wheres, "OR", field, value, op, custom, caseSensitive)
}

// HavingAnd appends a HAVING fragment joined to the rest by AND.
func (cq *ComposedQuery) HavingAnd(field string, value any, op string, custom, caseSensitive bool) *ComposedQuery {
	return cq.addCondition(&cq.havings, "AND", field, value, op, custom, caseSensitive)
}

// HavingOr appends a HAVING fragment joined to the rest by OR.
func (cq *ComposedQuery) HavingOr(field string, value any, op string, custom, caseSensitive bool) *ComposedQuery {
	return cq.addCondition(&cq.havings, "OR", field, value, op, custom, caseSensitive)
}

// NestedCondition is one leaf of an AddNestedConditions group.
type NestedCondition struct {
	Field         string
	Value         any
	Op            string
	Custom        bool
	CaseSensitive bool
}

// AddNestedConditions appends a parenthesized group of conds joined by
// innerOp, attached to the WHERE or HAVING list (is_having) by outerOp.
func (cq *ComposedQuery) AddNestedConditions(conds []NestedCondition, innerOp, outerOp string, isHaving bool) *ComposedQuery {
	if len(conds) == 0 {
		return cq
	}
	frags := make([]string, 0, len(conds))
	for _, c := range conds {
		if c.Custom {
			frags = append(frags, fmt.Sprintf("%s %s %v", c.Field, c.Op, c.Value))
			continue
		}
		col := c.Field
		v := c.Value
		if !c.CaseSensitive && strings.EqualFold(c.Op, "LIKE") {
			col = "LOWER(" + c.Field + ")"
			if s, ok := c.Value.(string); ok {
				v = strings.ToLower(s)
			}
		}
		name := cq.nextParamName(c.Field)
		cq.params[name] = v
		frags = append(frags, fmt.Sprintf("%s %s :%s", col, c.Op, name))
	}
	group := "(" + strings.Join(frags, " "+innerOp+" ") + ")"
	if isHaving {
		cq.havings = appendFragment(cq.havings, outerOp, group)
	} else {
		cq.wheres = appendFragment(cq.wheres, outerOp, group)
	}
	return cq
}

// tableExprOf resolves a join/from target: another ComposedQuery contributes
// its FROM table expression verbatim, without its alias (spec.md §4.1: "its table
// expression is taken"); a string is used as-is, covering both plain table
// names and parenthesized VALUES expressions.
func tableExprOf(other any) (string, bool) {
	switch v := other.(type) {
	case *ComposedQuery:
		return v.table, true
	case string:
		return v, true
	default:
		return "", false
	}
}

// Join appends a join clause with an explicit ON condition.
func (cq *ComposedQuery) Join(kind JoinKind, other any, joinAlias, onCondition string) *ComposedQuery {
	expr, ok := tableExprOf(other)
	if !ok {
		cq.err = badRequest("invalid_join: unsupported join source %T", other)
		return cq
	}
	if strings.TrimSpace(onCondition) == "" {
		cq.err = badRequest("invalid_join: on_condition or (this_field, other_field) required")
		return cq
	}
	cq.joins = append(cq.joins, fmt.Sprintf("%s %s %s ON %s", kind, expr, joinAlias, onCondition))
	return cq
}

// JoinOn appends a join clause built from a (this_field, other_field) equality.
func (cq *ComposedQuery) JoinOn(kind JoinKind, other any, joinAlias, thisField, otherField string) *ComposedQuery {
	if strings.TrimSpace(thisField) == "" || strings.TrimSpace(otherField) == "" {
		cq.err = badRequest("invalid_join: both this_field and other_field are required")
		return cq
	}
	return cq.Join(kind, other, joinAlias, thisField+" = "+otherField)
}

// GroupBy appends cols to the GROUP BY column list.
func (cq *ComposedQuery) GroupBy(cols ...string) *ComposedQuery {
	cq.groupBy = append(cq.groupBy, cols...)
	return cq
}

// OrderBy appends an ORDER BY term.
func (cq *ComposedQuery) OrderBy(field string, ascending bool) *ComposedQuery {
	dir := "ASC"
	if !ascending {
		dir = "DESC"
	}
	cq.orderBy = append(cq.orderBy, field+" "+dir)
	return cq
}

// OrderByRaw appends an already-rendered ORDER BY term (e.g. a CASE
// expression implementing the rank ordinal mapping).
func (cq *ComposedQuery) OrderByRaw(expr string) *ComposedQuery {
	cq.orderBy = append(cq.orderBy, expr)
	return cq
}

// ResetOrderBy clears any previously set ORDER BY terms.
func (cq *ComposedQuery) ResetOrderBy() *ComposedQuery { cq.orderBy = nil; return cq }

func (cq *ComposedQuery) Limit(n int) *ComposedQuery  { cq.limitN = n; return cq }
func (cq *ComposedQuery) Offset(n int) *ComposedQuery { cq.offsetN = n; return cq }

// mergeChild rewrites child's placeholders with prefix and copies its
// parameters into cq.params, so the merge is injective by construction
// (spec.md invariant 3): two distinct child param names can never collide
// because they all gain the same unique prefix before being copied in.
func (cq *ComposedQuery) mergeChild(childSQL string, childParams map[string]any, prefix string) string {
	names := make(map[string]bool, len(childParams))
	for k := range childParams {
		names[k] = true
	}
	rewritten := sqlutil.PrefixPlaceholders(childSQL, prefix, names)
	for k, v := range sqlutil.PrefixParams(childParams, prefix) {
		cq.params[k] = v
	}
	return rewritten
}

// FromSubquery replaces the FROM target with child's rendered SQL, prefixing
// child's placeholders with alias_ and merging its parameters.
func (cq *ComposedQuery) FromSubquery(child *ComposedQuery, alias string) *ComposedQuery {
	childSQL, childParams := child.render()
	rewritten := cq.mergeChild(childSQL, childParams, alias+"_")
	cq.table = "(" + rewritten + ")"
	cq.alias = alias
	return cq
}

// SubqueryCondition appends a WHERE fragment `{field} {op} ({child SQL})`,
// prefixing child's placeholders with subq_.
func (cq *ComposedQuery) SubqueryCondition(field string, child *ComposedQuery, op, outerOp string) *ComposedQuery {
	if op == "" {
		op = "IN"
	}
	if outerOp == "" {
		outerOp = "AND"
	}
	childSQL, childParams := child.render()
	rewritten := cq.mergeChild(childSQL, childParams, "subq_")
	frag := fmt.Sprintf("%s %s (%s)", field, op, rewritten)
	cq.wheres = appendFragment(cq.wheres, outerOp, frag)
	return cq
}

// WithCTE registers a CTE built from another ComposedQuery, prefixing its
// placeholders with {name}_.
func (cq *ComposedQuery) WithCTE(name string, child *ComposedQuery) *ComposedQuery {
	childSQL, childParams := child.render()
	rewritten := cq.mergeChild(childSQL, childParams, name+"_")
	cq.ctes = append(cq.ctes, cteDef{name: name, sql: rewritten})
	return cq
}

// WithRawCTE registers a CTE from an already-rendered raw SQL string (no
// placeholder rewriting: the caller is responsible for naming collisions).
func (cq *ComposedQuery) WithRawCTE(name, rawSQL string) *ComposedQuery {
	cq.ctes = append(cq.ctes, cteDef{name: name, sql: rawSQL})
	return cq
}

// Clone deep-copies the builder. noLimit/noOffset optionally clear
// pagination on the copy; the original is never mutated (spec.md invariant 2).
func (cq *ComposedQuery) Clone(noLimit, noOffset bool) *ComposedQuery {
	params := make(map[string]any, len(cq.params))
	for k, v := range cq.params {
		params[k] = v
	}
	out := &ComposedQuery{
		core:         cq.core,
		exec:         cq.exec,
		table:        cq.table,
		alias:        cq.alias,
		selectExpr:   cq.selectExpr,
		joins:        append([]string(nil), cq.joins...),
		wheres:       append([]string(nil), cq.wheres...),
		havings:      append([]string(nil), cq.havings...),
		groupBy:      append([]string(nil), cq.groupBy...),
		orderBy:      append([]string(nil), cq.orderBy...),
		limitN:       cq.limitN,
		offsetN:      cq.offsetN,
		params:       params,
		paramCounter: cq.paramCounter,
		ctes:         append([]cteDef(nil), cq.ctes...),
		cacheResults: cq.cacheResults,
		forceDebug:   cq.forceDebug,
		err:          cq.err,
	}
	if noLimit {
		out.limitN = 0
	}
	if noOffset {
		out.offsetN = 0
	}
	return out
}

// render assembles the SQL text (still carrying ":name" placeholders) and
// the full parameter map, per the assembly order in spec.md §4.1:
// [WITH cte_list,] SELECT select_list FROM table_expr alias joins
// [WHERE cond_list] [GROUP BY ...] [HAVING ...] [ORDER BY ...] [LIMIT n] [OFFSET n]
func (cq *ComposedQuery) render() (string, map[string]any) {
	var sb strings.Builder
	if len(cq.ctes) > 0 {
		sb.WriteString("WITH ")
		parts := make([]string, len(cq.ctes))
		for i, c := range cq.ctes {
			parts[i] = c.name + " AS (" + c.sql + ")"
		}
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(" ")
	}
	sb.WriteString("SELECT ")
	sb.WriteString(cq.selectExpr)
	sb.WriteString(" FROM ")
	sb.WriteString(cq.table)
	sb.WriteString(" ")
	sb.WriteString(cq.alias)
	if len(cq.joins) > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Join(cq.joins, " "))
	}
	if len(cq.wheres) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(cq.wheres, " "))
	}
	if len(cq.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(cq.groupBy, ", "))
	}
	if len(cq.havings) > 0 {
		sb.WriteString(" HAVING ")
		sb.WriteString(strings.Join(cq.havings, " "))
	}
	if len(cq.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(cq.orderBy, ", "))
	}
	if cq.limitN > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(cq.limitN))
	}
	if cq.offsetN > 0 {
		sb.WriteString(" OFFSET ")
		sb.WriteString(strconv.Itoa(cq.offsetN))
	}
	return sb.String(), cq.params
}

// CountQuery wraps the current builder's unpaged form as a subquery and
// returns a new ComposedQuery selecting COUNT(*) over it, the pattern the
// Table Controller uses for total_count (spec.md §4.3).
func (cq *ComposedQuery) CountQuery() *ComposedQuery {
	inner := cq.Clone(true, true)
	out := cq.core.NewQuery("", "counted")
	out.exec = cq.exec
	out.FromSubquery(inner, "counted")
	out.Select("COUNT(*) AS total_count")
	out.cacheResults = cq.cacheResults
	return out
}

// Execute builds, optionally caches, and runs the query, returning rows as
// column-name -> value maps (spec.md §4.1's execution contract).
func (cq *ComposedQuery) Execute(ctx context.Context) ([]map[string]any, error) {
	if cq.err != nil {
		return nil, cq.err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	sql, params := cq.render()
	key := sqlutil.CacheKey(sql, params)

	if cq.cacheResults && cq.core.cache != nil {
		if data, ok, _ := cq.core.cache.Get(ctx, key); ok {
			var cached []map[string]any
			if err := json.Unmarshal(data, &cached); err == nil {
				if cq.core.metrics != nil {
					cq.core.metrics.CacheHit(sql)
				}
				return cached, nil
			}
		}
		if cq.core.metrics != nil {
			cq.core.metrics.CacheMiss(sql)
		}
	}

	posSQL, args, err := sqlutil.RewriteNamedToPositional(sql, params)
	if err != nil {
		return nil, internalError("builder produced an unresolved placeholder: %v", err)
	}

	started := time.Now()
	rows, err := cq.exec.Query(ctx, posSQL, args...)
	cq.logQuery(ctx, sql, args, started, err)
	if err != nil {
		return nil, wrapBackendError(err, sql, args)
	}
	defer rows.Close()

	out := make([]map[string]any, 0, 16)
	for rows.Next() {
		vals, verr := rows.Values()
		if verr != nil {
			return nil, wrapBackendError(verr, sql, args)
		}
		fds := rows.FieldDescriptions()
		m := make(map[string]any, len(vals))
		for i, v := range vals {
			m[string(fds[i].Name)] = v
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapBackendError(err, sql, args)
	}

	if cq.cacheResults && cq.core.cache != nil {
		if data, merr := json.Marshal(out); merr == nil {
			_ = cq.core.cache.Set(ctx, key, data, 0)
		}
	}
	return out, nil
}

func (cq *ComposedQuery) logQuery(ctx context.Context, sql string, args []any, started time.Time, err error) {
	core := cq.core
	if core == nil || core.logger == nil {
		return
	}
	dur := time.Since(started)
	if core.metrics != nil {
		core.metrics.QueryDuration(dur, sql)
	}
	switch core.logMode {
	case LogDebug, LogInfo:
		core.logger.Debug("query", core.makeLogFields(ctx, sql, args)...)
	case LogSilent:
		if cq.forceDebug {
			core.logger.Debug("query", core.makeLogFields(ctx, sql, args)...)
		}
	}
	if core.slowQueryThreshold > 0 && dur > core.slowQueryThreshold {
		fields := core.makeLogFields(ctx, sql, args)
		fields = append(fields, Field{Key: "duration_ms", Value: dur.Milliseconds()})
		core.logger.Warn("slow_query", fields...)
	}
	if err != nil {
		fields := core.makeLogFields(ctx, sql, args)
		fields = append(fields, Field{Key: "error", Value: err})
		core.logger.Error("query_error", fields...)
	}
}

// QuoteIdentifier safely quotes a SQL identifier, doubling any embedded
// double quotes.
func QuoteIdentifier(identifier string) string {
	esc := strings.ReplaceAll(identifier, "\"", "\"\"")
	return fmt.Sprintf("\"%s\"", esc)
}
