package pubquery

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbExecuter abstracts pgxpool.Pool so the QueryBuilder can run against the
// pool directly or through a breaker-wrapped decorator without knowing which.
type dbExecuter interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// breakerExecuter wraps a dbExecuter with circuit breaker checks so that
// once the backend is judged unhealthy, callers fail fast with
// backend_failure instead of queuing against a pool of dead connections.
type breakerExecuter struct {
	core *Core
	exec dbExecuter
}

// breakerLabel derives a short table/query label from rendered SQL for
// circuit-breaker attribution: it tries FROM, INTO, UPDATE and JOIN in that
// order and takes the identifier after the first occurrence of the first
// keyword that is followed by one. In a WITH-prefixed CTE query the first
// FROM is inside the first CTE, so the label is that CTE's source table
// rather than the CTE name.
func breakerLabel(sql string) string {
	upper := strings.ToUpper(sql)
	for _, kw := range []string{" FROM ", " INTO ", " UPDATE ", " JOIN "} {
		idx := strings.Index(upper, kw)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(sql[idx+len(kw):])
		end := strings.IndexAny(rest, " \t\n(")
		if end < 0 {
			end = len(rest)
		}
		if tok := strings.Trim(rest[:end], `"`); tok != "" {
			return tok
		}
	}
	if len(sql) > 40 {
		return sql[:40]
	}
	return sql
}

func (b breakerExecuter) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	if br := b.core.breaker; br != nil {
		label := breakerLabel(sql)
		if err := br.before(label); err != nil {
			return pgconn.CommandTag{}, err
		}
		tag, err := b.exec.Exec(ctx, sql, arguments...)
		br.after(label, err)
		return tag, err
	}
	return b.exec.Exec(ctx, sql, arguments...)
}

func (b breakerExecuter) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if br := b.core.breaker; br != nil {
		label := breakerLabel(sql)
		if err := br.before(label); err != nil {
			return nil, err
		}
		rows, err := b.exec.Query(ctx, sql, args...)
		br.after(label, err)
		return rows, err
	}
	return b.exec.Query(ctx, sql, args...)
}

func (b breakerExecuter) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if br := b.core.breaker; br != nil {
		label := breakerLabel(sql)
		if err := br.before(label); err != nil {
			return errorRow{err: err}
		}
		row := b.exec.QueryRow(ctx, sql, args...)
		return rowWithAfter{Row: row, after: func(err error) { br.after(label, err) }}
	}
	return b.exec.QueryRow(ctx, sql, args...)
}

// errorRow implements pgx.Row, always returning a fixed error on Scan.
type errorRow struct{ err error }

func (e errorRow) Scan(dest ...any) error { return e.err }

// rowWithAfter wraps a pgx.Row to report the scan outcome to the breaker.
type rowWithAfter struct {
	pgx.Row
	after func(error)
}

func (r rowWithAfter) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if r.after != nil {
		r.after(err)
	}
	return err
}
