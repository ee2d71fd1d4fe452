package pubquery

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeExec is a dbExecuter test double that dispatches canned row sets by
// matching substrings against the rendered SQL, so one fake can stand in for
// every Predefined Query Constructor a test exercises without a real
// database. Grounded on the teacher's own query_builder_test.go fakeExec.
type fakeExec struct {
	lastSQL  string
	lastArgs []any
	route    func(sql string) ([][]any, []string)
	err      error
}

func (f *fakeExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.lastSQL, f.lastArgs = sql, args
	return pgconn.CommandTag{}, f.err
}

func (f *fakeExec) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.lastSQL, f.lastArgs = sql, args
	if f.err != nil {
		return nil, f.err
	}
	rows, fields := [][]any{}, []string{}
	if f.route != nil {
		rows, fields = f.route(sql)
	}
	return &fakeRows{rows: rows, fields: fields}, nil
}

func (f *fakeExec) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.lastSQL, f.lastArgs = sql, args
	if f.err != nil {
		return fakeRowErr{err: f.err}
	}
	r, _ := f.Query(ctx, sql, args...)
	return r.(*fakeRows)
}

type fakeRows struct {
	rows   [][]any
	fields []string
	i      int
}

func (r *fakeRows) Values() ([]any, error) {
	if r.i >= len(r.rows) {
		return nil, errors.New("eof")
	}
	v := r.rows[r.i]
	r.i++
	return v, nil
}

func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription {
	out := make([]pgconn.FieldDescription, len(r.fields))
	for i, n := range r.fields {
		out[i] = pgconn.FieldDescription{Name: n}
	}
	return out
}

func (r *fakeRows) Next() bool                    { return r.i < len(r.rows) }
func (r *fakeRows) Err() error                     { return nil }
func (r *fakeRows) Close()                         {}
func (r *fakeRows) CommandTag() pgconn.CommandTag  { return pgconn.CommandTag{} }
func (r *fakeRows) RawValues() [][]byte            { return nil }
func (r *fakeRows) Conn() *pgx.Conn                { return nil }
func (r *fakeRows) Scan(dest ...any) error         { return nil }

type fakeRowErr struct{ err error }

func (r fakeRowErr) Scan(dest ...any) error { return r.err }

// newTestCore builds a *Core with no live pool, suitable for exercising
// ComposedQuery/constructor logic against a fakeExec; every method that
// would otherwise reach the pool is bypassed by assigning exec directly on
// the builder under test.
func newTestCore() *Core {
	return &Core{
		logger:  NoopLogger{},
		metrics: NoopMetrics{},
		cache:   NoopCache{},
		logMode: LogSilent,
		config:  &Config{},
	}
}

func containsAll(sql string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(sql, p) {
			return false
		}
	}
	return true
}
