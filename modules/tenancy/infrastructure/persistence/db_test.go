package persistence

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// expectation is one scripted round trip. Exactly one of rows, row, tag or err answers it.
type expectation struct {
	pattern *regexp.Regexp
	args    []any

	rows [][]any
	row  []any
	tag  string
	err  error
}

// scriptedDB answers Query, QueryRow and Exec from an ordered script.
type scriptedDB struct {
	t      *testing.T
	script []*expectation
}

func newScriptedDB(t *testing.T) *scriptedDB {
	t.Helper()
	db := &scriptedDB{t: t}
	t.Cleanup(func() {
		require.Empty(t, db.script, "unconsumed database expectations")
	})
	return db
}

func (db *scriptedDB) expect(pattern string, args ...any) *expectation {
	e := &expectation{pattern: regexp.MustCompile(pattern), args: args}
	db.script = append(db.script, e)
	return e
}

func (e *expectation) returnRows(rows ...[]any) { e.rows = rows }
func (e *expectation) returnRow(values ...any)  { e.row = values }
func (e *expectation) returnTag(tag string)     { e.tag = tag }
func (e *expectation) returnError(err error)    { e.err = err }

func (db *scriptedDB) next(sql string, args []any) *expectation {
	db.t.Helper()
	require.NotEmpty(db.t, db.script, "unexpected query: %s", sql)
	e := db.script[0]
	db.script = db.script[1:]
	require.Regexp(db.t, e.pattern, sql)
	if e.args != nil {
		require.Equal(db.t, e.args, args)
	}
	return e
}

func (db *scriptedDB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	e := db.next(sql, args)
	if e.err != nil {
		return nil, e.err
	}
	return &scriptedRows{rows: e.rows}, nil
}

func (db *scriptedDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	e := db.next(sql, args)
	return scriptedRow{values: e.row, err: e.err}
}

func (db *scriptedDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e := db.next(sql, args)
	if e.err != nil {
		return pgconn.CommandTag{}, e.err
	}
	return pgconn.NewCommandTag(e.tag), nil
}

type scriptedRow struct {
	values []any
	err    error
}

func (r scriptedRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if r.values == nil {
		return pgx.ErrNoRows
	}
	return assign(r.values, dest)
}

type scriptedRows struct {
	rows [][]any
	pos  int
}

func (r *scriptedRows) Close()                                       {}
func (r *scriptedRows) Err() error                                   { return nil }
func (r *scriptedRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *scriptedRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *scriptedRows) RawValues() [][]byte                          { return nil }
func (r *scriptedRows) Conn() *pgx.Conn                              { return nil }

func (r *scriptedRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *scriptedRows) Scan(dest ...any) error {
	return assign(r.rows[r.pos-1], dest)
}

func (r *scriptedRows) Values() ([]any, error) {
	return r.rows[r.pos-1], nil
}

// assign copies values into scan targets. A nil value zeroes the target; a plain value
// scanned into a pointer target is boxed, the way pgx fills nullable columns.
func assign(values, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("scan: %d values into %d targets", len(values), len(dest))
	}
	for i, v := range values {
		target := reflect.ValueOf(dest[i]).Elem()
		if v == nil {
			target.SetZero()
			continue
		}
		val := reflect.ValueOf(v)
		if target.Kind() == reflect.Pointer && val.Type() != target.Type() {
			boxed := reflect.New(target.Type().Elem())
			boxed.Elem().Set(val)
			target.Set(boxed)
			continue
		}
		target.Set(val)
	}
	return nil
}
