package statement

import (
	"context"
	"fmt"
	"time"
)

// Params maps a :name placeholder to its value.
type Params map[string]Value

// Statement is one SQL statement with named parameters. Placeholders are
// written as :name.
type Statement struct {
	SQL    string
	Params Params
}

// New returns a Statement with an empty parameter map.
func New(sql string) Statement {
	return Statement{SQL: sql, Params: Params{}}
}

// With sets a parameter and returns the statement for chaining.
func (s Statement) With(name string, v Value) Statement {
	if s.Params == nil {
		s.Params = Params{}
	}
	s.Params[name] = v
	return s
}

// Row is one result row keyed by column name.
type Row map[string]Value

// Text returns the column as a string. Null reads as "".
func (r Row) Text(col string) string {
	return r[col].AsText()
}

// Integer returns the column as an int64.
func (r Row) Integer(col string) (int64, error) {
	v, ok := r[col]
	if !ok {
		return 0, fmt.Errorf("column %q missing", col)
	}
	n, err := v.AsInteger()
	if err != nil {
		return 0, fmt.Errorf("column %q: %w", col, err)
	}
	return n, nil
}

// Time returns the column as a timestamp, or nil for Null.
func (r Row) Time(col string) (*time.Time, error) {
	v := r[col]
	if v.IsNull() {
		return nil, nil
	}
	t, err := v.AsTime()
	if err != nil {
		return nil, fmt.Errorf("column %q: %w", col, err)
	}
	return &t, nil
}

// Result holds the rows a statement returned and the number of rows it
// changed.
type Result struct {
	Rows         []Row
	RowsAffected int64
}

// Executor runs statements against one backend. A non-empty txID scopes the
// statement to a transaction opened with Begin; an empty txID runs it as its
// own unit of work. Implementations are safe for concurrent use.
//
// Backend uniqueness and version conflicts are returned as
// *types.ConflictError; other failures wrap types.ErrDatabase.
type Executor interface {
	Execute(ctx context.Context, stmt Statement, txID string) (*Result, error)
	Begin(ctx context.Context) (string, error)
	Commit(ctx context.Context, txID string) error
	Rollback(ctx context.Context, txID string) error
	Dialect() Dialect
}

// SchemaApplier is implemented by executors that can create the entity
// table.
type SchemaApplier interface {
	EnsureSchema(ctx context.Context) error
}
