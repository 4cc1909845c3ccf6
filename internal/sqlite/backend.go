// Package sqlite implements the statement executor over SQLite, used in local
// mode and by tests. Transactions are held open in the process and addressed
// by a UUID v7 handle.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// DatabaseFile is the file created inside the data directory.
const DatabaseFile = "entitystore.db"

const driverName = "sqlite"

func init() {
	// modernc registers as "sqlite", which sqlx does not know to bind with "?".
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// Executor runs statements against a SQLite database file.
type Executor struct {
	db *sqlx.DB

	mu  sync.Mutex
	txs map[string]*sqlx.Tx
}

// Open creates dataDir if needed and opens the database file inside it.
func Open(dataDir string) (*Executor, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return OpenFile(filepath.Join(dataDir, DatabaseFile))
}

// OpenFile opens the database at path.
func OpenFile(path string) (*Executor, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &Executor{
		db:  db,
		txs: make(map[string]*sqlx.Tx),
	}, nil
}

// EnsureSchema creates the entity table, its index and the version trigger.
func (e *Executor) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schemaDDL {
		if _, err := e.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Dialect returns statement.SQLite.
func (e *Executor) Dialect() statement.Dialect {
	return statement.SQLite
}

var returnsRowsPattern = regexp.MustCompile(`(?is)^\s*(SELECT|WITH)\b|\bRETURNING\b`)

// Execute binds the statement's named parameters and runs it, inside the
// transaction txID when it is set.
func (e *Executor) Execute(ctx context.Context, stmt statement.Statement, txID string) (*statement.Result, error) {
	q, err := e.queryer(txID)
	if err != nil {
		return nil, err
	}
	args := bindArgs(stmt.Params)

	if !returnsRowsPattern.MatchString(stmt.SQL) {
		res, err := sqlx.NamedExecContext(ctx, q, stmt.SQL, args)
		if err != nil {
			return nil, statement.TranslateError(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, types.DatabaseError(err)
		}
		return &statement.Result{RowsAffected: n}, nil
	}

	rows, err := sqlx.NamedQueryContext(ctx, q, stmt.SQL, args)
	if err != nil {
		return nil, statement.TranslateError(err)
	}
	defer rows.Close()

	result := &statement.Result{}
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, statement.TranslateError(err)
		}
		row := make(statement.Row, len(m))
		for col, v := range m {
			row[col] = statement.FromAny(v)
		}
		result.Rows = append(result.Rows, row)
	}
	// A trigger abort in a RETURNING statement surfaces here.
	if err := rows.Err(); err != nil {
		return nil, statement.TranslateError(err)
	}
	result.RowsAffected = int64(len(result.Rows))
	return result, nil
}

func (e *Executor) queryer(txID string) (sqlx.ExtContext, error) {
	if txID == "" {
		return e.db, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, ok := e.txs[txID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTransactionNotFound, txID)
	}
	return tx, nil
}

// bindArgs converts parameters to driver values. Timestamps are stored as
// fixed-width UTC text.
func bindArgs(params statement.Params) map[string]any {
	args := make(map[string]any, len(params))
	for name, v := range params {
		if v.Kind() == statement.KindTimestamp {
			t, _ := v.AsTime()
			args[name] = t.UTC().Format(statement.SQLTimestampLayout)
			continue
		}
		args[name] = v.Native()
	}
	return args
}

// Begin opens a transaction and returns its handle. The transaction outlives
// ctx; it ends only with Commit or Rollback.
func (e *Executor) Begin(ctx context.Context) (string, error) {
	tx, err := e.db.BeginTxx(context.WithoutCancel(ctx), nil)
	if err != nil {
		return "", types.DatabaseError(fmt.Errorf("begin: %w", err))
	}
	id := newTxID()

	e.mu.Lock()
	e.txs[id] = tx
	e.mu.Unlock()
	return id, nil
}

// Commit commits and forgets the transaction.
func (e *Executor) Commit(_ context.Context, txID string) error {
	tx, err := e.take(txID)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return statement.TranslateError(err)
	}
	return nil
}

// Rollback rolls back and forgets the transaction.
func (e *Executor) Rollback(_ context.Context, txID string) error {
	tx, err := e.take(txID)
	if err != nil {
		return err
	}
	if err := tx.Rollback(); err != nil {
		return types.DatabaseError(err)
	}
	return nil
}

func (e *Executor) take(txID string) (*sqlx.Tx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, ok := e.txs[txID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTransactionNotFound, txID)
	}
	delete(e.txs, txID)
	return tx, nil
}

// Close rolls back open transactions and closes the database.
func (e *Executor) Close() error {
	e.mu.Lock()
	txs := e.txs
	e.txs = make(map[string]*sqlx.Tx)
	e.mu.Unlock()

	var result error
	for id, tx := range txs {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			result = multierror.Append(result, fmt.Errorf("rollback %s: %w", id, err))
		}
	}
	if err := e.db.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close sqlite: %w", err))
	}
	return result
}

// newTxID generates a UUID v7 transaction handle.
func newTxID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
