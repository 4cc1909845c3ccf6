// Package postgres implements the statement executor over a pgx connection
// pool for self-hosted PostgreSQL. The pool is created on first use from
// credentials supplied by a connection provider.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fivequarters/q5-sub008/internal/connection"
	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// PostgreSQL error codes treated as conflicts.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
)

// Executor runs statements on a pgx pool.
type Executor struct {
	creds connection.Resolver

	poolMu sync.Mutex
	pool   *pgxpool.Pool

	mu  sync.Mutex
	txs map[string]pgx.Tx
}

// New returns an executor that connects lazily using creds.
func New(creds connection.Resolver) *Executor {
	return &Executor{
		creds: creds,
		txs:   make(map[string]pgx.Tx),
	}
}

// NewWithPool returns an executor over an existing pool.
func NewWithPool(pool *pgxpool.Pool) *Executor {
	return &Executor{
		pool: pool,
		txs:  make(map[string]pgx.Tx),
	}
}

// ConnString builds a pgx connection URL from creds.
func ConnString(c connection.Credentials) string {
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(host, strconv.Itoa(port)),
		Path:   "/" + c.Database,
	}
	if c.Username != "" {
		u.User = url.UserPassword(c.Username, c.Password)
	}
	return u.String()
}

func (e *Executor) getPool(ctx context.Context) (*pgxpool.Pool, error) {
	e.poolMu.Lock()
	defer e.poolMu.Unlock()
	if e.pool != nil {
		return e.pool, nil
	}
	if e.creds == nil {
		return nil, fmt.Errorf("%w: no credentials for postgres", types.ErrConfiguration)
	}

	creds, err := e.creds.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	cfg, err := pgxpool.ParseConfig(ConnString(creds))
	if err != nil {
		return nil, fmt.Errorf("%w: parse connection string: %v", types.ErrConfiguration, err)
	}
	pool, err := pgxpool.NewWithConfig(context.WithoutCancel(ctx), cfg)
	if err != nil {
		return nil, types.DatabaseError(fmt.Errorf("create pool: %w", err))
	}
	e.pool = pool
	return pool, nil
}

// Dialect returns statement.Postgres.
func (e *Executor) Dialect() statement.Dialect {
	return statement.Postgres
}

// EnsureSchema applies Schema in order.
func (e *Executor) EnsureSchema(ctx context.Context) error {
	pool, err := e.getPool(ctx)
	if err != nil {
		return err
	}
	for _, ddl := range Schema {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("apply schema: %w", translate(err))
		}
	}
	return nil
}

var namedParamPattern = regexp.MustCompile(`(^|[^:]):([A-Za-z_][A-Za-z0-9_]*)`)

// Rewrite converts :name placeholders to pgx @name placeholders. Casts written
// as ::type are left alone.
func Rewrite(sql string) string {
	return namedParamPattern.ReplaceAllString(sql, "${1}@${2}")
}

// Args converts statement parameters to pgx named arguments.
func Args(params statement.Params) pgx.NamedArgs {
	args := make(pgx.NamedArgs, len(params))
	for name, v := range params {
		args[name] = v.Native()
	}
	return args
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Execute runs the statement, inside transaction txID when it is set.
func (e *Executor) Execute(ctx context.Context, stmt statement.Statement, txID string) (*statement.Result, error) {
	var q querier
	if txID != "" {
		e.mu.Lock()
		tx, ok := e.txs[txID]
		e.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("%w: %s", types.ErrTransactionNotFound, txID)
		}
		q = tx
	} else {
		pool, err := e.getPool(ctx)
		if err != nil {
			return nil, err
		}
		q = pool
	}

	rows, err := q.Query(ctx, Rewrite(stmt.SQL), Args(stmt.Params))
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	result := &statement.Result{}
	fields := rows.FieldDescriptions()
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, translate(err)
		}
		row := make(statement.Row, len(fields))
		for i, f := range fields {
			row[f.Name] = statement.FromAny(values[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, translate(err)
	}
	result.RowsAffected = rows.CommandTag().RowsAffected()
	return result, nil
}

// translate maps pgx errors onto the engine taxonomy using the SQLSTATE code
// when one is present.
func translate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation, codeSerializationFailure:
			return &types.ConflictError{Err: err}
		}
	}
	return statement.TranslateError(err)
}

// Begin starts a transaction on the pool and returns its handle.
func (e *Executor) Begin(ctx context.Context) (string, error) {
	pool, err := e.getPool(ctx)
	if err != nil {
		return "", err
	}
	tx, err := pool.Begin(context.WithoutCancel(ctx))
	if err != nil {
		return "", translate(err)
	}
	id := uuid.Must(uuid.NewV7()).String()

	e.mu.Lock()
	e.txs[id] = tx
	e.mu.Unlock()
	return id, nil
}

// Commit commits and forgets the transaction.
func (e *Executor) Commit(ctx context.Context, txID string) error {
	tx, err := e.take(txID)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err)
	}
	return nil
}

// Rollback rolls back and forgets the transaction.
func (e *Executor) Rollback(ctx context.Context, txID string) error {
	tx, err := e.take(txID)
	if err != nil {
		return err
	}
	if err := tx.Rollback(ctx); err != nil {
		return translate(err)
	}
	return nil
}

func (e *Executor) take(txID string) (pgx.Tx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, ok := e.txs[txID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrTransactionNotFound, txID)
	}
	delete(e.txs, txID)
	return tx, nil
}

// Close rolls back open transactions and closes the pool.
func (e *Executor) Close() error {
	e.mu.Lock()
	txs := e.txs
	e.txs = make(map[string]pgx.Tx)
	e.mu.Unlock()

	var result error
	for id, tx := range txs {
		if err := tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			result = multierror.Append(result, fmt.Errorf("rollback %s: %w", id, err))
		}
	}

	e.poolMu.Lock()
	if e.pool != nil {
		e.pool.Close()
		e.pool = nil
	}
	e.poolMu.Unlock()
	return result
}
