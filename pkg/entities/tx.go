package entities

import (
	"context"

	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Begin starts a transaction and returns its id.
func (s *Store) Begin(ctx context.Context) (string, error) {
	eng, err := s.current()
	if err != nil {
		return "", err
	}
	return eng.Executor().Begin(ctx)
}

// Commit commits the transaction txID.
func (s *Store) Commit(ctx context.Context, txID string) error {
	eng, err := s.current()
	if err != nil {
		return err
	}
	return eng.Executor().Commit(ctx, txID)
}

// Rollback abandons the transaction txID.
func (s *Store) Rollback(ctx context.Context, txID string) error {
	eng, err := s.current()
	if err != nil {
		return err
	}
	return eng.Executor().Rollback(ctx, txID)
}

// Tx exposes the façades bound to one transaction.
type Tx struct {
	store *Store
	id    string
}

// ID returns the transaction id.
func (tx *Tx) ID() string { return tx.id }

func (tx *Tx) Connectors() *Entities   { return tx.store.Connectors().WithTransaction(tx.id) }
func (tx *Tx) Integrations() *Entities { return tx.store.Integrations().WithTransaction(tx.id) }
func (tx *Tx) Operations() *Entities   { return tx.store.Operations().WithTransaction(tx.id) }
func (tx *Tx) Storage() *Entities      { return tx.store.Storage().WithTransaction(tx.id) }

// RunInTransaction begins a transaction, calls fn, and commits when fn
// returns nil. Otherwise it rolls back and returns fn's error.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) error {
	eng, err := s.current()
	if err != nil {
		return err
	}
	return statement.RunInTransaction(ctx, eng.Executor(), func(ctx context.Context, txID string) error {
		return fn(ctx, &Tx{store: s, id: txID})
	})
}

// Entities returns the façade for t bound to the transaction.
func (tx *Tx) Entities(t types.EntityType) (*Entities, error) {
	f, err := tx.store.Entities(t)
	if err != nil {
		return nil, err
	}
	return f.WithTransaction(tx.id), nil
}
