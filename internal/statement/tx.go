package statement

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// RunInTransaction begins a transaction, calls fn with its id, and commits
// when fn succeeds. When fn fails the transaction is rolled back and fn's
// error returned; a failed rollback is appended to it. A failed commit is
// returned as is since the backend has already ended the transaction.
func RunInTransaction(ctx context.Context, exec Executor, fn func(ctx context.Context, txID string) error) error {
	txID, err := exec.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(ctx, txID); err != nil {
		return rollback(ctx, exec, txID, err)
	}

	if err := exec.Commit(ctx, txID); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, exec Executor, txID string, cause error) error {
	// The rollback must run even when ctx was the reason fn failed.
	if rbErr := exec.Rollback(context.WithoutCancel(ctx), txID); rbErr != nil {
		return multierror.Append(cause, fmt.Errorf("rollback transaction: %w", rbErr))
	}
	return cause
}
