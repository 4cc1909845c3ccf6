// Package statementtest provides a recording statement.Executor for tests
// that assert on the SQL the engine issues without a database.
package statementtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/fivequarters/q5-sub008/internal/statement"
)

// Call is one recorded Execute call.
type Call struct {
	Statement statement.Statement
	TxID      string
}

// Recorder records every call and replays queued results in order. When the
// queue is empty Execute returns an empty Result.
type Recorder struct {
	mu sync.Mutex

	D statement.Dialect

	// Results are returned by successive Execute calls.
	Results []*statement.Result

	// Err, when set, is returned by every Execute call.
	Err error

	// BeginErr, CommitErr and RollbackErr fail the matching calls.
	BeginErr    error
	CommitErr   error
	RollbackErr error

	calls      []Call
	begun      int
	Committed  []string
	RolledBack []string
}

// New returns a Recorder using dialect d.
func New(d statement.Dialect) *Recorder {
	return &Recorder{D: d}
}

// Queue appends results to be returned by later Execute calls.
func (r *Recorder) Queue(results ...*statement.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Results = append(r.Results, results...)
}

// Calls returns a copy of the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Last returns the most recent call. It panics when nothing was recorded.
func (r *Recorder) Last() Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[len(r.calls)-1]
}

func (r *Recorder) Execute(_ context.Context, stmt statement.Statement, txID string) (*statement.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, Call{Statement: stmt, TxID: txID})
	if r.Err != nil {
		return nil, r.Err
	}
	if len(r.Results) == 0 {
		return &statement.Result{}, nil
	}
	res := r.Results[0]
	r.Results = r.Results[1:]
	return res, nil
}

func (r *Recorder) Begin(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BeginErr != nil {
		return "", r.BeginErr
	}
	r.begun++
	return fmt.Sprintf("tx-%d", r.begun), nil
}

func (r *Recorder) Commit(_ context.Context, txID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CommitErr != nil {
		return r.CommitErr
	}
	r.Committed = append(r.Committed, txID)
	return nil
}

func (r *Recorder) Rollback(_ context.Context, txID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RollbackErr != nil {
		return r.RollbackErr
	}
	r.RolledBack = append(r.RolledBack, txID)
	return nil
}

func (r *Recorder) Dialect() statement.Dialect {
	if r.D == nil {
		return statement.Postgres
	}
	return r.D
}
