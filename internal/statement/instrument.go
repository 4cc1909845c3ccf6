package statement

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Metrics holds the Prometheus collectors shared by instrumented executors.
type Metrics struct {
	duration     *prometheus.HistogramVec
	transactions *prometheus.CounterVec
}

// NewMetrics creates the statement collectors and registers them with reg.
// A nil reg disables metrics and returns nil. Collectors that are already
// registered are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "entitystore",
			Name:      "statement_duration_seconds",
			Help:      "Statement execution time by backend and outcome",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}, []string{"backend", "outcome"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "entitystore",
			Name:      "transactions_total",
			Help:      "Transactions begun, committed and rolled back",
		}, []string{"backend", "action"}),
	}

	var err error
	if m.duration, err = register(reg, m.duration); err != nil {
		return nil, err
	}
	if m.transactions, err = register(reg, m.transactions); err != nil {
		return nil, err
	}
	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Statement outcomes recorded by Instrument.
const (
	OutcomeOK       = "ok"
	OutcomeConflict = "conflict"
	OutcomeError    = "error"
)

// Instrument wraps exec so every call is recorded in m under the backend
// label. A nil m returns exec unchanged.
func Instrument(exec Executor, m *Metrics, backend string) Executor {
	if m == nil {
		return exec
	}
	return &instrumented{next: exec, m: m, backend: backend}
}

type instrumented struct {
	next    Executor
	m       *Metrics
	backend string
}

func (e *instrumented) Execute(ctx context.Context, stmt Statement, txID string) (*Result, error) {
	start := time.Now()
	res, err := e.next.Execute(ctx, stmt, txID)
	e.m.duration.WithLabelValues(e.backend, outcome(err)).Observe(time.Since(start).Seconds())
	return res, err
}

func (e *instrumented) Begin(ctx context.Context) (string, error) {
	txID, err := e.next.Begin(ctx)
	if err == nil {
		e.m.transactions.WithLabelValues(e.backend, "begin").Inc()
	}
	return txID, err
}

func (e *instrumented) Commit(ctx context.Context, txID string) error {
	err := e.next.Commit(ctx, txID)
	if err == nil {
		e.m.transactions.WithLabelValues(e.backend, "commit").Inc()
	}
	return err
}

func (e *instrumented) Rollback(ctx context.Context, txID string) error {
	err := e.next.Rollback(ctx, txID)
	if err == nil {
		e.m.transactions.WithLabelValues(e.backend, "rollback").Inc()
	}
	return err
}

func (e *instrumented) Dialect() Dialect {
	return e.next.Dialect()
}

// EnsureSchema forwards to the wrapped executor when it can apply the schema.
func (e *instrumented) EnsureSchema(ctx context.Context) error {
	if sa, ok := e.next.(SchemaApplier); ok {
		return sa.EnsureSchema(ctx)
	}
	return errors.New("executor cannot apply schema")
}

func outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, types.ErrConflict):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}

// Transactions returns the transaction counter, labelled by backend and
// action.
func (m *Metrics) Transactions() *prometheus.CounterVec {
	return m.transactions
}
