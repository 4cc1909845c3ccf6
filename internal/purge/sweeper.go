// Package purge runs the background sweep that physically removes expired
// entities. Expired entities are already invisible to filtered reads; the
// sweep only reclaims their storage, so failures are logged and absorbed.
package purge

import (
	"context"
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Purger removes expired entities and reports how many it removed.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweep results recorded in entitystore_purge_runs_total.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the sweep collectors.
type Metrics struct {
	runs   *prometheus.CounterVec
	purged prometheus.Counter
}

// NewMetrics creates the sweep collectors and registers them with reg. A nil
// reg disables metrics and returns nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "entitystore",
		Name:      "purge_runs_total",
		Help:      "Expiry sweeps by result",
	}, []string{"result"})
	purged := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "entitystore",
		Name:      "purged_entities_total",
		Help:      "Expired entities removed by the sweep",
	})

	m := &Metrics{}
	var err error
	if m.runs, err = register(reg, runs); err != nil {
		return nil, err
	}
	if m.purged, err = register(reg, purged); err != nil {
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

func (m *Metrics) record(n int64, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.runs.WithLabelValues(ResultError).Inc()
		return
	}
	m.runs.WithLabelValues(ResultOK).Inc()
	m.purged.Add(float64(n))
}

// Sweeper calls Purger every Interval until its context is cancelled.
type Sweeper struct {
	Purger Purger

	// Interval between sweeps. Zero means types.DefaultPurgeInterval.
	Interval time.Duration

	// Ready, when set, delays the first sweep until it is closed. The store
	// passes the credential provider's readiness channel.
	Ready <-chan struct{}

	Logger  hclog.Logger
	Metrics *Metrics
}

// Run sweeps once as soon as Ready is closed and then on every tick. It
// returns when ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	logger := s.logger()
	interval := s.Interval
	if interval <= 0 {
		interval = types.DefaultPurgeInterval
	}

	if s.Ready != nil {
		select {
		case <-ctx.Done():
			return
		case <-s.Ready:
		}
	}

	logger.Debug("expiry sweep started", "interval", interval)
	s.Sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("expiry sweep stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one purge. Failures are logged and counted, never returned.
func (s *Sweeper) Sweep(ctx context.Context) {
	logger := s.logger()
	start := time.Now()

	n, err := s.Purger.PurgeExpired(ctx)
	s.Metrics.record(n, err)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Warn("expiry sweep failed", "error", err)
		return
	}
	logger.Debug("expiry sweep complete", "purged", n, "duration", time.Since(start))
}

func (s *Sweeper) logger() hclog.Logger {
	if s.Logger == nil {
		return hclog.NewNullLogger()
	}
	return s.Logger
}
