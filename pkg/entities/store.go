package entities

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fivequarters/q5-sub008/internal/connection"
	"github.com/fivequarters/q5-sub008/internal/entity"
	"github.com/fivequarters/q5-sub008/internal/postgres"
	"github.com/fivequarters/q5-sub008/internal/purge"
	"github.com/fivequarters/q5-sub008/internal/rdsdata"
	"github.com/fivequarters/q5-sub008/internal/sqlite"
	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Store owns the backend connection, the entity engine and the expiry sweep.
// It is safe for concurrent use.
type Store struct {
	logger   hclog.Logger
	registry prometheus.Registerer
	secrets  connection.SecretStore
	now      func() time.Time

	mu       sync.RWMutex
	attached bool
	cfg      types.Config
	exec     statement.Executor
	engine   *entity.Engine
	closers  []func() error
	stop     context.CancelFunc
	sweepEnd chan struct{}
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the logger. Components log under named sub-loggers.
func WithLogger(l hclog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// WithRegisterer enables Prometheus metrics on reg.
func WithRegisterer(reg prometheus.Registerer) StoreOption {
	return func(s *Store) {
		s.registry = reg
	}
}

// WithSecretStore replaces the secret store chosen from configuration.
func WithSecretStore(ss connection.SecretStore) StoreOption {
	return func(s *Store) {
		s.secrets = ss
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore returns a detached Store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{logger: hclog.NewNullLogger()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach connects the Store to the backend described by cfg and, outside
// local mode, starts the expiry sweep. The SQLite schema is applied on
// attach; the Postgres schema is applied by EnsureSchema.
// Returns ErrAlreadyAttached if the Store is attached.
func (s *Store) Attach(ctx context.Context, cfg types.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached {
		return types.ErrAlreadyAttached
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg = cfg.WithDefaults()

	exec, ready, closer, err := s.open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}

	metrics, err := statement.NewMetrics(s.registry)
	if err != nil {
		return multierror.Append(fmt.Errorf("register metrics: %w", err), closer())
	}
	exec = statement.Instrument(exec, metrics, cfg.Backend)

	if cfg.Backend == types.BackendSQLite {
		if err := ensureSchema(ctx, exec); err != nil {
			return multierror.Append(err, closer())
		}
	}

	engineOpts := []entity.Option{
		entity.WithDefaults(types.Options{ListLimit: types.Some(cfg.ListLimit)}),
		entity.WithTypeDefaults(types.EntityOperation, types.Options{
			FilterExpired:   types.Some(true),
			ExpiresDuration: types.Some(cfg.OperationTTL),
		}),
		entity.WithTypeDefaults(types.EntityStorage, types.Options{
			Upsert:        types.Some(true),
			FilterExpired: types.Some(true),
		}),
	}
	if s.now != nil {
		engineOpts = append(engineOpts, entity.WithClock(s.now))
	}
	engine := entity.New(exec, engineOpts...)

	if !cfg.IsLocal() {
		pm, err := purge.NewMetrics(s.registry)
		if err != nil {
			return multierror.Append(fmt.Errorf("register metrics: %w", err), closer())
		}
		sweeper := &purge.Sweeper{
			Purger:   engine,
			Interval: cfg.PurgeInterval,
			Ready:    ready,
			Logger:   s.logger.Named("purge"),
			Metrics:  pm,
		}
		sweepCtx, stop := context.WithCancel(context.Background())
		s.stop = stop
		s.sweepEnd = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			sweeper.Run(sweepCtx)
		}(s.sweepEnd)
	}

	s.cfg = cfg
	s.exec = exec
	s.engine = engine
	s.closers = []func() error{closer}
	s.attached = true

	s.logger.Info("store attached", "backend", cfg.Backend, "mode", cfg.Mode)
	return nil
}

// open builds the executor for cfg.Backend. ready is closed once the backend
// has working credentials; it is nil when there is nothing to wait for.
func (s *Store) open(ctx context.Context, cfg types.Config) (exec statement.Executor, ready <-chan struct{}, closer func() error, err error) {
	switch cfg.Backend {
	case types.BackendSQLite:
		dir := cfg.DataDir
		if dir == "" {
			dir = "."
		}
		e, err := sqlite.Open(dir)
		if err != nil {
			return nil, nil, nil, err
		}
		return e, nil, e.Close, nil

	case types.BackendPostgres:
		provider, err := s.provider(ctx, cfg, false)
		if err != nil {
			return nil, nil, nil, err
		}
		e := postgres.New(provider)
		return e, provider.Ready(), e.Close, nil

	case types.BackendRDSData:
		provider, err := s.provider(ctx, cfg, true)
		if err != nil {
			return nil, nil, nil, err
		}
		e, err := rdsdata.Load(ctx, cfg.Region, provider)
		if err != nil {
			return nil, nil, nil, err
		}
		return e, provider.Ready(), func() error { return nil }, nil
	}
	return nil, nil, nil, types.ErrBackendUnknown
}

// provider builds the credential provider. A configured static secret takes
// precedence over AWS Secrets Manager.
func (s *Store) provider(ctx context.Context, cfg types.Config, requireResource bool) (*connection.Provider, error) {
	store := s.secrets
	switch {
	case store != nil:
	case cfg.StaticSecret.ID != "":
		store = connection.NewStaticStore(cfg.StaticSecret, cfg.SecretTagKey, cfg.SecretTagValue)
	default:
		sm, err := connection.LoadSecretsManagerStore(ctx, cfg.Region)
		if err != nil {
			return nil, err
		}
		store = sm
	}
	return connection.NewProvider(store, connection.ProviderOptions{
		TagKey:          cfg.SecretTagKey,
		TagValue:        cfg.SecretTagValue,
		Database:        cfg.Database,
		RequireResource: requireResource,
		Logger:          s.logger.Named("connection"),
	}), nil
}

// Detach stops the expiry sweep, waits for it, and closes the backend.
// Idempotent: multiple calls succeed.
func (s *Store) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.attached {
		return nil
	}

	if s.stop != nil {
		s.stop()
		<-s.sweepEnd
		s.stop = nil
		s.sweepEnd = nil
	}

	var result error
	for _, c := range s.closers {
		if err := c(); err != nil {
			result = multierror.Append(result, err)
		}
	}

	s.attached = false
	s.exec = nil
	s.engine = nil
	s.closers = nil

	s.logger.Info("store detached", "backend", s.cfg.Backend)
	if result != nil {
		return fmt.Errorf("detach: %w", result)
	}
	return nil
}

// current returns the engine, or ErrStoreDetached.
func (s *Store) current() (*entity.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.attached {
		return nil, types.ErrStoreDetached
	}
	return s.engine, nil
}

// Config returns the effective configuration of the attached Store.
func (s *Store) Config() types.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// EnsureSchema creates the entity table, its indexes and its version trigger
// if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	eng, err := s.current()
	if err != nil {
		return err
	}
	return ensureSchema(ctx, eng.Executor())
}

func ensureSchema(ctx context.Context, exec statement.Executor) error {
	sa, ok := exec.(statement.SchemaApplier)
	if !ok {
		return fmt.Errorf("%w: backend cannot apply schema", types.ErrConfiguration)
	}
	if err := sa.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// PurgeExpired removes expired entities now and returns how many were
// removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	eng, err := s.current()
	if err != nil {
		return 0, err
	}
	return eng.PurgeExpired(ctx)
}

// Connectors returns the connector façade.
func (s *Store) Connectors() *Entities {
	return &Entities{store: s, entityType: types.EntityConnector, timeless: true}
}

// Integrations returns the integration façade.
func (s *Store) Integrations() *Entities {
	return &Entities{store: s, entityType: types.EntityIntegration, timeless: true}
}

// Operations returns the operation façade.
func (s *Store) Operations() *Entities {
	return &Entities{store: s, entityType: types.EntityOperation}
}

// Storage returns the storage item façade.
func (s *Store) Storage() *Entities {
	return &Entities{store: s, entityType: types.EntityStorage, recursive: true}
}

// Entities returns a façade for t with engine defaults. Connector,
// integration, operation and storage return their specialised façades.
func (s *Store) Entities(t types.EntityType) (*Entities, error) {
	switch t {
	case types.EntityConnector:
		return s.Connectors(), nil
	case types.EntityIntegration:
		return s.Integrations(), nil
	case types.EntityOperation:
		return s.Operations(), nil
	case types.EntityStorage:
		return s.Storage(), nil
	}
	if !t.Valid() {
		return nil, types.ErrInvalidEntityType
	}
	return &Entities{store: s, entityType: t, recursive: true}, nil
}
