// Package entity implements the generic entity engine: get, list, create,
// update and delete plus independent tag mutation over the single entity
// table. All concurrency control is optimistic; the version column is
// checked by the database in the same statement that writes it.
package entity

import (
	"errors"
	"fmt"
	"time"

	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Engine issues entity statements through an Executor. It holds no
// per-request state and is safe for concurrent use.
type Engine struct {
	exec         statement.Executor
	defaults     types.Options
	typeDefaults map[types.EntityType]types.Options
	now          func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithDefaults sets the engine-wide option layer.
func WithDefaults(o types.Options) Option {
	return func(e *Engine) {
		e.defaults = o
	}
}

// WithTypeDefaults sets the option layer for one entity type.
func WithTypeDefaults(t types.EntityType, o types.Options) Option {
	return func(e *Engine) {
		e.typeDefaults[t] = o
	}
}

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New returns an Engine over exec.
func New(exec statement.Executor, opts ...Option) *Engine {
	e := &Engine{
		exec:         exec,
		typeDefaults: make(map[types.EntityType]types.Options),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Executor returns the executor the engine writes through.
func (e *Engine) Executor() statement.Executor {
	return e.exec
}

// resolve merges call options over the entity type and engine layers.
func (e *Engine) resolve(t types.EntityType, opts []types.Option) types.Resolved {
	return types.Resolve(types.Apply(opts...), e.typeDefaults[t], e.defaults)
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// wrap adds the operation name and attaches key to conflicts.
func wrap(op string, key types.EntityKey, err error) error {
	var ce *types.ConflictError
	if errors.As(err, &ce) && ce.Key == (types.EntityKey{}) {
		ce.Key = key
	}
	return fmt.Errorf("%s %s %s: %w", op, key.EntityType, key.EntityID, err)
}

func notFound(op string, key types.EntityKey) error {
	return fmt.Errorf("%s %s %s: %w", op, key.EntityType, key.EntityID, types.ErrNotFound)
}
