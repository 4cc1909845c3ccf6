package types

import "time"

// Opt is an optional value. The zero Opt is unset.
type Opt[T any] struct {
	value T
	set   bool
}

// Some returns an Opt holding v.
func Some[T any](v T) Opt[T] {
	return Opt[T]{value: v, set: true}
}

// None returns an unset Opt.
func None[T any]() Opt[T] {
	return Opt[T]{}
}

// IsSet reports whether the Opt holds a value.
func (o Opt[T]) IsSet() bool {
	return o.set
}

// Get returns the value and whether it is set.
func (o Opt[T]) Get() (T, bool) {
	return o.value, o.set
}

// Or returns the value if set, otherwise def.
func (o Opt[T]) Or(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// Coalesce returns the first set layer, or an unset Opt if none is set.
// Layers are ordered most specific first.
func Coalesce[T any](layers ...Opt[T]) Opt[T] {
	for _, l := range layers {
		if l.set {
			return l
		}
	}
	return Opt[T]{}
}

// Engine-wide defaults.
const (
	DefaultFilterExpired = true
	DefaultPrefixMatchID = false
	DefaultUpsert        = true
	DefaultListLimit     = 100
)

// Options holds one layer of defaultable knobs. The engine resolves a call
// layer over an entity-type layer over the engine layer.
type Options struct {
	// FilterExpired hides entities whose expiry has passed.
	FilterExpired Opt[bool]

	// PrefixMatchID treats the entity id of a delete as a prefix.
	PrefixMatchID Opt[bool]

	// Upsert makes create replace an existing entity instead of failing.
	Upsert Opt[bool]

	// ListLimit is the page size ceiling.
	ListLimit Opt[int]

	// ExpiresDuration is the time-to-live applied to created or updated
	// entities that carry no explicit expiry.
	ExpiresDuration Opt[time.Duration]
}

// Option sets one knob on a call layer.
type Option func(*Options)

// WithFilterExpired enables or disables expiry filtering for one call.
func WithFilterExpired(filter bool) Option {
	return func(o *Options) {
		o.FilterExpired = Some(filter)
	}
}

// Recursive makes a delete remove every entity whose id starts with the
// given id.
func Recursive() Option {
	return func(o *Options) {
		o.PrefixMatchID = Some(true)
	}
}

// WithUpsert selects insert-or-replace (true) or insert-only (false).
func WithUpsert(upsert bool) Option {
	return func(o *Options) {
		o.Upsert = Some(upsert)
	}
}

// WithListLimit lowers the page size ceiling for one call.
func WithListLimit(limit int) Option {
	return func(o *Options) {
		o.ListLimit = Some(limit)
	}
}

// WithExpiresIn sets the time-to-live applied when an entity has no expiry.
func WithExpiresIn(d time.Duration) Option {
	return func(o *Options) {
		o.ExpiresDuration = Some(d)
	}
}

// Apply builds a call layer from opts.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Resolved is the effective configuration of one call.
type Resolved struct {
	FilterExpired   bool
	PrefixMatchID   bool
	Upsert          bool
	ListLimit       int
	ExpiresDuration time.Duration
}

// Resolve merges call over entityType over engine, most specific first.
// The list limit ceiling comes from entityType or engine; the call layer may
// only lower it.
func Resolve(call, entityType, engine Options) Resolved {
	r := Resolved{
		FilterExpired:   Coalesce(call.FilterExpired, entityType.FilterExpired, engine.FilterExpired).Or(DefaultFilterExpired),
		PrefixMatchID:   Coalesce(call.PrefixMatchID, entityType.PrefixMatchID, engine.PrefixMatchID).Or(DefaultPrefixMatchID),
		Upsert:          Coalesce(call.Upsert, entityType.Upsert, engine.Upsert).Or(DefaultUpsert),
		ListLimit:       Coalesce(entityType.ListLimit, engine.ListLimit).Or(DefaultListLimit),
		ExpiresDuration: Coalesce(call.ExpiresDuration, entityType.ExpiresDuration, engine.ExpiresDuration).Or(0),
	}
	if r.ListLimit <= 0 {
		r.ListLimit = DefaultListLimit
	}
	if limit, ok := call.ListLimit.Get(); ok && limit > 0 && limit < r.ListLimit {
		r.ListLimit = limit
	}
	return r
}

// ClampLimit returns requested bounded by the resolved ceiling. A requested
// value of zero or less yields the ceiling.
func (r Resolved) ClampLimit(requested int) int {
	if requested <= 0 || requested > r.ListLimit {
		return r.ListLimit
	}
	return requested
}
