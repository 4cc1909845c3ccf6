package entities

import (
	"context"
	"time"

	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Entities is the façade for one entity type. The entity type of every key
// and entity passed in is replaced by the façade's.
type Entities struct {
	store      *Store
	entityType types.EntityType
	txID       string

	// timeless entities drop any expiry.
	timeless bool

	// recursive allows prefix deletes.
	recursive bool
}

// Type returns the façade's entity type.
func (f *Entities) Type() types.EntityType {
	return f.entityType
}

// TxID returns the bound transaction id, or "" when unbound.
func (f *Entities) TxID() string {
	return f.txID
}

// WithTransaction returns a copy of f whose operations run inside txID.
func (f *Entities) WithTransaction(txID string) *Entities {
	c := *f
	c.txID = txID
	return &c
}

// Get returns the entity at key.
func (f *Entities) Get(ctx context.Context, key types.EntityKey, opts ...types.Option) (*types.Entity, error) {
	eng, err := f.store.current()
	if err != nil {
		return nil, err
	}
	return eng.Get(ctx, f.txID, f.key(key), opts...)
}

// GetTags returns the tags and version of the entity at key.
func (f *Entities) GetTags(ctx context.Context, key types.EntityKey, opts ...types.Option) (*types.TagsResult, error) {
	eng, err := f.store.current()
	if err != nil {
		return nil, err
	}
	return eng.GetTags(ctx, f.txID, f.key(key), opts...)
}

// List returns one page of entities.
func (f *Entities) List(ctx context.Context, q types.ListQuery, opts ...types.Option) (*types.ListResult, error) {
	eng, err := f.store.current()
	if err != nil {
		return nil, err
	}
	return eng.List(ctx, f.txID, f.entityType, q, opts...)
}

// Create inserts ent, or replaces it when upserting.
func (f *Entities) Create(ctx context.Context, ent *types.Entity, opts ...types.Option) (*types.Entity, error) {
	eng, err := f.store.current()
	if err != nil {
		return nil, err
	}
	return eng.Create(ctx, f.txID, f.entity(ent), f.writeOpts(opts)...)
}

// Update replaces an existing entity.
func (f *Entities) Update(ctx context.Context, ent *types.Entity, opts ...types.Option) (*types.Entity, error) {
	eng, err := f.store.current()
	if err != nil {
		return nil, err
	}
	return eng.Update(ctx, f.txID, f.entity(ent), f.writeOpts(opts)...)
}

// Delete removes the entity at key and reports whether it existed.
func (f *Entities) Delete(ctx context.Context, key types.EntityKey, opts ...types.Option) (bool, error) {
	eng, err := f.store.current()
	if err != nil {
		return false, err
	}
	if !f.recursive {
		opts = append(opts[:len(opts):len(opts)], exactID)
	}
	return eng.Delete(ctx, f.txID, f.key(key), opts...)
}

// UpdateTags replaces the tags of the entity at key.
func (f *Entities) UpdateTags(ctx context.Context, key types.EntityKey, tags types.Tags, version int64, opts ...types.Option) (*types.TagsResult, error) {
	eng, err := f.store.current()
	if err != nil {
		return nil, err
	}
	return eng.UpdateTags(ctx, f.txID, f.key(key), tags, version, opts...)
}

// SetTag sets one tag of the entity at key.
func (f *Entities) SetTag(ctx context.Context, key types.EntityKey, tagKey, tagValue string, version int64, opts ...types.Option) (*types.TagsResult, error) {
	eng, err := f.store.current()
	if err != nil {
		return nil, err
	}
	return eng.SetTag(ctx, f.txID, f.key(key), tagKey, tagValue, version, opts...)
}

// DeleteTag removes one tag of the entity at key.
func (f *Entities) DeleteTag(ctx context.Context, key types.EntityKey, tagKey string, version int64, opts ...types.Option) (*types.TagsResult, error) {
	eng, err := f.store.current()
	if err != nil {
		return nil, err
	}
	return eng.DeleteTag(ctx, f.txID, f.key(key), tagKey, version, opts...)
}

func (f *Entities) key(k types.EntityKey) types.EntityKey {
	k.EntityType = f.entityType
	return k
}

// entity returns a copy of ent stamped with the façade's type.
func (f *Entities) entity(ent *types.Entity) *types.Entity {
	if ent == nil {
		ent = &types.Entity{}
	}
	c := *ent
	c.EntityType = f.entityType
	if f.timeless {
		c.Expires = nil
	}
	return &c
}

func (f *Entities) writeOpts(opts []types.Option) []types.Option {
	if f.timeless {
		return append(opts[:len(opts):len(opts)], noExpiry)
	}
	return opts
}

func exactID(o *types.Options) {
	o.PrefixMatchID = types.Some(false)
}

func noExpiry(o *types.Options) {
	o.ExpiresDuration = types.Some[time.Duration](0)
}
