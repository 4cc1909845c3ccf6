package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Create inserts ent with version 1.
//
// With upsert (the default) an existing entity is replaced and its version
// becomes the caller's expected version, or the stored one, plus one; a
// stale expected version is a conflict. Without upsert an existing entity is
// a conflict, except that an expired one is reclaimed when expiry filtering
// is on.
func (e *Engine) Create(ctx context.Context, txID string, ent *types.Entity, opts ...types.Option) (*types.Entity, error) {
	r := e.resolve(ent.EntityType, opts)
	now := e.clock()
	b, err := e.writeParams(ent, r, now)
	if err != nil {
		return nil, err
	}
	d := e.exec.Dialect()

	b.write("INSERT INTO entity (entity_type, account_id, subscription_id, entity_id, version, data, tags, expires) ",
		"VALUES (:entity_type, :account_id, :subscription_id, :entity_id, 1, ",
		d.JSON("data"), ", ", d.JSON("tags"), ", :expires) ",
		"ON CONFLICT ", conflictTarget, " ")

	switch {
	case r.Upsert:
		b.write("DO UPDATE SET data = excluded.data, tags = excluded.tags, expires = excluded.expires, ",
			"version = ", versionExpr("entity.version"), " ")
	case r.FilterExpired:
		b.write("DO UPDATE SET data = excluded.data, tags = excluded.tags, expires = excluded.expires, ",
			"version = entity.version + 1 ",
			"WHERE entity.expires IS NOT NULL AND entity.expires <= :now ").
			bind("now", statement.Timestamp(now))
	default:
		b.write("DO NOTHING ")
	}
	b.write("RETURNING ", columns(d))

	res, err := e.exec.Execute(ctx, b.statement(), txID)
	if err != nil {
		return nil, wrap("create", ent.EntityKey, err)
	}
	if len(res.Rows) == 0 {
		return nil, wrap("create", ent.EntityKey, &types.ConflictError{Key: ent.EntityKey})
	}
	return decodeEntity(res.Rows[0])
}

// Update replaces the data, tags and expiry of an existing entity. When
// ent.Version is set it must equal the stored version; when it is zero the
// write is unconditional. Either way the stored version advances by one.
func (e *Engine) Update(ctx context.Context, txID string, ent *types.Entity, opts ...types.Option) (*types.Entity, error) {
	r := e.resolve(ent.EntityType, opts)
	now := e.clock()
	b, err := e.writeParams(ent, r, now)
	if err != nil {
		return nil, err
	}
	d := e.exec.Dialect()

	b.write("UPDATE entity SET data = ", d.JSON("data"), ", tags = ", d.JSON("tags"), ", expires = :expires, ",
		"version = ", versionExpr("version"), " WHERE ", keyPredicate)
	if r.FilterExpired {
		b.write(expiryFilter).bind("now", statement.Timestamp(now))
	}
	b.write(" RETURNING ", columns(d))

	res, err := e.exec.Execute(ctx, b.statement(), txID)
	if err != nil {
		return nil, wrap("update", ent.EntityKey, err)
	}
	if len(res.Rows) == 0 {
		return nil, notFound("update", ent.EntityKey)
	}
	return decodeEntity(res.Rows[0])
}

// writeParams validates ent and binds its key, payload, tags, expected
// version and expiry. An entity without an expiry gets now plus the resolved
// time-to-live, if one is configured.
func (e *Engine) writeParams(ent *types.Entity, r types.Resolved, now time.Time) (*builder, error) {
	if err := ent.Validate(); err != nil {
		return nil, err
	}
	if ent.Version < 0 {
		return nil, types.ErrInvalidVersion
	}
	data, err := dataValue(ent.Data)
	if err != nil {
		return nil, err
	}
	tags, err := encodeTags(ent.Tags)
	if err != nil {
		return nil, err
	}
	expires := ent.Expires
	if expires == nil && r.ExpiresDuration > 0 {
		t := now.Add(r.ExpiresDuration)
		expires = &t
	}

	b := newBuilder().bindKey(ent.EntityKey)
	b.bind("data", data).
		bind("tags", statement.Text(tags)).
		bind("version", statement.NullableInteger(ent.Version)).
		bind("expires", statement.NullableTimestamp(expires))
	return b, nil
}

// Delete removes the entity with key's id or, with prefix matching, every
// entity whose id starts with it. It reports whether anything was removed.
// With expiry filtering only unexpired entities are removed.
func (e *Engine) Delete(ctx context.Context, txID string, key types.EntityKey, opts ...types.Option) (bool, error) {
	if err := key.Validate(); err != nil {
		return false, err
	}
	r := e.resolve(key.EntityType, opts)
	d := e.exec.Dialect()

	b := newBuilder().write("DELETE FROM entity WHERE ", scopePredicate, " AND ")
	if r.PrefixMatchID {
		b.write(d.HasPrefix("entity_id", "entity_id"))
	} else {
		b.write("entity_id = :entity_id")
	}
	if r.FilterExpired {
		b.write(expiryFilter).bind("now", statement.Timestamp(e.clock()))
	}
	stmt := b.bindKey(key).statement()

	res, err := e.exec.Execute(ctx, stmt, txID)
	if err != nil {
		return false, wrap("delete", key, err)
	}
	return res.RowsAffected > 0, nil
}

// PurgeExpired physically removes every entity whose expiry has passed and
// returns how many were removed.
func (e *Engine) PurgeExpired(ctx context.Context) (int64, error) {
	stmt := statement.New("DELETE FROM entity WHERE expires IS NOT NULL AND expires < :now").
		With("now", statement.Timestamp(e.clock()))
	res, err := e.exec.Execute(ctx, stmt, "")
	if err != nil {
		return 0, fmt.Errorf("purge expired entities: %w", err)
	}
	return res.RowsAffected, nil
}
