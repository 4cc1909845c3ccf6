package entity

import (
	"context"
	"fmt"

	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// Get reads one entity by exact key. An expired entity is reported as
// ErrNotFound unless expiry filtering is disabled for the call.
func (e *Engine) Get(ctx context.Context, txID string, key types.EntityKey, opts ...types.Option) (*types.Entity, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	r := e.resolve(key.EntityType, opts)
	d := e.exec.Dialect()

	b := newBuilder().write("SELECT ", columns(d), " FROM entity WHERE ", keyPredicate)
	if r.FilterExpired {
		b.write(expiryFilter).bind("now", statement.Timestamp(e.clock()))
	}
	stmt := b.bindKey(key).statement()

	res, err := e.exec.Execute(ctx, stmt, txID)
	if err != nil {
		return nil, wrap("get", key, err)
	}
	if len(res.Rows) == 0 {
		return nil, notFound("get", key)
	}
	return decodeEntity(res.Rows[0])
}

// GetTags reads only the tags and version of one entity.
func (e *Engine) GetTags(ctx context.Context, txID string, key types.EntityKey, opts ...types.Option) (*types.TagsResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	r := e.resolve(key.EntityType, opts)
	d := e.exec.Dialect()

	b := newBuilder().write("SELECT ", tagColumns(d), " FROM entity WHERE ", keyPredicate)
	if r.FilterExpired {
		b.write(expiryFilter).bind("now", statement.Timestamp(e.clock()))
	}
	stmt := b.bindKey(key).statement()

	res, err := e.exec.Execute(ctx, stmt, txID)
	if err != nil {
		return nil, wrap("get tags", key, err)
	}
	if len(res.Rows) == 0 {
		return nil, notFound("get tags", key)
	}
	return decodeTagsResult(res.Rows[0])
}

// List returns one page of entities of type t within the query's account and
// subscription, ordered by entity id. The query fetches one row more than
// the page size to learn whether another page exists.
func (e *Engine) List(ctx context.Context, txID string, t types.EntityType, q types.ListQuery, opts ...types.Option) (*types.ListResult, error) {
	if !t.Valid() {
		return nil, types.ErrInvalidEntityType
	}
	if q.AccountID == "" || q.SubscriptionID == "" {
		return nil, types.ErrInvalidKey
	}
	offset, err := DecodeCursor(q.Next)
	if err != nil {
		return nil, err
	}
	r := e.resolve(t, opts)
	limit := r.ClampLimit(q.Limit)
	d := e.exec.Dialect()

	b := newBuilder().
		write("SELECT ", columns(d), " FROM entity WHERE ", scopePredicate).
		bind("entity_type", statement.Text(string(t))).
		bind("account_id", statement.Text(q.AccountID)).
		bind("subscription_id", statement.Text(q.SubscriptionID))
	if q.IDPrefix != "" {
		b.write(" AND ", d.HasPrefix("entity_id", "id_prefix")).
			bind("id_prefix", statement.Text(q.IDPrefix))
	}
	if len(q.Tags) > 0 {
		filter, err := encodeTags(q.Tags)
		if err != nil {
			return nil, err
		}
		b.write(" AND ", d.TagsContain("tag_filter")).bind("tag_filter", statement.Text(filter))
	}
	if r.FilterExpired {
		b.write(expiryFilter).bind("now", statement.Timestamp(e.clock()))
	}
	b.write(" ORDER BY entity_id LIMIT :limit OFFSET :offset").
		bind("limit", statement.Integer(int64(limit)+1)).
		bind("offset", statement.Integer(offset))

	res, err := e.exec.Execute(ctx, b.statement(), txID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t, err)
	}

	rows := res.Rows
	out := &types.ListResult{Items: make([]*types.Entity, 0, len(rows))}
	if len(rows) > limit {
		rows = rows[:limit]
		out.Next = EncodeCursor(offset + int64(limit))
	}
	for _, row := range rows {
		ent, err := decodeEntity(row)
		if err != nil {
			return nil, err
		}
		out.Items = append(out.Items, ent)
	}
	return out, nil
}
