package entity

import (
	"context"

	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// UpdateTags replaces the tag map, leaving the payload alone. version follows
// the same rule as Update: zero writes unconditionally.
func (e *Engine) UpdateTags(ctx context.Context, txID string, key types.EntityKey, tags types.Tags, version int64, opts ...types.Option) (*types.TagsResult, error) {
	encoded, err := encodeTags(tags)
	if err != nil {
		return nil, err
	}
	set := e.exec.Dialect().JSON("tags")
	return e.mutateTags(ctx, txID, "update tags", key, version, set, statement.Params{
		"tags": statement.Text(encoded),
	}, opts)
}

// SetTag sets one tag without resending the whole map.
func (e *Engine) SetTag(ctx context.Context, txID string, key types.EntityKey, tagKey, tagValue string, version int64, opts ...types.Option) (*types.TagsResult, error) {
	if tagKey == "" {
		return nil, types.ErrInvalidTag
	}
	set := e.exec.Dialect().SetTag("tag_key", "tag_value")
	return e.mutateTags(ctx, txID, "set tag", key, version, set, statement.Params{
		"tag_key":   statement.Text(tagKey),
		"tag_value": statement.Text(tagValue),
	}, opts)
}

// DeleteTag removes one tag. Removing an absent tag still advances the
// version.
func (e *Engine) DeleteTag(ctx context.Context, txID string, key types.EntityKey, tagKey string, version int64, opts ...types.Option) (*types.TagsResult, error) {
	if tagKey == "" {
		return nil, types.ErrInvalidTag
	}
	set := e.exec.Dialect().DeleteTag("tag_key")
	return e.mutateTags(ctx, txID, "delete tag", key, version, set, statement.Params{
		"tag_key": statement.Text(tagKey),
	}, opts)
}

func (e *Engine) mutateTags(ctx context.Context, txID, op string, key types.EntityKey, version int64, tagsExpr string, params statement.Params, opts []types.Option) (*types.TagsResult, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if version < 0 {
		return nil, types.ErrInvalidVersion
	}
	r := e.resolve(key.EntityType, opts)
	d := e.exec.Dialect()

	b := newBuilder().write("UPDATE entity SET tags = ", tagsExpr, ", version = ", versionExpr("version"),
		" WHERE ", keyPredicate)
	for name, v := range params {
		b.bind(name, v)
	}
	b.bind("version", statement.NullableInteger(version))
	if r.FilterExpired {
		b.write(expiryFilter).bind("now", statement.Timestamp(e.clock()))
	}
	b.write(" RETURNING ", tagColumns(d))
	stmt := b.bindKey(key).statement()

	res, err := e.exec.Execute(ctx, stmt, txID)
	if err != nil {
		return nil, wrap(op, key, err)
	}
	if len(res.Rows) == 0 {
		return nil, notFound(op, key)
	}
	return decodeTagsResult(res.Rows[0])
}
