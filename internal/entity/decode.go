package entity

import (
	"encoding/json"
	"fmt"

	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

// decodeEntity converts a row selected with columns into an Entity.
func decodeEntity(row statement.Row) (*types.Entity, error) {
	version, err := row.Integer("version")
	if err != nil {
		return nil, types.DatabaseError(err)
	}
	tags, err := decodeTags(row["tags"])
	if err != nil {
		return nil, err
	}
	expires, err := row.Time("expires")
	if err != nil {
		return nil, types.DatabaseError(err)
	}

	e := &types.Entity{
		EntityKey: types.EntityKey{
			AccountID:      row.Text("account_id"),
			SubscriptionID: row.Text("subscription_id"),
			EntityType:     types.EntityType(row.Text("entity_type")),
			EntityID:       row.Text("entity_id"),
		},
		Tags:    tags,
		Version: version,
		Expires: expires,
	}
	if data := row["data"]; !data.IsNull() {
		e.Data = json.RawMessage(data.AsBytes())
	}
	return e, nil
}

// decodeTagsResult converts a row selected with tagColumns.
func decodeTagsResult(row statement.Row) (*types.TagsResult, error) {
	version, err := row.Integer("version")
	if err != nil {
		return nil, types.DatabaseError(err)
	}
	tags, err := decodeTags(row["tags"])
	if err != nil {
		return nil, err
	}
	return &types.TagsResult{Tags: tags, Version: version}, nil
}

// decodeTags reads a JSON object of strings. Null reads as an empty map.
func decodeTags(v statement.Value) (types.Tags, error) {
	tags := types.Tags{}
	if v.IsNull() {
		return tags, nil
	}
	raw := v.AsBytes()
	if len(raw) == 0 {
		return tags, nil
	}
	if err := json.Unmarshal(raw, &tags); err != nil {
		return nil, types.DatabaseError(fmt.Errorf("decode tags: %w", err))
	}
	if tags == nil {
		tags = types.Tags{}
	}
	return tags, nil
}

// encodeTags renders tags as a JSON object. Nil encodes as {}.
func encodeTags(tags types.Tags) (string, error) {
	for k := range tags {
		if k == "" {
			return "", fmt.Errorf("%w: empty key", types.ErrInvalidTag)
		}
	}
	b, err := json.Marshal(tags.Clone())
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// dataValue validates the payload and binds it as text. An empty payload is
// stored as NULL.
func dataValue(data json.RawMessage) (statement.Value, error) {
	if len(data) == 0 {
		return statement.Null(), nil
	}
	if !json.Valid(data) {
		return statement.Value{}, types.ErrInvalidData
	}
	return statement.Text(string(data)), nil
}
