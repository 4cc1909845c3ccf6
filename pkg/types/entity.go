package types

import (
	"encoding/json"
	"time"
)

// EntityType is the closed set of entity kinds persisted by the store.
type EntityType string

// Entity type constants.
const (
	EntityConnector   EntityType = "connector"
	EntityIntegration EntityType = "integration"
	EntityOperation   EntityType = "operation"
	EntityStorage     EntityType = "storage"
	EntityIdentity    EntityType = "identity"
	EntityInstall     EntityType = "install"
	EntitySession     EntityType = "session"
)

// knownEntityTypes lists the entity types that Valid accepts.
var knownEntityTypes = map[EntityType]bool{
	EntityConnector:   true,
	EntityIntegration: true,
	EntityOperation:   true,
	EntityStorage:     true,
	EntityIdentity:    true,
	EntityInstall:     true,
	EntitySession:     true,
}

// Valid reports whether t is one of the known entity types.
func (t EntityType) Valid() bool {
	return knownEntityTypes[t]
}

// ParseEntityType converts s to an EntityType.
// Returns ErrInvalidEntityType if s is not a known type.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", ErrInvalidEntityType
	}
	return t, nil
}

// EntityKey is the composite primary key of an entity. It is immutable once
// the entity is created.
type EntityKey struct {
	AccountID      string     `json:"accountId"`
	SubscriptionID string     `json:"subscriptionId"`
	EntityType     EntityType `json:"entityType,omitempty"`
	EntityID       string     `json:"id"`
}

// Validate checks that every key component is present and the entity type is
// known.
func (k EntityKey) Validate() error {
	if !k.EntityType.Valid() {
		return ErrInvalidEntityType
	}
	if k.AccountID == "" || k.SubscriptionID == "" || k.EntityID == "" {
		return ErrInvalidKey
	}
	return nil
}

// Tags is the string metadata attached to an entity. A nil map is equivalent
// to an empty one.
type Tags map[string]string

// Clone returns a copy of t. The copy of a nil map is an empty map.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Contains reports whether every key/value pair in filter is present in t.
func (t Tags) Contains(filter Tags) bool {
	for k, v := range filter {
		got, ok := t[k]
		if !ok || got != v {
			return false
		}
	}
	return true
}

// Entity is a persisted record.
type Entity struct {
	EntityKey

	// Data is the caller-defined JSON payload.
	Data json.RawMessage `json:"data,omitempty"`

	Tags Tags `json:"tags"`

	// Version is the optimistic concurrency token. Zero means absent: on
	// input it requests an unconditional write, on output it never occurs.
	Version int64 `json:"version,omitempty"`

	// Expires is nil for entities that never expire.
	Expires *time.Time `json:"expires,omitempty"`
}

// Expired reports whether the entity has an expiry at or before now.
func (e *Entity) Expired(now time.Time) bool {
	return e.Expires != nil && !e.Expires.After(now)
}

// TagsResult is the tag map and version of an entity, returned by the
// tag-only operations.
type TagsResult struct {
	Tags    Tags  `json:"tags"`
	Version int64 `json:"version"`
}

// ListQuery selects a page of entities within one account and subscription.
type ListQuery struct {
	AccountID      string
	SubscriptionID string

	// IDPrefix restricts results to entity ids starting with it.
	IDPrefix string

	// Tags restricts results to entities whose tags contain every pair.
	Tags Tags

	// Next is the opaque cursor returned by the previous page.
	Next string

	// Limit is the requested page size. Zero or negative means the maximum.
	Limit int
}

// ListResult is one page of a listing. Next is empty on the last page.
type ListResult struct {
	Items []*Entity `json:"items"`
	Next  string    `json:"next,omitempty"`
}
