// Package types defines the entity data model, the layered option types,
// configuration, and the standard errors of the entity store.
//
// Every tenant-owned object is an Entity addressed by an EntityKey
// (account, subscription, entity type, entity id). Entities carry an opaque
// JSON payload, a string tag map, a version used for optimistic concurrency,
// and an optional expiry.
package types
