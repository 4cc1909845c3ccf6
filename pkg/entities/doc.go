// Package entities is the public entry point of the entity store.
//
// A Store is attached to one backend (the RDS Data API, Postgres over pgx, or
// a local SQLite file) and hands out entity-type façades. Each façade fixes
// its entity type and the defaults that go with it:
//
//   - Connectors and Integrations never expire; any caller-supplied expiry is
//     dropped and deletes always match the exact id.
//   - Operations expire after the configured operation TTL unless the caller
//     sets an explicit expiry.
//   - Storage items upsert by default and may be deleted by id prefix.
//
// Façades are cheap values. WithTransaction returns a copy whose operations
// run inside the given transaction.
package entities
