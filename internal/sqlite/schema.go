package sqlite

// Schema DDL for the entity table.
const (
	createEntity = `CREATE TABLE IF NOT EXISTS entity (
    entity_type TEXT NOT NULL,
    account_id TEXT NOT NULL,
    subscription_id TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    data TEXT,
    tags TEXT NOT NULL DEFAULT '{}',
    expires TEXT,
    PRIMARY KEY (entity_type, account_id, subscription_id, entity_id)
)`

	// expires holds fixed-width UTC text so that comparisons are
	// chronological.
	idxEntityExpires = `CREATE INDEX IF NOT EXISTS idx_entity_expires ON entity(expires) WHERE expires IS NOT NULL`

	triggerEntityVersion = `CREATE TRIGGER IF NOT EXISTS trg_entity_version
BEFORE UPDATE ON entity
FOR EACH ROW WHEN NEW.version <> OLD.version + 1
BEGIN
    SELECT RAISE(ABORT, 'entity version conflict');
END`
)

// schemaDDL lists the schema statements in the order they must run.
var schemaDDL = []string{
	createEntity,
	idxEntityExpires,
	triggerEntityVersion,
}
