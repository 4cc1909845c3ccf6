package postgres

// Schema lists the statements that create the entity table on PostgreSQL,
// one statement per entry so each can be sent through the Data API.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS entity (
    entity_type TEXT NOT NULL,
    account_id TEXT NOT NULL,
    subscription_id TEXT NOT NULL,
    entity_id TEXT COLLATE "C" NOT NULL,
    version BIGINT NOT NULL DEFAULT 1,
    data JSONB,
    tags JSONB NOT NULL DEFAULT '{}',
    expires TIMESTAMP,
    PRIMARY KEY (entity_type, account_id, subscription_id, entity_id)
)`,
	`CREATE INDEX IF NOT EXISTS idx_entity_expires ON entity (expires) WHERE expires IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_entity_tags ON entity USING GIN (tags jsonb_path_ops)`,
	`CREATE OR REPLACE FUNCTION entity_version_check() RETURNS trigger AS $$
BEGIN
    IF NEW.version <> OLD.version + 1 THEN
        RAISE EXCEPTION 'entity version conflict' USING ERRCODE = '40001';
    END IF;
    RETURN NEW;
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS trg_entity_version ON entity`,
	`CREATE TRIGGER trg_entity_version BEFORE UPDATE ON entity
    FOR EACH ROW EXECUTE FUNCTION entity_version_check()`,
}
