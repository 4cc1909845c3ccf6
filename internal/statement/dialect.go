package statement

// Dialect renders the SQL fragments that differ between backends. Arguments
// are parameter names without the leading colon, or column names.
type Dialect interface {
	Name() string

	// JSON converts a text parameter holding JSON into the column type.
	JSON(param string) string

	// SelectJSON renders a JSON column as text in a select list.
	SelectJSON(col string) string

	// TagsContain is true when the tags column holds every pair of the JSON
	// object parameter.
	TagsContain(param string) string

	// SetTag is the tags column with one key set.
	SetTag(keyParam, valueParam string) string

	// DeleteTag is the tags column with one key removed.
	DeleteTag(keyParam string) string

	// HasPrefix is true when col starts with the parameter, byte for byte.
	HasPrefix(col, param string) string
}

// Postgres is the dialect for PostgreSQL, used both over pgx and the RDS Data
// API.
var Postgres Dialect = postgresDialect{}

// SQLite is the dialect for SQLite with the JSON1 functions.
var SQLite Dialect = sqliteDialect{}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) JSON(param string) string {
	return "CAST(:" + param + " AS jsonb)"
}

func (postgresDialect) SelectJSON(col string) string {
	return "CAST(" + col + " AS text) AS " + col
}

func (postgresDialect) TagsContain(param string) string {
	return "tags @> CAST(:" + param + " AS jsonb)"
}

func (postgresDialect) SetTag(keyParam, valueParam string) string {
	return "tags || jsonb_build_object(CAST(:" + keyParam + " AS text), CAST(:" + valueParam + " AS text))"
}

func (postgresDialect) DeleteTag(keyParam string) string {
	return "tags - CAST(:" + keyParam + " AS text)"
}

func (postgresDialect) HasPrefix(col, param string) string {
	return "starts_with(" + col + ", :" + param + ")"
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) JSON(param string) string {
	return "json(:" + param + ")"
}

func (sqliteDialect) SelectJSON(col string) string {
	return col
}

func (sqliteDialect) TagsContain(param string) string {
	return "NOT EXISTS (SELECT 1 FROM json_each(:" + param + ") f WHERE NOT EXISTS " +
		"(SELECT 1 FROM json_each(entity.tags) t WHERE t.key = f.key AND t.value = f.value))"
}

func (sqliteDialect) SetTag(keyParam, valueParam string) string {
	return "json_patch(tags, json_object(:" + keyParam + ", :" + valueParam + "))"
}

func (sqliteDialect) DeleteTag(keyParam string) string {
	return "(SELECT coalesce(json_group_object(t.key, t.value), '{}') FROM json_each(entity.tags) t WHERE t.key <> :" + keyParam + ")"
}

// substr keeps the comparison case-sensitive, unlike LIKE.
func (sqliteDialect) HasPrefix(col, param string) string {
	return "substr(" + col + ", 1, length(:" + param + ")) = :" + param
}
