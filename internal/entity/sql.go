package entity

import (
	"strings"

	"github.com/fivequarters/q5-sub008/internal/statement"
	"github.com/fivequarters/q5-sub008/pkg/types"
)

const (
	scopePredicate = "entity_type = :entity_type AND account_id = :account_id AND subscription_id = :subscription_id"
	keyPredicate   = scopePredicate + " AND entity_id = :entity_id"
	expiryFilter   = " AND (expires IS NULL OR expires > :now)"
	conflictTarget = "(entity_type, account_id, subscription_id, entity_id)"
)

// columns is the select list that decodes into an Entity.
func columns(d statement.Dialect) string {
	return "entity_type, account_id, subscription_id, entity_id, version, " +
		d.SelectJSON("data") + ", " + d.SelectJSON("tags") + ", expires"
}

// tagColumns is the select list that decodes into a TagsResult.
func tagColumns(d statement.Dialect) string {
	return d.SelectJSON("tags") + ", version"
}

// versionExpr is the next version: the caller's expected version, or the
// stored one when absent, plus one. The table trigger rejects any result that
// is not stored + 1.
func versionExpr(stored string) string {
	return "coalesce(CAST(:version AS BIGINT), " + stored + ") + 1"
}

// builder accumulates a statement's SQL and parameters.
type builder struct {
	sb     strings.Builder
	params statement.Params
}

func newBuilder() *builder {
	return &builder{params: statement.Params{}}
}

func (b *builder) write(parts ...string) *builder {
	for _, p := range parts {
		b.sb.WriteString(p)
	}
	return b
}

func (b *builder) bind(name string, v statement.Value) *builder {
	b.params[name] = v
	return b
}

// bindKey binds the four key columns.
func (b *builder) bindKey(key types.EntityKey) *builder {
	return b.
		bind("entity_type", statement.Text(string(key.EntityType))).
		bind("account_id", statement.Text(key.AccountID)).
		bind("subscription_id", statement.Text(key.SubscriptionID)).
		bind("entity_id", statement.Text(key.EntityID))
}

func (b *builder) statement() statement.Statement {
	return statement.Statement{SQL: b.sb.String(), Params: b.params}
}
