package eager

import "context"

// QueryBuilder is one batch query against a single table. Every Where*
// call adds a condition that is ANDed with the ones already present.
type QueryBuilder interface {
	WhereIn(column string, values []any)
	Where(predicate string, args ...any)
	WhereCond(column, op string, value any)
	Join(kind, table, left, op, right string)
	// Columns receives names that are already quoted or are expressions.
	Columns(cols ...string)
	OrderBy(expr string)
	Limit(n int)
	Fetch(ctx context.Context) ([]Entity, error)
}

// Executor creates queries and knows how identifiers are quoted.
type Executor interface {
	Query(table string) QueryBuilder
	QuoteIdentifier(name string) string
}
