// Package sqlstore runs eager-load batch queries against a database/sql
// connection and hydrates the rows into eager.Record values.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"eagerload/internal/eager"
	"eagerload/pkg/dbmanager"
	"eagerload/pkg/logger"
)

// SQLExecutor is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type SQLExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Hydrator turns one scanned row of table into an entity.
type Hydrator func(table string, row map[string]interface{}) eager.Entity

type Store struct {
	db      SQLExecutor
	dialect dbmanager.Dialect
	hydrate Hydrator
}

type Option func(*Store)

func WithHydrator(h Hydrator) Option {
	return func(s *Store) {
		if h != nil {
			s.hydrate = h
		}
	}
}

func New(db SQLExecutor, dialect dbmanager.Dialect, opts ...Option) *Store {
	if dialect == nil {
		dialect = dbmanager.MySQLDialect{}
	}
	s := &Store{
		db:      db,
		dialect: dialect,
		hydrate: func(_ string, row map[string]interface{}) eager.Entity { return eager.Record(row) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FromManager builds a Store over the named connection of m.
func FromManager(m *dbmanager.DBManager, name string, opts ...Option) (*Store, error) {
	db := m.GetConnection(name)
	if db == nil {
		return nil, fmt.Errorf("database connection '%s' not found", name)
	}
	return New(db, m.GetDialect(name), opts...), nil
}

func (s *Store) Dialect() dbmanager.Dialect { return s.dialect }

func (s *Store) QuoteIdentifier(name string) string {
	return s.dialect.QuoteIdentifier(name)
}

func (s *Store) Query(table string) eager.QueryBuilder {
	return &query{store: s, state: &QueryState{Table: table, Dialect: s.dialect}}
}

type query struct {
	store *Store
	state *QueryState
}

func (q *query) WhereIn(column string, values []interface{}) {
	q.state.Where = append(q.state.Where, WhereCond{Column: column, Op: "IN", Value: values})
}

func (q *query) Where(predicate string, args ...interface{}) {
	if strings.TrimSpace(predicate) == "" {
		return
	}
	q.state.Where = append(q.state.Where, WhereCond{Raw: predicate, Args: args})
}

func (q *query) WhereCond(column, op string, value interface{}) {
	q.state.Where = append(q.state.Where, WhereCond{Column: column, Op: op, Value: value})
}

func (q *query) Join(kind, table, left, op, right string) {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if kind == "" {
		kind = "INNER"
	}
	q.state.Joins = append(q.state.Joins, JoinDef{Type: kind, Table: table, On: []string{left, op, right}})
}

func (q *query) Columns(cols ...string) {
	q.state.Columns = append(q.state.Columns, cols...)
}

func (q *query) OrderBy(expr string) {
	if q.state.OrderBy != "" {
		q.state.OrderBy += ", " + expr
		return
	}
	q.state.OrderBy = expr
}

func (q *query) Limit(n int) {
	q.state.Limit = n
}

func (q *query) Fetch(ctx context.Context) ([]eager.Entity, error) {
	stmt, args := q.state.BuildSQL()
	logger.Log.Debug("sqlstore: query", "table", q.state.Table, "sql", stmt, "args", len(args))

	rows, err := q.store.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.state.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []eager.Entity
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}
		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}
		m := make(map[string]interface{}, len(cols))
		for i, colName := range cols {
			val := columns[i]
			if b, ok := val.([]byte); ok {
				m[colName] = string(b)
			} else {
				m[colName] = val
			}
		}
		results = append(results, q.store.hydrate(q.state.Table, m))
	}
	return results, rows.Err()
}
