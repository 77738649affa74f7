package eager

import (
	"context"
	"strings"

	"eagerload/pkg/dbmanager"
)

// Query is what a Constraint receives. It wraps the batch query of one
// node and remembers which alias is being loaded, so With declared here
// becomes a deferred child of that node.
type Query struct {
	ctx     context.Context
	builder QueryBuilder
	quote   func(string) string
	loader  *Loader
	node    *Node
	alias   string
}

func newQuery(ctx context.Context, b QueryBuilder, exec Executor, l *Loader, n *Node) *Query {
	q := &Query{ctx: ctx, builder: b, quote: exec.QuoteIdentifier, loader: l, node: n}
	if n != nil {
		q.alias = n.alias
	}
	return q
}

// Alias is the full dotted path of the relation this query loads.
func (q *Query) Alias() string { return q.alias }

// Builder exposes the underlying store query.
func (q *Query) Builder() QueryBuilder { return q.builder }

// Where adds a raw predicate with ? placeholders. It is ANDed with the
// key filter and with earlier conditions.
func (q *Query) Where(predicate string, args ...any) *Query {
	q.builder.Where(predicate, args...)
	return q
}

// AndWhere is Where.
func (q *Query) AndWhere(predicate string, args ...any) *Query {
	return q.Where(predicate, args...)
}

func (q *Query) WhereCond(column, op string, value any) *Query {
	q.builder.WhereCond(column, op, value)
	return q
}

func (q *Query) WhereIn(column string, values []any) *Query {
	q.builder.WhereIn(column, values)
	return q
}

// Columns restricts the selected columns. Plain names are quoted; quoted
// names, "*" and expressions pass through untouched.
func (q *Query) Columns(cols ...string) *Query {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		out = append(out, quoteColumn(q.quote, c))
	}
	q.builder.Columns(out...)
	return q
}

func (q *Query) OrderBy(expr string) *Query {
	q.builder.OrderBy(expr)
	return q
}

// Limit caps the whole batch, not each owner.
func (q *Query) Limit(n int) *Query {
	q.builder.Limit(n)
	return q
}

func (q *Query) Join(kind, table, left, op, right string) *Query {
	q.builder.Join(kind, table, left, op, right)
	return q
}

// With declares relations nested under the alias being loaded. They run
// once this level has been fetched and associated.
func (q *Query) With(specs ...any) error {
	if q.node == nil || q.loader == nil {
		return invalidArgument("with() is only available inside a relation constraint")
	}
	rels, err := ParseRelations(specs...)
	if err != nil {
		return err
	}

	prefixed := make(Relations, len(rels))
	for path, c := range rels {
		prefixed[q.alias+"."+path] = c
	}

	nodes, err := q.loader.Build(prefixed, true, strings.Count(q.alias, ".")+1)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		parent := q.alias
		if i := strings.LastIndexByte(n.alias, '.'); i > 0 {
			parent = n.alias[:i]
		}
		// deeper nodes wait on the intermediate node created in the same build
		p := q.node
		if parent != q.alias {
			p = q.loader.Node(parent)
		}
		if p == nil {
			continue
		}
		if p.State() != StateCreated {
			// parent already ran, nothing will drain its queue
			if err := n.Load(q.ctx); err != nil {
				return err
			}
			continue
		}
		p.DelayLoad(n, parent)
	}
	return nil
}

func quoteColumn(quote func(string) string, col string) string {
	if col == "*" || dbmanager.IsQuoted(col) || isExpression(col) {
		return col
	}
	if !strings.Contains(col, ".") {
		return quote(col)
	}
	parts := strings.Split(col, ".")
	for i, p := range parts {
		if p == "*" || dbmanager.IsQuoted(p) {
			continue
		}
		parts[i] = quote(p)
	}
	return strings.Join(parts, ".")
}

func isExpression(col string) bool {
	if strings.ContainsAny(col, " \t()+-/,'<>=|") {
		return true
	}
	return strings.Contains(col, "*") && col != "*" && !strings.HasSuffix(col, ".*")
}
