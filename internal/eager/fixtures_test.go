package eager_test

import (
	"context"
	"strings"

	"eagerload/internal/eager"
	"eagerload/internal/memstore"
	"eagerload/internal/relation"
)

func blogSchema() *relation.Schema {
	return relation.NewSchema().
		HasMany("authors", "posts", "posts", "id", "author_id").
		HasOne("authors", "profile", "profiles", "id", "author_id").
		BelongsTo("posts", "author", "authors", "author_id", "id").
		HasMany("posts", "comments", "comments", "id", "post_id").
		BelongsToMany("posts", "tags", "tags", "post_tag", "id", "post_id", "tag_id", "id").
		BelongsTo("comments", "author", "authors", "author_id", "id")
}

func blogStore() *memstore.Store {
	return memstore.New().
		Insert("authors",
			eager.Record{"id": 1, "name": "ada"},
			eager.Record{"id": 2, "name": "brian"},
			eager.Record{"id": 3, "name": "carol"},
		).
		Insert("profiles",
			eager.Record{"id": 7, "author_id": 1, "bio": "first"},
			eager.Record{"id": 8, "author_id": 3, "bio": "third"},
		).
		Insert("posts",
			eager.Record{"id": 11, "author_id": 1, "title": "a", "published": true},
			eager.Record{"id": 12, "author_id": 5, "title": "b", "published": true},
			eager.Record{"id": 13, "author_id": 1, "title": "c", "published": false},
			eager.Record{"id": 14, "author_id": 3, "title": "d", "published": true},
		).
		Insert("comments",
			eager.Record{"id": 101, "post_id": 11, "author_id": 2, "body": "nice"},
			eager.Record{"id": 102, "post_id": 14, "author_id": 1, "body": "ok"},
			eager.Record{"id": 103, "post_id": 11, "author_id": 3, "body": "+1"},
		).
		Insert("post_tag",
			eager.Record{"post_id": 11, "tag_id": 100},
			eager.Record{"post_id": 11, "tag_id": 200},
			eager.Record{"post_id": 14, "tag_id": 200},
		).
		Insert("tags",
			eager.Record{"id": 100, "name": "go"},
			eager.Record{"id": 200, "name": "sql"},
		)
}

func authors(ids ...int) eager.Many {
	out := make(eager.Many, len(ids))
	for i, id := range ids {
		out[i] = eager.Record{"id": id}
	}
	return out
}

// ids returns the "id" field of every entity in a relation attribute.
func ids(v any) []any {
	list, _ := v.([]eager.Entity)
	out := make([]any, 0, len(list))
	for _, e := range list {
		id, _ := e.Field("id")
		out = append(out, id)
	}
	return out
}

func field(e eager.Entity, name string) any {
	v, _ := e.Field(name)
	return v
}

// recordingExec captures what the engine hands to the store without
// returning rows.
type recordingExec struct {
	queries []*recordingQuery
}

func (r *recordingExec) Query(table string) eager.QueryBuilder {
	q := &recordingQuery{table: table}
	r.queries = append(r.queries, q)
	return q
}

func (r *recordingExec) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

type recordingQuery struct {
	table   string
	in      map[string][]any
	where   []string
	columns []string
	order   []string
	limit   int
	fetched bool
}

func (q *recordingQuery) WhereIn(column string, values []any) {
	if q.in == nil {
		q.in = make(map[string][]any)
	}
	q.in[column] = values
}

func (q *recordingQuery) Where(predicate string, args ...any) {
	q.where = append(q.where, predicate)
}

func (q *recordingQuery) WhereCond(column, op string, value any) {
	q.where = append(q.where, column+" "+op)
}

func (q *recordingQuery) Join(kind, table, left, op, right string) {}

func (q *recordingQuery) Columns(cols ...string) { q.columns = append(q.columns, cols...) }

func (q *recordingQuery) OrderBy(expr string) { q.order = append(q.order, expr) }

func (q *recordingQuery) Limit(n int) { q.limit = n }

func (q *recordingQuery) Fetch(context.Context) ([]eager.Entity, error) {
	q.fetched = true
	return nil, nil
}
