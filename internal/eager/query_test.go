package eager_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eagerload/internal/eager"
	"eagerload/internal/relation"
)

func TestQuery_ConjunctiveWhere(t *testing.T) {
	store := blogStore()
	eng := eager.New(blogSchema(), store)

	roots := authors(1, 3)
	_, err := eng.Load(context.Background(), roots, "authors", eager.Relations{
		"posts": func(q *eager.Query) error {
			q.Where("published = ?", true).AndWhere("id > ?", 10)
			q.WhereCond("title", "!=", "zzz")
			return nil
		},
	})
	require.NoError(t, err)

	// post 13 is unpublished, post 12 belongs to an author outside the batch
	assert.Equal(t, []any{11}, ids(field(roots[0], "posts")))
	assert.Equal(t, []any{14}, ids(field(roots[1], "posts")))

	stmts := store.Statements()
	require.Len(t, stmts, 1)
	assert.Equal(t, 4, stmts[0].Conditions)
}

func TestQuery_OrderAndLimitApplyToBatch(t *testing.T) {
	eng := eager.New(blogSchema(), blogStore())

	roots := authors(1, 3)
	_, err := eng.Load(context.Background(), roots, "authors", map[string]any{
		"posts": func(q *eager.Query) error {
			q.OrderBy("id DESC").Limit(2)
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []any{13}, ids(field(roots[0], "posts")))
	assert.Equal(t, []any{14}, ids(field(roots[1], "posts")))
}

func TestQuery_ColumnQuoting(t *testing.T) {
	exec := &recordingExec{}
	eng := eager.New(blogSchema(), exec)

	_, err := eng.Load(context.Background(), authors(1), "authors", eager.Relations{
		"posts": func(q *eager.Query) error {
			assert.Equal(t, "posts", q.Alias())
			q.Columns("id", "posts.title", "`body`", "\"slug\"", "[views]", "*", "p.*", "COUNT(*) AS n", "  ")
			return nil
		},
	})
	require.NoError(t, err)

	require.Len(t, exec.queries, 1)
	q := exec.queries[0]
	assert.Equal(t, []string{
		"`id`",
		"`posts`.`title`",
		"`body`",
		"\"slug\"",
		"[views]",
		"*",
		"`p`.*",
		"COUNT(*) AS n",
	}, q.columns)
	assert.Equal(t, []any{1}, q.in["author_id"])
	assert.True(t, q.fetched)
}

func TestQuery_ThroughPivotColumns(t *testing.T) {
	exec := &recordingExec{}
	eng := eager.New(blogSchema(), exec)

	_, err := eng.Load(context.Background(), eager.Records(eager.Record{"id": 10}), "posts", "tags")
	require.NoError(t, err)

	require.Len(t, exec.queries, 2)
	pivot, target := exec.queries[0], exec.queries[1]
	assert.Equal(t, "post_tag", pivot.table)
	assert.Equal(t, []string{"`post_id`", "`tag_id`"}, pivot.columns)
	assert.Equal(t, []any{10}, pivot.in["post_id"])

	// no pivot rows, so the target query is built but never sent
	assert.Equal(t, "tags", target.table)
	assert.False(t, target.fetched)
}

func TestQuery_WithInsideConstraint(t *testing.T) {
	store := blogStore()
	eng := eager.New(blogSchema(), store)

	roots := authors(1, 3)
	_, err := eng.Load(context.Background(), roots, "authors", eager.Relations{
		"posts": func(q *eager.Query) error {
			return q.With("comments.author", eager.Relations{
				"tags": func(q *eager.Query) error {
					assert.Equal(t, "posts.tags", q.Alias())
					q.Where("name = ?", "sql")
					return nil
				},
			})
		},
	})
	require.NoError(t, err)

	posts := field(roots[0], "posts").([]eager.Entity)
	require.Len(t, posts, 2)
	comments := field(posts[0], "comments").([]eager.Entity)
	assert.Equal(t, []any{101, 103}, ids(comments))
	assert.Equal(t, "carol", field(field(comments[1], "author").(eager.Entity), "name"))
	assert.Equal(t, []any{200}, ids(field(posts[0], "tags")))

	// posts, comments, authors, post_tag, tags: one each
	assert.Equal(t, 5, store.QueryCount())
	for _, table := range []string{"posts", "comments", "authors", "post_tag", "tags"} {
		assert.Equal(t, 1, store.Count(table), table)
	}
}

func TestQuery_WithUnknownNested(t *testing.T) {
	eng := eager.New(blogSchema(), blogStore())

	_, err := eng.Load(context.Background(), authors(1), "authors", eager.Relations{
		"posts": func(q *eager.Query) error { return q.With("likes") },
	})
	assert.True(t, errors.Is(err, eager.ErrRelationNotFound), "got %v", err)
	assert.Contains(t, err.Error(), "`posts`")
}

func TestParseRelations(t *testing.T) {
	noop := func(*eager.Query) error { return nil }

	tests := []struct {
		name      string
		specs     []any
		wantPaths []string
		wantErr   bool
	}{
		{name: "string", specs: []any{"posts"}, wantPaths: []string{"posts"}},
		{name: "list", specs: []any{[]string{"b", "a.c"}}, wantPaths: []string{"a.c", "b"}},
		{name: "constraints", specs: []any{eager.Relations{"posts": noop}, map[string]eager.Constraint{"tags": nil}}, wantPaths: []string{"posts", "tags"}},
		{name: "any map", specs: []any{map[string]any{"posts": noop, "tags": nil, "profile": func(*eager.Query) {}}}, wantPaths: []string{"posts", "profile", "tags"}},
		{name: "trimmed", specs: []any{" posts "}, wantPaths: []string{"posts"}},
		{name: "nothing", wantErr: true},
		{name: "empty list", specs: []any{[]string{}}, wantErr: true},
		{name: "blank path", specs: []any{"  "}, wantErr: true},
		{name: "empty segment", specs: []any{"posts..comments"}, wantErr: true},
		{name: "trailing dot", specs: []any{"posts."}, wantErr: true},
		{name: "bad constraint", specs: []any{map[string]any{"posts": 12}}, wantErr: true},
		{name: "bad spec", specs: []any{42}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rels, err := eager.ParseRelations(tt.specs...)
			if tt.wantErr {
				assert.True(t, errors.Is(err, eager.ErrInvalidArgument), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPaths, rels.Paths())
		})
	}
}

func TestLoader_StepByStep(t *testing.T) {
	store := blogStore()
	l := eager.New(blogSchema(), store).NewLoader(authors(1, 3), "authors")
	assert.Equal(t, "authors", l.OwnerType())

	var alias string
	nodes, err := l.Build(eager.Relations{
		"posts": func(q *eager.Query) error {
			alias = q.Alias()
			q.Builder().WhereCond("published", "=", true)
			return nil
		},
	}, false, 0)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	n := nodes[0]
	assert.Equal(t, relation.OneToMany, n.Definition().Kind)
	assert.Equal(t, "posts", n.Definition().TargetType)
	assert.Equal(t, eager.StateCreated, n.State())
	assert.Nil(t, n.Subject())

	require.NoError(t, l.Execute(context.Background(), nodes))
	assert.Equal(t, "posts", alias)
	assert.Equal(t, eager.StateLoaded, n.State())
	assert.Equal(t, 2, n.Subject().Len())

	roots := l.Subject().Entities()
	assert.Equal(t, []any{11}, ids(field(roots[0], "posts")))
	assert.Equal(t, []any{14}, ids(field(roots[1], "posts")))
	assert.Equal(t, l.Node("posts"), n)
}
