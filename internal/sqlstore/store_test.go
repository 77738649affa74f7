package sqlstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eagerload/internal/eager"
	"eagerload/internal/relation"
	"eagerload/internal/sqlstore"
	"eagerload/pkg/dbmanager"
)

const seed = `
CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE profiles (id INTEGER PRIMARY KEY, author_id INTEGER, bio TEXT);
CREATE TABLE posts (id INTEGER PRIMARY KEY, author_id INTEGER, title TEXT, published INTEGER);
CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE post_tag (post_id INTEGER, tag_id INTEGER);

INSERT INTO authors (id, name) VALUES (1, 'ada'), (2, 'brian'), (3, 'carol');
INSERT INTO profiles (id, author_id, bio) VALUES (7, 1, 'first');
INSERT INTO posts (id, author_id, title, published) VALUES
  (11, 1, 'a', 1), (12, 5, 'b', 1), (13, 1, 'c', 0), (14, 3, 'd', 1);
INSERT INTO tags (id, name) VALUES (100, 'go'), (200, 'sql');
INSERT INTO post_tag (post_id, tag_id) VALUES (11, 100), (11, 200), (14, 200);
`

func setupDB(t *testing.T) *dbmanager.DBManager {
	t.Helper()
	dbMgr := dbmanager.NewDBManager()
	require.NoError(t, dbMgr.AddConnection("default", "sqlite", ":memory:", 1, 1))
	t.Cleanup(func() { dbMgr.Close() })

	_, err := dbMgr.GetConnection("default").Exec(seed)
	require.NoError(t, err)
	return dbMgr
}

func schema() *relation.Schema {
	return relation.NewSchema().
		HasMany("authors", "posts", "posts", "id", "author_id").
		HasOne("authors", "profile", "profiles", "id", "author_id").
		BelongsToMany("posts", "tags", "tags", "post_tag", "id", "post_id", "tag_id", "id")
}

func ids(v interface{}) []interface{} {
	list, _ := v.([]eager.Entity)
	out := make([]interface{}, 0, len(list))
	for _, e := range list {
		id, _ := e.Field("id")
		out = append(out, id)
	}
	return out
}

func TestStore_EagerLoad(t *testing.T) {
	store, err := sqlstore.FromManager(setupDB(t), "default")
	require.NoError(t, err)
	ctx := context.Background()

	q := store.Query("authors")
	q.WhereIn("id", []interface{}{1, 2, 3})
	q.OrderBy("id")
	roots, err := q.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 3)

	eng := eager.New(schema(), store)
	_, err = eng.Load(ctx, eager.Many(roots), "authors", "posts.tags", eager.Relations{
		"profile": func(q *eager.Query) error {
			q.Columns("id", "author_id", "bio")
			return nil
		},
	})
	require.NoError(t, err)

	posts := func(i int) []eager.Entity {
		v, _ := roots[i].Field("posts")
		return v.([]eager.Entity)
	}
	assert.Equal(t, []interface{}{int64(11), int64(13)}, ids(posts(0)))
	assert.Empty(t, posts(1))
	assert.Equal(t, []interface{}{int64(14)}, ids(posts(2)))

	tags, _ := posts(0)[0].Field("tags")
	assert.Equal(t, []interface{}{int64(100), int64(200)}, ids(tags))
	tags, _ = posts(0)[1].Field("tags")
	assert.Empty(t, tags)

	profile, _ := roots[0].Field("profile")
	bio, _ := profile.(eager.Entity).Field("bio")
	assert.Equal(t, "first", bio)
	profile, _ = roots[1].Field("profile")
	assert.Nil(t, profile)
}

func TestStore_Constraint(t *testing.T) {
	store, err := sqlstore.FromManager(setupDB(t), "default")
	require.NoError(t, err)

	roots := eager.Records(eager.Record{"id": 1}, eager.Record{"id": 3})
	_, err = eager.New(schema(), store).Load(context.Background(), roots, "authors", eager.Relations{
		"posts": func(q *eager.Query) error {
			q.Where("published = ?", 1).OrderBy("id DESC")
			return nil
		},
	})
	require.NoError(t, err)

	first, _ := roots[0].Field("posts")
	third, _ := roots[1].Field("posts")
	assert.Equal(t, []interface{}{int64(11)}, ids(first))
	assert.Equal(t, []interface{}{int64(14)}, ids(third))
}

func TestStore_QueryError(t *testing.T) {
	store, err := sqlstore.FromManager(setupDB(t), "default")
	require.NoError(t, err)

	roots := eager.Records(eager.Record{"id": 1})
	_, err = eager.New(schema(), store).Load(context.Background(), roots, "authors", eager.Relations{
		"posts": func(q *eager.Query) error {
			q.Where("no_such_column = ?", 1)
			return nil
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `eager load "posts"`)
}

func TestStore_TableNameIsNotSQL(t *testing.T) {
	dbMgr := setupDB(t)
	_, err := dbMgr.GetConnection("default").Exec(
		`CREATE TABLE secrets (id INTEGER PRIMARY KEY, token TEXT); INSERT INTO secrets VALUES (1, 'TOP-SECRET');`)
	require.NoError(t, err)

	store, err := sqlstore.FromManager(dbMgr, "default")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", store.Dialect().Name())

	q := store.Query("authors UNION SELECT id, token FROM secrets")
	q.WhereIn("id", []interface{}{1})
	rows, err := q.Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
	assert.Empty(t, rows)
}

func TestFromManager_Unknown(t *testing.T) {
	_, err := sqlstore.FromManager(dbmanager.NewDBManager(), "missing")
	assert.Error(t, err)
}

func TestWithHydrator(t *testing.T) {
	type tagged struct {
		eager.Record
		table string
	}
	var tables []string
	store, err := sqlstore.FromManager(setupDB(t), "default", sqlstore.WithHydrator(
		func(table string, row map[string]interface{}) eager.Entity {
			tables = append(tables, table)
			return tagged{Record: eager.Record(row), table: table}
		}))
	require.NoError(t, err)

	rows, err := store.Query("tags").Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	_, ok := rows[0].(tagged)
	assert.True(t, ok)
	assert.Equal(t, []string{"tags", "tags"}, tables)
}
