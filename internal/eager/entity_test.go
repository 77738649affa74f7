package eager

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluck(t *testing.T) {
	tests := []struct {
		name    string
		subject Subject
		want    []any
	}{
		{
			name: "dedup keeps first seen",
			subject: Records(
				Record{"author_id": 3},
				Record{"author_id": 1},
				Record{"author_id": int64(3)},
				Record{"author_id": "1"},
			),
			want: []any{3, 1},
		},
		{
			name:    "nil and missing skipped",
			subject: Many{Record{"author_id": nil}, Record{}, nil, Record{"author_id": 9}},
			want:    []any{9},
		},
		{name: "one", subject: One{Entity: Record{"author_id": 4}}, want: []any{4}},
		{name: "empty one", subject: One{}},
		{name: "empty many", subject: Many{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Pluck(tt.subject, "author_id"))
		})
	}
}

func TestSubject_Shapes(t *testing.T) {
	one := One{Entity: Record{"id": 1}}
	assert.False(t, one.IsEmpty())
	assert.Equal(t, 1, one.Len())
	assert.Equal(t, One{}, one.emptyOf())
	assert.True(t, One{}.IsEmpty())
	assert.Nil(t, One{}.Entities())

	many := Records(Record{"id": 1}, Record{"id": 2})
	assert.Equal(t, 2, many.Len())
	assert.Equal(t, Many{}, many.emptyOf())

	var seen []any
	err := Many{Record{"id": 1}, nil, Record{"id": 2}}.Each(func(e Entity) error {
		v, _ := e.Field("id")
		seen = append(seen, v)
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []any{1, 2}, seen)

	stop := errors.New("stop")
	assert.ErrorIs(t, many.Each(func(Entity) error { return stop }), stop)
}

func TestSubject_NilRecord(t *testing.T) {
	one := One{Entity: Record(nil)}
	assert.True(t, one.IsEmpty())
	assert.Equal(t, 0, one.Len())
	assert.Nil(t, one.Entities())

	calls := 0
	count := func(Entity) error { calls++; return nil }
	assert.NoError(t, one.Each(count))
	assert.NoError(t, Many{Record(nil), Record{"id": 1}}.Each(count))
	assert.Equal(t, 1, calls)
}

func TestLoadError(t *testing.T) {
	err := missingForeignKey("posts.comments", "post_id")
	assert.EqualError(t, err, `eager load "posts.comments" (field "post_id"): missing foreign key`)
	assert.ErrorIs(t, err, ErrMissingForeignKey)

	err = relationNotFound("authors", "likes", "likes")
	assert.EqualError(t, err, "there is no defined relation for the model `authors` using alias `likes`")
	assert.ErrorIs(t, err, ErrRelationNotFound)
}
