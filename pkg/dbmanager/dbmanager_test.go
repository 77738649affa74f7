package dbmanager

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDialect(t *testing.T) {
	tests := []struct {
		driver      string
		name        string
		quoted      string
		placeholder string
	}{
		{driver: "mysql", name: "mysql", quoted: "`a``b`", placeholder: "?"},
		{driver: "sqlite", name: "sqlite", quoted: `"a` + "`" + `b"`, placeholder: "?"},
		{driver: "sqlite3", name: "sqlite", quoted: `"a` + "`" + `b"`, placeholder: "?"},
		{driver: "postgres", name: "postgres", quoted: `"a` + "`" + `b"`, placeholder: "$3"},
		{driver: "mssql", name: "sqlserver", quoted: "[a`b]", placeholder: "@p3"},
		{driver: "unknown", name: "mysql", quoted: "`a``b`", placeholder: "?"},
	}

	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			d := GetDialect(tt.driver)
			assert.Equal(t, tt.name, d.Name())
			assert.Equal(t, tt.quoted, d.QuoteIdentifier("a`b"))
			assert.Equal(t, tt.placeholder, d.Placeholder(3))
		})
	}
}

func TestDialectLimit(t *testing.T) {
	assert.Equal(t, " LIMIT 5, 10", MySQLDialect{}.Limit(10, 5))
	assert.Equal(t, " LIMIT -1 OFFSET 5", SQLiteDialect{}.Limit(0, 5))
	assert.Equal(t, " LIMIT 10 OFFSET 5", PostgreSQLDialect{}.Limit(10, 5))
	assert.Equal(t, " OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY", SQLServerDialect{}.Limit(10, 0))
	assert.Equal(t, "", PostgreSQLDialect{}.Limit(0, 0))
}

func TestIsQuoted(t *testing.T) {
	assert.True(t, IsQuoted(`"id"`))
	assert.True(t, IsQuoted("`id`"))
	assert.True(t, IsQuoted("[id]"))
	assert.False(t, IsQuoted("id"))
	assert.False(t, IsQuoted(`"id`))
	assert.False(t, IsQuoted(`"`))
}

func TestDBManager_Connections(t *testing.T) {
	mgr := NewDBManager()
	defer mgr.Close()

	require.NoError(t, mgr.AddConnection("default", "sqlite", ":memory:", 1, 1))
	require.NoError(t, mgr.AddConnection("reports", "sqlite", ":memory:", 1, 1))

	err := mgr.AddConnection("default", "sqlite", ":memory:", 1, 1)
	assert.Error(t, err)

	db, dialect := mgr.GetDefault()
	assert.NotNil(t, db)
	assert.Equal(t, "sqlite", dialect.Name())
	assert.Equal(t, []string{"default", "reports"}, mgr.GetConnectionNames())
	assert.NoError(t, mgr.Ping(context.Background()))

	assert.Error(t, mgr.SetDefault("missing"))
	require.NoError(t, mgr.SetDefault("reports"))
	db2, _ := mgr.GetDefault()
	assert.Same(t, mgr.GetConnection("reports"), db2)
}
