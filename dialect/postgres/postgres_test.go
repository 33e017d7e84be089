package postgres

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/schema"
)

func TestDSN(t *testing.T) {
	dsn, err := New().DSN(dialect.Endpoint{
		Host:             "localhost",
		Port:             6543,
		User:             "app",
		Password:         "s3cr@t/?",
		Params:           map[string]string{"sslmode": "disable"},
		ConnectTimeout:   3 * time.Second,
		StatementTimeout: 2 * time.Second,
	}, "postgres")
	require.NoError(t, err)

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "localhost:6543", u.Host)
	assert.Equal(t, "/postgres", u.Path)
	pw, ok := u.User.Password()
	assert.True(t, ok)
	assert.Equal(t, "s3cr@t/?", pw)
	assert.Equal(t, "disable", u.Query().Get("sslmode"))
	assert.Equal(t, "3", u.Query().Get("connect_timeout"))
	assert.Equal(t, "2000", u.Query().Get("statement_timeout"))
}

func TestQuoting(t *testing.T) {
	d := New()
	assert.Equal(t, `"user"`, d.QuoteIdent("user"))
	assert.Equal(t, `"we""ird"`, d.QuoteIdent(`we"ird`))
	assert.Equal(t, `"public"."Orders"`, d.QualifiedName("public", "Orders"))
	assert.Equal(t, "$4", d.Placeholder(4))
}

func TestDatabasesQueryHidesAdministrativeDatabases(t *testing.T) {
	q := New().DatabasesQuery()
	for _, name := range []string{"'postgres'", "'template0'", "'template1'"} {
		assert.Contains(t, q, name)
	}
	assert.Contains(t, q, "ORDER BY datname")
}

func TestForeignKeysQueryPairsByPosition(t *testing.T) {
	q := New().ForeignKeysQuery()
	assert.Contains(t, q, "pk.ordinal_position = kcu.position_in_unique_constraint")
	assert.Contains(t, q, "kcu.table_schema NOT IN ('information_schema', 'pg_catalog')")
	assert.Contains(t, q, `kcu.table_schema NOT LIKE 'pg\_toast%'`)
}

func TestTablesQueryUsesStatistics(t *testing.T) {
	q := New().TablesQuery()
	assert.Contains(t, q, "pg_stat_user_tables")
	assert.Contains(t, q, "n_live_tup")
	assert.Contains(t, q, "pg_total_relation_size")
}

func TestCallProcedurePassesNullForOut(t *testing.T) {
	r := &schema.Routine{
		Schema: "public",
		Name:   "transfer",
		Kind:   schema.KindProcedure,
		Parameters: []schema.Parameter{
			{Name: "src", Mode: schema.ModeIn, Position: 1},
			{Name: "dst", Mode: schema.ModeIn, Position: 2},
			{Name: "moved", Mode: schema.ModeOut, Position: 3},
		},
	}
	call, err := New().CallStatement(r, []any{int64(1), ""})
	require.NoError(t, err)
	assert.Equal(t, `CALL "public"."transfer"($1, $2, NULL)`, call.Query)
	assert.Equal(t, []any{int64(1), ""}, call.Args)
}

func TestCallFunctionAsTableSource(t *testing.T) {
	r := &schema.Routine{
		Schema: "public",
		Name:   "orders_for",
		Kind:   schema.KindFunction,
		Parameters: []schema.Parameter{
			{Name: "customer", Mode: schema.ModeIn, Position: 1},
			{Name: "n", Mode: schema.ModeOut, Position: 2},
		},
	}
	call, err := New().CallStatement(r, []any{nil})
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "public"."orders_for"($1)`, call.Query)

	_, err = New().CallStatement(r, nil)
	assert.Error(t, err)
}

func TestServerInfoQueryScopesToCurrentDatabase(t *testing.T) {
	q := New().ServerInfoQuery()
	assert.Contains(t, q, "pg_database_size(current_database())")
	assert.Contains(t, q, "datname = current_database()")
	assert.Contains(t, q, "pg_encoding_to_char")
}
