package cmd

import (
	"bytes"
	"database/sql"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/result"
)

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.Equal(t, 10*time.Second, cfg.Connection.ConnectTimeout)
	assert.Equal(t, 10000, cfg.Query.MaxRows)
	assert.Equal(t, ".", cfg.Export.Dir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.IsType(t, cfg, Config)
}

func TestSplitRef(t *testing.T) {
	s, n := splitRef("public.users")
	assert.Equal(t, "public", s)
	assert.Equal(t, "users", n)

	s, n = splitRef("users")
	assert.Empty(t, s)
	assert.Equal(t, "users", n)
}

func TestBindArgs(t *testing.T) {
	args := bindArgs([]string{"1", `\N`, ""})
	assert.Equal(t, []any{"1", nil, ""}, args)
}

func TestByteSizeHook(t *testing.T) {
	hook := byteSizeHookFunc()
	to := reflect.TypeOf(ByteSize(0))

	v, err := hook(reflect.TypeOf(""), to, "64MB")
	require.NoError(t, err)
	assert.Equal(t, ByteSize(64_000_000), v)

	v, err = hook(reflect.TypeOf(""), to, "")
	require.NoError(t, err)
	assert.Equal(t, ByteSize(0), v)

	_, err = hook(reflect.TypeOf(""), to, "lots")
	assert.Error(t, err)

	// other targets pass through untouched
	v, err = hook(reflect.TypeOf(""), reflect.TypeOf(""), "64MB")
	require.NoError(t, err)
	assert.Equal(t, "64MB", v)
}

func TestRenderResult(t *testing.T) {
	res := result.Draft{
		Kind:         result.StatementRead,
		Columns:      []result.Column{{Name: "id"}, {Name: "note"}},
		Rows:         [][]any{{int64(1), nil}, {int64(2), "hi"}},
		HasResultSet: true,
		Duration:     time.Millisecond,
		Warnings:     []dberr.Warning{{Code: dberr.WarnTruncated, Message: "cut"}},
	}.Freeze()

	var out, errOut bytes.Buffer
	require.NoError(t, renderResult(&out, &errOut, res))
	assert.Contains(t, out.String(), "NULL")
	assert.Contains(t, out.String(), "hi")
	assert.Contains(t, out.String(), "2 rows")
	assert.Contains(t, errOut.String(), "cut")
}

func TestRenderWriteResult(t *testing.T) {
	res := result.Draft{Kind: result.StatementWrite, RowsAffected: 1200, AffectedKnown: true}.Freeze()
	var out bytes.Buffer
	require.NoError(t, renderResult(&out, &out, res))
	assert.Contains(t, out.String(), "1,200 rows affected")
}

func TestCommandsAgainstSQLite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shop.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(`
CREATE TABLE customers (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE orders (id INTEGER PRIMARY KEY, customer_id INTEGER REFERENCES customers(id));
INSERT INTO customers VALUES (1, 'ada'), (2, 'grace');
INSERT INTO orders VALUES (10, 1), (11, 2);`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	run := func(args ...string) (string, error) {
		var out bytes.Buffer
		RootCmd.SetOut(&out)
		RootCmd.SetErr(&out)
		RootCmd.SetArgs(append([]string{"--engine", "sqlite", "--host", path, "--log-level", "error"}, args...))
		err := RootCmd.Execute()
		return out.String(), err
	}

	out, err := run("tables", "--exact")
	require.NoError(t, err)
	assert.Contains(t, out, "customers")
	assert.Contains(t, out, "orders")

	out, err = run("query", "SELECT name FROM customers WHERE id = ?", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "grace")
	assert.NotContains(t, out, "ada")

	out, err = run("integrity")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")

	out, err = run("server")
	require.NoError(t, err)
	assert.Contains(t, out, "UTF-8")

	out, err = run("stats", "customers", "name")
	require.NoError(t, err)
	assert.Contains(t, out, "grace")

	_, err = run("stats", "customers", "missing")
	assert.Error(t, err)

	viper.Set("export.dir", dir)
	out, err = run("export", "--table", "customers", "--format", "csv", "--name", "people")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, filepath.Join(dir, "people_")), out)
}
