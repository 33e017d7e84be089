package query

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/metrics"
	"github.com/jadedragon942/dbharbor/result"
	"github.com/jadedragon942/dbharbor/schema"
	"github.com/jadedragon942/dbharbor/session"
)

func mockSession(t *testing.T, kind dialect.Kind) (*session.Session, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()

	sess, err := session.Connect(context.Background(), session.Config{Engine: kind, Host: "db"},
		session.WithOpener(func(string, string) (*sql.DB, error) { return db, nil }))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sess, mock
}

func sqliteSession(t *testing.T, ddl string) *session.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := session.Connect(ctx, session.Config{
		Engine: dialect.SQLite,
		Host:   filepath.Join(t.TempDir(), "q.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Disconnect() })

	if ddl != "" {
		db, err := sess.Handle()
		require.NoError(t, err)
		_, err = db.ExecContext(ctx, ddl)
		require.NoError(t, err)
	}
	return sess
}

func TestExecuteReadMySQL(t *testing.T) {
	sess, mock := mockSession(t, dialect.MySQL)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name FROM users WHERE id > ?")).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(2, "bob").AddRow(3, "carol"))
	mock.ExpectRollback()

	res := New().Execute(context.Background(), sess, "SELECT id, name FROM users WHERE id > ?", 1)
	require.NoError(t, res.Err())
	assert.True(t, res.Success())
	assert.True(t, res.HasResultSet())
	assert.Equal(t, result.StatementRead, res.Kind())
	assert.Equal(t, []string{"id", "name"}, res.ColumnNames())
	assert.Equal(t, 2, res.RowCount())
	assert.Greater(t, int64(res.Duration()), int64(0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteWriteCommits(t *testing.T) {
	sess, mock := mockSession(t, dialect.PostgreSQL)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET active = $1")).
		WithArgs(false).
		WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	res := New().Execute(context.Background(), sess, "UPDATE users SET active = $1", false)
	require.NoError(t, res.Err())
	assert.False(t, res.HasResultSet())
	n, ok := res.RowsAffected()
	assert.True(t, ok)
	assert.Equal(t, int64(4), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteFailureRollsBack(t *testing.T) {
	sess, mock := mockSession(t, dialect.MySQL)
	boom := errors.New("duplicate entry")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users (id) VALUES (1)")).WillReturnError(boom)
	mock.ExpectRollback()

	res := New().Execute(context.Background(), sess, "INSERT INTO users (id) VALUES (1)")
	require.Error(t, res.Err())
	assert.False(t, res.Success())
	assert.ErrorIs(t, res.Err(), boom)

	var execErr *dberr.ExecutionError
	require.ErrorAs(t, res.Err(), &execErr)
	assert.Equal(t, "INSERT INTO users (id) VALUES (1)", execErr.Statement)
	assert.Contains(t, res.ErrorText(), "duplicate entry")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteCommitFailure(t *testing.T) {
	sess, mock := mockSession(t, dialect.PostgreSQL)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	res := New().Execute(context.Background(), sess, "DELETE FROM t")
	require.Error(t, res.Err())
	assert.Contains(t, res.ErrorText(), "commit")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteEmptyStatement(t *testing.T) {
	sess, mock := mockSession(t, dialect.MySQL)

	res := New().Execute(context.Background(), sess, "   ")
	assert.ErrorIs(t, res.Err(), dberr.ErrEmptyStatement)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteWithoutDatabaseHandle(t *testing.T) {
	sess, mock := mockSession(t, dialect.MySQL)
	mock.ExpectClose()
	require.NoError(t, sess.Disconnect())

	res := New().Execute(context.Background(), sess, "SELECT 1")
	assert.ErrorIs(t, res.Err(), dberr.ErrNotConnected)
	assert.Equal(t, dberr.CategoryConnection, dberr.Classify(res.Err()))
}

func TestExecuteKeepsWarnings(t *testing.T) {
	sess, mock := mockSession(t, dialect.MySQL)
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE old").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	res := New().Execute(context.Background(), sess, "DROP TABLE old")
	require.NoError(t, res.Err())
	assert.Contains(t, codes(res.Warnings()), dberr.WarnHighRiskKeyword)
}

func TestStateHookSequence(t *testing.T) {
	sess, mock := mockSession(t, dialect.MySQL)
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE t").WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	var seen []State
	gw := New(WithStateHook(func(_ string, _, to State) {
		seen = append(seen, to)
	}))

	gw.Execute(context.Background(), sess, "SELECT 1")
	assert.Equal(t, []State{StateValidating, StateExecuting, StateSucceeded}, seen)

	seen = nil
	gw.Execute(context.Background(), sess, "UPDATE t SET a = 1")
	assert.Equal(t, []State{StateValidating, StateExecuting, StateFailed}, seen)
}

func TestMaxRowsTruncates(t *testing.T) {
	sess, mock := mockSession(t, dialect.PostgreSQL)
	rows := sqlmock.NewRows([]string{"n"})
	for i := 0; i < 10; i++ {
		rows.AddRow(i)
	}
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT n FROM nums").WillReturnRows(rows)
	mock.ExpectRollback()

	res := New(WithMaxRows(3)).Execute(context.Background(), sess, "SELECT n FROM nums")
	require.NoError(t, res.Err())
	assert.Equal(t, 3, res.RowCount())
	assert.Contains(t, codes(res.Warnings()), dberr.WarnTruncated)
}

func TestExecuteRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	sess, mock := mockSession(t, dialect.MySQL)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM t").WillReturnError(errors.New("nope"))
	mock.ExpectRollback()

	New(WithMetrics(m)).Execute(context.Background(), sess, "DELETE FROM t")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueryTotal.WithLabelValues("mysql", "write", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationWarnings.WithLabelValues(dberr.WarnHighRiskKeyword)))
}

func tableChecksum(t *testing.T, sess *session.Session) []string {
	t.Helper()
	db, err := sess.Handle()
	require.NoError(t, err)
	rows, err := db.Query("SELECT id || ':' || name FROM people ORDER BY id")
	require.NoError(t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		require.NoError(t, rows.Scan(&s))
		out = append(out, s)
	}
	require.NoError(t, rows.Err())
	return out
}

func TestReadLeavesDataUnchanged(t *testing.T) {
	sess := sqliteSession(t, `
CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
INSERT INTO people VALUES (1, 'ada'), (2, 'grace'), (3, 'edsger');`)
	before := tableChecksum(t, sess)

	gw := New()
	for _, stmt := range []string{
		"SELECT * FROM people",
		"SELECT name FROM people WHERE id = 2",
		"WITH x AS (SELECT id FROM people) SELECT count(*) FROM x",
	} {
		res := gw.Execute(context.Background(), sess, stmt)
		require.NoError(t, res.Err(), stmt)
	}
	assert.Equal(t, before, tableChecksum(t, sess))

	res := gw.Execute(context.Background(), sess, "SELECT name FROM people WHERE id = ?", 2)
	require.NoError(t, res.Err())
	rec, ok := res.Record(0)
	require.True(t, ok)
	name, _ := rec.GetString("name")
	assert.Equal(t, "grace", name)
}

func TestFailedWriteLeavesNoPartialChange(t *testing.T) {
	sess := sqliteSession(t, `
CREATE TABLE people (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
INSERT INTO people VALUES (1, 'ada');`)
	before := tableChecksum(t, sess)

	gw := New()
	res := gw.Execute(context.Background(), sess, "INSERT INTO people VALUES (2, 'grace'), (1, 'dup')")
	require.Error(t, res.Err())
	assert.Equal(t, before, tableChecksum(t, sess))

	res = gw.Execute(context.Background(), sess, "INSERT INTO people VALUES (2, 'grace')")
	require.NoError(t, res.Err())
	n, ok := res.RowsAffected()
	assert.True(t, ok)
	assert.Equal(t, int64(1), n)
}

func TestCallParameterCount(t *testing.T) {
	sess, mock := mockSession(t, dialect.MySQL)
	r := &schema.Routine{
		Schema: "shop",
		Name:   "place_order",
		Kind:   schema.KindProcedure,
		Parameters: []schema.Parameter{
			{Name: "customer", Type: "int", Mode: schema.ModeIn, Position: 1},
			{Name: "qty", Type: "int", Mode: schema.ModeIn, Position: 2},
			{Name: "order_id", Type: "int", Mode: schema.ModeOut, Position: 3},
		},
	}

	res := New().Call(context.Background(), sess, r, []any{1})
	require.Error(t, res.Err())
	assert.ErrorIs(t, res.Err(), dberr.ErrParameterCount)
	assert.Equal(t, result.StatementCall, res.Kind())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallMySQLProcedureReadsOutParams(t *testing.T) {
	sess, mock := mockSession(t, dialect.MySQL)
	r := &schema.Routine{
		Schema: "shop",
		Name:   "place_order",
		Kind:   schema.KindProcedure,
		Parameters: []schema.Parameter{
			{Name: "customer", Type: "int", Mode: schema.ModeIn, Position: 1},
			{Name: "order_id", Type: "int", Mode: schema.ModeOut, Position: 2},
		},
	}
	call, err := sess.Dialect().CallStatement(r, []any{7})
	require.NoError(t, err)
	require.NotEmpty(t, call.Readback)

	mock.ExpectBegin()
	for _, st := range call.Prelude {
		mock.ExpectExec(regexp.QuoteMeta(st.Query)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectQuery(regexp.QuoteMeta(call.Query)).WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectQuery(regexp.QuoteMeta(call.Readback)).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(42))
	mock.ExpectCommit()

	res := New().Call(context.Background(), sess, r, []any{7})
	require.NoError(t, res.Err())
	assert.Equal(t, []string{"order_id"}, res.ColumnNames())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCallSQLiteUnsupported(t *testing.T) {
	sess := sqliteSession(t, "")
	r := &schema.Routine{Name: "f", Kind: schema.KindFunction}

	res := New().Call(context.Background(), sess, r, nil)
	assert.ErrorIs(t, res.Err(), dberr.ErrUnsupported)
}

func TestDropBlankArgs(t *testing.T) {
	noParams := &schema.Routine{Name: "now_utc"}
	assert.Empty(t, dropBlankArgs(noParams, []any{"", "  ", nil}))

	withParams := &schema.Routine{Name: "echo", Parameters: []schema.Parameter{{Name: "s", Mode: schema.ModeIn, Position: 1}}}
	assert.Equal(t, []any{""}, dropBlankArgs(withParams, []any{""}))
}

func TestExplainSQLite(t *testing.T) {
	sess := sqliteSession(t, "CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT);")

	res := New().Explain(context.Background(), sess, "SELECT * FROM t WHERE id = 1")
	require.NoError(t, res.Err())
	assert.True(t, res.HasResultSet())
	assert.Contains(t, res.Statement(), "EXPLAIN QUERY PLAN")
}
