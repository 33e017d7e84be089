package catalog

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/schema"
	"github.com/jadedragon942/dbharbor/session"
)

const shopDDL = `
CREATE TABLE customers (
	id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL,
	email VARCHAR(100) UNIQUE NOT NULL,
	"select" TEXT,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE orders (
	id INTEGER PRIMARY KEY,
	customer_id INTEGER REFERENCES customers(id),
	total DECIMAL(10,2) NOT NULL DEFAULT 0
);
CREATE TABLE order_lines (
	order_id INTEGER NOT NULL,
	line_no INTEGER NOT NULL,
	qty INTEGER,
	PRIMARY KEY (order_id, line_no)
);
CREATE TABLE shipments (
	id INTEGER PRIMARY KEY,
	order_id INTEGER,
	line_no INTEGER,
	FOREIGN KEY (order_id, line_no) REFERENCES order_lines (order_id, line_no)
);
CREATE INDEX idx_orders_customer ON orders (customer_id);
CREATE VIEW big_orders AS SELECT id, total FROM orders WHERE total > 100;
CREATE TRIGGER orders_audit AFTER UPDATE ON orders BEGIN SELECT 1; END;
INSERT INTO customers (id, email) VALUES (1, 'a@example.com'), (2, 'b@example.com');
INSERT INTO orders (id, customer_id, total) VALUES (1, 1, 10), (2, 1, 250), (3, 2, 99.5);
`

func sqliteCatalog(t *testing.T) *Catalog {
	t.Helper()
	ctx := context.Background()
	sess, err := session.Connect(ctx, session.Config{
		Engine: dialect.SQLite,
		Host:   filepath.Join(t.TempDir(), "shop.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { sess.Disconnect() })

	db, err := sess.Handle()
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, shopDDL)
	require.NoError(t, err)
	return New(sess)
}

func mockCatalog(t *testing.T, kind dialect.Kind) (*Catalog, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()

	sess, err := session.Connect(context.Background(), session.Config{Engine: kind, Host: "db"},
		session.WithOpener(func(string, string) (*sql.DB, error) { return db, nil }))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(sess), mock
}

func TestListTablesSQLite(t *testing.T) {
	cat := sqliteCatalog(t)
	ctx := context.Background()

	tables, err := cat.ListTables(ctx, schema.CountApproximate)
	require.NoError(t, err)

	var names []string
	for _, tbl := range tables {
		names = append(names, tbl.Name)
	}
	assert.Equal(t, []string{"big_orders", "customers", "order_lines", "orders", "shipments"}, names)
	assert.Equal(t, schema.KindView, tables[0].Kind)
	assert.Equal(t, schema.CountUnknown, tables[1].RowSource)
	assert.Equal(t, 4, tables[1].ColumnCount)

	again, err := cat.ListTables(ctx, schema.CountApproximate)
	require.NoError(t, err)
	assert.Equal(t, tables, again)
}

func TestListTablesExactCounts(t *testing.T) {
	cat := sqliteCatalog(t)

	tables, err := cat.ListTables(context.Background(), schema.CountExact)
	require.NoError(t, err)
	counts := map[string]int64{}
	for _, tbl := range tables {
		if tbl.Kind == schema.KindBaseTable {
			require.NotNil(t, tbl.RowCount, tbl.Name)
			assert.Equal(t, schema.CountExact, tbl.RowSource)
			counts[tbl.Name] = *tbl.RowCount
		} else {
			assert.Nil(t, tbl.RowCount)
		}
	}
	assert.Equal(t, int64(2), counts["customers"])
	assert.Equal(t, int64(3), counts["orders"])
	assert.Equal(t, int64(0), counts["shipments"])
}

func TestDescribeTable(t *testing.T) {
	cat := sqliteCatalog(t)
	ctx := context.Background()

	tbl, err := cat.DescribeTable(ctx, "", "customers")
	require.NoError(t, err)
	assert.Empty(t, tbl.Problems)
	require.Len(t, tbl.Columns, 4)

	id := tbl.Columns[0]
	assert.Equal(t, "id", id.Name)
	assert.Equal(t, schema.KeyPrimary, id.Key)
	assert.True(t, id.AutoIncrement())
	assert.False(t, id.Nullable)

	kw, ok := tbl.Column("select")
	require.True(t, ok)
	assert.True(t, kw.Nullable)

	created, _ := tbl.Column("created_at")
	require.NotNil(t, created.Default)
	assert.Equal(t, "CURRENT_TIMESTAMP", *created.Default)

	var unique bool
	for _, c := range tbl.Constraints {
		if c.Type == "UNIQUE" {
			unique = true
			assert.Equal(t, []string{"email"}, c.Columns)
		}
	}
	assert.True(t, unique)

	lines, err := cat.DescribeTable(ctx, "main", "order_lines")
	require.NoError(t, err)
	assert.Equal(t, []string{"order_id", "line_no"}, lines.PrimaryKey())
	require.NotEmpty(t, lines.Indexes)
	assert.True(t, lines.Indexes[0].Primary)
	assert.Equal(t, []string{"order_id", "line_no"}, lines.Indexes[0].Columns)

	orders, err := cat.DescribeTable(ctx, "", "orders")
	require.NoError(t, err)
	cust, _ := orders.Column("customer_id")
	assert.Equal(t, schema.KeyForeign, cust.Key)
}

func TestDescribeMissingObjects(t *testing.T) {
	cat := sqliteCatalog(t)
	ctx := context.Background()

	_, err := cat.DescribeTable(ctx, "", "nope")
	var nf *dberr.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "table", nf.Kind)

	_, err = cat.DescribeView(ctx, "", "nope")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "view", nf.Kind)

	_, err = cat.DescribeTrigger(ctx, "", "nope")
	require.ErrorAs(t, err, &nf)

	_, err = cat.DescribeRoutine(ctx, "", "nope")
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "routine", nf.Kind)

	_, err = cat.DescribeTable(ctx, "other", "orders")
	assert.ErrorAs(t, err, &nf)
}

func TestViewsAndTriggersSQLite(t *testing.T) {
	cat := sqliteCatalog(t)
	ctx := context.Background()

	v, err := cat.DescribeView(ctx, "", "big_orders")
	require.NoError(t, err)
	assert.Contains(t, v.Definition, "total > 100")
	require.Len(t, v.Columns, 2)
	assert.Equal(t, "total", v.Columns[1].Name)

	tr, err := cat.DescribeTrigger(ctx, "", "orders_audit")
	require.NoError(t, err)
	assert.Equal(t, "orders", tr.Table)
	assert.Equal(t, "AFTER", tr.Timing)
	assert.Equal(t, []string{"UPDATE"}, tr.Events)

	routines, err := cat.ListRoutines(ctx)
	require.NoError(t, err)
	assert.Empty(t, routines)
}

func TestForeignKeysAndSummarySQLite(t *testing.T) {
	cat := sqliteCatalog(t)
	ctx := context.Background()

	edges, err := cat.ForeignKeys(ctx)
	require.NoError(t, err)
	fks := schema.GroupForeignKeys(edges)
	require.Len(t, fks, 2)
	assert.Equal(t, "orders", fks[0].Source.Name)
	assert.Equal(t, "shipments", fks[1].Source.Name)
	assert.True(t, fks[1].Composite())

	sum, err := cat.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Tables)
	assert.Equal(t, 1, sum.Views)
	assert.Equal(t, 1, sum.Triggers)
	assert.Equal(t, 2, sum.ForeignKeys)
	assert.Zero(t, sum.Procedures)
}

func TestRowCountModes(t *testing.T) {
	cat := sqliteCatalog(t)
	ctx := context.Background()

	n, src, err := cat.RowCount(ctx, "main", "orders", schema.CountExact)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, schema.CountExact, src)

	_, src, err = cat.RowCount(ctx, "", "orders", schema.CountApproximate)
	require.NoError(t, err)
	assert.Equal(t, schema.CountUnknown, src)

	_, _, err = cat.RowCount(ctx, "", "missing", schema.CountApproximate)
	var nf *dberr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestListTablesRecordsCountFailures(t *testing.T) {
	cat, mock := mockCatalog(t, dialect.MySQL)

	mock.ExpectQuery("FROM information_schema.tables t").WillReturnRows(
		sqlmock.NewRows([]string{"table_schema", "table_name", "table_type", "column_count", "table_rows", "size", "comment"}).
			AddRow("shop", "secret", "BASE TABLE", 3, 10, 16384, "").
			AddRow("shop", "orders", "BASE TABLE", 5, 120, 32768, "orders placed"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `shop`.`orders`")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(118))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM `shop`.`secret`")).
		WillReturnError(errors.New("SELECT command denied"))

	tables, err := cat.ListTables(context.Background(), schema.CountExact)
	require.NoError(t, err)
	require.Len(t, tables, 2)

	orders, secret := tables[0], tables[1]
	assert.Equal(t, "orders", orders.Name)
	assert.Equal(t, int64(118), *orders.RowCount)
	assert.Equal(t, schema.CountExact, orders.RowSource)
	assert.Equal(t, int64(32768), *orders.SizeBytes)

	assert.Equal(t, "secret", secret.Name)
	assert.Equal(t, int64(10), *secret.RowCount)
	assert.Equal(t, schema.CountApproximate, secret.RowSource)
	require.Len(t, secret.Problems, 1)
	assert.Contains(t, secret.Problems[0].String(), "denied")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListTablesQueryFailurePropagates(t *testing.T) {
	cat, mock := mockCatalog(t, dialect.PostgreSQL)
	mock.ExpectQuery("FROM information_schema.tables t").WillReturnError(errors.New("permission denied"))

	_, err := cat.ListTables(context.Background(), schema.CountApproximate)
	assert.ErrorContains(t, err, "permission denied")
}

func TestListRoutinesWithParameters(t *testing.T) {
	cat, mock := mockCatalog(t, dialect.MySQL)

	mock.ExpectQuery("FROM information_schema.routines").WillReturnRows(
		sqlmock.NewRows([]string{"schema", "name", "type", "ret", "def", "specific"}).
			AddRow("shop", "tax", "FUNCTION", "decimal(10,2)", "RETURN amount * 0.2", "tax").
			AddRow("shop", "place_order", "PROCEDURE", "", "BEGIN END", "place_order"))
	mock.ExpectQuery("FROM information_schema.parameters").WillReturnRows(
		sqlmock.NewRows([]string{"schema", "specific", "pos", "name", "type", "mode"}).
			AddRow("shop", "place_order", 1, "customer", "int", "IN").
			AddRow("shop", "place_order", 2, "order_id", "int", "OUT").
			AddRow("shop", "tax", 1, "amount", "decimal(10,2)", ""))

	routines, err := cat.ListRoutines(context.Background())
	require.NoError(t, err)
	require.Len(t, routines, 2)

	assert.Equal(t, "place_order", routines[0].Name)
	assert.Equal(t, schema.KindProcedure, routines[0].Kind)
	require.Len(t, routines[0].Parameters, 2)
	assert.Equal(t, schema.ModeOut, routines[0].Parameters[1].Mode)
	assert.Len(t, routines[0].InputParameters(), 1)

	assert.Equal(t, schema.KindFunction, routines[1].Kind)
	assert.Equal(t, "decimal(10,2)", routines[1].ReturnType)
	assert.Equal(t, schema.ModeIn, routines[1].Parameters[0].Mode)
}

func TestListRoutinesParameterFailureIsPerObject(t *testing.T) {
	cat, mock := mockCatalog(t, dialect.PostgreSQL)

	mock.ExpectQuery("FROM information_schema.routines").WillReturnRows(
		sqlmock.NewRows([]string{"schema", "name", "type", "ret", "def", "specific"}).
			AddRow("public", "refresh", "PROCEDURE", "", "", "refresh_1234"))
	mock.ExpectQuery("FROM information_schema.parameters").WillReturnError(errors.New("permission denied"))

	procs, err := cat.ListProcedures(context.Background())
	require.NoError(t, err)
	require.Len(t, procs, 1)
	require.Len(t, procs[0].Problems, 1)
	assert.Equal(t, "parameters", procs[0].Problems[0].Detail)
}

func TestListTriggersMergesEvents(t *testing.T) {
	cat, mock := mockCatalog(t, dialect.PostgreSQL)

	mock.ExpectQuery("FROM information_schema.triggers").WillReturnRows(
		sqlmock.NewRows([]string{"schema", "name", "table", "event", "timing", "body"}).
			AddRow("public", "audit", "orders", "DELETE", "AFTER", "EXECUTE FUNCTION audit()").
			AddRow("public", "audit", "orders", "INSERT", "AFTER", "EXECUTE FUNCTION audit()").
			AddRow("public", "audit", "orders", "UPDATE", "AFTER", "EXECUTE FUNCTION audit()").
			AddRow("public", "stamp", "orders", "UPDATE", "BEFORE", "EXECUTE FUNCTION stamp()"))

	triggers, err := cat.ListTriggers(context.Background())
	require.NoError(t, err)
	require.Len(t, triggers, 2)
	assert.Equal(t, []string{"DELETE", "INSERT", "UPDATE"}, triggers[0].Events)
	assert.Equal(t, "BEFORE", triggers[1].Timing)
}

func TestCatalogRequiresHandle(t *testing.T) {
	cat, mock := mockCatalog(t, dialect.MySQL)
	mock.ExpectClose()
	require.NoError(t, cat.sess.Disconnect())

	_, err := cat.ListViews(context.Background())
	assert.ErrorIs(t, err, dberr.ErrNotConnected)
}

func TestColumnStatsNumeric(t *testing.T) {
	cat := sqliteCatalog(t)
	st, err := cat.ColumnStats(context.Background(), "", "orders", "total")
	require.NoError(t, err)

	assert.Equal(t, schema.ObjectRef{Schema: "main", Name: "orders"}, st.Table)
	assert.Equal(t, int64(3), st.Rows)
	assert.Equal(t, int64(3), st.NonNull)
	assert.Equal(t, int64(0), st.Nulls())
	require.NotNil(t, st.Distinct)
	assert.Equal(t, int64(3), *st.Distinct)
	require.NotNil(t, st.Min)
	require.NotNil(t, st.Max)
	assert.Equal(t, "10", *st.Min)
	assert.Equal(t, "250", *st.Max)
	require.NotNil(t, st.Avg)
	assert.InDelta(t, 119.8333, *st.Avg, 0.001)
	require.NotNil(t, st.StdDev)
	assert.InDelta(t, 99.0289, *st.StdDev, 0.001)
}

func TestColumnStatsTextAndNulls(t *testing.T) {
	cat := sqliteCatalog(t)
	st, err := cat.ColumnStats(context.Background(), "", "customers", "select")
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.Rows)
	assert.Equal(t, int64(0), st.NonNull)
	assert.Equal(t, int64(2), st.Nulls())
	assert.Nil(t, st.Min)
	assert.Nil(t, st.Avg)
	assert.Nil(t, st.StdDev)

	st, err = cat.ColumnStats(context.Background(), "", "customers", "email")
	require.NoError(t, err)
	require.NotNil(t, st.Min)
	assert.Equal(t, "a@example.com", *st.Min)
	assert.Nil(t, st.Avg)
}

func TestColumnStatsMissingColumn(t *testing.T) {
	cat := sqliteCatalog(t)
	_, err := cat.ColumnStats(context.Background(), "", "orders", "nope")
	var nf *dberr.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "column", nf.Kind)
}

func TestColumnStatsQueryQuotesIdentifiers(t *testing.T) {
	d, err := session.DialectFor(dialect.MySQL)
	require.NoError(t, err)
	table := &schema.Table{Schema: "shop", Name: "order lines"}

	q := columnStatsQuery(d, table, schema.Column{Name: "qty`x", Type: "int(11) unsigned"})
	assert.Equal(t, "SELECT COUNT(*), COUNT(`qty``x`), COUNT(DISTINCT `qty``x`), MIN(`qty``x`), MAX(`qty``x`), "+
		"AVG(`qty``x`), AVG((`qty``x` * 1.0) * `qty``x`) FROM `shop`.`order lines`", q)

	q = columnStatsQuery(d, table, schema.Column{Name: "doc", Type: "json"})
	assert.Equal(t, "SELECT COUNT(*), COUNT(`doc`), NULL, NULL, NULL, NULL, NULL FROM `shop`.`order lines`", q)
}

func TestServerInfoSQLite(t *testing.T) {
	cat := sqliteCatalog(t)
	info, err := cat.ServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dialect.SQLite, info.Engine)
	assert.Regexp(t, `^3\.\d+\.\d+`, info.Version)
	require.NotNil(t, info.SizeBytes)
	assert.Greater(t, *info.SizeBytes, int64(0))
	assert.Nil(t, info.Connections)
	assert.Equal(t, "UTF-8", info.Encoding)
}

func TestServerInfoPostgres(t *testing.T) {
	cat, mock := mockCatalog(t, dialect.PostgreSQL)
	mock.ExpectQuery(regexp.QuoteMeta("pg_database_size(current_database())")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "size", "connections", "encoding"}).
			AddRow("PostgreSQL 17.2", int64(7_500_000), int64(4), "UTF8"))

	info, err := cat.ServerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "PostgreSQL 17.2", info.Version)
	require.NotNil(t, info.SizeBytes)
	assert.Equal(t, int64(7_500_000), *info.SizeBytes)
	require.NotNil(t, info.Connections)
	assert.Equal(t, int64(4), *info.Connections)
	assert.Equal(t, "UTF8", info.Encoding)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServerInfoFailure(t *testing.T) {
	cat, mock := mockCatalog(t, dialect.MySQL)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT VERSION()")).WillReturnError(errors.New("gone away"))
	_, err := cat.ServerInfo(context.Background())
	assert.ErrorContains(t, err, "server info")
}
