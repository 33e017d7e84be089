// Package dbtest holds engine-independent scenarios that every supported
// engine must pass. Each scenario creates the tables it needs and drops them
// again, so it can run against a shared database.
package dbtest

import (
	"context"
	"testing"

	"github.com/jadedragon942/dbharbor/explorer"
	"github.com/jadedragon942/dbharbor/export"
	"github.com/jadedragon942/dbharbor/query"
	"github.com/jadedragon942/dbharbor/result"
	"github.com/jadedragon942/dbharbor/schema"
)

var fixture = []string{
	"CREATE TABLE dbh_authors (id INTEGER PRIMARY KEY, name VARCHAR(100) NOT NULL, bio VARCHAR(200))",
	`CREATE TABLE dbh_books (
		id INTEGER PRIMARY KEY,
		author_id INTEGER,
		title VARCHAR(200) NOT NULL,
		FOREIGN KEY (author_id) REFERENCES dbh_authors (id)
	)`,
	"CREATE INDEX dbh_books_author ON dbh_books (author_id)",
}

var teardown = []string{
	"DROP TABLE IF EXISTS dbh_books",
	"DROP TABLE IF EXISTS dbh_authors",
}

// Setup creates the fixture tables and registers their removal.
func Setup(t *testing.T, ex *explorer.Explorer) {
	t.Helper()
	ctx := context.Background()
	for _, stmt := range teardown {
		mustExec(t, ex, stmt)
	}
	for _, stmt := range fixture {
		mustExec(t, ex, stmt)
	}
	t.Cleanup(func() {
		for _, stmt := range teardown {
			if res := ex.Execute(ctx, stmt); res.Err() != nil {
				t.Logf("teardown %q: %v", stmt, res.Err())
			}
		}
	})
}

func mustExec(t *testing.T, ex *explorer.Explorer, stmt string, args ...any) *result.Result {
	t.Helper()
	res := ex.Execute(context.Background(), stmt, args...)
	if res.Err() != nil {
		t.Fatalf("failed to execute %q: %v", stmt, res.Err())
	}
	return res
}

// placeholders returns n bind markers in the session's dialect.
func placeholders(ex *explorer.Explorer, n int) []string {
	d := ex.Session.Dialect()
	out := make([]string, n)
	for i := range out {
		out[i] = d.Placeholder(i + 1)
	}
	return out
}

func insertAuthor(t *testing.T, ex *explorer.Explorer, id int, name string, bio any) *result.Result {
	p := placeholders(ex, 3)
	return ex.Execute(context.Background(),
		"INSERT INTO dbh_authors (id, name, bio) VALUES ("+p[0]+", "+p[1]+", "+p[2]+")", id, name, bio)
}

// Run executes every scenario.
func Run(t *testing.T, ex *explorer.Explorer) {
	t.Run("Catalog", func(t *testing.T) { CatalogTest(t, ex) })
	t.Run("Query", func(t *testing.T) { QueryTest(t, ex) })
	t.Run("Export", func(t *testing.T) { ExportTest(t, ex) })
	t.Run("Integrity", func(t *testing.T) { IntegrityTest(t, ex) })
}

// CatalogTest checks listing and describing the fixture.
func CatalogTest(t *testing.T, ex *explorer.Explorer) {
	Setup(t, ex)
	ctx := context.Background()

	tables, err := ex.ListTables(ctx, schema.CountExact)
	if err != nil {
		t.Fatalf("failed to list tables: %v", err)
	}
	found := 0
	for i, tbl := range tables {
		if i > 0 && tables[i].Ref().Less(tables[i-1].Ref()) {
			t.Errorf("tables out of order: %s after %s", tables[i].Ref(), tables[i-1].Ref())
		}
		if tbl.Name == "dbh_authors" || tbl.Name == "dbh_books" {
			found++
			if tbl.RowSource != schema.CountExact || tbl.RowCount == nil || *tbl.RowCount != 0 {
				t.Errorf("%s: expected exact count 0, got %v (%s)", tbl.Name, tbl.RowCount, tbl.RowSource)
			}
		}
	}
	if found != 2 {
		t.Fatalf("expected both fixture tables, found %d", found)
	}

	books, err := ex.DescribeTable(ctx, "", "dbh_books")
	if err != nil {
		t.Fatalf("failed to describe dbh_books: %v", err)
	}
	if len(books.Problems) > 0 {
		t.Errorf("describe reported problems: %v", books.Problems)
	}
	var names []string
	for _, c := range books.Columns {
		names = append(names, c.Name)
	}
	if len(names) != 3 || names[0] != "id" || names[1] != "author_id" || names[2] != "title" {
		t.Errorf("unexpected columns: %v", names)
	}
	if pk := books.PrimaryKey(); len(pk) != 1 || pk[0] != "id" {
		t.Errorf("unexpected primary key: %v", pk)
	}
	if title, ok := books.Column("title"); !ok || title.Nullable {
		t.Errorf("title should be NOT NULL: %+v", title)
	}
	indexed := false
	for _, idx := range books.Indexes {
		if idx.Name == "dbh_books_author" && len(idx.Columns) == 1 && idx.Columns[0] == "author_id" {
			indexed = true
		}
	}
	if !indexed {
		t.Errorf("index dbh_books_author missing: %+v", books.Indexes)
	}

	if _, err := ex.DescribeTable(ctx, "", "dbh_missing"); err == nil {
		t.Errorf("describing a missing table succeeded")
	}

	for i, name := range []string{"Le Guin", "Pratchett"} {
		if res := insertAuthor(t, ex, i+1, name, nil); res.Err() != nil {
			t.Fatalf("failed to insert %s: %v", name, res.Err())
		}
	}
	st, err := ex.ColumnStats(ctx, "", "dbh_authors", "id")
	if err != nil {
		t.Fatalf("failed to compute column stats: %v", err)
	}
	if st.Rows != 2 || st.Nulls() != 0 || st.Min == nil || *st.Min != "1" || st.Avg == nil || *st.Avg != 1.5 {
		t.Errorf("unexpected stats for dbh_authors.id: %+v", st)
	}
	if st, err := ex.ColumnStats(ctx, "", "dbh_authors", "bio"); err != nil || st.Nulls() != 2 || st.Avg != nil {
		t.Errorf("unexpected stats for dbh_authors.bio: %+v, %v", st, err)
	}

	info, err := ex.ServerInfo(ctx)
	if err != nil {
		t.Fatalf("failed to read server info: %v", err)
	}
	if info.Version == "" || info.Engine != ex.Session.Engine() {
		t.Errorf("unexpected server info: %+v", info)
	}
}

// QueryTest checks binding, commit and rollback.
func QueryTest(t *testing.T, ex *explorer.Explorer) {
	Setup(t, ex)
	ctx := context.Background()

	if res := insertAuthor(t, ex, 1, "Ursula", nil); res.Err() != nil {
		t.Fatalf("insert failed: %v", res.Err())
	} else if n, ok := res.RowsAffected(); ok && n != 1 {
		t.Errorf("expected 1 affected row, got %d", n)
	}
	if res := insertAuthor(t, ex, 2, "", "empty name"); res.Err() != nil {
		t.Fatalf("insert failed: %v", res.Err())
	}

	// duplicate key fails and rolls back
	if res := insertAuthor(t, ex, 1, "Dup", nil); res.Err() == nil {
		t.Fatalf("duplicate insert succeeded")
	}

	p := placeholders(ex, 1)
	res := mustExec(t, ex, "SELECT id, name, bio FROM dbh_authors WHERE id >= "+p[0]+" ORDER BY id", 1)
	if !res.HasResultSet() || res.RowCount() != 2 {
		t.Fatalf("expected 2 rows, got %d", res.RowCount())
	}
	first, _ := res.Record(0)
	if name, _ := first.GetString("name"); name != "Ursula" {
		t.Errorf("unexpected name %q", name)
	}
	if !first.IsNull("bio") {
		t.Errorf("bio should be NULL")
	}
	second, _ := res.Record(1)
	if second.IsNull("name") {
		t.Errorf("empty string came back as NULL")
	}

	empty := mustExec(t, ex, "SELECT id FROM dbh_authors WHERE id < 0")
	if !empty.HasResultSet() || empty.RowCount() != 0 || empty.NumColumns() != 1 {
		t.Errorf("empty select should keep its column: cols=%d rows=%d", empty.NumColumns(), empty.RowCount())
	}

	page, err := ex.Browse(ctx, "", "dbh_authors", query.Page{Limit: 10, Search: "urs"})
	if err != nil || page.Err() != nil {
		t.Fatalf("browse failed: %v %v", err, page.Err())
	}
	if page.RowCount() != 1 {
		t.Errorf("browse search matched %d rows", page.RowCount())
	}
}

// ExportTest round-trips the fixture through CSV.
func ExportTest(t *testing.T, ex *explorer.Explorer) {
	Setup(t, ex)
	ctx := context.Background()
	for i, name := range []string{"a", "b", "c"} {
		if res := insertAuthor(t, ex, i+1, name, nil); res.Err() != nil {
			t.Fatalf("insert failed: %v", res.Err())
		}
	}

	p, err := ex.ExportTable(ctx, "", "dbh_authors", export.CSV, export.Options{})
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if p.Rows != 3 || p.Columns != 3 {
		t.Errorf("unexpected export shape: %d rows %d columns", p.Rows, p.Columns)
	}

	empty, err := ex.ExportTable(ctx, "", "dbh_books", export.JSON, export.Options{})
	if err != nil {
		t.Fatalf("empty export failed: %v", err)
	}
	if string(empty.Data) != "[]" {
		t.Errorf("empty JSON export should be [], got %q", empty.Data)
	}
}

// IntegrityTest checks a consistent foreign key reports no orphans.
func IntegrityTest(t *testing.T, ex *explorer.Explorer) {
	Setup(t, ex)
	ctx := context.Background()
	if res := insertAuthor(t, ex, 1, "a", nil); res.Err() != nil {
		t.Fatalf("insert failed: %v", res.Err())
	}
	p := placeholders(ex, 3)
	mustExec(t, ex, "INSERT INTO dbh_books (id, author_id, title) VALUES ("+p[0]+", "+p[1]+", "+p[2]+")", 1, 1, "t1")
	mustExec(t, ex, "INSERT INTO dbh_books (id, author_id, title) VALUES ("+p[0]+", "+p[1]+", "+p[2]+")", 2, nil, "t2")

	reports, err := ex.CheckTable(ctx, "", "dbh_books")
	if err != nil {
		t.Fatalf("integrity check failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("expected one foreign key, got %d", len(reports))
	}
	if !reports[0].OK() {
		t.Errorf("unexpected orphans: %d (%v)", reports[0].Orphans, reports[0].Err)
	}
}
