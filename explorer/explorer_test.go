package explorer

import (
	"archive/zip"
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/export"
	"github.com/jadedragon942/dbharbor/query"
	"github.com/jadedragon942/dbharbor/schema"
	"github.com/jadedragon942/dbharbor/session"
)

const library = `
CREATE TABLE authors (id INTEGER PRIMARY KEY, name TEXT NOT NULL);
CREATE TABLE books (
	id INTEGER PRIMARY KEY,
	author_id INTEGER REFERENCES authors(id),
	title TEXT NOT NULL
);
CREATE TABLE tags (name TEXT PRIMARY KEY);
CREATE VIEW titles AS SELECT title FROM books;
INSERT INTO authors VALUES (1, 'Le Guin'), (2, 'Pratchett');
INSERT INTO books VALUES (1, 1, 'The Dispossessed'), (2, 2, 'Mort'), (3, 2, 'Small Gods');
`

func open(t *testing.T) *Explorer {
	t.Helper()
	ctx := context.Background()
	ex, err := Open(ctx, session.Config{Engine: dialect.SQLite, Host: filepath.Join(t.TempDir(), "lib.db")})
	require.NoError(t, err)
	t.Cleanup(func() { ex.Close() })

	db, err := ex.Session.Handle()
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, library)
	require.NoError(t, err)
	return ex
}

func TestBrowseAndCall(t *testing.T) {
	ex := open(t)
	ctx := context.Background()

	res, err := ex.Browse(ctx, "", "books", query.Page{Search: "gods"})
	require.NoError(t, err)
	require.NoError(t, res.Err())
	assert.Equal(t, 1, res.RowCount())

	_, err = ex.Browse(ctx, "", "missing", query.Page{})
	var nf *dberr.NotFoundError
	assert.ErrorAs(t, err, &nf)

	_, err = ex.Call(ctx, "", "anything", nil)
	assert.Error(t, err)
}

func TestExportTable(t *testing.T) {
	ex := open(t)
	p, err := ex.ExportTable(context.Background(), "", "books", export.CSV, export.Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Rows)
	assert.Contains(t, p.Filename, "books_")
}

func TestExportAllSkipsViews(t *testing.T) {
	ex := open(t)
	p, err := ex.ExportAll(context.Background(), export.JSON, export.Options{})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(p.Data), int64(len(p.Data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"authors.json", "books.json", "tags.json", export.ManifestName}, names)
}

func TestIntegrity(t *testing.T) {
	ex := open(t)
	ctx := context.Background()

	reports, err := ex.CheckIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.True(t, reports[0].OK())

	reports, err = ex.CheckTable(ctx, "", "books")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, schema.ObjectRef{Schema: "main", Name: "authors"}, reports[0].ForeignKey.Target)

	_, err = ex.CheckTable(ctx, "", "tags")
	var nf *dberr.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSummary(t *testing.T) {
	ex := open(t)
	sum, err := ex.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Tables)
	assert.Equal(t, 1, sum.Views)
	assert.Equal(t, 1, sum.ForeignKeys)
}

func TestStatsInfoAndHistory(t *testing.T) {
	ex := open(t)
	ctx := context.Background()

	st, err := ex.ColumnStats(ctx, "", "books", "author_id")
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Rows)
	require.NotNil(t, st.Distinct)
	assert.Equal(t, int64(2), *st.Distinct)

	info, err := ex.ServerInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, dialect.SQLite, info.Engine)

	require.NoError(t, ex.Execute(ctx, "SELECT title FROM books").Err())
	hist := ex.History()
	require.Len(t, hist, 1)
	assert.Equal(t, "SELECT title FROM books", hist[0].Statement)
	assert.True(t, hist[0].Succeeded())
}
