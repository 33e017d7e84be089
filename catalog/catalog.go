package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/schema"
	"github.com/jadedragon942/dbharbor/session"
)

type Catalog struct {
	sess *session.Session
}

func New(sess *session.Session) *Catalog {
	return &Catalog{sess: sess}
}

func (c *Catalog) dialect() dialect.Dialect {
	return c.sess.Dialect()
}

// query runs q and hands every row to scan.
func (c *Catalog) query(ctx context.Context, q string, args []any, scan func(*sql.Rows) error) error {
	db, err := c.sess.Handle()
	if err != nil {
		return err
	}
	log.Debug().Str("query", q).Interface("args", args).Msg("catalog query")

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

func (c *Catalog) ListTables(ctx context.Context, count schema.CountSource) ([]schema.Table, error) {
	var tables []schema.Table
	err := c.query(ctx, c.dialect().TablesQuery(), nil, func(rows *sql.Rows) error {
		var (
			t         schema.Table
			kind      string
			approx    sql.NullInt64
			sizeBytes sql.NullInt64
		)
		if err := rows.Scan(&t.Schema, &t.Name, &kind, &t.ColumnCount, &approx, &sizeBytes, &t.Comment); err != nil {
			return err
		}
		t.Kind = schema.ParseTableKind(kind)
		t.RowSource = schema.CountUnknown
		if approx.Valid && t.Kind == schema.KindBaseTable {
			n := approx.Int64
			t.RowCount = &n
			t.RowSource = schema.CountApproximate
		}
		if sizeBytes.Valid {
			n := sizeBytes.Int64
			t.SizeBytes = &n
		}
		tables = append(tables, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	sortTables(tables)

	if count == schema.CountExact {
		for i := range tables {
			if tables[i].Kind != schema.KindBaseTable {
				continue
			}
			n, err := c.exactCount(ctx, tables[i].Schema, tables[i].Name)
			if err != nil {
				tables[i].AddProblem("exact row count", err)
				continue
			}
			tables[i].RowCount = &n
			tables[i].RowSource = schema.CountExact
		}
	}
	return tables, nil
}

// DescribeTable returns the table with its columns, indexes and
// constraints. An empty schemaName matches the first table of that name.
func (c *Catalog) DescribeTable(ctx context.Context, schemaName, name string) (*schema.Table, error) {
	tables, err := c.ListTables(ctx, schema.CountApproximate)
	if err != nil {
		return nil, err
	}

	for i := range tables {
		t := &tables[i]
		if !matches(t.Schema, t.Name, schemaName, name) {
			continue
		}
		if t.Columns, err = c.ListColumns(ctx, t.Schema, t.Name); err != nil {
			t.AddProblem("columns", err)
		}
		if t.Indexes, err = c.ListIndexes(ctx, t.Schema, t.Name); err != nil {
			t.AddProblem("indexes", err)
		}
		if t.Constraints, err = c.ListConstraints(ctx, t.Schema, t.Name); err != nil {
			t.AddProblem("constraints", err)
		}
		return t, nil
	}
	return nil, &dberr.NotFoundError{Kind: "table", Schema: schemaName, Name: name}
}

func (c *Catalog) ListColumns(ctx context.Context, schemaName, table string) ([]schema.Column, error) {
	q, args := c.dialect().ColumnsQuery(schemaName, table)
	var cols []schema.Column
	err := c.query(ctx, q, args, func(rows *sql.Rows) error {
		var (
			col      schema.Column
			nullable string
			def      sql.NullString
			role     string
		)
		if err := rows.Scan(&col.Name, &col.Type, &nullable, &def, &col.Position, &role, &col.Extra, &col.Comment); err != nil {
			return err
		}
		col.Nullable = nullable == "YES"
		if def.Valid {
			v := def.String
			col.Default = &v
		}
		col.Key = schema.KeyRole(role)
		cols = append(cols, col)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", table, err)
	}
	return cols, nil
}

func (c *Catalog) ListIndexes(ctx context.Context, schemaName, table string) ([]schema.Index, error) {
	q, args := c.dialect().IndexesQuery(schemaName, table)
	var indexes []schema.Index
	err := c.query(ctx, q, args, func(rows *sql.Rows) error {
		var (
			name, column    string
			unique, primary int64
			seq             int
		)
		if err := rows.Scan(&name, &column, &unique, &primary, &seq); err != nil {
			return err
		}
		if n := len(indexes); n > 0 && indexes[n-1].Name == name {
			indexes[n-1].Columns = append(indexes[n-1].Columns, column)
			return nil
		}
		indexes = append(indexes, schema.Index{
			Name:    name,
			Columns: []string{column},
			Unique:  unique != 0,
			Primary: primary != 0,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list indexes of %s: %w", table, err)
	}
	return indexes, nil
}

func (c *Catalog) ListConstraints(ctx context.Context, schemaName, table string) ([]schema.Constraint, error) {
	q, args := c.dialect().ConstraintsQuery(schemaName, table)
	var constraints []schema.Constraint
	err := c.query(ctx, q, args, func(rows *sql.Rows) error {
		var name, typ, column string
		if err := rows.Scan(&name, &typ, &column); err != nil {
			return err
		}
		n := len(constraints)
		if n == 0 || constraints[n-1].Name != name {
			constraints = append(constraints, schema.Constraint{Name: name, Type: typ})
			n++
		}
		if column != "" {
			constraints[n-1].Columns = append(constraints[n-1].Columns, column)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list constraints of %s: %w", table, err)
	}
	return constraints, nil
}

// RowCount counts the rows of one table. Approximate counts come from the
// engine statistics and report CountUnknown when the engine keeps none.
func (c *Catalog) RowCount(ctx context.Context, schemaName, table string, mode schema.CountSource) (int64, schema.CountSource, error) {
	if mode == schema.CountExact {
		n, err := c.exactCount(ctx, schemaName, table)
		if err != nil {
			return 0, schema.CountUnknown, err
		}
		return n, schema.CountExact, nil
	}

	tables, err := c.ListTables(ctx, schema.CountApproximate)
	if err != nil {
		return 0, schema.CountUnknown, err
	}
	for _, t := range tables {
		if matches(t.Schema, t.Name, schemaName, table) {
			if t.RowCount == nil {
				return 0, schema.CountUnknown, nil
			}
			return *t.RowCount, t.RowSource, nil
		}
	}
	return 0, schema.CountUnknown, &dberr.NotFoundError{Kind: "table", Schema: schemaName, Name: table}
}

func (c *Catalog) exactCount(ctx context.Context, schemaName, table string) (int64, error) {
	db, err := c.sess.Handle()
	if err != nil {
		return 0, err
	}
	q := "SELECT COUNT(*) FROM " + c.dialect().QualifiedName(schemaName, table)
	log.Debug().Str("query", q).Msg("exact row count")

	var n int64
	if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", table, err)
	}
	return n, nil
}

func matches(gotSchema, gotName, wantSchema, wantName string) bool {
	return gotName == wantName && (wantSchema == "" || gotSchema == wantSchema)
}

func sortTables(tables []schema.Table) {
	sort.SliceStable(tables, func(i, j int) bool {
		return tables[i].Ref().Less(tables[j].Ref())
	})
}
