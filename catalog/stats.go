package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/schema"
)

// ServerInfo describes the engine behind a session and its current
// database. SizeBytes and Connections are nil when the engine does not
// report them.
type ServerInfo struct {
	Engine      dialect.Kind
	Version     string
	Database    string
	SizeBytes   *int64
	Connections *int64
	Encoding    string
}

func (c *Catalog) ServerInfo(ctx context.Context) (ServerInfo, error) {
	info := ServerInfo{Engine: c.sess.Engine(), Database: c.sess.CurrentDatabase()}
	var (
		version, encoding sql.NullString
		size, conns       sql.NullInt64
	)
	err := c.query(ctx, c.dialect().ServerInfoQuery(), nil, func(rows *sql.Rows) error {
		return rows.Scan(&version, &size, &conns, &encoding)
	})
	if err != nil {
		return info, fmt.Errorf("failed to read server info: %w", err)
	}
	info.Version = version.String
	info.Encoding = encoding.String
	if size.Valid {
		info.SizeBytes = &size.Int64
	}
	if conns.Valid {
		info.Connections = &conns.Int64
	}
	return info, nil
}

// ColumnStats summarizes the values of one column. Min and Max are set
// for numeric, text and temporal columns; Avg and StdDev for numeric ones.
// StdDev is the population standard deviation.
type ColumnStats struct {
	Table    schema.ObjectRef
	Column   string
	Type     string
	Rows     int64
	NonNull  int64
	Distinct *int64
	Min      *string
	Max      *string
	Avg      *float64
	StdDev   *float64
}

func (s ColumnStats) Nulls() int64 {
	return s.Rows - s.NonNull
}

// ColumnStats scans the whole table once. Aggregates the column type does
// not support are left out of the statement rather than attempted.
func (c *Catalog) ColumnStats(ctx context.Context, schemaName, table, column string) (*ColumnStats, error) {
	t, err := c.DescribeTable(ctx, schemaName, table)
	if err != nil {
		return nil, err
	}
	col, ok := t.Column(column)
	if !ok {
		return nil, &dberr.NotFoundError{Kind: "column", Schema: t.Schema, Name: t.Name + "." + column}
	}

	q := columnStatsQuery(c.dialect(), t, col)
	db, err := c.sess.Handle()
	if err != nil {
		return nil, err
	}
	log.Debug().Str("query", q).Msg("column stats")

	var (
		st       = ColumnStats{Table: t.Ref(), Column: col.Name, Type: col.Type}
		distinct sql.NullInt64
		lo, hi   sql.NullString
		avg, sq  sql.NullFloat64
	)
	if err := db.QueryRowContext(ctx, q).Scan(&st.Rows, &st.NonNull, &distinct, &lo, &hi, &avg, &sq); err != nil {
		return nil, fmt.Errorf("failed to compute stats of %s.%s: %w", t.Name, col.Name, err)
	}
	if distinct.Valid {
		st.Distinct = &distinct.Int64
	}
	if lo.Valid {
		st.Min = &lo.String
	}
	if hi.Valid {
		st.Max = &hi.String
	}
	if avg.Valid {
		st.Avg = &avg.Float64
		if sq.Valid {
			sd := math.Sqrt(math.Max(sq.Float64-avg.Float64*avg.Float64, 0))
			st.StdDev = &sd
		}
	}
	return &st, nil
}

// columnStatsQuery always selects seven values so the scan does not depend
// on the column type. The mean of squares is computed on a decimal or float
// operand so large integers do not overflow.
func columnStatsQuery(d dialect.Dialect, t *schema.Table, col schema.Column) string {
	c := d.QuoteIdent(col.Name)
	orderable := col.IsNumeric() || col.IsText() || col.IsTemporal()

	distinct, lo, hi, avg, sq := "NULL", "NULL", "NULL", "NULL", "NULL"
	if orderable {
		distinct = "COUNT(DISTINCT " + c + ")"
		lo = "MIN(" + c + ")"
		hi = "MAX(" + c + ")"
	}
	if col.IsNumeric() {
		avg = "AVG(" + c + ")"
		sq = "AVG((" + c + " * 1.0) * " + c + ")"
	}
	return fmt.Sprintf("SELECT COUNT(*), COUNT(%s), %s, %s, %s, %s, %s FROM %s",
		c, distinct, lo, hi, avg, sq, d.QualifiedName(t.Schema, t.Name))
}
