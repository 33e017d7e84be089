package query

import (
	"context"
	"database/sql"
	"strings"

	"github.com/jadedragon942/dbharbor/result"
	"github.com/jadedragon942/dbharbor/schema"
	"github.com/jadedragon942/dbharbor/session"
)

const (
	DefaultPageSize = 100
	MaxPageSize     = 10000
)

// Page selects a window of a table. Search matches rows where any text
// column contains the value.
type Page struct {
	Limit  int
	Offset int
	Search string
}

// Browse previews a described table. Values are always bound; only the
// quoted table and column names are part of the statement text.
func (g *Gateway) Browse(ctx context.Context, sess *session.Session, table *schema.Table, page Page) *result.Result {
	statement, args := browseStatement(sess, table, page)
	return g.invoke(ctx, sess, invocationSpec{
		statement: statement,
		kind:      result.StatementRead,
		readOnly:  true,
		run: func(ctx context.Context, tx *sql.Tx) (result.Draft, error) {
			return g.query(ctx, tx, statement, args)
		},
	})
}

func browseStatement(sess *session.Session, table *schema.Table, page Page) (string, []any) {
	d := sess.Dialect()
	limit := page.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	var (
		b    strings.Builder
		args []any
	)
	b.WriteString("SELECT * FROM ")
	b.WriteString(d.QualifiedName(table.Schema, table.Name))

	if page.Search != "" {
		pattern := "%" + escapeLike(page.Search) + "%"
		var conds []string
		for _, c := range table.Columns {
			if !c.IsText() {
				continue
			}
			args = append(args, pattern)
			conds = append(conds, d.QuoteIdent(c.Name)+" LIKE "+d.Placeholder(len(args))+" ESCAPE '!'")
		}
		if len(conds) == 0 {
			b.WriteString(" WHERE 1 = 0")
		} else {
			b.WriteString(" WHERE " + strings.Join(conds, " OR "))
		}
	}

	args = append(args, limit)
	b.WriteString(" LIMIT " + d.Placeholder(len(args)))
	args = append(args, offset)
	b.WriteString(" OFFSET " + d.Placeholder(len(args)))
	return b.String(), args
}

func escapeLike(s string) string {
	r := strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")
	return r.Replace(s)
}
