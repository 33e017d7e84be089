package relation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/query"
	"github.com/jadedragon942/dbharbor/schema"
	"github.com/jadedragon942/dbharbor/session"
)

// Report is the outcome of checking one constraint.
type Report struct {
	ForeignKey schema.ForeignKey
	Orphans    int64
	Duration   time.Duration
	Err        error
}

func (r Report) OK() bool {
	return r.Err == nil && r.Orphans == 0
}

// Checker runs integrity checks through a query gateway, so they share its
// read-only transactions, logging and metrics.
type Checker struct {
	gw *query.Gateway
}

func NewChecker(gw *query.Gateway) *Checker {
	if gw == nil {
		gw = query.New()
	}
	return &Checker{gw: gw}
}

// CheckIntegrity counts orphans of fk with a default checker.
func CheckIntegrity(ctx context.Context, sess *session.Session, fk schema.ForeignKey) (int64, error) {
	return NewChecker(nil).CheckIntegrity(ctx, sess, fk)
}

// CheckIntegrity counts source rows whose key has no match in the target.
// All column pairs are matched together, and a row with any NULL key column
// is never an orphan.
func (c *Checker) CheckIntegrity(ctx context.Context, sess *session.Session, fk schema.ForeignKey) (int64, error) {
	if len(fk.Pairs) == 0 {
		return 0, fmt.Errorf("foreign key %s has no columns", fk.Name)
	}
	res := c.gw.Execute(ctx, sess, orphanQuery(sess.Dialect(), fk))
	if err := res.Err(); err != nil {
		return 0, err
	}
	rec, ok := res.Record(0)
	if !ok {
		return 0, fmt.Errorf("orphan count for %s returned no rows", fk.Name)
	}
	n, ok := rec.GetInt64("orphans")
	if !ok {
		return 0, fmt.Errorf("orphan count for %s is not a number", fk.Name)
	}
	if n > 0 {
		log.Warn().
			Str("constraint", fk.Name).
			Str("table", fk.Source.String()).
			Int64("orphans", n).
			Msg("orphaned rows")
	}
	return n, nil
}

func orphanQuery(d dialect.Dialect, fk schema.ForeignKey) string {
	src, tgt := d.QuoteIdent("s"), d.QuoteIdent("t")
	var on, notNull []string
	for _, p := range fk.Pairs {
		sc := src + "." + d.QuoteIdent(p.Source)
		on = append(on, sc+" = "+tgt+"."+d.QuoteIdent(p.Target))
		notNull = append(notNull, sc+" IS NOT NULL")
	}
	first := tgt + "." + d.QuoteIdent(fk.Pairs[0].Target)

	return "SELECT COUNT(*) AS orphans FROM " + d.QualifiedName(fk.Source.Schema, fk.Source.Name) + " " + src +
		" LEFT JOIN " + d.QualifiedName(fk.Target.Schema, fk.Target.Name) + " " + tgt +
		" ON " + strings.Join(on, " AND ") +
		" WHERE " + strings.Join(notNull, " AND ") +
		" AND " + first + " IS NULL"
}

// CheckEdge checks the whole constraint an edge belongs to, never the
// single column pair on its own.
func (c *Checker) CheckEdge(ctx context.Context, sess *session.Session, g *Graph, edge schema.ForeignKeyEdge) (Report, error) {
	fk, ok := g.Lookup(edge)
	if !ok {
		return Report{}, &dberr.NotFoundError{Kind: "foreign key", Schema: edge.SourceSchema, Name: edge.Constraint}
	}
	return c.check(ctx, sess, fk), nil
}

// CheckAll checks every constraint of the graph in order. A failing check
// is recorded on its report and the rest still run.
func (c *Checker) CheckAll(ctx context.Context, sess *session.Session, g *Graph) []Report {
	reports := make([]Report, 0, len(g.fks))
	for _, fk := range g.fks {
		reports = append(reports, c.check(ctx, sess, fk))
	}
	return reports
}

func (c *Checker) check(ctx context.Context, sess *session.Session, fk schema.ForeignKey) Report {
	start := time.Now()
	n, err := c.CheckIntegrity(ctx, sess, fk)
	return Report{ForeignKey: fk, Orphans: n, Duration: time.Since(start), Err: err}
}
