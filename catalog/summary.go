package catalog

import (
	"context"

	"github.com/jadedragon942/dbharbor/schema"
)

// Summary counts the objects of the selected database.
type Summary struct {
	Database    string
	Tables      int
	Views       int
	Procedures  int
	Functions   int
	Triggers    int
	ForeignKeys int
	// ApproxRows sums the approximate row counts the engine reports.
	ApproxRows int64
	TotalBytes int64
}

func (c *Catalog) Summary(ctx context.Context) (Summary, error) {
	s := Summary{Database: c.sess.CurrentDatabase()}

	tables, err := c.ListTables(ctx, schema.CountApproximate)
	if err != nil {
		return s, err
	}
	for _, t := range tables {
		if t.Kind == schema.KindView {
			s.Views++
			continue
		}
		s.Tables++
		if t.RowCount != nil {
			s.ApproxRows += *t.RowCount
		}
		if t.SizeBytes != nil {
			s.TotalBytes += *t.SizeBytes
		}
	}

	routines, err := c.ListRoutines(ctx)
	if err != nil {
		return s, err
	}
	for _, r := range routines {
		if r.Kind == schema.KindProcedure {
			s.Procedures++
		} else {
			s.Functions++
		}
	}

	triggers, err := c.ListTriggers(ctx)
	if err != nil {
		return s, err
	}
	s.Triggers = len(triggers)

	edges, err := c.ForeignKeys(ctx)
	if err != nil {
		return s, err
	}
	s.ForeignKeys = len(schema.GroupForeignKeys(edges))
	return s, nil
}
