package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/dialect"
	"github.com/jadedragon942/dbharbor/schema"
)

func (c *Catalog) ListViews(ctx context.Context) ([]schema.View, error) {
	var views []schema.View
	err := c.query(ctx, c.dialect().ViewsQuery(), nil, func(rows *sql.Rows) error {
		var (
			v         schema.View
			updatable int64
		)
		if err := rows.Scan(&v.Schema, &v.Name, &v.Definition, &updatable); err != nil {
			return err
		}
		v.Updatable = updatable != 0
		views = append(views, v)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list views: %w", err)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Ref().Less(views[j].Ref())
	})
	return views, nil
}

func (c *Catalog) DescribeView(ctx context.Context, schemaName, name string) (*schema.View, error) {
	views, err := c.ListViews(ctx)
	if err != nil {
		return nil, err
	}
	for i := range views {
		v := &views[i]
		if !matches(v.Schema, v.Name, schemaName, name) {
			continue
		}
		if v.Columns, err = c.ListColumns(ctx, v.Schema, v.Name); err != nil {
			v.AddProblem("columns", err)
		}
		return v, nil
	}
	return nil, &dberr.NotFoundError{Kind: "view", Schema: schemaName, Name: name}
}

// ListRoutines returns procedures and functions with their parameters. A
// failed parameter lookup is recorded on every routine instead of failing
// the listing.
func (c *Catalog) ListRoutines(ctx context.Context) ([]schema.Routine, error) {
	q := c.dialect().RoutinesQuery()
	if q == "" {
		return nil, nil
	}

	var routines []schema.Routine
	err := c.query(ctx, q, nil, func(rows *sql.Rows) error {
		var (
			r    schema.Routine
			kind string
		)
		if err := rows.Scan(&r.Schema, &r.Name, &kind, &r.ReturnType, &r.Definition, &r.SpecificName); err != nil {
			return err
		}
		r.Kind = schema.KindFunction
		if kind == string(schema.KindProcedure) {
			r.Kind = schema.KindProcedure
			r.ReturnType = ""
		}
		routines = append(routines, r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list routines: %w", err)
	}
	sort.SliceStable(routines, func(i, j int) bool {
		return routines[i].Ref().Less(routines[j].Ref())
	})

	params, err := c.parameters(ctx)
	for i := range routines {
		r := &routines[i]
		if err != nil {
			r.AddProblem("parameters", err)
			continue
		}
		r.Parameters = params[schema.ObjectRef{Schema: r.Schema, Name: r.SpecificName}]
	}
	return routines, nil
}

func (c *Catalog) parameters(ctx context.Context) (map[schema.ObjectRef][]schema.Parameter, error) {
	q := c.dialect().ParametersQuery()
	params := make(map[schema.ObjectRef][]schema.Parameter)
	if q == "" {
		return params, nil
	}
	err := c.query(ctx, q, nil, func(rows *sql.Rows) error {
		var (
			ref  schema.ObjectRef
			p    schema.Parameter
			mode string
		)
		if err := rows.Scan(&ref.Schema, &ref.Name, &p.Position, &p.Name, &p.Type, &mode); err != nil {
			return err
		}
		p.Mode = schema.ParseParamMode(mode)
		params[ref] = append(params[ref], p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list parameters: %w", err)
	}
	return params, nil
}

func (c *Catalog) ListProcedures(ctx context.Context) ([]schema.Routine, error) {
	return c.routinesOfKind(ctx, schema.KindProcedure)
}

func (c *Catalog) ListFunctions(ctx context.Context) ([]schema.Routine, error) {
	return c.routinesOfKind(ctx, schema.KindFunction)
}

func (c *Catalog) routinesOfKind(ctx context.Context, kind schema.RoutineKind) ([]schema.Routine, error) {
	all, err := c.ListRoutines(ctx)
	if err != nil {
		return nil, err
	}
	var out []schema.Routine
	for _, r := range all {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out, nil
}

// DescribeRoutine returns the first routine of that name; PostgreSQL
// overloads are listed in specific name order.
func (c *Catalog) DescribeRoutine(ctx context.Context, schemaName, name string) (*schema.Routine, error) {
	routines, err := c.ListRoutines(ctx)
	if err != nil {
		return nil, err
	}
	for i := range routines {
		if matches(routines[i].Schema, routines[i].Name, schemaName, name) {
			return &routines[i], nil
		}
	}
	return nil, &dberr.NotFoundError{Kind: "routine", Schema: schemaName, Name: name}
}

// ListTriggers merges the per event rows PostgreSQL reports into one
// trigger.
func (c *Catalog) ListTriggers(ctx context.Context) ([]schema.Trigger, error) {
	normalizer, _ := c.dialect().(dialect.TriggerNormalizer)

	var triggers []schema.Trigger
	index := make(map[[3]string]int)
	err := c.query(ctx, c.dialect().TriggersQuery(), nil, func(rows *sql.Rows) error {
		var t schema.Trigger
		var event string
		if err := rows.Scan(&t.Schema, &t.Name, &t.Table, &event, &t.Timing, &t.Body); err != nil {
			return err
		}
		key := [3]string{t.Schema, t.Name, t.Table}
		if i, ok := index[key]; ok {
			triggers[i].AddEvent(event)
			return nil
		}
		t.AddEvent(event)
		if normalizer != nil {
			normalizer.NormalizeTrigger(&t)
		}
		index[key] = len(triggers)
		triggers = append(triggers, t)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list triggers: %w", err)
	}
	sort.SliceStable(triggers, func(i, j int) bool {
		return triggers[i].Ref().Less(triggers[j].Ref())
	})
	return triggers, nil
}

func (c *Catalog) DescribeTrigger(ctx context.Context, schemaName, name string) (*schema.Trigger, error) {
	triggers, err := c.ListTriggers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range triggers {
		if matches(triggers[i].Schema, triggers[i].Name, schemaName, name) {
			return &triggers[i], nil
		}
	}
	return nil, &dberr.NotFoundError{Kind: "trigger", Schema: schemaName, Name: name}
}

// ForeignKeys returns every foreign key column pair of the database ordered
// by source table, constraint and position.
func (c *Catalog) ForeignKeys(ctx context.Context) ([]schema.ForeignKeyEdge, error) {
	var edges []schema.ForeignKeyEdge
	err := c.query(ctx, c.dialect().ForeignKeysQuery(), nil, func(rows *sql.Rows) error {
		var e schema.ForeignKeyEdge
		if err := rows.Scan(&e.SourceSchema, &e.SourceTable, &e.Constraint, &e.SourceColumn,
			&e.TargetSchema, &e.TargetTable, &e.TargetColumn, &e.Position); err != nil {
			return err
		}
		edges = append(edges, e)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list foreign keys: %w", err)
	}
	sort.SliceStable(edges, func(i, j int) bool {
		a, b := edges[i], edges[j]
		if a.Source() != b.Source() {
			return a.Source().Less(b.Source())
		}
		if a.Constraint != b.Constraint {
			return a.Constraint < b.Constraint
		}
		return a.Position < b.Position
	})
	return edges, nil
}
