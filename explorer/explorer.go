// Package explorer bundles a session with the catalog, query gateway,
// exporter and relationship resolver behind one value for callers such as
// the CLI.
package explorer

import (
	"context"
	"fmt"

	"github.com/jadedragon942/dbharbor/catalog"
	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/export"
	"github.com/jadedragon942/dbharbor/metrics"
	"github.com/jadedragon942/dbharbor/query"
	"github.com/jadedragon942/dbharbor/relation"
	"github.com/jadedragon942/dbharbor/result"
	"github.com/jadedragon942/dbharbor/schema"
	"github.com/jadedragon942/dbharbor/session"
)

type Explorer struct {
	Session *session.Session
	Catalog *catalog.Catalog
	Gateway *query.Gateway
	Metrics *metrics.Metrics
}

func New(sess *session.Session) *Explorer {
	return &Explorer{
		Session: sess,
		Catalog: catalog.New(sess),
		Gateway: query.New(),
	}
}

// Open connects and wraps the new session.
func Open(ctx context.Context, cfg session.Config, opts ...session.Option) (*Explorer, error) {
	sess, err := session.Connect(ctx, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return New(sess), nil
}

func (e *Explorer) WithGateway(gw *query.Gateway) *Explorer {
	e.Gateway = gw
	return e
}

// WithMetrics records export metrics. Gateway metrics are set on the
// gateway itself.
func (e *Explorer) WithMetrics(m *metrics.Metrics) *Explorer {
	e.Metrics = m
	return e
}

func (e *Explorer) Close() error {
	return e.Session.Disconnect()
}

func (e *Explorer) ListDatabases(ctx context.Context) ([]string, error) {
	return e.Session.ListDatabases(ctx)
}

func (e *Explorer) SelectDatabase(ctx context.Context, name string) error {
	return e.Session.SelectDatabase(ctx, name)
}

func (e *Explorer) ListTables(ctx context.Context, count schema.CountSource) ([]schema.Table, error) {
	return e.Catalog.ListTables(ctx, count)
}

func (e *Explorer) DescribeTable(ctx context.Context, schemaName, name string) (*schema.Table, error) {
	return e.Catalog.DescribeTable(ctx, schemaName, name)
}

func (e *Explorer) ListViews(ctx context.Context) ([]schema.View, error) {
	return e.Catalog.ListViews(ctx)
}

func (e *Explorer) DescribeView(ctx context.Context, schemaName, name string) (*schema.View, error) {
	return e.Catalog.DescribeView(ctx, schemaName, name)
}

func (e *Explorer) ListRoutines(ctx context.Context) ([]schema.Routine, error) {
	return e.Catalog.ListRoutines(ctx)
}

func (e *Explorer) ListTriggers(ctx context.Context) ([]schema.Trigger, error) {
	return e.Catalog.ListTriggers(ctx)
}

func (e *Explorer) Summary(ctx context.Context) (catalog.Summary, error) {
	return e.Catalog.Summary(ctx)
}

func (e *Explorer) ServerInfo(ctx context.Context) (catalog.ServerInfo, error) {
	return e.Catalog.ServerInfo(ctx)
}

func (e *Explorer) ColumnStats(ctx context.Context, schemaName, table, column string) (*catalog.ColumnStats, error) {
	return e.Catalog.ColumnStats(ctx, schemaName, table, column)
}

// History lists the statements run through the gateway, newest first.
func (e *Explorer) History() []query.HistoryEntry {
	return e.Gateway.History()
}

func (e *Explorer) Execute(ctx context.Context, statement string, args ...any) *result.Result {
	return e.Gateway.Execute(ctx, e.Session, statement, args...)
}

func (e *Explorer) Explain(ctx context.Context, statement string, args ...any) *result.Result {
	return e.Gateway.Explain(ctx, e.Session, statement, args...)
}

// Call looks the routine up by name and invokes it.
func (e *Explorer) Call(ctx context.Context, schemaName, name string, args []any) (*result.Result, error) {
	r, err := e.Catalog.DescribeRoutine(ctx, schemaName, name)
	if err != nil {
		return nil, err
	}
	return e.Gateway.Call(ctx, e.Session, r, args), nil
}

// Browse previews a table by name.
func (e *Explorer) Browse(ctx context.Context, schemaName, name string, page query.Page) (*result.Result, error) {
	t, err := e.Catalog.DescribeTable(ctx, schemaName, name)
	if err != nil {
		return nil, err
	}
	return e.Gateway.Browse(ctx, e.Session, t, page), nil
}

// Export runs a statement and serializes its result.
func (e *Explorer) Export(ctx context.Context, statement string, f export.Format, opts export.Options) (*export.Payload, error) {
	res := e.Execute(ctx, statement)
	if err := res.Err(); err != nil {
		return nil, err
	}
	return export.Serialize(res, f, e.exportOptions(opts))
}

// ExportTable serializes every row of one table.
func (e *Explorer) ExportTable(ctx context.Context, schemaName, name string, f export.Format, opts export.Options) (*export.Payload, error) {
	t, err := e.Catalog.DescribeTable(ctx, schemaName, name)
	if err != nil {
		return nil, err
	}
	res, err := e.readTable(ctx, t.Ref())
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		opts.Name = t.Name
	}
	return export.Serialize(res, f, e.exportOptions(opts))
}

// ExportAll archives every base table of the current database in catalog
// order. Reading any table failing aborts the archive.
func (e *Explorer) ExportAll(ctx context.Context, f export.Format, opts export.Options) (*export.Payload, error) {
	tables, err := e.Catalog.ListTables(ctx, schema.CountUnknown)
	if err != nil {
		return nil, err
	}
	var entries []export.Entry
	for _, t := range tables {
		if t.Kind != schema.KindBaseTable {
			continue
		}
		res, err := e.readTable(ctx, t.Ref())
		if err != nil {
			return nil, fmt.Errorf("export %s: %w", t.Ref(), err)
		}
		entries = append(entries, export.Entry{Name: t.Name, Result: res})
	}
	if opts.Name == "" {
		opts.Name = e.Session.CurrentDatabase()
	}
	return export.Archive(entries, f, e.exportOptions(opts))
}

func (e *Explorer) readTable(ctx context.Context, ref schema.ObjectRef) (*result.Result, error) {
	res := e.Execute(ctx, "SELECT * FROM "+e.Session.Dialect().QualifiedName(ref.Schema, ref.Name))
	if err := res.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Explorer) exportOptions(opts export.Options) export.Options {
	if opts.Metrics == nil {
		opts.Metrics = e.Metrics
	}
	return opts
}

func (e *Explorer) Relationships(ctx context.Context) (*relation.Graph, error) {
	return relation.BuildGraph(ctx, e.Session)
}

// CheckIntegrity checks every foreign key of the current database.
func (e *Explorer) CheckIntegrity(ctx context.Context) ([]relation.Report, error) {
	g, err := e.Relationships(ctx)
	if err != nil {
		return nil, err
	}
	return relation.NewChecker(e.Gateway).CheckAll(ctx, e.Session, g), nil
}

// CheckTable checks the foreign keys declared on one table.
func (e *Explorer) CheckTable(ctx context.Context, schemaName, name string) ([]relation.Report, error) {
	g, err := e.Relationships(ctx)
	if err != nil {
		return nil, err
	}
	t, err := e.Catalog.DescribeTable(ctx, schemaName, name)
	if err != nil {
		return nil, err
	}
	fks := g.Outgoing(t.Ref())
	if len(fks) == 0 {
		return nil, &dberr.NotFoundError{Kind: "foreign key", Schema: t.Schema, Name: t.Name}
	}
	checker := relation.NewChecker(e.Gateway)
	var reports []relation.Report
	for _, fk := range fks {
		rep, err := checker.CheckEdge(ctx, e.Session, g, fk.Edges()[0])
		if err != nil {
			return nil, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}
