package cmd

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jadedragon942/dbharbor/relation"
	"github.com/jadedragon942/dbharbor/schema"
)

var (
	relationshipsCmd = &cobra.Command{
		Use:   "relationships",
		Short: "list foreign keys and tables that take part in none",
		Args:  cobra.NoArgs,
		RunE:  runRelationships,
	}

	integrityCmd = &cobra.Command{
		Use:   "integrity [[schema.]table]",
		Short: "count rows whose foreign key values have no referenced row",
		Long: "Check every foreign key of the selected database, or only those declared on " +
			"one table. Exits non-zero when orphaned rows are found.",
		Args: cobra.MaximumNArgs(1),
		RunE: runIntegrity,
	}
)

func pairs(fk schema.ForeignKey) (string, string) {
	return strings.Join(fk.SourceColumns(), ", "), strings.Join(fk.TargetColumns(), ", ")
}

func runRelationships(cmd *cobra.Command, _ []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	g, err := ex.Relationships(ctx)
	if err != nil {
		return err
	}
	tables, err := ex.ListTables(ctx, schema.CountUnknown)
	if err != nil {
		return err
	}
	var refs []schema.ObjectRef
	for _, t := range tables {
		if t.Kind == schema.KindBaseTable {
			refs = append(refs, t.Ref())
		}
	}

	out := cmd.OutOrStdout()
	table := newTable(out, "Constraint", "Table", "Columns", "References", "Columns")
	for _, fk := range g.ForeignKeys() {
		src, tgt := pairs(fk)
		table.Append([]string{fk.Name, fk.Source.String(), src, fk.Target.String(), tgt})
	}
	table.Render()

	st := g.Stats(refs)
	fmt.Fprintf(out, "%d tables, %d relationships, %d connected, %d self-referencing\n",
		st.Tables, st.Relationships, st.Connected, st.SelfReferencing)
	if len(st.Isolated) > 0 {
		names := make([]string, len(st.Isolated))
		for i, r := range st.Isolated {
			names[i] = r.String()
		}
		fmt.Fprintf(out, "isolated: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func runIntegrity(cmd *cobra.Command, args []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	var reports []relation.Report
	if len(args) == 1 {
		schemaName, name := splitRef(args[0])
		reports, err = ex.CheckTable(ctx, schemaName, name)
	} else {
		reports, err = ex.CheckIntegrity(ctx)
	}
	if err != nil {
		return err
	}

	table := newTable(cmd.OutOrStdout(), "Constraint", "Table", "Columns", "References", "Orphans", "Status")
	var bad int
	for _, r := range reports {
		src, tgt := pairs(r.ForeignKey)
		status := "OK"
		switch {
		case r.Err != nil:
			status = "ERROR: " + r.Err.Error()
			bad++
		case r.Orphans > 0:
			status = "ORPHANS"
			bad++
		}
		table.Append([]string{
			r.ForeignKey.Name, r.ForeignKey.Source.String(), src,
			r.ForeignKey.Target.String() + " (" + tgt + ")", humanize.Comma(r.Orphans), status,
		})
	}
	table.Render()
	if bad > 0 {
		return fmt.Errorf("%d of %d foreign keys failed the check", bad, len(reports))
	}
	return nil
}
