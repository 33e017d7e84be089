package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jadedragon942/dbharbor/schema"
)

var (
	exactCounts bool

	databasesCmd = &cobra.Command{
		Use:   "databases",
		Short: "list the databases visible to the connected user",
		Args:  cobra.NoArgs,
		RunE:  runDatabases,
	}

	tablesCmd = &cobra.Command{
		Use:   "tables",
		Short: "list tables and views with row counts and sizes",
		Args:  cobra.NoArgs,
		RunE:  runTables,
	}

	describeCmd = &cobra.Command{
		Use:   "describe [schema.]table",
		Short: "show the columns, indexes and constraints of a table or view",
		Args:  cobra.ExactArgs(1),
		RunE:  runDescribe,
	}

	viewsCmd = &cobra.Command{
		Use:   "views",
		Short: "list views",
		Args:  cobra.NoArgs,
		RunE:  runViews,
	}

	routinesCmd = &cobra.Command{
		Use:   "routines [[schema.]name]",
		Short: "list stored procedures and functions, or show one with its parameters",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runRoutines,
	}

	triggersCmd = &cobra.Command{
		Use:   "triggers",
		Short: "list triggers",
		Args:  cobra.NoArgs,
		RunE:  runTriggers,
	}

	summaryCmd = &cobra.Command{
		Use:   "summary",
		Short: "count the objects of the selected database",
		Args:  cobra.NoArgs,
		RunE:  runSummary,
	}
)

func init() {
	tablesCmd.Flags().BoolVar(&exactCounts, "exact", false, "count rows with SELECT COUNT(*) instead of engine statistics")
}

// splitRef reads "schema.name" or a bare name, which matches any schema.
func splitRef(arg string) (string, string) {
	if s, n, ok := strings.Cut(arg, "."); ok {
		return s, n
	}
	return "", arg
}

func runDatabases(cmd *cobra.Command, _ []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	names, err := ex.ListDatabases(ctx)
	if err != nil {
		return err
	}
	current := ex.Session.CurrentDatabase()
	table := newTable(cmd.OutOrStdout(), "Database", "Selected")
	for _, n := range names {
		sel := ""
		if n == current {
			sel = "*"
		}
		table.Append([]string{n, sel})
	}
	table.Render()
	return nil
}

func runTables(cmd *cobra.Command, _ []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	mode := schema.CountApproximate
	if exactCounts {
		mode = schema.CountExact
	}
	tables, err := ex.ListTables(ctx, mode)
	if err != nil {
		return err
	}
	table := newTable(cmd.OutOrStdout(), "Schema", "Name", "Type", "Columns", "Rows", "Size", "Comment")
	for _, t := range tables {
		table.Append([]string{
			t.Schema, t.Name, string(t.Kind), strconv.Itoa(t.ColumnCount),
			optionalCount(t.RowCount, t.RowSource), optionalBytes(t.SizeBytes), t.Comment,
		})
		printProblems(cmd.ErrOrStderr(), t.Ref(), t.Problems)
	}
	table.Render()
	return nil
}

func runDescribe(cmd *cobra.Command, args []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	schemaName, name := splitRef(args[0])
	t, err := ex.DescribeTable(ctx, schemaName, name)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s)\n", t.Ref(), t.Kind)
	if t.Comment != "" {
		fmt.Fprintln(out, t.Comment)
	}

	cols := newTable(out, "#", "Column", "Type", "Null", "Key", "Default", "Extra", "Comment")
	for _, c := range t.Columns {
		cols.Append([]string{
			strconv.Itoa(c.Position), c.Name, c.Type, yesNo(c.Nullable),
			string(c.Key), optionalText(c.Default), c.Extra, c.Comment,
		})
	}
	cols.Render()

	if len(t.Indexes) > 0 {
		idx := newTable(out, "Index", "Columns", "Unique", "Primary")
		for _, i := range t.Indexes {
			idx.Append([]string{i.Name, strings.Join(i.Columns, ", "), yesNo(i.Unique), yesNo(i.Primary)})
		}
		idx.Render()
	}
	if len(t.Constraints) > 0 {
		cons := newTable(out, "Constraint", "Type", "Columns")
		for _, c := range t.Constraints {
			cons.Append([]string{c.Name, c.Type, strings.Join(c.Columns, ", ")})
		}
		cons.Render()
	}
	printProblems(cmd.ErrOrStderr(), t.Ref(), t.Problems)

	if t.Kind == schema.KindView {
		v, err := ex.DescribeView(ctx, t.Schema, t.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "updatable: %s\n%s\n", yesNo(v.Updatable), v.Definition)
		printProblems(cmd.ErrOrStderr(), v.Ref(), v.Problems)
	}
	return nil
}

func runViews(cmd *cobra.Command, _ []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	views, err := ex.ListViews(ctx)
	if err != nil {
		return err
	}
	table := newTable(cmd.OutOrStdout(), "Schema", "Name", "Updatable", "Columns")
	for _, v := range views {
		table.Append([]string{v.Schema, v.Name, yesNo(v.Updatable), strconv.Itoa(len(v.Columns))})
		printProblems(cmd.ErrOrStderr(), v.Ref(), v.Problems)
	}
	table.Render()
	return nil
}

func runRoutines(cmd *cobra.Command, args []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	out := cmd.OutOrStdout()
	if len(args) == 1 {
		schemaName, name := splitRef(args[0])
		r, err := ex.Catalog.DescribeRoutine(ctx, schemaName, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s", r.Kind, r.Ref())
		if r.ReturnType != "" {
			fmt.Fprintf(out, " RETURNS %s", r.ReturnType)
		}
		fmt.Fprintln(out)
		params := newTable(out, "#", "Parameter", "Mode", "Type")
		for _, p := range r.Parameters {
			params.Append([]string{strconv.Itoa(p.Position), p.Name, string(p.Mode), p.Type})
		}
		params.Render()
		if r.Definition != "" {
			fmt.Fprintln(out, r.Definition)
		}
		printProblems(cmd.ErrOrStderr(), r.Ref(), r.Problems)
		return nil
	}

	routines, err := ex.ListRoutines(ctx)
	if err != nil {
		return err
	}
	table := newTable(out, "Schema", "Name", "Kind", "Parameters", "Returns")
	for _, r := range routines {
		table.Append([]string{r.Schema, r.Name, string(r.Kind), strconv.Itoa(len(r.Parameters)), r.ReturnType})
		printProblems(cmd.ErrOrStderr(), r.Ref(), r.Problems)
	}
	table.Render()
	return nil
}

func runTriggers(cmd *cobra.Command, _ []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	triggers, err := ex.ListTriggers(ctx)
	if err != nil {
		return err
	}
	table := newTable(cmd.OutOrStdout(), "Schema", "Name", "Table", "Timing", "Events")
	for _, t := range triggers {
		table.Append([]string{t.Schema, t.Name, t.Table, t.Timing, strings.Join(t.Events, " OR ")})
	}
	table.Render()
	return nil
}

func runSummary(cmd *cobra.Command, _ []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	s, err := ex.Summary(ctx)
	if err != nil {
		return err
	}
	table := newTable(cmd.OutOrStdout(), "Object", "Count")
	table.AppendBulk([][]string{
		{"database", s.Database},
		{"tables", strconv.Itoa(s.Tables)},
		{"views", strconv.Itoa(s.Views)},
		{"procedures", strconv.Itoa(s.Procedures)},
		{"functions", strconv.Itoa(s.Functions)},
		{"triggers", strconv.Itoa(s.Triggers)},
		{"foreign keys", strconv.Itoa(s.ForeignKeys)},
		{"rows (approx.)", humanize.Comma(s.ApproxRows)},
		{"size", humanize.IBytes(uint64(s.TotalBytes))},
	})
	table.Render()
	return nil
}
