package cmd

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jadedragon942/dbharbor/export"
)

var (
	exportFormat string
	exportName   string
	exportTable  string
	exportStdout bool

	exportCmd = &cobra.Command{
		Use:   "export [statement|-]",
		Short: "export a query result or a whole table",
		Long: "Export the result of a statement, or every row of --table, as csv, json, " +
			"excel, xml or html. The file goes to export.dir, or to export.s3_url when set. " +
			"--stdout streams text formats without buffering the output.",
		Args: cobra.MaximumNArgs(1),
		RunE: runExport,
	}

	exportAllCmd = &cobra.Command{
		Use:   "export-all",
		Short: "export every base table into one archive",
		Long: "Export every base table of the selected database. Excel puts one sheet " +
			"per table in a workbook; the other formats produce a zip with a manifest.",
		Args: cobra.NoArgs,
		RunE: runExportAll,
	}
)

func init() {
	for _, c := range []*cobra.Command{exportCmd, exportAllCmd} {
		c.Flags().StringVarP(&exportFormat, "format", "f", string(export.CSV), "csv|json|excel|xml|html")
		c.Flags().StringVar(&exportName, "name", "", "base of the output filename")
	}
	exportCmd.Flags().StringVarP(&exportTable, "table", "t", "", "export this [schema.]table")
	exportCmd.Flags().BoolVar(&exportStdout, "stdout", false, "write to stdout instead of a file")
}

func exportOptions() export.Options {
	return export.Options{
		Name:     exportName,
		MaxRows:  Config.Export.MaxRows,
		MaxBytes: int64(Config.Export.MaxBytes),
	}
}

func exportSink(ctx context.Context) (export.Sink, error) {
	if Config.Export.S3URL != "" {
		return export.NewS3Sink(ctx, Config.Export.S3URL)
	}
	return &export.FileSink{
		Dir:      Config.Export.Dir,
		Gzip:     Config.Export.Gzip,
		UsePgzip: Config.Export.Pgzip,
	}, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	f, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	if (len(args) == 0) == (exportTable == "") {
		return fmt.Errorf("pass either a statement or --table")
	}
	var statement string
	if len(args) == 1 {
		if statement, err = statementArg(cmd, args[0]); err != nil {
			return err
		}
	}

	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()
	opts := exportOptions()

	if exportStdout {
		if !f.Streaming() {
			return fmt.Errorf("%s cannot be streamed to stdout", f)
		}
		if exportTable != "" {
			schemaName, name := splitRef(exportTable)
			t, err := ex.DescribeTable(ctx, schemaName, name)
			if err != nil {
				return err
			}
			statement = "SELECT * FROM " + ex.Session.Dialect().QualifiedName(t.Schema, t.Name)
		}
		res := ex.Execute(ctx, statement)
		opts.Metrics = collectors
		st, err := export.Write(cmd.OutOrStdout(), res, f, opts)
		if err != nil {
			return err
		}
		printWarnings(cmd.ErrOrStderr(), st.Warnings)
		return nil
	}

	var p *export.Payload
	if exportTable != "" {
		schemaName, name := splitRef(exportTable)
		p, err = ex.ExportTable(ctx, schemaName, name, f, opts)
	} else {
		p, err = ex.Export(ctx, statement, f, opts)
	}
	if err != nil {
		return err
	}
	return store(ctx, cmd, p)
}

func runExportAll(cmd *cobra.Command, _ []string) error {
	f, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	p, err := ex.ExportAll(ctx, f, exportOptions())
	if err != nil {
		return err
	}
	return store(ctx, cmd, p)
}

func store(ctx context.Context, cmd *cobra.Command, p *export.Payload) error {
	printWarnings(cmd.ErrOrStderr(), p.Warnings)
	sink, err := exportSink(ctx)
	if err != nil {
		return err
	}
	where, err := sink.Put(ctx, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s rows, %s\n", where, humanize.Comma(int64(p.Rows)), humanize.Bytes(uint64(p.Size)))
	return nil
}
