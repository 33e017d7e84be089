package cmd

import (
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "show the engine version, size and encoding of the selected database",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	}

	statsCmd = &cobra.Command{
		Use:   "stats [schema.]table column",
		Short: "summarize the values of one column",
		Args:  cobra.ExactArgs(2),
		RunE:  runStats,
	}
)

func runServer(cmd *cobra.Command, _ []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	info, err := ex.ServerInfo(ctx)
	if err != nil {
		return err
	}
	conns := ""
	if info.Connections != nil {
		conns = humanize.Comma(*info.Connections)
	}
	table := newTable(cmd.OutOrStdout(), "Property", "Value")
	table.AppendBulk([][]string{
		{"engine", string(info.Engine)},
		{"version", info.Version},
		{"database", info.Database},
		{"size", optionalBytes(info.SizeBytes)},
		{"connections", conns},
		{"encoding", info.Encoding},
	})
	table.Render()
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	schemaName, name := splitRef(args[0])
	st, err := ex.ColumnStats(ctx, schemaName, name, args[1])
	if err != nil {
		return err
	}
	distinct := ""
	if st.Distinct != nil {
		distinct = humanize.Comma(*st.Distinct)
	}
	table := newTable(cmd.OutOrStdout(), "Statistic", "Value")
	table.AppendBulk([][]string{
		{"column", st.Table.Name + "." + st.Column},
		{"type", st.Type},
		{"rows", humanize.Comma(st.Rows)},
		{"nulls", humanize.Comma(st.Nulls())},
		{"distinct", distinct},
		{"min", optionalText(st.Min)},
		{"max", optionalText(st.Max)},
		{"avg", optionalFloat(st.Avg)},
		{"stddev", optionalFloat(st.StdDev)},
	})
	table.Render()
	return nil
}

func optionalFloat(f *float64) string {
	if f == nil {
		return nullText
	}
	return strconv.FormatFloat(*f, 'f', 4, 64)
}
