package cmd

import (
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jadedragon942/dbharbor/query"
)

// nullArg passed as an argument binds SQL NULL.
const nullArg = `\N`

var (
	browsePage query.Page

	queryCmd = &cobra.Command{
		Use:   "query <statement|-> [args...]",
		Short: "run one statement, read-only unless it modifies data",
		Long: "Run one statement. Reads run in a transaction that is rolled back; " +
			"writes are committed on success. Pass - to read the statement from stdin " +
			`and \N to bind NULL.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runQuery,
	}

	explainCmd = &cobra.Command{
		Use:   "explain <statement|-> [args...]",
		Short: "show the execution plan of a statement",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runExplain,
	}

	callCmd = &cobra.Command{
		Use:   "call [schema.]routine [args...]",
		Short: "call a stored procedure or function",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCall,
	}

	browseCmd = &cobra.Command{
		Use:   "browse [schema.]table",
		Short: "page through the rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE:  runBrowse,
	}
)

func init() {
	flags := browseCmd.Flags()
	flags.IntVar(&browsePage.Limit, "limit", query.DefaultPageSize, "rows per page")
	flags.IntVar(&browsePage.Offset, "offset", 0, "rows to skip")
	flags.StringVar(&browsePage.Search, "search", "", "keep rows where any text column contains this")
}

func statementArg(cmd *cobra.Command, arg string) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func bindArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, a := range raw {
		if a == nullArg {
			continue
		}
		args[i] = a
	}
	return args
}

func runQuery(cmd *cobra.Command, args []string) error {
	statement, err := statementArg(cmd, args[0])
	if err != nil {
		return err
	}
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	return renderResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), ex.Execute(ctx, statement, bindArgs(args[1:])...))
}

func runExplain(cmd *cobra.Command, args []string) error {
	statement, err := statementArg(cmd, args[0])
	if err != nil {
		return err
	}
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	return renderResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), ex.Explain(ctx, statement, bindArgs(args[1:])...))
}

func runCall(cmd *cobra.Command, args []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	schemaName, name := splitRef(args[0])
	res, err := ex.Call(ctx, schemaName, name, bindArgs(args[1:]))
	if err != nil {
		return err
	}
	return renderResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
}

func runBrowse(cmd *cobra.Command, args []string) error {
	ctx, ex, done, err := connect(cmd)
	if err != nil {
		return err
	}
	defer done()

	schemaName, name := splitRef(args[0])
	res, err := ex.Browse(ctx, schemaName, name, browsePage)
	if err != nil {
		return err
	}
	return renderResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
}
