package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jadedragon942/dbharbor/dberr"
	"github.com/jadedragon942/dbharbor/result"
	"github.com/jadedragon942/dbharbor/schema"
)

const nullText = "NULL"

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	return table
}

// renderResult prints the rows of a result set, or the affected row count
// of a statement that returned none. Warnings go to errOut.
func renderResult(out, errOut io.Writer, res *result.Result) error {
	printWarnings(errOut, res.Warnings())
	if err := res.Err(); err != nil {
		return err
	}
	if !res.HasResultSet() {
		if n, ok := res.RowsAffected(); ok {
			fmt.Fprintf(out, "%s rows affected (%s)\n", humanize.Comma(n), res.Duration())
		} else {
			fmt.Fprintf(out, "OK (%s)\n", res.Duration())
		}
		return nil
	}

	table := newTable(out, res.ColumnNames()...)
	_ = res.Each(func(_ int, row []any) error {
		cells := make([]string, len(row))
		for i, v := range row {
			if v == nil {
				cells[i] = nullText
				continue
			}
			cells[i] = result.Stringify(v)
		}
		table.Append(cells)
		return nil
	})
	table.Render()
	fmt.Fprintf(out, "%s rows (%s)\n", humanize.Comma(int64(res.RowCount())), res.Duration())
	return nil
}

func printWarnings(w io.Writer, ws []dberr.Warning) {
	for _, warn := range ws {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func printProblems(w io.Writer, ref schema.ObjectRef, ps []schema.Problem) {
	for _, p := range ps {
		fmt.Fprintf(w, "warning: %s: %s\n", ref, p)
	}
}

func optionalCount(n *int64, source schema.CountSource) string {
	if n == nil {
		return ""
	}
	s := humanize.Comma(*n)
	if source == schema.CountApproximate {
		s = "~" + s
	}
	return s
}

func optionalBytes(n *int64) string {
	if n == nil {
		return ""
	}
	return humanize.IBytes(uint64(*n))
}

func optionalText(s *string) string {
	if s == nil {
		return nullText
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

// printMetrics dumps every sample gathered so far, one line each.
func printMetrics(w io.Writer, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		fmt.Fprintf(w, "metrics: %v\n", err)
		return
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			name := mf.GetName()
			if len(labels) > 0 {
				name += "{" + strings.Join(labels, ",") + "}"
			}
			switch {
			case m.GetCounter() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				lines = append(lines, fmt.Sprintf("%s %g", name, m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				h := m.GetHistogram()
				lines = append(lines, fmt.Sprintf("%s count=%d sum=%g", name, h.GetSampleCount(), h.GetSampleSum()))
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(w, l)
	}
}
