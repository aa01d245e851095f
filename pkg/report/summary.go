package report

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/codeshape/pkg/vcs"
)

// SummaryTable renders the metrics of the last row of a report, with the first
// row's values alongside to show the change over the whole crawl.
func SummaryTable(t *Table) string {
	if len(t.Rows) == 0 {
		return "No rows in report"
	}

	series := SeriesOf(t)
	labels := t.Labels()
	first, last := 0, len(t.Rows)-1

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false

	tbl.AppendHeader(table.Row{"Metric", labels[first], labels[last], "Change", "Files"})

	for _, s := range series {
		files := ""
		if s.Files != nil {
			files = formatNumber(s.Files[last])
		}

		tbl.AppendRow(table.Row{
			s.Name,
			formatNumber(s.Values[first]),
			formatNumber(s.Values[last]),
			formatChange(s.Values[last] - s.Values[first]),
			files,
		})
	}

	if sha, ok := t.Column(ColumnSHA); ok {
		tbl.AppendSeparator()
		tbl.AppendRow(table.Row{ColumnSHA, vcs.Ref(sha[first]).Short(), vcs.Ref(sha[last]).Short(), "", ""})
	}

	return tbl.Render()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatChange(delta float64) string {
	if delta > 0 {
		return "+" + formatNumber(delta)
	}

	return formatNumber(delta)
}
