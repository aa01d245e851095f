package report

import (
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/codeshape/pkg/metrics"
)

const (
	chartWidth         = "100%"
	chartHeight        = "420px"
	lineWidth          = 2
	lineWidthThin      = 1
	dataZoomEndPercent = 100
	filesAxisIndex     = 1
)

// Series is one plotted metric.
type Series struct {
	// Name is the metric name; Files is set for group metrics.
	Name   string
	Values []float64
	Files  []float64
}

// SeriesOf extracts every numeric metric of the table. A column followed by
// its <name>_files companion becomes one series with file counts.
func SeriesOf(t *Table) []Series {
	var series []Series

	used := make(map[string]bool)

	for _, name := range t.Header {
		if name == ColumnDate || name == ColumnSHA || used[name] {
			continue
		}

		values, ok := t.numeric(name)
		if !ok {
			continue
		}

		used[name] = true
		s := Series{Name: name, Values: values}

		filesName := name + metrics.FilesSuffix
		if slices.Contains(t.Header, filesName) {
			if files, filesOK := t.numeric(filesName); filesOK {
				s.Files = files
				used[filesName] = true
			}
		}

		series = append(series, s)
	}

	return series
}

func (t *Table) numeric(name string) ([]float64, bool) {
	column, ok := t.Column(name)
	if !ok {
		return nil, false
	}

	values := make([]float64, len(column))

	for i, raw := range column {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, false
		}

		values[i] = value
	}

	return values, true
}

// Labels returns the x-axis labels: the date column, or row numbers.
func (t *Table) Labels() []string {
	if dates, ok := t.Column(ColumnDate); ok {
		return dates
	}

	labels := make([]string, len(t.Rows))
	for i := range t.Rows {
		labels[i] = strconv.Itoa(i + 1)
	}

	return labels
}

// RenderPlot writes an HTML page with one line chart per metric. Group
// metrics plot the per-file sum against the left axis and the file count
// against the right one.
func RenderPlot(w io.Writer, t *Table, title string) error {
	page := components.NewPage()
	page.PageTitle = title

	labels := t.Labels()

	for _, s := range SeriesOf(t) {
		page.AddCharts(buildLineChart(labels, s))
	}

	err := page.Render(w)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	return nil
}

func buildLineChart(labels []string, s Series) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: s.Name, Left: "center"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "8%", Left: "center"}),
		charts.WithDataZoomOpts(
			opts.DataZoom{Type: "slider", Start: 0, End: dataZoomEndPercent},
			opts.DataZoom{Type: "inside"},
		),
		charts.WithXAxisOpts(opts.XAxis{Name: "Month"}),
		charts.WithYAxisOpts(opts.YAxis{Name: s.Name}),
		charts.WithGridOpts(opts.Grid{Top: "20%", Bottom: "15%", Left: "5%", Right: "5%", ContainLabel: opts.Bool(true)}),
	)
	line.SetXAxis(labels)

	line.AddSeries(s.Name, lineData(s.Values),
		charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidth}),
	)

	if s.Files != nil {
		line.ExtendYAxis(opts.YAxis{Name: "files"})
		line.AddSeries(s.Name+metrics.FilesSuffix, lineData(s.Files),
			charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true), YAxisIndex: filesAxisIndex}),
			charts.WithLineStyleOpts(opts.LineStyle{Width: lineWidthThin, Type: "dashed"}),
		)
	}

	return line
}

func lineData(values []float64) []opts.LineData {
	data := make([]opts.LineData, len(values))
	for i, v := range values {
		data[i] = opts.LineData{Value: v}
	}

	return data
}
