// Package report assembles monthly rows, streams them to CSV, and renders
// saved reports as terminal tables and HTML trend charts.
package report

import (
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/codeshape/pkg/metrics"
)

// Leading columns of every row.
const (
	ColumnDate = "date"
	ColumnSHA  = "sha"
)

// Value is the content of one named cell.
type Value interface {
	columns(name string) []Column
}

// Scalar is a single-column value written verbatim (surrounding space trimmed).
type Scalar string

// Int returns an integer scalar.
func Int(n int) Scalar {
	return Scalar(strconv.Itoa(n))
}

func (s Scalar) columns(name string) []Column {
	return []Column{{Name: name, Value: strings.TrimSpace(string(s))}}
}

// Group is a group-valued cell. It flattens to the per-file sum followed by
// the file count.
type Group metrics.Result

func (g Group) columns(name string) []Column {
	result := metrics.Result(g)

	return []Column{
		{Name: name, Value: strconv.Itoa(result.Sum())},
		{Name: name + metrics.FilesSuffix, Value: strconv.Itoa(result.Files)},
	}
}

// Cell is one named value of a row.
type Cell struct {
	Name  string
	Value Value
}

// Row is the ordered set of cells of one month.
type Row []Cell

// Column is one flattened output column.
type Column struct {
	Name  string
	Value string
}

// Flatten expands the row into output columns in declared order.
func Flatten(row Row) []Column {
	columns := make([]Column, 0, len(row))
	for _, cell := range row {
		columns = append(columns, cell.Value.columns(cell.Name)...)
	}

	return columns
}

// Header returns the column names of a flattened row.
func Header(columns []Column) []string {
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = column.Name
	}

	return names
}
