package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// ErrRowShape is returned when a row does not flatten to the header's columns.
var ErrRowShape = errors.New("row shape differs from header")

// ErrEmptyReport is returned when a report has no header.
var ErrEmptyReport = errors.New("report is empty")

// outputPerm is the permission of created report files.
const outputPerm = 0o644

// OutputPath returns the report file name for a run started at now.
func OutputPath(dir string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("output-%d.csv", now.Unix()))
}

// CSVEmitter streams rows to a CSV writer. The header is taken from the first
// row and every later row must match it. Each row is flushed as it is written
// so an interrupted run keeps all completed months.
type CSVEmitter struct {
	w      *csv.Writer
	closer io.Closer
	header []string
	rows   int
}

// NewCSVEmitter writes to w.
func NewCSVEmitter(w io.Writer) *CSVEmitter {
	return &CSVEmitter{w: csv.NewWriter(w)}
}

// CreateCSV creates a new report file at path. An existing file is an error so
// that an earlier run's report is never truncated.
func CreateCSV(path string) (*CSVEmitter, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, outputPerm)
	if err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}

	emitter := NewCSVEmitter(file)
	emitter.closer = file

	return emitter, nil
}

// Emit flattens row and appends it, writing the header first when needed.
func (e *CSVEmitter) Emit(row Row) error {
	columns := Flatten(row)
	names := Header(columns)

	if e.header == nil {
		err := e.w.Write(names)
		if err != nil {
			return fmt.Errorf("write header: %w", err)
		}

		e.header = names
	} else if !slices.Equal(e.header, names) {
		return fmt.Errorf("%w: got %v, header %v", ErrRowShape, names, e.header)
	}

	values := make([]string, len(columns))
	for i, column := range columns {
		values[i] = column.Value
	}

	err := e.w.Write(values)
	if err != nil {
		return fmt.Errorf("write row: %w", err)
	}

	e.w.Flush()

	err = e.w.Error()
	if err != nil {
		return fmt.Errorf("flush row: %w", err)
	}

	e.rows++

	return nil
}

// Header returns the header written so far, or nil before the first row.
func (e *CSVEmitter) Header() []string {
	return slices.Clone(e.header)
}

// Rows returns the number of data rows written.
func (e *CSVEmitter) Rows() int {
	return e.rows
}

// Close flushes and closes the underlying file when the emitter owns one.
func (e *CSVEmitter) Close() error {
	e.w.Flush()

	err := e.w.Error()

	if e.closer != nil {
		err = errors.Join(err, e.closer.Close())
	}

	return err
}

// Table is a report loaded back from CSV.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadCSV loads a report. Every row must have the header's width.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}

	if len(records) == 0 {
		return nil, ErrEmptyReport
	}

	return &Table{Header: records[0], Rows: records[1:]}, nil
}

// ReadCSVFile loads the report at path.
func ReadCSVFile(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer file.Close()

	return ReadCSV(file)
}

// Column returns the values of the named column, or false if absent.
func (t *Table) Column(name string) ([]string, bool) {
	idx := slices.Index(t.Header, name)
	if idx < 0 {
		return nil, false
	}

	values := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		values[i] = row[idx]
	}

	return values, true
}
