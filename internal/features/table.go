package features

import (
	"fmt"
	"time"
)

// Table is a wide feature table: one row per MetricSnapshot, columns in a fixed order.
// Tables are immutable once built; Row returns the backing slice and callers must not
// modify it.
type Table struct {
	Columns    []string
	Timestamps []time.Time
	Rows       [][]float64

	index map[string]int
}

func newTable(columns []string, timestamps []time.Time, rows [][]float64) *Table {
	t := &Table{Columns: columns, Timestamps: timestamps, Rows: rows}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c] = i
	}
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Width returns the number of feature columns.
func (t *Table) Width() int {
	if t == nil {
		return 0
	}
	return len(t.Columns)
}

// Index returns the position of the named column.
func (t *Table) Index(name string) (int, bool) {
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[name]
	return i, ok
}

// Value returns a single cell.
func (t *Table) Value(row int, name string) (float64, bool) {
	i, ok := t.Index(name)
	if !ok || row < 0 || row >= len(t.Rows) {
		return 0, false
	}
	return t.Rows[row][i], true
}

// Row returns the feature vector at position i.
func (t *Table) Row(i int) []float64 {
	return t.Rows[i]
}

// Column copies one column out of the table.
func (t *Table) Column(name string) ([]float64, bool) {
	i, ok := t.Index(name)
	if !ok {
		return nil, false
	}
	out := make([]float64, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out, true
}

// SameColumns verifies that other uses exactly the given column layout.
func SameColumns(want []string, other *Table) error {
	if other.Width() != len(want) {
		return fmt.Errorf("feature width %d, expected %d", other.Width(), len(want))
	}
	for i, c := range want {
		if other.Columns[i] != c {
			return fmt.Errorf("feature column %d is %q, expected %q", i, other.Columns[i], c)
		}
	}
	return nil
}

// builder accumulates named columns before they are pivoted into rows.
type builder struct {
	n       int
	names   []string
	columns [][]float64
}

func (b *builder) add(name string, values []float64) {
	b.names = append(b.names, name)
	b.columns = append(b.columns, values)
}

func (b *builder) build(timestamps []time.Time) *Table {
	rows := make([][]float64, b.n)
	for r := range rows {
		row := make([]float64, len(b.columns))
		for c, col := range b.columns {
			row[c] = col[r]
		}
		rows[r] = row
	}
	return newTable(b.names, timestamps, rows)
}
