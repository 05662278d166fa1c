package features

import (
	"errors"
	"math"
)

// Scaler standardizes feature columns to zero mean and unit variance. It is fitted
// explicitly and travels with the model artifact; there is no package-level state.
type Scaler struct {
	Columns []string  `json:"columns"`
	Mean    []float64 `json:"mean"`
	Scale   []float64 `json:"scale"`
}

// FitScaler computes per-column mean and population std. Constant columns get a
// scale of 1.
func FitScaler(t *Table) (*Scaler, error) {
	if t.Len() == 0 {
		return nil, errors.New("fit scaler: empty table")
	}
	width := t.Width()
	s := &Scaler{
		Columns: append([]string(nil), t.Columns...),
		Mean:    make([]float64, width),
		Scale:   make([]float64, width),
	}
	n := float64(t.Len())
	for _, row := range t.Rows {
		for c, v := range row {
			s.Mean[c] += v
		}
	}
	for c := range s.Mean {
		s.Mean[c] /= n
	}
	for _, row := range t.Rows {
		for c, v := range row {
			d := v - s.Mean[c]
			s.Scale[c] += d * d
		}
	}
	for c := range s.Scale {
		s.Scale[c] = math.Sqrt(s.Scale[c] / n)
		if s.Scale[c] == 0 {
			s.Scale[c] = 1
		}
	}
	return s, nil
}

// Transform returns a standardized copy of t. The column layout must match.
func (s *Scaler) Transform(t *Table) (*Table, error) {
	if err := SameColumns(s.Columns, t); err != nil {
		return nil, err
	}
	rows := make([][]float64, t.Len())
	for r, row := range t.Rows {
		rows[r] = s.TransformRow(row)
	}
	return newTable(t.Columns, t.Timestamps, rows), nil
}

// TransformRow standardizes a single vector into a new slice.
func (s *Scaler) TransformRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for c, v := range row {
		out[c] = (v - s.Mean[c]) / s.Scale[c]
	}
	return out
}
