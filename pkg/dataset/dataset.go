// Package dataset holds the canonical in-memory table every edaproc stage
// exchanges: an ordered list of column names and rows of scalar values
// aligned with them.
package dataset

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Value is one cell. It is always one of nil, string, int64, float64, bool
// or time.Time.
type Value = interface{}

// Row is a record whose values are aligned with Dataset.Columns.
type Row []Value

// Dataset is the canonical tabular representation.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// New creates an empty dataset with the given columns.
func New(columns []string) *Dataset {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Dataset{Columns: cols}
}

// Append adds a row. The row must have one value per column.
func (d *Dataset) Append(row Row) error {
	if len(row) != len(d.Columns) {
		return fmt.Errorf("row has %d values, dataset has %d columns", len(row), len(d.Columns))
	}
	d.Rows = append(d.Rows, row)
	return nil
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	return len(d.Rows)
}

// Index returns the position of the named column, or -1.
func (d *Dataset) Index(name string) int {
	for i, c := range d.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// IndexFold is Index with a case-insensitive match.
func (d *Dataset) IndexFold(name string) int {
	for i, c := range d.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Head returns a copy holding at most the first n rows. A negative n copies
// every row.
func (d *Dataset) Head(n int) *Dataset {
	if n < 0 || n > len(d.Rows) {
		n = len(d.Rows)
	}
	out := New(d.Columns)
	out.Rows = make([]Row, n)
	for i := 0; i < n; i++ {
		row := make(Row, len(d.Rows[i]))
		copy(row, d.Rows[i])
		out.Rows[i] = row
	}
	return out
}

// Kind is the storage type a column resolves to.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindTime
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindTime:
		return "time"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Numeric reports whether the kind holds numbers.
func (k Kind) Numeric() bool {
	return k == KindInt || k == KindFloat
}

// KindOf returns the kind of a single value.
func KindOf(v Value) Kind {
	switch v.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case int64:
		return KindInt
	case float64:
		return KindFloat
	case time.Time:
		return KindTime
	default:
		return KindString
	}
}

// ColumnKind resolves the kind of column idx from its values. Nulls are
// ignored, ints widen to floats, and any other mix falls back to string.
func (d *Dataset) ColumnKind(idx int) Kind {
	kind := KindNull
	for _, row := range d.Rows {
		k := KindOf(row[idx])
		if k == KindNull || k == kind {
			continue
		}
		switch {
		case kind == KindNull:
			kind = k
		case kind.Numeric() && k.Numeric():
			kind = KindFloat
		default:
			return KindString
		}
	}
	return kind
}

// Kinds resolves every column kind.
func (d *Dataset) Kinds() []Kind {
	kinds := make([]Kind, len(d.Columns))
	for i := range d.Columns {
		kinds[i] = d.ColumnKind(i)
	}
	return kinds
}

// Equal reports whether two datasets have the same columns and values.
// Times compare by instant; floats compare exactly, with NaN equal to NaN.
func Equal(a, b *Dataset) bool {
	return Diff(a, b) == ""
}

// Diff describes the first difference between a and b, or "" when equal.
func Diff(a, b *Dataset) string {
	if len(a.Columns) != len(b.Columns) {
		return fmt.Sprintf("columns %v != %v", a.Columns, b.Columns)
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return fmt.Sprintf("column %d: %q != %q", i, a.Columns[i], b.Columns[i])
		}
	}
	if len(a.Rows) != len(b.Rows) {
		return fmt.Sprintf("rows %d != %d", len(a.Rows), len(b.Rows))
	}
	for r := range a.Rows {
		for c := range a.Columns {
			if !valueEqual(a.Rows[r][c], b.Rows[r][c]) {
				return fmt.Sprintf("row %d column %q: %#v != %#v", r, a.Columns[c], a.Rows[r][c], b.Rows[r][c])
			}
		}
	}
	return ""
}

func valueEqual(x, y Value) bool {
	switch xv := x.(type) {
	case time.Time:
		yv, ok := y.(time.Time)
		return ok && xv.Equal(yv)
	case float64:
		yv, ok := y.(float64)
		if !ok {
			return false
		}
		if math.IsNaN(xv) && math.IsNaN(yv) {
			return true
		}
		return xv == yv
	default:
		return x == y
	}
}

// Format renders a value the way it appears in text encodings and reports.
func Format(v Value) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
