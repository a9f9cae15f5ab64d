// Package domain defines the value types shared across the analytics engine:
// column-oriented tables, dataset schemas, calculation specs, pivot queries
// and results, and the contracts dashboard model.
package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindText    Kind = "text"
	KindInteger Kind = "integer"
	KindReal    Kind = "real"
	KindDate    Kind = "date"
	KindBoolean Kind = "boolean"
)

// IsNumeric reports whether values of this kind carry a numeric payload.
func (k Kind) IsNumeric() bool {
	return k == KindInteger || k == KindReal || k == KindBoolean
}

// DateFormat is the canonical render format for date cells.
const DateFormat = "2006-01-02"

// Vector is a dense, typed column of values. Exactly one payload slice is
// populated according to the kind; absent cells are tracked in a parallel
// bitmap so every kind represents missing data the same way.
type Vector struct {
	kind   Kind
	nums   []float64
	strs   []string
	times  []time.Time
	absent []bool
}

// NewNumericVector builds a vector for integer, real or boolean columns.
func NewNumericVector(kind Kind, nums []float64, absent []bool) *Vector {
	if absent == nil {
		absent = make([]bool, len(nums))
	}
	return &Vector{kind: kind, nums: nums, absent: absent}
}

// NewTextVector builds a vector for text columns. Empty strings are absent.
func NewTextVector(strs []string) *Vector {
	absent := make([]bool, len(strs))
	for i, s := range strs {
		absent[i] = s == ""
	}
	return &Vector{kind: KindText, strs: strs, absent: absent}
}

// NewTimeVector builds a vector for date columns.
func NewTimeVector(times []time.Time, absent []bool) *Vector {
	if absent == nil {
		absent = make([]bool, len(times))
	}
	return &Vector{kind: KindDate, times: times, absent: absent}
}

// Kind returns the vector's column kind.
func (v *Vector) Kind() Kind { return v.kind }

// Len returns the number of cells.
func (v *Vector) Len() int { return len(v.absent) }

// Absent reports whether the cell at i holds no value.
func (v *Vector) Absent(i int) bool { return v.absent[i] }

// Float returns the numeric value of cell i. Text cells go through the
// numeric coercion rules (comma decimals, currency prefix); the second
// return is false for absent or non-coercible cells.
func (v *Vector) Float(i int) (float64, bool) {
	if v.absent[i] {
		return 0, false
	}
	switch v.kind {
	case KindInteger, KindReal, KindBoolean:
		return v.nums[i], true
	case KindText:
		return ParseNumber(v.strs[i])
	case KindDate:
		return float64(v.times[i].Unix()), true
	}
	return 0, false
}

// String returns the stringified value of cell i, or "" when absent.
func (v *Vector) String(i int) string {
	if v.absent[i] {
		return ""
	}
	switch v.kind {
	case KindText:
		return v.strs[i]
	case KindInteger:
		return strconv.FormatInt(int64(v.nums[i]), 10)
	case KindReal, KindBoolean:
		return strconv.FormatFloat(v.nums[i], 'f', -1, 64)
	case KindDate:
		return v.times[i].Format(DateFormat)
	}
	return ""
}

// Time returns the date value of cell i for date vectors.
func (v *Vector) Time(i int) (time.Time, bool) {
	if v.kind != KindDate || v.absent[i] {
		return time.Time{}, false
	}
	return v.times[i], true
}

// Column couples a schema entry with its value vector.
type Column struct {
	Key        string
	Label      string
	Kind       Kind
	IsMeasure  bool
	Calculated bool
	Data       *Vector
}

// Entry returns the schema entry describing the column.
func (c *Column) Entry() SchemaEntry {
	return SchemaEntry{
		Key:        c.Key,
		Label:      c.Label,
		Kind:       c.Kind,
		IsMeasure:  c.IsMeasure,
		Calculated: c.Calculated,
	}
}

// Table is an ordered collection of equally sized columns. Rows are implicit
// by index. Tables are immutable once built; derived tables share column
// vectors with their parent (copy-on-write at the column level).
type Table struct {
	cols  []*Column
	index map[string]int
	rows  int
}

// NewTable validates column lengths and builds the key index.
func NewTable(cols []*Column) (*Table, error) {
	t := &Table{cols: cols, index: make(map[string]int, len(cols))}
	for i, col := range cols {
		if _, dup := t.index[col.Key]; dup {
			return nil, fmt.Errorf("duplicate column key %q", col.Key)
		}
		t.index[col.Key] = i
		if i == 0 {
			t.rows = col.Data.Len()
		} else if col.Data.Len() != t.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", col.Key, col.Data.Len(), t.rows)
		}
	}
	return t, nil
}

// RowCount returns the number of rows.
func (t *Table) RowCount() int { return t.rows }

// Columns returns the ordered columns. Callers must not mutate the slice.
func (t *Table) Columns() []*Column { return t.cols }

// Column looks a column up by its normalized key.
func (t *Table) Column(key string) (*Column, bool) {
	i, ok := t.index[key]
	if !ok {
		return nil, false
	}
	return t.cols[i], true
}

// WithColumns returns a new table sharing this table's vectors with the
// given columns appended. Fails on key collision or length mismatch.
func (t *Table) WithColumns(extra ...*Column) (*Table, error) {
	cols := make([]*Column, 0, len(t.cols)+len(extra))
	cols = append(cols, t.cols...)
	cols = append(cols, extra...)
	return NewTable(cols)
}

// Schema returns the schema entries of all columns in order.
func (t *Table) Schema() []SchemaEntry {
	entries := make([]SchemaEntry, len(t.cols))
	for i, col := range t.cols {
		entries[i] = col.Entry()
	}
	return entries
}
