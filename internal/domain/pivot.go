package domain

import (
	"math"
	"strconv"
)

func jsonNumber(v float64) []byte {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null")
	}
	return strconv.AppendFloat(nil, v, 'f', -1, 64)
}

// MaxMeasures caps how many measures a single pivot query may carry.
const MaxMeasures = 6

// PivotQuery is one pivot request against a stored dataset. The first
// element of Measures is the primary measure.
type PivotQuery struct {
	DatasetID        string              `json:"datasetId"`
	Rows             []string            `json:"rows"`
	Columns          []string            `json:"columns"`
	Measures         []string            `json:"measures"`
	Aggregator       string              `json:"aggregator"`
	Filters          map[string][]string `json:"filters"`
	PreCalculations  []CalculationSpec   `json:"preCalculations"`
	PostCalculations []CalculationSpec   `json:"postCalculations"`
}

// Cell is one value of the pivot matrix. Absent cells (empty groups,
// division by zero) serialize as null.
type Cell struct {
	Value  float64
	Absent bool
}

// MarshalJSON renders absent cells as null.
func (c Cell) MarshalJSON() ([]byte, error) {
	if c.Absent {
		return []byte("null"), nil
	}
	return jsonNumber(c.Value), nil
}

// PivotResult is the materialized pivot matrix with headers and totals.
type PivotResult struct {
	DatasetID     string          `json:"datasetId"`
	Rows          []string        `json:"rows"`
	Columns       []string        `json:"columns"`
	Measures      []string        `json:"measures"`
	Aggregator    string          `json:"aggregator"`
	RowHeaders    [][]string      `json:"rowHeaders"`
	ColumnHeaders [][]string      `json:"columnHeaders"`
	ColumnKeys    []string        `json:"columnKeys"`
	Values        [][]Cell        `json:"values"`
	RowTotals     []Cell          `json:"rowTotals"`
	ColumnTotals  []Cell          `json:"columnTotals"`
	GrandTotal    Cell            `json:"grandTotal"`
	SummaryValue  *Cell           `json:"summaryValue,omitempty"`
	SummaryValues map[string]Cell `json:"summaryValues,omitempty"`
	Calculations  CalculationSet  `json:"calculations"`
	ValueFormat   string          `json:"valueFormat"`
	Warnings      []string        `json:"warnings,omitempty"`
}
