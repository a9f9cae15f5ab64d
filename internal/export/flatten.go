package export

import (
	"strings"

	"cpor-analytics/internal/domain"
)

// gridCell is either a label or a numeric value; numeric cells keep their
// float so Excel can apply a number format instead of storing text.
type gridCell struct {
	text  string
	num   float64
	isNum bool
}

func labelCell(s string) gridCell { return gridCell{text: s} }
func numCell(v float64) gridCell  { return gridCell{num: v, isNum: true} }
func pivotCell(c domain.Cell) gridCell {
	if c.Absent {
		return gridCell{}
	}
	return numCell(c.Value)
}

// grid is the format-independent table every renderer consumes: one header
// row, data rows, and a currency flag per column for number formatting.
type grid struct {
	title    string
	header   []string
	rows     [][]gridCell
	currency []bool
}

// flattenPivot lays the pivot matrix out as a flat grid: one column per row
// dimension, one per output column (multi-level headers joined), then the
// row total. Totals land in a final row.
func flattenPivot(result *domain.PivotResult, datasetName string) *grid {
	g := &grid{title: datasetName}
	if g.title == "" {
		g.title = "pivot"
	}

	currency := result.ValueFormat == domain.FormatCurrency

	g.header = append(g.header, result.Rows...)
	g.currency = append(g.currency, make([]bool, len(result.Rows))...)
	for _, header := range result.ColumnHeaders {
		g.header = append(g.header, strings.Join(header, " / "))
		g.currency = append(g.currency, currency)
	}
	hasRowTotals := len(result.RowTotals) > 0
	if hasRowTotals {
		g.header = append(g.header, "Total")
		g.currency = append(g.currency, currency)
	}

	for r, headerParts := range result.RowHeaders {
		row := make([]gridCell, 0, len(g.header))
		for _, part := range headerParts {
			row = append(row, labelCell(part))
		}
		for len(row) < len(result.Rows) {
			row = append(row, labelCell(""))
		}
		for _, c := range result.Values[r] {
			row = append(row, pivotCell(c))
		}
		if hasRowTotals {
			row = append(row, pivotCell(result.RowTotals[r]))
		}
		g.rows = append(g.rows, row)
	}

	if len(result.ColumnTotals) > 0 {
		row := make([]gridCell, 0, len(g.header))
		row = append(row, labelCell("Total"))
		for i := 1; i < len(result.Rows); i++ {
			row = append(row, labelCell(""))
		}
		for _, c := range result.ColumnTotals {
			row = append(row, pivotCell(c))
		}
		if hasRowTotals {
			row = append(row, pivotCell(result.GrandTotal))
		}
		g.rows = append(g.rows, row)
	}

	// Dimensionless queries reduce to a single summary line.
	if result.SummaryValue != nil {
		g.header = []string{"Medida", "Valor"}
		g.currency = []bool{false, currency}
		measure := ""
		if len(result.Measures) > 0 {
			measure = result.Measures[0]
		}
		g.rows = [][]gridCell{{labelCell(measure), pivotCell(*result.SummaryValue)}}
	} else if len(result.SummaryValues) > 0 {
		g.header = []string{"Medida", "Valor"}
		g.currency = []bool{false, currency}
		g.rows = nil
		for _, key := range result.Measures {
			g.rows = append(g.rows, []gridCell{labelCell(key), pivotCell(result.SummaryValues[key])})
		}
	}

	return g
}

// flattenTable wraps an already-stringified table. Cells in currency-flagged
// columns are re-parsed so spreadsheets get real numbers.
func flattenTable(title string, header []string, rows [][]string, currency []bool) *grid {
	g := &grid{title: title, header: header, currency: currency}
	if g.currency == nil {
		g.currency = make([]bool, len(header))
	}
	for _, raw := range rows {
		row := make([]gridCell, len(header))
		for c := range header {
			value := ""
			if c < len(raw) {
				value = raw[c]
			}
			if c < len(g.currency) && g.currency[c] {
				if num, ok := domain.ParseNumber(value); ok {
					row[c] = numCell(num)
					continue
				}
			}
			row[c] = labelCell(value)
		}
		g.rows = append(g.rows, row)
	}
	return g
}
