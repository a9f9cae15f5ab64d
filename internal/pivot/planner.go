// Package pivot turns a stored dataset and a pivot query into a materialized
// matrix: filtered source rows are grouped by the row and column dimensions,
// each (group, measure) pair is folded by the selected aggregator, and the
// result carries sorted headers, totals and optional post-calculations.
package pivot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"cpor-analytics/internal/dataset"
	"cpor-analytics/internal/domain"
	"cpor-analytics/internal/expr"
	"cpor-analytics/internal/loader"
)

// EmptyCellLabel stands in for absent dimension values in headers. It sorts
// after every real value on its level.
const EmptyCellLabel = "Células Vazias"

var (
	// ErrNoMeasure is returned when the query selects no measures.
	ErrNoMeasure = errors.New("no measure selected")

	// ErrTooManyMeasures is returned when the query exceeds MaxMeasures.
	ErrTooManyMeasures = errors.New("too many measures")

	// ErrUnknownAggregator is returned for aggregator ids outside the catalog.
	ErrUnknownAggregator = errors.New("unknown aggregator")
)

// ctxCheckInterval is how many source rows are processed between context
// cancellation checks.
const ctxCheckInterval = 4096

// Planner executes pivot queries. It is stateless and safe for concurrent use.
type Planner struct{}

func NewPlanner() *Planner { return &Planner{} }

type measureRef struct {
	col *domain.Column
}

// finalColumn is one column of the output matrix: a column-dimension tuple
// paired with the measure that fills it.
type finalColumn struct {
	header  []string
	colKey  string
	measure int
}

// Run executes the query against the dataset snapshot. Cancellation is
// checked between row batches; a cancelled context aborts with ctx.Err().
func (p *Planner) Run(ctx context.Context, ds *dataset.Dataset, q domain.PivotQuery) (*domain.PivotResult, error) {
	if !knownAggregator(q.Aggregator) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAggregator, q.Aggregator)
	}
	if len(q.Measures) == 0 {
		return nil, ErrNoMeasure
	}
	if len(q.Measures) > domain.MaxMeasures {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyMeasures, len(q.Measures), domain.MaxMeasures)
	}

	// Per-query calculations become ephemeral measure columns; they exist
	// only inside this run and never touch the stored snapshot.
	table, warnings, err := dataset.Materialize(ds.Table, q.PreCalculations)
	if err != nil {
		return nil, err
	}

	rowCols, err := resolveColumns(table, q.Rows)
	if err != nil {
		return nil, err
	}
	colCols, err := resolveColumns(table, q.Columns)
	if err != nil {
		return nil, err
	}
	measures := make([]measureRef, len(q.Measures))
	for i, key := range q.Measures {
		col, ok := table.Column(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", dataset.ErrUnknownColumn, key)
		}
		measures[i] = measureRef{col: col}
	}
	filters, err := resolveFilters(table, q.Filters)
	if err != nil {
		return nil, err
	}

	agg := newAggregation(q.Aggregator, len(measures))
	rowOrder := newTupleIndex()
	colOrder := newTupleIndex()

	for i := 0; i < table.RowCount(); i++ {
		if i%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if !filters.match(i) {
			continue
		}

		rowKey := rowOrder.observe(tupleAt(rowCols, i))
		colKey := colOrder.observe(tupleAt(colCols, i))

		for m, ref := range measures {
			v, present := ref.col.Data.Float(i)
			if !present {
				continue
			}
			agg.add(rowKey, colKey, m, v)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rowTuples := sortTuples(rowOrder.tuples, rowCols)
	colTuples := sortTuples(colOrder.tuples, colCols)

	result := &domain.PivotResult{
		DatasetID:    ds.ID,
		Rows:         q.Rows,
		Columns:      q.Columns,
		Measures:     q.Measures,
		Aggregator:   q.Aggregator,
		Calculations: domain.CalculationSet{Pre: q.PreCalculations, Post: q.PostCalculations},
		ValueFormat:  valueFormat(q.Aggregator, measures),
		Warnings:     warnings,
	}

	finals := buildColumns(colTuples, colCols, measures)
	for _, fc := range finals {
		result.ColumnHeaders = append(result.ColumnHeaders, fc.header)
		keyJSON, _ := json.Marshal(fc.header)
		result.ColumnKeys = append(result.ColumnKeys, string(keyJSON))
	}

	for _, rt := range rowTuples {
		result.RowHeaders = append(result.RowHeaders, rt.parts)
		cells := make([]domain.Cell, len(finals))
		for c, fc := range finals {
			cells[c] = agg.cellAt(rt.key, fc.colKey, fc.measure)
		}
		result.Values = append(result.Values, cells)
	}

	fillTotals(result, agg, rowTuples, finals)

	if err := p.applyPostCalculations(result, agg, q, measures, rowTuples); err != nil {
		return nil, err
	}

	if len(q.Rows) == 0 && len(q.Columns) == 0 {
		fillSummary(result, agg, measures)
	}

	return result, nil
}

// buildColumns expands the column-dimension tuples across the selected
// measures. The measure label joins the column axis when several measures
// are selected or there is no column dimension to label the axis.
func buildColumns(colTuples []tuple, colCols []*domain.Column, measures []measureRef) []finalColumn {
	labelMeasures := len(measures) > 1 || len(colCols) == 0

	var finals []finalColumn
	for _, ct := range colTuples {
		for m, ref := range measures {
			header := append([]string(nil), ct.parts...)
			if labelMeasures {
				header = append(header, ref.col.Label)
			}
			finals = append(finals, finalColumn{header: header, colKey: ct.key, measure: m})
			if !labelMeasures {
				break
			}
		}
	}
	return finals
}

// fillTotals computes row, column and grand totals. Additive aggregators
// total by summing visible cells; the rest are recomputed from the source
// rows so an average of averages never leaks into the output. Multi-measure
// row and grand totals use the primary measure.
func fillTotals(result *domain.PivotResult, agg *aggregation, rowTuples []tuple, finals []finalColumn) {
	if additive(agg.agg) {
		for r := range result.Values {
			result.RowTotals = append(result.RowTotals, sumCells(result.Values[r]))
		}
		for c := range finals {
			column := make([]domain.Cell, len(result.Values))
			for r := range result.Values {
				column[r] = result.Values[r][c]
			}
			result.ColumnTotals = append(result.ColumnTotals, sumCells(column))
		}
		result.GrandTotal = sumCells(result.RowTotals)
		return
	}

	for _, rt := range rowTuples {
		result.RowTotals = append(result.RowTotals, agg.rowCell(rt.key, 0))
	}
	for _, fc := range finals {
		result.ColumnTotals = append(result.ColumnTotals, agg.colCell(fc.colKey, fc.measure))
	}
	result.GrandTotal = agg.grandCell(0)
}

func sumCells(cells []domain.Cell) domain.Cell {
	var total domain.Cell
	for _, c := range cells {
		if !c.Absent {
			total.Value += c.Value
		}
	}
	return total
}

// fillSummary sets the scalar summary fields for dimensionless queries.
func fillSummary(result *domain.PivotResult, agg *aggregation, measures []measureRef) {
	if len(measures) == 1 {
		cell := agg.grandCell(0)
		result.SummaryValue = &cell
		return
	}
	result.SummaryValues = make(map[string]domain.Cell, len(measures))
	for m, ref := range measures {
		result.SummaryValues[ref.col.Key] = agg.grandCell(m)
	}
}

func resolveColumns(table *domain.Table, keys []string) ([]*domain.Column, error) {
	cols := make([]*domain.Column, len(keys))
	for i, key := range keys {
		col, ok := table.Column(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", dataset.ErrUnknownColumn, key)
		}
		cols[i] = col
	}
	return cols, nil
}

func valueFormat(agg string, measures []measureRef) string {
	if agg == domain.AggCount || agg == domain.AggDistinctCount {
		return domain.FormatNumber
	}
	for _, ref := range measures {
		if domain.CurrencyMeasure(ref.col.Key) {
			return domain.FormatCurrency
		}
	}
	return domain.FormatNumber
}

// tupleAt renders the dimension values of row i, substituting the empty
// cell sentinel for absent values.
func tupleAt(cols []*domain.Column, i int) []string {
	parts := make([]string, len(cols))
	for c, col := range cols {
		s := col.Data.String(i)
		if s == "" {
			s = EmptyCellLabel
		}
		parts[c] = s
	}
	return parts
}

type tuple struct {
	key   string
	parts []string
}

// tupleIndex deduplicates group tuples in first-seen order.
type tupleIndex struct {
	seen   map[string]bool
	tuples []tuple
}

func newTupleIndex() *tupleIndex {
	return &tupleIndex{seen: make(map[string]bool)}
}

func (ti *tupleIndex) observe(parts []string) string {
	key := strings.Join(parts, "\x1f")
	if !ti.seen[key] {
		ti.seen[key] = true
		ti.tuples = append(ti.tuples, tuple{key: key, parts: parts})
	}
	return key
}

// sortTuples orders header tuples level by level: numeric dimensions sort
// numerically, text dimensions with Brazilian Portuguese collation, and the
// empty cell sentinel always lands last on its level.
func sortTuples(tuples []tuple, dims []*domain.Column) []tuple {
	coll := collate.New(language.BrazilianPortuguese, collate.Loose)
	sorted := append([]tuple(nil), tuples...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		for level := 0; level < len(a.parts) && level < len(b.parts); level++ {
			av, bv := a.parts[level], b.parts[level]
			if av == bv {
				continue
			}
			if av == EmptyCellLabel {
				return false
			}
			if bv == EmptyCellLabel {
				return true
			}
			if dims[level].Kind.IsNumeric() {
				an := domain.ParseNumberOrZero(av)
				bn := domain.ParseNumberOrZero(bv)
				if an != bn {
					return an < bn
				}
			}
			if cmp := coll.CompareString(av, bv); cmp != 0 {
				return cmp < 0
			}
			return av < bv
		}
		return len(a.parts) < len(b.parts)
	})
	return sorted
}

// applyPostCalculations appends one output column per post calculation, in
// declaration order, after every aggregated column. Placeholders resolve to
// the row's per-measure total; the calculation's own column total evaluates
// the expression over the grand totals.
func (p *Planner) applyPostCalculations(result *domain.PivotResult, agg *aggregation, q domain.PivotQuery, measures []measureRef, rowTuples []tuple) error {
	warned := make(map[string]bool)
	for _, spec := range q.PostCalculations {
		compiled, err := expr.Parse(spec.Expression)
		if err != nil {
			return fmt.Errorf("calculation %q: %w", spec.Name, err)
		}
		missing := func(name string) {
			if !warned[name] {
				warned[name] = true
				result.Warnings = append(result.Warnings, fmt.Sprintf("Campo {%s} não encontrado; tratado como 0", name))
			}
		}

		header := []string{spec.Name}
		result.ColumnHeaders = append(result.ColumnHeaders, header)
		key := spec.ResultKey
		if key == "" {
			keyJSON, _ := json.Marshal(header)
			key = string(keyJSON)
		}
		result.ColumnKeys = append(result.ColumnKeys, key)

		for r, rt := range rowTuples {
			env := measureEnv(measures, func(m int) domain.Cell { return agg.rowCell(rt.key, m) })
			result.Values[r] = append(result.Values[r], postCell(compiled.Eval(env, missing), spec.Decimals))
		}

		env := measureEnv(measures, func(m int) domain.Cell { return agg.grandCell(m) })
		result.ColumnTotals = append(result.ColumnTotals, postCell(compiled.Eval(env, missing), spec.Decimals))
	}
	return nil
}

// postCell renders a post-calculation result. Division by zero degrades to
// zero in the output instead of an empty cell.
func postCell(v expr.Value, decimals *int) domain.Cell {
	if v.Absent {
		return domain.Cell{}
	}
	if decimals != nil {
		v.Num = expr.Round(v.Num, *decimals)
	}
	return domain.Cell{Value: v.Num}
}

// measureEnv resolves placeholders against the selected measures by key or
// display label.
func measureEnv(measures []measureRef, cell func(m int) domain.Cell) expr.Env {
	return func(name string) (expr.Value, bool) {
		for m, ref := range measures {
			if ref.col.Key == name || ref.col.Label == name || ref.col.Key == loader.KeyFor(name) {
				c := cell(m)
				if c.Absent {
					return expr.Value{Absent: true}, true
				}
				return expr.Value{Num: c.Value}, true
			}
		}
		return expr.Value{}, false
	}
}
