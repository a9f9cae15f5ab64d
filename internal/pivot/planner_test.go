package pivot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpor-analytics/internal/dataset"
	"cpor-analytics/internal/domain"
	"cpor-analytics/internal/expr"
)

// fixture: six budget rows across two units and two months, one row with an
// absent unit.
func fixtureDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	table, err := domain.NewTable([]*domain.Column{
		{
			Key: "ugr", Label: "UGR", Kind: domain.KindText,
			Data: domain.NewTextVector([]string{"CMDO", "CMDO", "DSAU", "DSAU", "", "CMDO"}),
		},
		{
			Key: "mes", Label: "Mês", Kind: domain.KindText,
			Data: domain.NewTextVector([]string{"jan", "fev", "jan", "fev", "jan", "jan"}),
		},
		{
			Key: "valor_estimado", Label: "Valor Estimado", Kind: domain.KindReal, IsMeasure: true,
			Data: domain.NewNumericVector(domain.KindReal, []float64{100, 200, 300, 400, 500, 50}, nil),
		},
		{
			Key: "valor_executado", Label: "Valor Executado", Kind: domain.KindReal, IsMeasure: true,
			Data: domain.NewNumericVector(domain.KindReal, []float64{50, 100, 150, 200, 250, 25}, nil),
		},
	})
	require.NoError(t, err)
	return dataset.NewStore().Put("orcamento", table)
}

func runQuery(t *testing.T, ds *dataset.Dataset, q domain.PivotQuery) *domain.PivotResult {
	t.Helper()
	result, err := NewPlanner().Run(context.Background(), ds, q)
	require.NoError(t, err)
	return result
}

func TestPivotSumMatrix(t *testing.T) {
	ds := fixtureDataset(t)
	result := runQuery(t, ds, domain.PivotQuery{
		Rows:       []string{"ugr"},
		Columns:    []string{"mes"},
		Measures:   []string{"valor_estimado"},
		Aggregator: domain.AggSum,
	})

	require.Equal(t, [][]string{{"CMDO"}, {"DSAU"}, {EmptyCellLabel}}, result.RowHeaders)
	require.Equal(t, [][]string{{"fev"}, {"jan"}}, result.ColumnHeaders)
	require.Equal(t, []string{`["fev"]`, `["jan"]`}, result.ColumnKeys)

	require.Len(t, result.Values, 3)
	assert.Equal(t, domain.Cell{Value: 200}, result.Values[0][0])
	assert.Equal(t, domain.Cell{Value: 150}, result.Values[0][1])
	assert.Equal(t, domain.Cell{Value: 400}, result.Values[1][0])
	assert.Equal(t, domain.Cell{Value: 300}, result.Values[1][1])
	assert.Equal(t, domain.Cell{Value: 0}, result.Values[2][0], "empty sum group renders zero")
	assert.Equal(t, domain.Cell{Value: 500}, result.Values[2][1])

	assert.Equal(t, []domain.Cell{{Value: 350}, {Value: 700}, {Value: 500}}, result.RowTotals)
	assert.Equal(t, []domain.Cell{{Value: 600}, {Value: 950}}, result.ColumnTotals)
	assert.Equal(t, domain.Cell{Value: 1550}, result.GrandTotal)
	assert.Equal(t, domain.FormatCurrency, result.ValueFormat)
}

func TestPivotAverageTotalsRecomputed(t *testing.T) {
	ds := fixtureDataset(t)
	result := runQuery(t, ds, domain.PivotQuery{
		Rows:       []string{"ugr"},
		Columns:    []string{"mes"},
		Measures:   []string{"valor_estimado"},
		Aggregator: domain.AggAvg,
	})

	// CMDO jan cell averages its two rows.
	assert.InDelta(t, 75, result.Values[0][1].Value, 1e-9)

	// The row total is the average over all three CMDO rows, not the
	// average of the two cell averages (which would be 137.5).
	assert.InDelta(t, 350.0/3, result.RowTotals[0].Value, 1e-9)

	// Column total for jan: rows 100, 300, 500, 50.
	assert.InDelta(t, 950.0/4, result.ColumnTotals[1].Value, 1e-9)

	assert.InDelta(t, 1550.0/6, result.GrandTotal.Value, 1e-9)
}

func TestPivotDistinctCount(t *testing.T) {
	ds := fixtureDataset(t)
	result := runQuery(t, ds, domain.PivotQuery{
		Rows:       []string{"ugr"},
		Measures:   []string{"valor_estimado"},
		Aggregator: domain.AggDistinctCount,
	})

	require.Equal(t, [][]string{{"Valor Estimado"}}, result.ColumnHeaders)
	assert.Equal(t, domain.Cell{Value: 3}, result.Values[0][0])
	assert.Equal(t, domain.Cell{Value: 2}, result.Values[1][0])
	assert.Equal(t, domain.Cell{Value: 1}, result.Values[2][0])
	assert.Equal(t, domain.Cell{Value: 6}, result.GrandTotal)
	assert.Equal(t, domain.FormatNumber, result.ValueFormat)
}

func TestPivotFilters(t *testing.T) {
	ds := fixtureDataset(t)
	result := runQuery(t, ds, domain.PivotQuery{
		Rows:       []string{"mes"},
		Measures:   []string{"valor_executado"},
		Aggregator: domain.AggSum,
		Filters:    map[string][]string{"ugr": {"CMDO"}},
	})

	require.Equal(t, [][]string{{"fev"}, {"jan"}}, result.RowHeaders)
	assert.Equal(t, domain.Cell{Value: 100}, result.Values[0][0])
	assert.Equal(t, domain.Cell{Value: 75}, result.Values[1][0])
}

func TestPivotEmptyAllowSetSelectsNothing(t *testing.T) {
	ds := fixtureDataset(t)
	result := runQuery(t, ds, domain.PivotQuery{
		Rows:       []string{"ugr"},
		Measures:   []string{"valor_estimado"},
		Aggregator: domain.AggSum,
		Filters:    map[string][]string{"mes": {}},
	})

	assert.Empty(t, result.Values)
	assert.Equal(t, domain.Cell{Value: 0}, result.GrandTotal)
}

func TestPivotMultipleMeasures(t *testing.T) {
	ds := fixtureDataset(t)
	result := runQuery(t, ds, domain.PivotQuery{
		Rows:       []string{"ugr"},
		Columns:    []string{"mes"},
		Measures:   []string{"valor_estimado", "valor_executado"},
		Aggregator: domain.AggSum,
	})

	// Column axis is the cross product of months and measures, measure
	// varying fastest.
	require.Equal(t, [][]string{
		{"fev", "Valor Estimado"},
		{"fev", "Valor Executado"},
		{"jan", "Valor Estimado"},
		{"jan", "Valor Executado"},
	}, result.ColumnHeaders)

	assert.Equal(t, domain.Cell{Value: 200}, result.Values[0][0])
	assert.Equal(t, domain.Cell{Value: 100}, result.Values[0][1])
	assert.Equal(t, domain.Cell{Value: 150}, result.Values[0][2])
	assert.Equal(t, domain.Cell{Value: 75}, result.Values[0][3])
}

func TestPivotSummaryValue(t *testing.T) {
	ds := fixtureDataset(t)
	result := runQuery(t, ds, domain.PivotQuery{
		Measures:   []string{"valor_estimado"},
		Aggregator: domain.AggSum,
	})
	require.NotNil(t, result.SummaryValue)
	assert.Equal(t, 1550.0, result.SummaryValue.Value)

	multi := runQuery(t, ds, domain.PivotQuery{
		Measures:   []string{"valor_estimado", "valor_executado"},
		Aggregator: domain.AggSum,
	})
	require.Nil(t, multi.SummaryValue)
	assert.Equal(t, 1550.0, multi.SummaryValues["valor_estimado"].Value)
	assert.Equal(t, 775.0, multi.SummaryValues["valor_executado"].Value)
}

func TestPivotPostCalculation(t *testing.T) {
	ds := fixtureDataset(t)
	two := 2
	result := runQuery(t, ds, domain.PivotQuery{
		Rows:       []string{"ugr"},
		Measures:   []string{"valor_estimado", "valor_executado"},
		Aggregator: domain.AggSum,
		PostCalculations: []domain.CalculationSpec{{
			Name:       "% Execução",
			Stage:      domain.StagePost,
			Expression: "{valor_executado} / {valor_estimado} * 100",
			Decimals:   &two,
		}},
	})

	// The calculation column is appended after every measure column.
	last := len(result.ColumnHeaders) - 1
	require.Equal(t, []string{"% Execução"}, result.ColumnHeaders[last])

	for r := range result.Values {
		assert.InDelta(t, 50, result.Values[r][last].Value, 1e-9)
	}
	assert.InDelta(t, 50, result.ColumnTotals[last].Value, 1e-9)
}

func TestPivotEphemeralPreCalculation(t *testing.T) {
	ds := fixtureDataset(t)
	result := runQuery(t, ds, domain.PivotQuery{
		Rows:       []string{"ugr"},
		Measures:   []string{"saldo_restante"},
		Aggregator: domain.AggSum,
		PreCalculations: []domain.CalculationSpec{{
			Name:        "Saldo Restante",
			Expression:  "{valor_estimado} - {valor_executado}",
			ResultField: "saldo_restante",
		}},
	})

	assert.Equal(t, domain.Cell{Value: 175}, result.RowTotals[0])

	// The stored snapshot is untouched by query-scoped calculations.
	_, ok := ds.Table.Column("saldo_restante")
	assert.False(t, ok)
}

func TestPivotValidation(t *testing.T) {
	ds := fixtureDataset(t)
	planner := NewPlanner()
	ctx := context.Background()

	_, err := planner.Run(ctx, ds, domain.PivotQuery{Aggregator: domain.AggSum})
	assert.ErrorIs(t, err, ErrNoMeasure)

	seven := make([]string, 7)
	for i := range seven {
		seven[i] = "valor_estimado"
	}
	_, err = planner.Run(ctx, ds, domain.PivotQuery{Measures: seven, Aggregator: domain.AggSum})
	assert.ErrorIs(t, err, ErrTooManyMeasures)

	_, err = planner.Run(ctx, ds, domain.PivotQuery{
		Measures: []string{"valor_estimado"}, Aggregator: "median",
	})
	assert.ErrorIs(t, err, ErrUnknownAggregator)

	_, err = planner.Run(ctx, ds, domain.PivotQuery{
		Rows: []string{"inexistente"}, Measures: []string{"valor_estimado"}, Aggregator: domain.AggSum,
	})
	assert.ErrorIs(t, err, dataset.ErrUnknownColumn)

	_, err = planner.Run(ctx, ds, domain.PivotQuery{
		Measures: []string{"valor_estimado"}, Aggregator: domain.AggSum,
		Filters: map[string][]string{"fantasma": {"x"}},
	})
	assert.ErrorIs(t, err, dataset.ErrUnknownColumn)

	_, err = planner.Run(ctx, ds, domain.PivotQuery{
		Measures: []string{"valor_estimado"}, Aggregator: domain.AggSum,
		PostCalculations: []domain.CalculationSpec{{Name: "quebrado", Expression: "1 +"}},
	})
	assert.ErrorIs(t, err, expr.ErrInvalidExpression)
}

func TestPivotCancellation(t *testing.T) {
	ds := fixtureDataset(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPlanner().Run(ctx, ds, domain.PivotQuery{
		Rows: []string{"ugr"}, Measures: []string{"valor_estimado"}, Aggregator: domain.AggSum,
	})
	assert.ErrorIs(t, err, context.Canceled)
}
