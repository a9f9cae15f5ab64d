package dataset

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpor-analytics/internal/domain"
	"cpor-analytics/internal/expr"
)

func testTable(t *testing.T) *domain.Table {
	t.Helper()
	table, err := domain.NewTable([]*domain.Column{
		{
			Key: "ugr", Label: "UGR", Kind: domain.KindText,
			Data: domain.NewTextVector([]string{"CMDO", "CMDO", "DSAU", "DSAU"}),
		},
		{
			Key: "valor_estimado", Label: "Valor Estimado", Kind: domain.KindReal, IsMeasure: true,
			Data: domain.NewNumericVector(domain.KindReal, []float64{100, 200, 300, 0}, []bool{false, false, false, true}),
		},
		{
			Key: "valor_executado", Label: "Valor Executado", Kind: domain.KindReal, IsMeasure: true,
			Data: domain.NewNumericVector(domain.KindReal, []float64{50, 100, 150, 10}, nil),
		},
	})
	require.NoError(t, err)
	return table
}

func TestStorePutGetDelete(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(WithClock(func() time.Time { return fixed }))

	ds := store.Put("orcamento.xlsx", testTable(t))
	require.True(t, strings.HasPrefix(ds.ID, "ds-"), "id %q", ds.ID)
	require.Equal(t, fixed, ds.CreatedAt)

	got, err := store.Get(ds.ID)
	require.NoError(t, err)
	assert.Same(t, ds, got)

	other := store.Put("contratos.csv", testTable(t))
	require.NotEqual(t, ds.ID, other.ID)

	infos := store.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "orcamento.xlsx", infos[0].Name)
	assert.Equal(t, "contratos.csv", infos[1].Name)

	store.Delete(ds.ID)
	store.Delete(ds.ID) // idempotent

	_, err = store.Get(ds.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store.Count())
}

func TestPutIDCombinesCounterAndToken(t *testing.T) {
	store := NewStore()

	first := store.Put("a", testTable(t))
	second := store.Put("b", testTable(t))
	require.NotEqual(t, first.ID, second.ID)

	// ds-<counter>-<token>: the counter makes uniqueness unconditional,
	// the token keeps the id unguessable.
	for i, id := range []string{first.ID, second.ID} {
		parts := strings.SplitN(id, "-", 3)
		require.Len(t, parts, 3, "id %q", id)
		assert.Equal(t, "ds", parts[0])
		assert.Equal(t, strconv.Itoa(i+1), parts[1], "id %q", id)
		assert.NotEmpty(t, parts[2])
	}
}

func TestAvailablePostColumns(t *testing.T) {
	store := NewStore()
	ds := store.Put("orcamento", testTable(t))

	require.Equal(t, []domain.ColumnRef{
		{Key: "valor_estimado", Label: "Valor Estimado"},
		{Key: "valor_executado", Label: "Valor Executado"},
	}, ds.AvailablePostColumns())

	// Materialized pre-calculations become selectable too.
	next, err := store.SetCalculations(ds.ID, domain.CalculationSet{
		Pre: []domain.CalculationSpec{{Name: "Dobro", Expression: "{valor_executado} * 2", ResultField: "dobro"}},
	})
	require.NoError(t, err)
	assert.Contains(t, next.AvailablePostColumns(), domain.ColumnRef{Key: "dobro", Label: "Dobro"})
}

func TestStoreCurrencyDetection(t *testing.T) {
	store := NewStore()
	ds := store.Put("orcamento", testTable(t))
	require.True(t, ds.Currency())

	aggs := ds.Aggregations()
	require.Len(t, aggs, 6)
	assert.Equal(t, domain.FormatCurrency, aggs[0].Format)
	assert.Equal(t, domain.FormatNumber, aggs[2].Format) // count stays plain

	plain, err := domain.NewTable([]*domain.Column{
		{
			Key: "quantidade", Label: "Quantidade", Kind: domain.KindInteger, IsMeasure: true,
			Data: domain.NewNumericVector(domain.KindInteger, []float64{1, 2}, nil),
		},
	})
	require.NoError(t, err)
	assert.False(t, store.Put("plain", plain).Currency())
}

func TestSetCalculationsMaterializes(t *testing.T) {
	store := NewStore()
	ds := store.Put("orcamento", testTable(t))

	two := 2
	next, err := store.SetCalculations(ds.ID, domain.CalculationSet{
		Pre: []domain.CalculationSpec{{
			Name:        "Percentual Executado",
			Stage:       domain.StagePre,
			Operation:   "expression",
			Expression:  "{valor_executado} / {valor_estimado} * 100",
			Decimals:    &two,
			ResultField: "percentual_executado",
		}},
	})
	require.NoError(t, err)

	col, ok := next.Table.Column("percentual_executado")
	require.True(t, ok)
	require.True(t, col.Calculated)
	require.True(t, col.IsMeasure)

	v, present := col.Data.Float(0)
	require.True(t, present)
	assert.Equal(t, 50.0, v)

	// Row 3 divides by an absent estimate: the cell is absent, not an error.
	_, present = col.Data.Float(3)
	assert.False(t, present)

	// The pre-update snapshot still has no calculated column.
	_, ok = ds.Table.Column("percentual_executado")
	assert.False(t, ok)

	// Replacing the set drops the previous calculated column.
	replaced, err := store.SetCalculations(ds.ID, domain.CalculationSet{})
	require.NoError(t, err)
	_, ok = replaced.Table.Column("percentual_executado")
	assert.False(t, ok)
}

func TestSetCalculationsChaining(t *testing.T) {
	store := NewStore()
	ds := store.Put("orcamento", testTable(t))

	next, err := store.SetCalculations(ds.ID, domain.CalculationSet{
		Pre: []domain.CalculationSpec{
			{Name: "Dobro", Expression: "{valor_executado} * 2", ResultField: "dobro"},
			{Name: "Quadruplo", Expression: "{dobro} * 2", ResultField: "quadruplo"},
		},
	})
	require.NoError(t, err)

	col, ok := next.Table.Column("quadruplo")
	require.True(t, ok)
	v, _ := col.Data.Float(0)
	assert.Equal(t, 200.0, v)
}

func TestSetCalculationsErrors(t *testing.T) {
	store := NewStore()
	ds := store.Put("orcamento", testTable(t))

	_, err := store.SetCalculations(ds.ID, domain.CalculationSet{
		Pre: []domain.CalculationSpec{{Name: "Quebrado", Expression: "{a} +"}},
	})
	assert.ErrorIs(t, err, expr.ErrInvalidExpression)

	_, err = store.SetCalculations(ds.ID, domain.CalculationSet{
		Post: []domain.CalculationSpec{{Name: "Quebrado", Expression: "(1"}},
	})
	assert.ErrorIs(t, err, expr.ErrInvalidExpression)

	// Result key colliding with a source column is rejected.
	_, err = store.SetCalculations(ds.ID, domain.CalculationSet{
		Pre: []domain.CalculationSpec{{Name: "Colisão", Expression: "1", ResultField: "ugr"}},
	})
	assert.Error(t, err)

	_, err = store.SetCalculations("ds-desconhecido", domain.CalculationSet{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetCalculationsUnknownFieldWarns(t *testing.T) {
	store := NewStore()
	ds := store.Put("orcamento", testTable(t))

	next, err := store.SetCalculations(ds.ID, domain.CalculationSet{
		Pre: []domain.CalculationSpec{{Name: "Com Aviso", Expression: "{campo_fantasma} + 10", ResultField: "com_aviso"}},
	})
	require.NoError(t, err)
	require.Len(t, next.Warnings, 1)
	assert.Contains(t, next.Warnings[0], "campo_fantasma")

	col, ok := next.Table.Column("com_aviso")
	require.True(t, ok)
	v, _ := col.Data.Float(0)
	assert.Equal(t, 10.0, v)
}
