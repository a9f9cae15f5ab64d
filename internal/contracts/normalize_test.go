package contracts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpor-analytics/internal/domain"
	"cpor-analytics/internal/loader"
)

func fixedNormalizer(t *testing.T, opts ...Option) *Normalizer {
	t.Helper()
	today := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	all := append([]Option{WithClock(func() time.Time { return today })}, opts...)
	return NewNormalizer(all...)
}

func loadContracts(t *testing.T, csv string) *domain.Table {
	t.Helper()
	table, err := loader.Load("contratos.csv", []byte(csv))
	require.NoError(t, err)
	return table
}

const basicCSV = `Descrição da Despesa;UGR;Valor Total Estimado;Total Executado;Fim da Vigência
Limpeza;X;1000;400;31/12/2024
Vigilância;Y;500;500;30/06/2026
`

func TestNormalizeKPIs(t *testing.T) {
	n := fixedNormalizer(t)
	bundle, err := n.Normalize(loadContracts(t, basicCSV))
	require.NoError(t, err)
	require.Len(t, bundle.Rows, 2)

	k := n.KPIs(bundle.Rows)
	assert.Equal(t, 1500.0, k.TotalEstimated)
	assert.Equal(t, 900.0, k.TotalExecuted)
	assert.InDelta(t, 60, k.ExecutionPercent, 1e-9)
	assert.Equal(t, 1, k.ExpiredCount)
	assert.Equal(t, 0, k.ExpiringCount)
	assert.Equal(t, 600.0, k.Balance)
}

func TestNormalizeLifecycle(t *testing.T) {
	n := fixedNormalizer(t)
	bundle, err := n.Normalize(loadContracts(t, basicCSV))
	require.NoError(t, err)

	today := n.Today()
	assert.Equal(t, domain.LifecycleExpiredPrevious, domain.Lifecycle(bundle.Rows[0].VigencyEnd, today))
	assert.Equal(t, domain.LifecycleFuture, domain.Lifecycle(bundle.Rows[1].VigencyEnd, today))
}

func TestNormalizeScenario(t *testing.T) {
	n := fixedNormalizer(t)
	bundle, err := n.Normalize(loadContracts(t, basicCSV))
	require.NoError(t, err)

	adjusted, summary, warnings := ApplyScenario(bundle.Rows, domain.Scenario{
		Adjustments: []domain.ScenarioAdjustment{{UGR: "X", Field: domain.ScenarioFieldExecuted, Delta: 100}},
	})
	require.Empty(t, warnings)
	assert.Equal(t, 100.0, summary.DeltaExecuted)

	// Base rows stay untouched; the scenario copy carries the shift.
	assert.Equal(t, 400.0, bundle.Rows[0].Executed)
	assert.Equal(t, 500.0, adjusted[0].Executed)
	assert.Equal(t, 1000.0, n.KPIs(adjusted).TotalExecuted)

	// Derived fields follow the adjusted base.
	assert.InDelta(t, 50, adjusted[0].ExecutionRate, 1e-9)
}

func TestNormalizeDiscardsTotalRows(t *testing.T) {
	csv := `Descrição;UGR;Valor Total Estimado
Limpeza;X;1000
Total Geral;;0
Total da UGR X;X;1000
Total de Serviços;Y;500
Total anual;;1500
Vigilância;Y;500
`
	n := fixedNormalizer(t)
	bundle, err := n.Normalize(loadContracts(t, csv))
	require.NoError(t, err)

	require.Len(t, bundle.Rows, 2)
	assert.Equal(t, "Limpeza", bundle.Rows[0].Description)
	assert.Equal(t, "Vigilância", bundle.Rows[1].Description)
}

func TestNormalizeTotalPrefixKeepsRowsWithUnit(t *testing.T) {
	// "Total anual" with a unit code is a real contract description.
	csv := `Descrição;UGR;Valor Total Estimado
Total anual;X;1000
`
	bundle, err := fixedNormalizer(t).Normalize(loadContracts(t, csv))
	require.NoError(t, err)
	require.Len(t, bundle.Rows, 1)
}

func TestNormalizeMonthFallbacks(t *testing.T) {
	csv := `Descrição;UGR;Valor Total Estimado;Jan/25;Fev/25;Mar/25
Limpeza;X;1200;100;150;0
`
	n := fixedNormalizer(t)
	bundle, err := n.Normalize(loadContracts(t, csv))
	require.NoError(t, err)

	require.Len(t, bundle.Months, 3)
	assert.Equal(t, "month_2025_01", bundle.Months[0].Key)
	assert.Equal(t, "month_2025_03", bundle.Months[2].Key)

	row := bundle.Rows[0]
	// No executed column: falls back to the month sum.
	assert.Equal(t, 250.0, row.Executed)
	// Average over months with a nonzero value only.
	assert.Equal(t, 125.0, row.MonthlyExecuted)
	assert.InDelta(t, 250.0/1200*100, row.ExecutionRate, 1e-9)
}

func TestNormalizeCommittedFallback(t *testing.T) {
	csv := `Descrição;UGR;Valor Total Estimado;Saldo de Empenhos;Saldo RAP
Limpeza;X;1000;300;200
`
	bundle, err := fixedNormalizer(t).Normalize(loadContracts(t, csv))
	require.NoError(t, err)

	row := bundle.Rows[0]
	assert.Equal(t, 500.0, row.Committed)
	// No executed and no months: executed falls back to committed.
	assert.Equal(t, 500.0, row.Executed)
}

func TestNormalizeEmptyAfterFilter(t *testing.T) {
	csv := `Descrição;UGR;Valor Total Estimado
Total Geral;;1500
`
	_, err := fixedNormalizer(t).Normalize(loadContracts(t, csv))
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestExpiredByStatus(t *testing.T) {
	assert.True(t, expiredByStatus("VENCIDO"))
	assert.True(t, expiredByStatus("Contrato Vencido"))
	assert.False(t, expiredByStatus("VENCENDO"))
	assert.False(t, expiredByStatus("Vigente"))
}

func TestExpiryListsWindow(t *testing.T) {
	// Today 2025-03-15: one contract 20 days out, one 90 days out, one
	// expired last year.
	csv := `Descrição;UGR;Valor Total Estimado;Fim da Vigência
Perto;X;100;04/04/2025
Longe;X;100;15/06/2025
Vencido;Y;100;01/10/2024
`
	n := fixedNormalizer(t)
	bundle, err := n.Normalize(loadContracts(t, csv))
	require.NoError(t, err)

	expiring, expired := n.ExpiryLists(bundle.Rows)
	require.Len(t, expiring, 1)
	assert.Equal(t, "Perto", expiring[0].Description)
	assert.Equal(t, 20, expiring[0].DaysLeft)
	assert.Equal(t, domain.SeverityCritical, expiring[0].Severity)

	require.Len(t, expired, 1)
	assert.Equal(t, "Vencido", expired[0].Description)
}

func TestAlertsSeverityOrder(t *testing.T) {
	csv := `Descrição;UGR;Valor Total Estimado;Total Executado;Saldo de Empenhos;Fim da Vigência
SemEmpenho;X;1000;100;0;31/12/2026
SaldoBaixo;X;1000;900;500;31/12/2026
Vencido;Y;1000;500;500;01/01/2024
`
	n := fixedNormalizer(t)
	bundle, err := n.Normalize(loadContracts(t, csv))
	require.NoError(t, err)

	alerts := n.Alerts(bundle.Rows)
	require.NotEmpty(t, alerts)
	assert.Equal(t, domain.SeverityCritical, alerts[0].Severity)
	assert.Equal(t, "Vencido", alerts[0].Description)
	for i := 1; i < len(alerts); i++ {
		assert.LessOrEqual(t, severityRank[alerts[i-1].Severity], severityRank[alerts[i].Severity])
	}
}

func TestFilterRows(t *testing.T) {
	n := fixedNormalizer(t)
	bundle, err := n.Normalize(loadContracts(t, basicCSV))
	require.NoError(t, err)

	filtered, warnings := FilterRows(bundle.Rows, map[string][]string{"ugr": {"X"}})
	require.Empty(t, warnings)
	require.Len(t, filtered, 1)
	assert.Equal(t, "Limpeza", filtered[0].Description)

	_, warnings = FilterRows(bundle.Rows, map[string][]string{"fantasma": {"x"}})
	require.Len(t, warnings, 1)
}

func TestScenarioEqualSplitOnZeroBase(t *testing.T) {
	rows := []*domain.ContractRow{
		{UGR: "X", Description: "A", Months: map[string]float64{}},
		{UGR: "X", Description: "B", Months: map[string]float64{}},
	}
	adjusted, summary, _ := ApplyScenario(rows, domain.Scenario{
		Adjustments: []domain.ScenarioAdjustment{{UGR: "X", Field: domain.ScenarioFieldCommitted, Delta: 100}},
	})
	assert.Equal(t, 100.0, summary.DeltaCommitted)
	assert.Equal(t, 50.0, adjusted[0].Committed)
	assert.Equal(t, 50.0, adjusted[1].Committed)
}

func TestScenarioSpreadsExecutedOverMonths(t *testing.T) {
	rows := []*domain.ContractRow{{
		UGR: "X", Description: "A", Executed: 100,
		Months: map[string]float64{"month_2025_01": 75, "month_2025_02": 25},
	}}
	adjusted, _, _ := ApplyScenario(rows, domain.Scenario{
		Adjustments: []domain.ScenarioAdjustment{{UGR: "X", Field: domain.ScenarioFieldExecuted, Delta: 100}},
	})
	assert.Equal(t, 200.0, adjusted[0].Executed)
	assert.Equal(t, 150.0, adjusted[0].Months["month_2025_01"])
	assert.Equal(t, 50.0, adjusted[0].Months["month_2025_02"])
}

func TestParseMonthHeader(t *testing.T) {
	cases := []struct {
		label string
		key   string
		ok    bool
	}{
		{"Jan/25", "month_2025_01", true},
		{"janeiro 2025", "month_2025_01", true},
		{"2025-07", "month_2025_07", true},
		{"2025-07-01", "month_2025_07", true},
		{"dez", "month_2025_12", true},
		{"Descrição", "", false},
		{"UGR", "", false},
		{"Total Executado", "", false},
	}
	for _, tc := range cases {
		info, ok := parseMonthHeader(tc.label, 2025)
		if ok != tc.ok {
			t.Errorf("parseMonthHeader(%q) ok = %v, want %v", tc.label, ok, tc.ok)
			continue
		}
		if ok && info.Key != tc.key {
			t.Errorf("parseMonthHeader(%q) key = %q, want %q", tc.label, info.Key, tc.key)
		}
	}
}

func TestHeatmapTopAndHighlights(t *testing.T) {
	n := fixedNormalizer(t)
	months := []domain.MonthInfo{
		{Key: "month_2025_01", Label: "Jan", Order: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{Key: "month_2025_02", Label: "Fev", Order: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)},
	}
	end := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	rows := []*domain.ContractRow{{
		Description: "Limpeza", Executed: 300, MonthlyExecuted: 150, VigencyEnd: &end,
		Months: map[string]float64{"month_2025_01": 200, "month_2025_02": 100},
	}}

	hm := n.BuildHeatmap(rows, months)
	require.Len(t, hm.Rows, 1)
	assert.Equal(t, []float64{200, 100}, hm.Rows[0].Values)
	// Jan exceeds the row average; Fev is the vigency month this year.
	assert.Equal(t, []bool{true, true}, hm.Rows[0].Highlights)
	assert.Equal(t, 200.0, hm.MaxValue)
}
