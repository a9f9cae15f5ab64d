package dashboard

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cpor-analytics/internal/contracts"
	"cpor-analytics/internal/domain"
	"cpor-analytics/internal/loader"
)

const contractsCSV = `Descrição da Despesa;UGR;Valor Total Estimado;Total Executado;Fim da Vigência
Limpeza;X;1000;400;31/12/2024
Vigilância;Y;500;500;30/06/2026
`

func testManager(t *testing.T, opts Options) *Manager {
	t.Helper()
	today := func() time.Time { return time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC) }
	if opts.Normalizer == nil {
		opts.Normalizer = contracts.NewNormalizer(contracts.WithClock(today))
	}
	if opts.Clock == nil {
		opts.Clock = today
	}
	return NewManager(opts)
}

func uploadCSV(t *testing.T, m *Manager, name, csv string) *Entry {
	t.Helper()
	table, err := loader.Load(name+".csv", []byte(csv))
	require.NoError(t, err)
	entry, err := m.Upload(name, table)
	require.NoError(t, err)
	return entry
}

func TestManagerUploadBecomesPrimary(t *testing.T) {
	tick := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	m := testManager(t, Options{Clock: func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}})

	first := uploadCSV(t, m, "marco", contractsCSV)
	got, err := m.Get("")
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	second := uploadCSV(t, m, "abril", contractsCSV)
	got, err = m.Get("")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	// The older dataset stays addressable by id.
	got, err = m.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "marco", got.Name)

	infos := m.List()
	require.Len(t, infos, 2)
	assert.Equal(t, "marco", infos[0].Name)
	assert.Equal(t, "abril", infos[1].Name)
}

func TestManagerGetUnknown(t *testing.T) {
	m := testManager(t, Options{})
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerDeleteFallsBackToNewest(t *testing.T) {
	tick := time.Date(2025, 3, 15, 9, 0, 0, 0, time.UTC)
	m := testManager(t, Options{Clock: func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}})

	first := uploadCSV(t, m, "um", contractsCSV)
	second := uploadCSV(t, m, "dois", contractsCSV)
	third := uploadCSV(t, m, "tres", contractsCSV)

	m.Delete(third.ID)
	got, err := m.Get("")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	// Deleting a non-primary dataset keeps the primary.
	m.Delete(first.ID)
	got, err = m.Get("")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	m.Delete(second.ID)
	_, err = m.Get("")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, m.Count())

	// Idempotent.
	m.Delete(second.ID)
}

func TestManagerOnReplaceHook(t *testing.T) {
	var seen []string
	m := testManager(t, Options{OnReplace: func(id string) { seen = append(seen, id) }})

	first := uploadCSV(t, m, "um", contractsCSV)
	second := uploadCSV(t, m, "dois", contractsCSV)
	require.Equal(t, []string{first.ID, second.ID}, seen)

	// Delete of the primary republishes the survivor.
	m.Delete(second.ID)
	require.Equal(t, []string{first.ID, second.ID, first.ID}, seen)
}

func TestManagerProjectionFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashboard_data.json")
	m := testManager(t, Options{ProjectionPath: path})
	uploadCSV(t, m, "marco", contractsCSV)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var snap map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &snap))
	for _, key := range []string{
		"kpis", "ugr_analysis", "monthly_consumption",
		"expiring_contracts_list", "expired_contracts_list", "raw_data_for_filters",
	} {
		assert.Contains(t, snap, key)
	}

	var kpis domain.KPIs
	require.NoError(t, json.Unmarshal(snap["kpis"], &kpis))
	assert.Equal(t, 1500.0, kpis.TotalEstimated)
}

func TestManagerView(t *testing.T) {
	m := testManager(t, Options{})
	entry := uploadCSV(t, m, "marco", contractsCSV)

	view, err := m.View(Query{})
	require.NoError(t, err)
	assert.Equal(t, entry.ID, view.DatasetID)
	assert.Equal(t, "marco", view.Name)
	assert.Equal(t, 1500.0, view.KPIs.TotalEstimated)
	assert.Len(t, view.Table.Rows, 2)
	assert.Equal(t, []string{"X", "Y"}, view.FilterOptions.UGR)
	require.Len(t, view.Datasets, 1)
}

func TestManagerViewFiltersAndScenario(t *testing.T) {
	m := testManager(t, Options{})
	uploadCSV(t, m, "marco", contractsCSV)

	view, err := m.View(Query{
		Filters: map[string][]string{"ugr": {"X"}},
		Scenario: domain.Scenario{Adjustments: []domain.ScenarioAdjustment{
			{UGR: "X", Field: domain.ScenarioFieldExecuted, Delta: 100},
		}},
	})
	require.NoError(t, err)
	assert.Len(t, view.Table.Rows, 1)
	assert.Equal(t, 500.0, view.KPIs.TotalExecuted)
	assert.Equal(t, 100.0, view.Scenario.DeltaExecuted)

	// Filter options still cover the whole dataset.
	assert.Equal(t, []string{"X", "Y"}, view.FilterOptions.UGR)
}

func TestManagerViewUnknownFilterWarns(t *testing.T) {
	m := testManager(t, Options{})
	uploadCSV(t, m, "marco", contractsCSV)

	view, err := m.View(Query{Filters: map[string][]string{"fantasma": {"x"}}})
	require.NoError(t, err)
	assert.NotEmpty(t, view.Warnings)
}

func TestManagerExportData(t *testing.T) {
	m := testManager(t, Options{})
	uploadCSV(t, m, "marco", contractsCSV)

	slice, err := m.ExportData(Query{}, ExportTargetTable)
	require.NoError(t, err)
	assert.Equal(t, "marco_contratos", slice.Title)
	require.Len(t, slice.Rows, 2)
	assert.Equal(t, "Limpeza", slice.Rows[0][0])
	assert.Equal(t, "1000.00", slice.Rows[0][9])
	assert.Equal(t, "40,0%", slice.Rows[0][13])

	alerts, err := m.ExportData(Query{}, ExportTargetAlerts)
	require.NoError(t, err)
	assert.Equal(t, "marco_alertas", alerts.Title)
	assert.NotEmpty(t, alerts.Rows)

	_, err = m.ExportData(Query{}, "png")
	assert.Error(t, err)
}
