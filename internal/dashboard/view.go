package dashboard

import (
	"cpor-analytics/internal/contracts"
	"cpor-analytics/internal/domain"
)

// Query selects a dataset and shapes the dashboard response.
type Query struct {
	DatasetID string              `json:"datasetId"`
	Filters   map[string][]string `json:"filters"`
	Scenario  domain.Scenario     `json:"scenario"`
	ChartMode string              `json:"chartMode"`
}

// tableColumns is the fixed column set of the detail table.
var tableColumns = []domain.TableColumn{
	{Key: "descricao", Label: "Descrição da Despesa"},
	{Key: "ugr", Label: "UGR"},
	{Key: "pi", Label: "PI"},
	{Key: "cnpj", Label: "CNPJ / Fornecedor"},
	{Key: "processo", Label: "Processo"},
	{Key: "contrato", Label: "Contrato"},
	{Key: "status", Label: "Status"},
	{Key: "vigencia", Label: "Fim da Vigência"},
	{Key: "valorMensal", Label: "Valor Mensal"},
	{Key: "totalEstimado", Label: "Valor Total Estimado"},
	{Key: "empenhadoTotal", Label: "Empenhado Total"},
	{Key: "executadoTotal", Label: "Total Executado"},
	{Key: "saldoPrevisto", Label: "Saldo Previsto"},
	{Key: "execucaoPct", Label: "Execução (%)"},
}

// View assembles the full dashboard payload for one dataset: the rows are
// filtered, the scenario is applied on a copy, and every analytics block is
// derived from the adjusted slice. Filter options always reflect the whole
// dataset so the UI never loses choices it already offered.
func (m *Manager) View(q Query) (*domain.DashboardView, error) {
	entry, err := m.Get(q.DatasetID)
	if err != nil {
		return nil, err
	}
	bundle := entry.Bundle

	warnings := append([]string(nil), bundle.Warnings...)

	rows, filterWarnings := contracts.FilterRows(bundle.Rows, q.Filters)
	warnings = append(warnings, filterWarnings...)

	rows, summary, scenarioWarnings := contracts.ApplyScenario(rows, q.Scenario)
	warnings = append(warnings, scenarioWarnings...)

	expiring, expired := m.norm.ExpiryLists(rows)

	m.mu.RLock()
	datasets := m.listLocked()
	m.mu.RUnlock()

	return &domain.DashboardView{
		DatasetID:     entry.ID,
		Name:          entry.Name,
		Datasets:      datasets,
		GeneratedAt:   m.now().UTC(),
		KPIs:          m.norm.KPIs(rows),
		Alerts:        m.norm.Alerts(rows),
		UnitBreakdown: m.norm.UnitBreakdown(rows),
		Table:         domain.TableSlice{Columns: tableColumns, Rows: rows},
		Charts:        m.norm.BuildCharts(rows, bundle.Months, q.ChartMode),
		Expiring:      expiring,
		Expired:       expired,
		Scenario:      summary,
		FilterOptions: contracts.FilterOptions(bundle.Rows, bundle.Months),
		Warnings:      warnings,
	}, nil
}
