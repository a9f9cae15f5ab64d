package dashboard

import (
	"fmt"
	"strconv"
	"strings"

	"cpor-analytics/internal/contracts"
	"cpor-analytics/internal/domain"
)

// Export targets of the dashboard export endpoint.
const (
	ExportTargetTable  = "table"
	ExportTargetAlerts = "alerts"
)

// ExportSlice is a flattened dashboard view ready for the exporter: a
// header, string rows and per-column currency flags.
type ExportSlice struct {
	Title    string
	Header   []string
	Rows     [][]string
	Currency []bool
}

// ExportData flattens the requested dashboard target, honoring the same
// filters and scenario as the interactive view.
func (m *Manager) ExportData(q Query, target string) (*ExportSlice, error) {
	entry, err := m.Get(q.DatasetID)
	if err != nil {
		return nil, err
	}

	rows, _ := contracts.FilterRows(entry.Bundle.Rows, q.Filters)
	rows, _, _ = contracts.ApplyScenario(rows, q.Scenario)

	switch target {
	case ExportTargetTable, "":
		return tableSlice(entry.Name, rows), nil
	case ExportTargetAlerts:
		return alertSlice(entry.Name, m.norm.Alerts(rows)), nil
	default:
		return nil, fmt.Errorf("unknown export target %q", target)
	}
}

func tableSlice(name string, rows []*domain.ContractRow) *ExportSlice {
	slice := &ExportSlice{
		Title:  name + "_contratos",
		Header: make([]string, len(tableColumns)),
	}
	currency := map[string]bool{
		"valorMensal": true, "totalEstimado": true, "empenhadoTotal": true,
		"executadoTotal": true, "saldoPrevisto": true,
	}
	slice.Currency = make([]bool, len(tableColumns))
	for i, col := range tableColumns {
		slice.Header[i] = col.Label
		slice.Currency[i] = currency[col.Key]
	}

	for _, row := range rows {
		slice.Rows = append(slice.Rows, []string{
			row.Description,
			row.UGR,
			row.PI,
			row.Supplier,
			row.Process,
			row.ContractNumber,
			row.Status,
			row.VigencyString(),
			money(row.MonthlyAvg),
			money(row.EstimatedAnnual),
			money(row.Committed),
			money(row.Executed),
			money(row.Balance),
			percent(row.ExecutionRate),
		})
	}
	return slice
}

// money renders a currency cell in a form the exporter re-parses as numeric.
func money(v float64) string { return strconv.FormatFloat(v, 'f', 2, 64) }

// percent renders the execution rate with a decimal comma.
func percent(v float64) string {
	return strings.Replace(strconv.FormatFloat(v, 'f', 1, 64), ".", ",", 1) + "%"
}

func alertSlice(name string, alerts []domain.ContractAlert) *ExportSlice {
	slice := &ExportSlice{
		Title:    name + "_alertas",
		Header:   []string{"Descrição", "UGR", "PI", "Status", "Vigência", "Motivo", "Severidade"},
		Currency: make([]bool, 7),
	}
	for _, a := range alerts {
		slice.Rows = append(slice.Rows, []string{
			a.Description, a.UGR, a.PI, a.Status, a.Vigency, a.Reason, a.Severity,
		})
	}
	return slice
}
