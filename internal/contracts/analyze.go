package contracts

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"cpor-analytics/internal/domain"
)

// maxExpiryEntries caps the expiring and expired lists, most urgent first.
const maxExpiryEntries = 20

// heatmapTopN caps the heatmap at the descriptions with the highest
// executed totals.
const heatmapTopN = 10

// Alert icons by severity.
var severityIcons = map[string]string{
	domain.SeverityCritical:  "🔴",
	domain.SeverityWarning:   "🟠",
	domain.SeverityPurple:    "🟣",
	domain.SeverityAttention: "⚠️",
	domain.SeverityInfo:      "🔵",
}

var severityRank = map[string]int{
	domain.SeverityCritical:  0,
	domain.SeverityWarning:   1,
	domain.SeverityPurple:    2,
	domain.SeverityAttention: 3,
	domain.SeverityInfo:      4,
}

// KPIs computes the headline indicators over the given rows.
func (n *Normalizer) KPIs(rows []*domain.ContractRow) domain.KPIs {
	today := n.Today()
	window := today.AddDate(0, 0, n.expiryWindowDays)

	var k domain.KPIs
	for _, row := range rows {
		k.TotalEstimated += row.EstimatedAnnual
		k.TotalExecuted += row.Executed
		k.TotalCommitted += row.Committed

		if isExpired(row, today) {
			k.ExpiredCount++
		} else if row.VigencyEnd != nil && !row.VigencyEnd.After(window) && !row.VigencyEnd.Before(today) {
			k.ExpiringCount++
		}
	}
	k.Balance = k.TotalEstimated - k.TotalExecuted
	if k.Balance < 0 {
		k.Balance = 0
	}
	if k.TotalEstimated > 0 {
		k.ExecutionPercent = round2(k.TotalExecuted / k.TotalEstimated * 100)
	}
	return k
}

// UnitBreakdown aggregates the rows per UGR, largest estimate first.
func (n *Normalizer) UnitBreakdown(rows []*domain.ContractRow) []domain.UGRRow {
	today := n.Today()
	byUGR := make(map[string]*domain.UGRRow)
	var order []string

	for _, row := range rows {
		ugr := row.UGR
		if ugr == "" {
			ugr = "—"
		}
		agg, ok := byUGR[ugr]
		if !ok {
			agg = &domain.UGRRow{UGR: ugr}
			byUGR[ugr] = agg
			order = append(order, ugr)
		}
		agg.TotalEstimated += row.EstimatedAnnual
		agg.TotalExecuted += row.Executed
		agg.TotalCommitted += row.Committed
		agg.ContractCount++
		if isExpired(row, today) {
			agg.ExpiredContracts++
		} else {
			agg.ActiveContracts++
		}
	}

	out := make([]domain.UGRRow, 0, len(order))
	for _, ugr := range order {
		agg := byUGR[ugr]
		agg.Balance = agg.TotalEstimated - agg.TotalExecuted
		if agg.TotalEstimated > 0 {
			agg.ExecutionPercent = round2(agg.TotalExecuted / agg.TotalEstimated * 100)
		}
		out = append(out, *agg)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalEstimated > out[j].TotalEstimated
	})
	return out
}

// MonthlySeries sums each detected month column over the rows.
func MonthlySeries(rows []*domain.ContractRow, months []domain.MonthInfo) []domain.MonthlyPoint {
	points := make([]domain.MonthlyPoint, len(months))
	for i, month := range months {
		points[i] = domain.MonthlyPoint{Month: month.Key, Label: month.Label}
		for _, row := range rows {
			points[i].Total += row.Months[month.Key]
		}
	}
	return points
}

// ExpiryLists splits the rows into expiring-soon and already-expired
// entries, both sorted by descending urgency and capped at maxExpiryEntries.
func (n *Normalizer) ExpiryLists(rows []*domain.ContractRow) (expiring, expired []domain.ExpiryEntry) {
	today := n.Today()
	window := today.AddDate(0, 0, n.expiryWindowDays)

	for _, row := range rows {
		if isExpired(row, today) {
			days := 0
			if row.VigencyEnd != nil {
				days = int(today.Sub(dayOf(*row.VigencyEnd)).Hours() / 24)
			}
			expired = append(expired, domain.ExpiryEntry{
				Description:    row.Description,
				UGR:            row.UGR,
				PI:             row.PI,
				ContractNumber: row.ContractNumber,
				Vigency:        row.VigencyString(),
				DaysLeft:       -days,
				Reason:         fmt.Sprintf("Vencido há %d dia(s)", days),
				Severity:       domain.SeverityCritical,
				Icon:           severityIcons[domain.SeverityCritical],
			})
			continue
		}
		if row.VigencyEnd == nil {
			continue
		}
		end := dayOf(*row.VigencyEnd)
		if end.After(window) || end.Before(today) {
			continue
		}
		days := int(end.Sub(today).Hours() / 24)
		severity := domain.SeverityWarning
		if days <= 30 {
			severity = domain.SeverityCritical
		}
		expiring = append(expiring, domain.ExpiryEntry{
			Description:    row.Description,
			UGR:            row.UGR,
			PI:             row.PI,
			ContractNumber: row.ContractNumber,
			Vigency:        row.VigencyString(),
			DaysLeft:       days,
			Reason:         fmt.Sprintf("Vence em %d dia(s)", days),
			Severity:       severity,
			Icon:           severityIcons[severity],
		})
	}

	sort.SliceStable(expiring, func(i, j int) bool { return expiring[i].DaysLeft < expiring[j].DaysLeft })
	sort.SliceStable(expired, func(i, j int) bool { return expired[i].DaysLeft > expired[j].DaysLeft })

	if len(expiring) > maxExpiryEntries {
		expiring = expiring[:maxExpiryEntries]
	}
	if len(expired) > maxExpiryEntries {
		expired = expired[:maxExpiryEntries]
	}
	return expiring, expired
}

// Alerts flags the contracts that need attention, most severe first.
func (n *Normalizer) Alerts(rows []*domain.ContractRow) []domain.ContractAlert {
	today := n.Today()
	window := today.AddDate(0, 0, n.expiryWindowDays)

	var alerts []domain.ContractAlert
	add := func(row *domain.ContractRow, severity, reason string) {
		alerts = append(alerts, domain.ContractAlert{
			Description: row.Description,
			UGR:         row.UGR,
			PI:          row.PI,
			Status:      row.Status,
			Vigency:     row.VigencyString(),
			Reason:      reason,
			Severity:    severity,
			Icon:        severityIcons[severity],
		})
	}

	for _, row := range rows {
		switch {
		case isExpired(row, today):
			add(row, domain.SeverityCritical, "Contrato vencido")
		case row.VigencyEnd != nil && !dayOf(*row.VigencyEnd).After(window):
			days := int(dayOf(*row.VigencyEnd).Sub(today).Hours() / 24)
			add(row, domain.SeverityWarning, fmt.Sprintf("Vence em %d dia(s)", days))
		case row.EstimatedAnnual > 0 && row.Balance <= row.EstimatedAnnual*n.lowBalancePct:
			add(row, domain.SeverityAttention, "Saldo restante baixo")
		case n.executionAboveExpectedPace(row, today):
			add(row, domain.SeverityPurple, "Execução acima do ritmo esperado")
		case row.Committed == 0 && row.EstimatedAnnual > 0:
			add(row, domain.SeverityInfo, "Sem valores empenhados")
		}
	}

	sort.SliceStable(alerts, func(i, j int) bool {
		return severityRank[alerts[i].Severity] < severityRank[alerts[j].Severity]
	})
	return alerts
}

// executionAboveExpectedPace compares the execution rate with the share of
// the year already elapsed, scaled by the configured tolerance.
func (n *Normalizer) executionAboveExpectedPace(row *domain.ContractRow, today time.Time) bool {
	if row.EstimatedAnnual <= 0 {
		return false
	}
	elapsed := float64(today.YearDay()) / 365.0
	expected := elapsed * 100 * n.highExecPct
	return row.ExecutionRate > expected
}

// BuildHeatmap projects the top descriptions by executed total onto the
// month axis. A cell is highlighted when it exceeds the row's monthly
// average or falls on the vigency-end month of the current year.
func (n *Normalizer) BuildHeatmap(rows []*domain.ContractRow, months []domain.MonthInfo) domain.Heatmap {
	today := n.Today()

	ranked := append([]*domain.ContractRow(nil), rows...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Executed > ranked[j].Executed })
	if len(ranked) > heatmapTopN {
		ranked = ranked[:heatmapTopN]
	}

	hm := domain.Heatmap{}
	for _, month := range months {
		hm.Months = append(hm.Months, domain.MonthRef{Key: month.Key, Label: month.Label})
	}

	for _, row := range ranked {
		entry := domain.HeatmapRow{
			Description: row.Description,
			Values:      make([]float64, len(months)),
			Highlights:  make([]bool, len(months)),
			Average:     row.MonthlyExecuted,
		}
		for c, month := range months {
			v := row.Months[month.Key]
			entry.Values[c] = v
			if v > hm.MaxValue {
				hm.MaxValue = v
			}
			if entry.Average > 0 && v > entry.Average {
				entry.Highlights[c] = true
			}
			if row.VigencyEnd != nil && row.VigencyEnd.Year() == today.Year() {
				if month.Order.Year() == row.VigencyEnd.Year() && month.Order.Month() == row.VigencyEnd.Month() {
					entry.Highlights[c] = true
				}
			}
		}
		hm.Rows = append(hm.Rows, entry)
	}
	return hm
}

// BuildCharts assembles the chart payloads for the dashboard view.
func (n *Normalizer) BuildCharts(rows []*domain.ContractRow, months []domain.MonthInfo, chartMode string) domain.DashboardCharts {
	monthly := MonthlySeries(rows, months)
	monthlyChart := domain.ChartSeries{}
	for _, point := range monthly {
		monthlyChart.Labels = append(monthlyChart.Labels, point.Label)
		monthlyChart.Values = append(monthlyChart.Values, point.Total)
	}

	units := n.UnitBreakdown(rows)
	perUnit := domain.ChartSeries{}
	for _, unit := range units {
		perUnit.Labels = append(perUnit.Labels, unit.UGR)
		perUnit.Values = append(perUnit.Values, unit.TotalExecuted)
	}

	distribution := executedByDescription(rows)

	return domain.DashboardCharts{
		Monthly:         monthlyChart,
		Distribution:    distribution,
		PerUnit:         perUnit,
		PlannedExecuted: n.plannedExecuted(rows, units, monthly, chartMode),
		Heatmap:         n.BuildHeatmap(rows, months),
	}
}

// executedByDescription ranks descriptions by executed total, top 10.
func executedByDescription(rows []*domain.ContractRow) domain.ChartSeries {
	totals := make(map[string]float64)
	var order []string
	for _, row := range rows {
		if _, ok := totals[row.Description]; !ok {
			order = append(order, row.Description)
		}
		totals[row.Description] += row.Executed
	}
	sort.SliceStable(order, func(i, j int) bool { return totals[order[i]] > totals[order[j]] })
	if len(order) > 10 {
		order = order[:10]
	}

	series := domain.ChartSeries{}
	for _, desc := range order {
		series.Labels = append(series.Labels, desc)
		series.Values = append(series.Values, totals[desc])
	}
	return series
}

// plannedExecuted compares the planned, committed and executed totals:
// per-UGR bars in "total" mode, a per-month spread in "monthly" mode.
func (n *Normalizer) plannedExecuted(rows []*domain.ContractRow, units []domain.UGRRow, monthly []domain.MonthlyPoint, chartMode string) domain.PlannedExecutedChart {
	if strings.EqualFold(chartMode, "monthly") && len(monthly) > 0 {
		chart := domain.PlannedExecutedChart{Mode: "monthly"}
		var estimated, committed float64
		for _, row := range rows {
			estimated += row.EstimatedAnnual
			committed += row.Committed
		}
		share := 1.0 / float64(len(monthly))
		for _, point := range monthly {
			chart.Labels = append(chart.Labels, point.Label)
			chart.Planned = append(chart.Planned, estimated*share)
			chart.Committed = append(chart.Committed, committed*share)
			chart.Executed = append(chart.Executed, point.Total)
		}
		return chart
	}

	chart := domain.PlannedExecutedChart{Mode: "total"}
	for _, unit := range units {
		chart.Labels = append(chart.Labels, unit.UGR)
		chart.Planned = append(chart.Planned, unit.TotalEstimated)
		chart.Committed = append(chart.Committed, unit.TotalCommitted)
		chart.Executed = append(chart.Executed, unit.TotalExecuted)
	}
	return chart
}

// FilterOptions lists the distinct values per filterable dimension.
func FilterOptions(rows []*domain.ContractRow, months []domain.MonthInfo) domain.FilterOptions {
	opts := domain.FilterOptions{
		UGR:         distinctField(rows, func(r *domain.ContractRow) string { return r.UGR }),
		PI:          distinctField(rows, func(r *domain.ContractRow) string { return r.PI }),
		Description: distinctField(rows, func(r *domain.ContractRow) string { return r.Description }),
		Status:      distinctField(rows, func(r *domain.ContractRow) string { return r.Status }),
		Supplier:    distinctField(rows, func(r *domain.ContractRow) string { return r.Supplier }),
	}
	for _, month := range months {
		opts.Months = append(opts.Months, domain.MonthRef{Key: month.Key, Label: month.Label})
	}
	return opts
}

func distinctField(rows []*domain.ContractRow, get func(*domain.ContractRow) string) []string {
	seen := make(map[string]bool)
	var values []string
	for _, row := range rows {
		v := get(row)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// FilterRows keeps the rows whose attributes match every allow-list. Keys
// follow the JSON field names of ContractRow; unknown keys are reported.
func FilterRows(rows []*domain.ContractRow, filters map[string][]string) ([]*domain.ContractRow, []string) {
	if len(filters) == 0 {
		return rows, nil
	}

	getters := map[string]func(*domain.ContractRow) string{
		"ugr":       func(r *domain.ContractRow) string { return r.UGR },
		"pi":        func(r *domain.ContractRow) string { return r.PI },
		"descricao": func(r *domain.ContractRow) string { return r.Description },
		"status":    func(r *domain.ContractRow) string { return r.Status },
		"cnpj":      func(r *domain.ContractRow) string { return r.Supplier },
	}

	var warnings []string
	type compiled struct {
		get   func(*domain.ContractRow) string
		allow map[string]bool
	}
	var active []compiled
	for key, values := range filters {
		get, ok := getters[key]
		if !ok {
			warnings = append(warnings, fmt.Sprintf("Filtro desconhecido ignorado: %q", key))
			continue
		}
		if len(values) == 0 {
			continue
		}
		allow := make(map[string]bool, len(values))
		for _, v := range values {
			allow[v] = true
		}
		active = append(active, compiled{get: get, allow: allow})
	}

	var out []*domain.ContractRow
	for _, row := range rows {
		keep := true
		for _, f := range active {
			if !f.allow[f.get(row)] {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, warnings
}

func dayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
