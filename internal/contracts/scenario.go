package contracts

import (
	"fmt"

	"cpor-analytics/internal/domain"
)

// ApplyScenario deep-copies the rows and applies the what-if adjustments.
// Each delta is distributed across the rows of the targeted UGR (all rows
// when the UGR is empty) proportionally to the current field values, or
// split evenly when the base sums to zero. Executed deltas also spread over
// the month columns so the monthly charts follow the simulation. Derived
// fields are recomputed afterwards.
func ApplyScenario(rows []*domain.ContractRow, scenario domain.Scenario) ([]*domain.ContractRow, domain.ScenarioSummary, []string) {
	summary := domain.ScenarioSummary{Adjustments: scenario.Adjustments}
	if len(scenario.Adjustments) == 0 {
		return rows, summary, nil
	}

	copied := make([]*domain.ContractRow, len(rows))
	for i, row := range rows {
		dup := *row
		dup.Months = make(map[string]float64, len(row.Months))
		for k, v := range row.Months {
			dup.Months[k] = v
		}
		copied[i] = &dup
	}

	var warnings []string
	for _, adj := range scenario.Adjustments {
		targets := matchUGR(copied, adj.UGR)
		if len(targets) == 0 {
			warnings = append(warnings, fmt.Sprintf("Nenhum contrato da UGR %q para ajustar", adj.UGR))
			continue
		}

		switch adj.Field {
		case domain.ScenarioFieldEstimated:
			distribute(targets, adj.Delta,
				func(r *domain.ContractRow) float64 { return r.EstimatedAnnual },
				func(r *domain.ContractRow, d float64) { r.EstimatedAnnual += d })
			summary.DeltaPlanned += adj.Delta
		case domain.ScenarioFieldExecuted:
			distribute(targets, adj.Delta,
				func(r *domain.ContractRow) float64 { return r.Executed },
				func(r *domain.ContractRow, d float64) {
					r.Executed += d
					spreadOverMonths(r, d)
				})
			summary.DeltaExecuted += adj.Delta
		case domain.ScenarioFieldCommitted:
			distribute(targets, adj.Delta,
				func(r *domain.ContractRow) float64 { return r.Committed },
				func(r *domain.ContractRow, d float64) { r.Committed += d })
			summary.DeltaCommitted += adj.Delta
		default:
			warnings = append(warnings, fmt.Sprintf("Campo de ajuste desconhecido: %q", adj.Field))
		}
	}

	for _, row := range copied {
		recomputeDerived(row, nonZeroMonthCount(row))
	}
	return copied, summary, warnings
}

func matchUGR(rows []*domain.ContractRow, ugr string) []*domain.ContractRow {
	if ugr == "" {
		return rows
	}
	var out []*domain.ContractRow
	for _, row := range rows {
		if row.UGR == ugr {
			out = append(out, row)
		}
	}
	return out
}

// distribute shares delta across the rows proportionally to get(row); when
// the base sums to zero the delta is split evenly.
func distribute(rows []*domain.ContractRow, delta float64, get func(*domain.ContractRow) float64, apply func(*domain.ContractRow, float64)) {
	base := 0.0
	for _, row := range rows {
		base += get(row)
	}
	if base == 0 {
		share := delta / float64(len(rows))
		for _, row := range rows {
			apply(row, share)
		}
		return
	}
	for _, row := range rows {
		apply(row, delta*get(row)/base)
	}
}

// spreadOverMonths adds the row-level executed delta into the month cells,
// proportionally to their current values or evenly when all are zero.
func spreadOverMonths(row *domain.ContractRow, delta float64) {
	if len(row.Months) == 0 {
		return
	}
	base := 0.0
	for _, v := range row.Months {
		base += v
	}
	if base == 0 {
		share := delta / float64(len(row.Months))
		for key := range row.Months {
			row.Months[key] += share
		}
		return
	}
	for key, v := range row.Months {
		row.Months[key] += delta * v / base
	}
}
