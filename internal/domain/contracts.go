package domain

import "time"

// ContractRow is one normalized contract record extracted from a contracts
// workbook. Monetary fields are already coerced; Months holds the per-month
// executed values keyed by "month_YYYY_MM".
type ContractRow struct {
	Description    string `json:"descricao"`
	UGR            string `json:"ugr"`
	PI             string `json:"pi"`
	Supplier       string `json:"cnpj"`
	Process        string `json:"processo"`
	ContractNumber string `json:"contrato"`
	Status         string `json:"status"`
	Prorrogation   string `json:"prorrogacao"`

	VigencyEnd *time.Time `json:"vigencia,omitempty"`

	MonthlyAvg       float64 `json:"valorMensal"`
	EstimatedAnnual  float64 `json:"totalEstimado"`
	CommittedCurrent float64 `json:"saldoEmpenhos"`
	CommittedCarry   float64 `json:"saldoRAP"`
	Committed        float64 `json:"empenhadoTotal"`
	Executed         float64 `json:"executadoTotal"`
	Balance          float64 `json:"saldoPrevisto"`
	ExecutionRate    float64 `json:"execucaoPct"`
	MonthlyExecuted  float64 `json:"mediaMensalExec"`

	Months map[string]float64 `json:"months"`
}

// VigencyString renders the vigency end in dd/mm/yyyy, or "" when unset.
func (r *ContractRow) VigencyString() string {
	if r.VigencyEnd == nil {
		return ""
	}
	return r.VigencyEnd.Format("02/01/2006")
}

// LifecycleStatus classifies a contract purely from its vigency end and the
// reference date.
type LifecycleStatus string

const (
	LifecycleNoDate          LifecycleStatus = "noDate"
	LifecycleFuture          LifecycleStatus = "future"
	LifecycleOnTrack         LifecycleStatus = "onTrack"
	LifecycleExpiredCurrent  LifecycleStatus = "expiredCurrent"
	LifecycleExpiredPrevious LifecycleStatus = "expiredPrevious"
)

// Lifecycle derives the lifecycle status of a vigency end date relative to
// today. Dates compare at day granularity.
func Lifecycle(vigency *time.Time, today time.Time) LifecycleStatus {
	if vigency == nil {
		return LifecycleNoDate
	}
	end := vigency.Truncate(24 * time.Hour)
	now := today.Truncate(24 * time.Hour)
	switch {
	case end.Year() > now.Year():
		return LifecycleFuture
	case end.Year() < now.Year():
		return LifecycleExpiredPrevious
	case end.Before(now):
		return LifecycleExpiredCurrent
	default:
		return LifecycleOnTrack
	}
}

// Expired reports whether the status stands for an already-ended contract.
func (s LifecycleStatus) Expired() bool {
	return s == LifecycleExpiredCurrent || s == LifecycleExpiredPrevious
}

// MonthInfo describes one detected per-month value column.
type MonthInfo struct {
	Key    string    `json:"key"`
	Label  string    `json:"label"`
	Order  time.Time `json:"-"`
	Source string    `json:"-"`
}

// Scenario adjustment field identifiers.
const (
	ScenarioFieldEstimated = "estimated"
	ScenarioFieldExecuted  = "executed"
	ScenarioFieldCommitted = "committed"
)

// ScenarioAdjustment shifts one monetary field of every contract of a UGR
// by Delta, distributed proportionally across the matching rows.
type ScenarioAdjustment struct {
	UGR   string  `json:"ugr"`
	Field string  `json:"field"`
	Delta float64 `json:"delta"`
}

// Scenario is the simulation request attached to a dashboard query.
type Scenario struct {
	Adjustments []ScenarioAdjustment `json:"adjustments"`
}

// ScenarioSummary echoes the applied adjustments with the accumulated
// deltas per field.
type ScenarioSummary struct {
	Adjustments    []ScenarioAdjustment `json:"adjustments"`
	DeltaPlanned   float64              `json:"deltaPlanned"`
	DeltaExecuted  float64              `json:"deltaExecuted"`
	DeltaCommitted float64              `json:"deltaCommitted"`
}
