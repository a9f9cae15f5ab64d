// Package contracts normalizes contract workbooks into typed rows and derives
// the dashboard analytics: KPIs, per-unit breakdowns, monthly consumption,
// expiry lists, alerts, heatmap and what-if scenarios.
package contracts

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cpor-analytics/internal/domain"
)

// ErrEmptyInput is returned when no contract rows survive normalization.
var ErrEmptyInput = errors.New("no contract rows found")

// DefaultExpiryWindowDays is how far ahead a contract counts as expiring.
const DefaultExpiryWindowDays = 60

// Alert thresholds: remaining balance below 20% of the estimate, execution
// running above 120% of the elapsed-time pace.
const (
	DefaultLowBalancePct    = 0.20
	DefaultHighExecutionPct = 1.20
)

// TotalRowPrefixes are the summary-row descriptions dropped on ingestion,
// matched against the folded description. The bare "total " prefix only
// matches rows without a unit code.
var TotalRowPrefixes = []string{"total da ", "total de "}

// Bundle is one normalized contracts dataset: the surviving rows, the
// detected month columns in chronological order, and ingestion warnings.
type Bundle struct {
	Rows     []*domain.ContractRow
	Months   []domain.MonthInfo
	Warnings []string
}

// Normalizer turns loaded tables into contract bundles. The clock and the
// thresholds are injectable so dashboards are reproducible in tests.
type Normalizer struct {
	now              func() time.Time
	expiryWindowDays int
	lowBalancePct    float64
	highExecPct      float64
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock overrides the "today" reference date.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) { n.now = now }
}

// WithExpiryWindow overrides the expiring-contract window in days.
func WithExpiryWindow(days int) Option {
	return func(n *Normalizer) {
		if days > 0 {
			n.expiryWindowDays = days
		}
	}
}

// WithAlertThresholds overrides the low-balance and execution-pace cutoffs.
func WithAlertThresholds(lowBalance, highExec float64) Option {
	return func(n *Normalizer) {
		if lowBalance > 0 {
			n.lowBalancePct = lowBalance
		}
		if highExec > 0 {
			n.highExecPct = highExec
		}
	}
}

func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:              time.Now,
		expiryWindowDays: DefaultExpiryWindowDays,
		lowBalancePct:    DefaultLowBalancePct,
		highExecPct:      DefaultHighExecutionPct,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Today returns the normalizer's reference date at day granularity.
func (n *Normalizer) Today() time.Time {
	t := n.now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ExpiryWindowDays returns the configured expiring window.
func (n *Normalizer) ExpiryWindowDays() int { return n.expiryWindowDays }

// Normalize resolves columns, coerces each row and drops summary rows.
func (n *Normalizer) Normalize(table *domain.Table) (*Bundle, error) {
	cols, warnings := resolveColumns(table, n.now().Year())

	bundle := &Bundle{Warnings: warnings}
	for _, mc := range cols.months {
		bundle.Months = append(bundle.Months, mc.info)
	}

	badDates := 0
	for i := 0; i < table.RowCount(); i++ {
		row, dateOK := n.normalizeRow(cols, i)
		if !dateOK {
			badDates++
		}
		if row == nil {
			continue
		}
		bundle.Rows = append(bundle.Rows, row)
	}
	if badDates > 0 {
		bundle.Warnings = append(bundle.Warnings,
			fmt.Sprintf("%d contrato(s) com data de vigência inválida", badDates))
	}

	if len(bundle.Rows) == 0 {
		return nil, ErrEmptyInput
	}
	return bundle, nil
}

// normalizeRow coerces one source row. It returns nil for summary rows; the
// second return is false when a vigency value was present but unparseable.
func (n *Normalizer) normalizeRow(cols *columnMap, i int) (*domain.ContractRow, bool) {
	text := func(field string) string {
		col, ok := cols.field(field)
		if !ok {
			return ""
		}
		return strings.TrimSpace(col.Data.String(i))
	}
	num := func(field string) float64 {
		col, ok := cols.field(field)
		if !ok {
			return 0
		}
		v, present := col.Data.Float(i)
		if !present {
			return 0
		}
		return v
	}

	row := &domain.ContractRow{
		Description:    text(fieldDescription),
		UGR:            text(fieldUGR),
		PI:             text(fieldPI),
		Supplier:       text(fieldSupplier),
		Process:        text(fieldProcess),
		ContractNumber: text(fieldContractNumber),
		Status:         text(fieldStatus),
		Prorrogation:   text(fieldProrrogation),
		Months:         make(map[string]float64),
	}

	if isTotalRow(row.Description, row.UGR) {
		return nil, true
	}

	dateOK := true
	if col, ok := cols.field(fieldVigency); ok {
		raw := strings.TrimSpace(col.Data.String(i))
		if raw != "" {
			if end, ok := parseVigency(col, i); ok {
				row.VigencyEnd = &end
			} else {
				dateOK = false
			}
		}
	}

	monthsSum := 0.0
	nonZeroMonths := 0
	for _, mc := range cols.months {
		v, present := mc.col.Data.Float(i)
		if !present {
			continue
		}
		row.Months[mc.info.Key] = v
		monthsSum += v
		if v != 0 {
			nonZeroMonths++
		}
	}

	row.MonthlyAvg = num(fieldMonthlyAvg)
	row.EstimatedAnnual = num(fieldEstimatedAnnual)
	row.CommittedCurrent = num(fieldCommittedCurrent)
	row.CommittedCarry = num(fieldCommittedCarry)

	// Committed prefers an explicit combined column; otherwise the current
	// year empenhos plus the RAP carry-over.
	row.Committed = num(fieldCommitted)
	if row.Committed == 0 {
		row.Committed = row.CommittedCurrent + row.CommittedCarry
	}

	// Executed falls back from the informed total to the month sum to the
	// committed total.
	row.Executed = num(fieldExecuted)
	if row.Executed == 0 {
		row.Executed = monthsSum
	}
	if row.Executed == 0 {
		row.Executed = row.Committed
	}

	recomputeDerived(row, nonZeroMonths)
	return row, dateOK
}

// recomputeDerived refreshes the fields computed from the monetary base.
// Called on ingestion and again after scenario adjustments.
func recomputeDerived(row *domain.ContractRow, nonZeroMonths int) {
	row.Balance = row.EstimatedAnnual - row.Executed
	if row.EstimatedAnnual > 0 {
		row.ExecutionRate = row.Executed / row.EstimatedAnnual * 100
	} else {
		row.ExecutionRate = 0
	}
	if nonZeroMonths > 0 {
		row.MonthlyExecuted = row.Executed / float64(nonZeroMonths)
	} else {
		row.MonthlyExecuted = 0
	}
}

func nonZeroMonthCount(row *domain.ContractRow) int {
	count := 0
	for _, v := range row.Months {
		if v != 0 {
			count++
		}
	}
	return count
}

// isTotalRow matches the spreadsheet summary lines: "total", "total geral",
// "total da ..."/"total de ...", and any "total ..." without a unit code.
func isTotalRow(description, ugr string) bool {
	desc := fold(description)
	if desc == "total" || desc == "total geral" {
		return true
	}
	for _, prefix := range TotalRowPrefixes {
		if strings.HasPrefix(desc, prefix) {
			return true
		}
	}
	if ugr == "" && strings.HasPrefix(desc, "total ") {
		return true
	}
	return false
}

var vigencyLayouts = []string{"02/01/2006", "2006-01-02", "02-01-2006", "2006-01-02T15:04:05"}

func parseVigency(col *domain.Column, i int) (time.Time, bool) {
	if t, ok := col.Data.Time(i); ok {
		return t, true
	}
	raw := strings.TrimSpace(col.Data.String(i))
	for _, layout := range vigencyLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// expiredByStatus flags statuses that declare the contract ended, like
// "VENCIDO", without catching "VENCENDO".
func expiredByStatus(status string) bool {
	upper := strings.ToUpper(fold(status))
	return strings.Contains(upper, "VENC") && !strings.Contains(upper, "VENCENDO")
}

// isExpired combines the date rule with the status override.
func isExpired(row *domain.ContractRow, today time.Time) bool {
	if domain.Lifecycle(row.VigencyEnd, today).Expired() {
		return true
	}
	return expiredByStatus(row.Status)
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
