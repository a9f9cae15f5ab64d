package domain

import "time"

// KPIs are the headline indicators of the contracts dashboard.
type KPIs struct {
	TotalEstimated   float64 `json:"totalEstimated"`
	TotalExecuted    float64 `json:"totalExecuted"`
	TotalCommitted   float64 `json:"totalCommitted"`
	Balance          float64 `json:"balance"`
	ExecutionPercent float64 `json:"executionPercent"`
	ExpiringCount    int     `json:"expiringCount"`
	ExpiredCount     int     `json:"expiredCount"`
}

// UGRRow aggregates contracts of one spending unit.
type UGRRow struct {
	UGR              string  `json:"ugr"`
	TotalEstimated   float64 `json:"totalEstimated"`
	TotalExecuted    float64 `json:"totalExecuted"`
	TotalCommitted   float64 `json:"totalCommitted"`
	Balance          float64 `json:"balance"`
	ExecutionPercent float64 `json:"executionPercent"`
	ActiveContracts  int     `json:"activeContracts"`
	ExpiredContracts int     `json:"expiredContracts"`
	ContractCount    int     `json:"contractCount"`
}

// MonthlyPoint is one entry of the monthly consumption series.
type MonthlyPoint struct {
	Month string  `json:"month"`
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

// Alert severities, most urgent first.
const (
	SeverityCritical  = "critical"
	SeverityWarning   = "warning"
	SeverityPurple    = "purple"
	SeverityAttention = "attention"
	SeverityInfo      = "info"
)

// ContractAlert flags a contract that needs attention.
type ContractAlert struct {
	Description string `json:"descricao"`
	UGR         string `json:"ugr"`
	PI          string `json:"pi"`
	Status      string `json:"status"`
	Vigency     string `json:"vigencia"`
	Reason      string `json:"motivo"`
	Severity    string `json:"severity"`
	Icon        string `json:"icon"`
}

// ExpiryEntry is one row of the expiring or expired contract lists, sorted
// by descending urgency.
type ExpiryEntry struct {
	Description    string `json:"descricao"`
	UGR            string `json:"ugr"`
	PI             string `json:"pi"`
	ContractNumber string `json:"contrato"`
	Vigency        string `json:"vigencia"`
	DaysLeft       int    `json:"daysLeft"`
	Reason         string `json:"motivo"`
	Severity       string `json:"severity"`
	Icon           string `json:"icon"`
}

// MonthRef labels one heatmap column.
type MonthRef struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// HeatmapRow is the monthly execution of one expense description.
type HeatmapRow struct {
	Description string    `json:"descricao"`
	Values      []float64 `json:"values"`
	Average     float64   `json:"media"`
	Highlights  []bool    `json:"highlights"`
}

// Heatmap is the description × month execution matrix.
type Heatmap struct {
	Rows     []HeatmapRow `json:"rows"`
	Months   []MonthRef   `json:"months"`
	MaxValue float64      `json:"maxValue"`
}

// ChartSeries is a labeled value series.
type ChartSeries struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// PlannedExecutedChart compares planned, committed and executed totals,
// either as overall totals or broken down per UGR.
type PlannedExecutedChart struct {
	Mode      string    `json:"mode"`
	Labels    []string  `json:"labels"`
	Planned   []float64 `json:"planned"`
	Committed []float64 `json:"committed"`
	Executed  []float64 `json:"executed"`
}

// DashboardCharts bundles every chart payload of the dashboard view.
type DashboardCharts struct {
	Monthly         ChartSeries          `json:"monthly"`
	Distribution    ChartSeries          `json:"distribution"`
	PerUnit         ChartSeries          `json:"perUnit"`
	PlannedExecuted PlannedExecutedChart `json:"plannedExecuted"`
	Heatmap         Heatmap              `json:"heatmap"`
}

// TableColumn names one column of the detail table.
type TableColumn struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// TableSlice is the detail table of the dashboard view.
type TableSlice struct {
	Columns []TableColumn  `json:"columns"`
	Rows    []*ContractRow `json:"rows"`
}

// FilterOptions lists the distinct values per filterable dimension plus the
// detected months.
type FilterOptions struct {
	UGR         []string   `json:"ugr"`
	PI          []string   `json:"pi"`
	Description []string   `json:"descricao"`
	Status      []string   `json:"status"`
	Supplier    []string   `json:"cnpj"`
	Months      []MonthRef `json:"month"`
}

// DashboardView is the full dashboard response for one contracts dataset.
type DashboardView struct {
	DatasetID     string          `json:"datasetId"`
	Name          string          `json:"name"`
	Datasets      []DatasetInfo   `json:"datasets"`
	GeneratedAt   time.Time       `json:"generatedAt"`
	KPIs          KPIs            `json:"kpis"`
	Alerts        []ContractAlert `json:"alerts"`
	UnitBreakdown []UGRRow        `json:"unitBreakdown"`
	Table         TableSlice      `json:"table"`
	Charts        DashboardCharts `json:"charts"`
	Expiring      []ExpiryEntry   `json:"expiringContracts"`
	Expired       []ExpiryEntry   `json:"expiredContracts"`
	Scenario      ScenarioSummary `json:"scenario"`
	FilterOptions FilterOptions   `json:"filterOptions"`
	Warnings      []string        `json:"warnings"`
}
