package domain

import (
	"regexp"
	"strings"
)

// SchemaEntry describes one column of a dataset.
type SchemaEntry struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Kind       Kind   `json:"kind"`
	IsMeasure  bool   `json:"isMeasure"`
	Calculated bool   `json:"calculated"`
}

// AggregatorOption is one selectable aggregator, with the value format it
// produces for the dataset it was computed for.
type AggregatorOption struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Format string `json:"format"`
}

// Aggregator identifiers.
const (
	AggSum           = "sum"
	AggAvg           = "avg"
	AggCount         = "count"
	AggDistinctCount = "distinct_count"
	AggMin           = "min"
	AggMax           = "max"
)

// Value formats reported alongside pivot results and aggregator options.
const (
	FormatNumber   = "number"
	FormatCurrency = "currency"
)

// currencyKeyPattern flags measure keys that carry monetary values in the
// budget spreadsheets this portal ingests.
var currencyKeyPattern = regexp.MustCompile(`valor|saldo|empenho|executado|estimado`)

// CurrencyMeasure reports whether a measure key looks monetary.
func CurrencyMeasure(key string) bool {
	return currencyKeyPattern.MatchString(strings.ToLower(key))
}

// AggregatorOptions returns the selectable aggregators for a dataset.
// currency controls the format of the magnitude aggregators; counts are
// always plain numbers.
func AggregatorOptions(currency bool) []AggregatorOption {
	magnitude := FormatNumber
	if currency {
		magnitude = FormatCurrency
	}
	return []AggregatorOption{
		{ID: AggSum, Label: "Somar", Format: magnitude},
		{ID: AggAvg, Label: "Média", Format: magnitude},
		{ID: AggCount, Label: "Contagem", Format: FormatNumber},
		{ID: AggDistinctCount, Label: "Contagem distinta", Format: FormatNumber},
		{ID: AggMin, Label: "Mínimo", Format: magnitude},
		{ID: AggMax, Label: "Máximo", Format: magnitude},
	}
}

// CalculationStage tells whether a calculated column runs against raw rows
// (pre, becomes a measure) or against aggregated result rows (post, appended
// to the output only).
type CalculationStage string

const (
	StagePre  CalculationStage = "pre"
	StagePost CalculationStage = "post"
)

// CalculationSpec describes a calculated column. Operation is always
// "expression"; the expression references other columns through {name}
// placeholders.
type CalculationSpec struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Stage       CalculationStage `json:"stage"`
	Operation   string           `json:"operation"`
	Expression  string           `json:"expression"`
	Decimals    *int             `json:"decimals,omitempty"`
	ResultKey   string           `json:"resultKey,omitempty"`
	ResultField string           `json:"resultField,omitempty"`
}

// CalculationSet groups the persisted calculations of a dataset by stage.
type CalculationSet struct {
	Pre  []CalculationSpec `json:"pre"`
	Post []CalculationSpec `json:"post"`
}

// ColumnRef is a {key,label} pair used for post-calculation pickers.
type ColumnRef struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// DatasetInfo is the listing form of a dataset.
type DatasetInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
