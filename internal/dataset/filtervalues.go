package dataset

import (
	"fmt"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"cpor-analytics/internal/domain"
)

// FilterValues returns the distinct non-empty values of a column, sorted
// for display: numeric columns numerically, text columns with Brazilian
// Portuguese collation so accented values land next to their base letters.
// Results are memoized per snapshot.
func (d *Dataset) FilterValues(key string) ([]string, error) {
	col, ok := d.Table.Column(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, key)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	values, ok := d.filterValues[key]
	if !ok {
		values = distinctValues(col)
		sortFilterValues(values, col.Kind)
		d.filterValues[key] = values
	}

	out := make([]string, len(values))
	copy(out, values)
	return out, nil
}

func distinctValues(col *domain.Column) []string {
	seen := make(map[string]bool)
	var values []string
	for i := 0; i < col.Data.Len(); i++ {
		if col.Data.Absent(i) {
			continue
		}
		s := col.Data.String(i)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		values = append(values, s)
	}
	return values
}

func sortFilterValues(values []string, kind domain.Kind) {
	if kind.IsNumeric() {
		sort.Slice(values, func(i, j int) bool {
			a := domain.ParseNumberOrZero(values[i])
			b := domain.ParseNumberOrZero(values[j])
			if a != b {
				return a < b
			}
			return values[i] < values[j]
		})
		return
	}

	// Loose collation ignores case and diacritics; ties break on the raw
	// string so the order is deterministic.
	coll := collate.New(language.BrazilianPortuguese, collate.Loose)
	sort.SliceStable(values, func(i, j int) bool {
		if cmp := coll.CompareString(values[i], values[j]); cmp != 0 {
			return cmp < 0
		}
		return values[i] < values[j]
	})
}
