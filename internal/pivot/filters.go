package pivot

import (
	"fmt"

	"cpor-analytics/internal/dataset"
	"cpor-analytics/internal/domain"
)

// filterSet is a compiled allow-list filter: a source row passes when every
// filtered column's rendered value is in its allow set. A filter with an
// empty allow set selects nothing.
type filterSet struct {
	cols  []*domain.Column
	allow []map[string]bool
	empty bool
}

func resolveFilters(table *domain.Table, raw map[string][]string) (*filterSet, error) {
	fs := &filterSet{}
	for key, values := range raw {
		col, ok := table.Column(key)
		if !ok {
			return nil, fmt.Errorf("%w: %s", dataset.ErrUnknownColumn, key)
		}
		if len(values) == 0 {
			fs.empty = true
			continue
		}
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		fs.cols = append(fs.cols, col)
		fs.allow = append(fs.allow, set)
	}
	return fs, nil
}

func (f *filterSet) match(i int) bool {
	if f.empty {
		return false
	}
	for c, col := range f.cols {
		if !f.allow[c][col.Data.String(i)] {
			return false
		}
	}
	return true
}
