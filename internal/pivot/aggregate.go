package pivot

import "cpor-analytics/internal/domain"

// accumulator folds the values of one (group, measure) pair. A single
// struct serves every aggregator; distinct tracking is only allocated for
// distinct counts.
type accumulator struct {
	sum      float64
	count    int
	min      float64
	max      float64
	distinct map[float64]struct{}
}

func newAccumulator(agg string) *accumulator {
	a := &accumulator{}
	if agg == domain.AggDistinctCount {
		a.distinct = make(map[float64]struct{})
	}
	return a
}

func (a *accumulator) add(v float64) {
	if a.count == 0 {
		a.min, a.max = v, v
	} else {
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
	}
	a.sum += v
	a.count++
	if a.distinct != nil {
		a.distinct[v] = struct{}{}
	}
}

// cell materializes the accumulated value for the aggregator. Additive
// aggregators render empty groups as zero; avg, min, max and distinct counts
// over a group with no usable values yield an absent cell.
func (a *accumulator) cell(agg string) domain.Cell {
	switch agg {
	case domain.AggCount:
		return domain.Cell{Value: float64(a.count)}
	case domain.AggDistinctCount:
		return domain.Cell{Value: float64(len(a.distinct))}
	case domain.AggSum:
		return domain.Cell{Value: a.sum}
	}
	if a.count == 0 {
		return domain.Cell{Absent: true}
	}
	switch agg {
	case domain.AggAvg:
		return domain.Cell{Value: a.sum / float64(a.count)}
	case domain.AggMin:
		return domain.Cell{Value: a.min}
	case domain.AggMax:
		return domain.Cell{Value: a.max}
	}
	return domain.Cell{Absent: true}
}

// additive reports whether totals for the aggregator can be derived by
// summing visible cells. Non-additive aggregators recompute their totals
// from the source rows instead.
func additive(agg string) bool {
	return agg == domain.AggSum || agg == domain.AggCount
}

// aggregation folds source rows into per-cell, per-row-group, per-column-group
// and global accumulators in a single pass, so non-additive totals can be
// recomputed from source data instead of from visible cells.
type aggregation struct {
	agg   string
	cells map[string]*accumulator
	rows  map[string]*accumulator
	cols  map[string]*accumulator
	grand []*accumulator
}

func newAggregation(agg string, measures int) *aggregation {
	a := &aggregation{
		agg:   agg,
		cells: make(map[string]*accumulator),
		rows:  make(map[string]*accumulator),
		cols:  make(map[string]*accumulator),
		grand: make([]*accumulator, measures),
	}
	for m := range a.grand {
		a.grand[m] = newAccumulator(agg)
	}
	return a
}

func (a *aggregation) add(rowKey, colKey string, m int, v float64) {
	a.at(a.cells, rowKey+keySep+colKey, m).add(v)
	a.at(a.rows, rowKey, m).add(v)
	a.at(a.cols, colKey, m).add(v)
	a.grand[m].add(v)
}

func (a *aggregation) at(bucket map[string]*accumulator, key string, m int) *accumulator {
	full := key + keySep + string(rune('0'+m))
	acc, ok := bucket[full]
	if !ok {
		acc = newAccumulator(a.agg)
		bucket[full] = acc
	}
	return acc
}

func (a *aggregation) lookup(bucket map[string]*accumulator, key string, m int) domain.Cell {
	acc, ok := bucket[key+keySep+string(rune('0'+m))]
	if !ok {
		// Empty groups render as zero for additive aggregators and as
		// absent otherwise.
		if additive(a.agg) {
			return domain.Cell{}
		}
		return domain.Cell{Absent: true}
	}
	return acc.cell(a.agg)
}

// cellAt returns the matrix cell for a (row group, column group, measure).
func (a *aggregation) cellAt(rowKey, colKey string, m int) domain.Cell {
	return a.lookup(a.cells, rowKey+keySep+colKey, m)
}

// rowCell returns the measure aggregated over the entire row group.
func (a *aggregation) rowCell(rowKey string, m int) domain.Cell {
	return a.lookup(a.rows, rowKey, m)
}

// colCell returns the measure aggregated over the entire column group.
func (a *aggregation) colCell(colKey string, m int) domain.Cell {
	return a.lookup(a.cols, colKey, m)
}

// grandCell returns the measure aggregated over every selected source row.
func (a *aggregation) grandCell(m int) domain.Cell {
	return a.grand[m].cell(a.agg)
}

// keySep joins the group-key sections of accumulator bucket keys.
const keySep = "\x1e"

func knownAggregator(agg string) bool {
	switch agg {
	case domain.AggSum, domain.AggAvg, domain.AggCount,
		domain.AggDistinctCount, domain.AggMin, domain.AggMax:
		return true
	}
	return false
}
