// Package dataset keeps uploaded workbooks in memory and hands out immutable
// snapshots to the query layer. Updating a dataset's calculations swaps in a
// new snapshot; readers holding the old one are never invalidated mid-query.
package dataset

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cpor-analytics/internal/domain"
	"cpor-analytics/internal/expr"
	"cpor-analytics/internal/loader"
)

var (
	// ErrNotFound is returned when the dataset id is unknown or deleted.
	ErrNotFound = errors.New("dataset not found")

	// ErrUnknownColumn is returned when a column key does not exist in the
	// dataset's schema.
	ErrUnknownColumn = errors.New("unknown column")
)

// Dataset is an immutable snapshot: the typed table with pre-calculation
// columns materialized, plus the calculation set that produced them. The
// filter-value cache is the only mutable state and is guarded separately.
type Dataset struct {
	ID           string
	Name         string
	CreatedAt    time.Time
	Table        *domain.Table
	Calculations domain.CalculationSet
	Warnings     []string

	base *domain.Table
	seq  uint64

	mu           sync.Mutex
	filterValues map[string][]string
}

// Schema returns the schema entries of the snapshot, calculated columns
// included.
func (d *Dataset) Schema() []domain.SchemaEntry { return d.Table.Schema() }

// Currency reports whether any measure column looks monetary, which decides
// the format of the magnitude aggregators.
func (d *Dataset) Currency() bool {
	for _, col := range d.Table.Columns() {
		if col.IsMeasure && domain.CurrencyMeasure(col.Key) {
			return true
		}
	}
	return false
}

// Aggregations returns the selectable aggregators for this dataset.
func (d *Dataset) Aggregations() []domain.AggregatorOption {
	return domain.AggregatorOptions(d.Currency())
}

// AvailablePostColumns lists the measure columns a post calculation can
// reference, in schema order.
func (d *Dataset) AvailablePostColumns() []domain.ColumnRef {
	var refs []domain.ColumnRef
	for _, col := range d.Table.Columns() {
		if col.IsMeasure {
			refs = append(refs, domain.ColumnRef{Key: col.Key, Label: col.Label})
		}
	}
	return refs
}

// Info returns the listing form of the dataset.
func (d *Dataset) Info() domain.DatasetInfo {
	return domain.DatasetInfo{ID: d.ID, Name: d.Name}
}

// Store is the in-memory dataset registry.
type Store struct {
	mu   sync.RWMutex
	byID map[string]*Dataset
	seq  uint64
	now  func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore builds an empty registry.
func NewStore(opts ...Option) *Store {
	s := &Store{
		byID: make(map[string]*Dataset),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put registers a freshly loaded table under a new opaque id.
func (s *Store) Put(name string, table *domain.Table) *Dataset {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	ds := &Dataset{
		ID:           s.nextIDLocked(),
		Name:         name,
		CreatedAt:    s.now(),
		Table:        table,
		base:         table,
		seq:          s.seq,
		filterValues: make(map[string][]string),
	}
	s.byID[ds.ID] = ds
	return ds
}

// Get returns the current snapshot for id.
func (s *Store) Get(id string) (*Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ds, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ds, nil
}

// List returns all datasets in upload order.
func (s *Store) List() []domain.DatasetInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*Dataset, 0, len(s.byID))
	for _, ds := range s.byID {
		all = append(all, ds)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	infos := make([]domain.DatasetInfo, len(all))
	for i, ds := range all {
		infos[i] = ds.Info()
	}
	return infos
}

// Delete removes a dataset. Deleting an unknown id is a no-op.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byID, id)
}

// Count returns the number of stored datasets.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// SetCalculations replaces the dataset's calculation set, materializing the
// pre-stage columns into a new snapshot. The previous snapshot stays valid
// for queries already running against it.
func (s *Store) SetCalculations(id string, set domain.CalculationSet) (*Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	table, warnings, err := Materialize(old.base, set.Pre)
	if err != nil {
		return nil, err
	}
	for _, post := range set.Post {
		if _, err := expr.Parse(post.Expression); err != nil {
			return nil, fmt.Errorf("calculation %q: %w", post.Name, err)
		}
	}

	next := &Dataset{
		ID:           old.ID,
		Name:         old.Name,
		CreatedAt:    old.CreatedAt,
		Table:        table,
		Calculations: set,
		Warnings:     warnings,
		base:         old.base,
		seq:          old.seq,
		filterValues: make(map[string][]string),
	}

	// Filter values of original columns are unaffected by calculation
	// changes; carry their cache entries over.
	old.mu.Lock()
	for key, values := range old.filterValues {
		if col, ok := old.base.Column(key); ok && !col.Calculated {
			next.filterValues[key] = values
		}
	}
	old.mu.Unlock()

	s.byID[id] = next
	return next, nil
}

// Materialize evaluates pre-stage calculations row by row against the base
// table, appending each result as a calculated real measure. Later
// calculations can reference earlier ones. The pivot planner reuses it for
// per-query ephemeral measures.
func Materialize(base *domain.Table, pre []domain.CalculationSpec) (*domain.Table, []string, error) {
	table := base
	var warnings []string
	warned := make(map[string]bool)

	for _, spec := range pre {
		compiled, err := expr.Parse(spec.Expression)
		if err != nil {
			return nil, nil, fmt.Errorf("calculation %q: %w", spec.Name, err)
		}

		key := spec.ResultField
		if key == "" {
			key = loader.KeyFor(spec.Name)
		}

		rows := table.RowCount()
		nums := make([]float64, rows)
		absent := make([]bool, rows)
		missing := func(name string) {
			if !warned[name] {
				warned[name] = true
				warnings = append(warnings, fmt.Sprintf("Campo {%s} não encontrado; tratado como 0", name))
			}
		}
		for i := 0; i < rows; i++ {
			value := compiled.Eval(rowEnv(table, i), missing)
			if spec.Decimals != nil && !value.Absent {
				value.Num = expr.Round(value.Num, *spec.Decimals)
			}
			nums[i] = value.Num
			absent[i] = value.Absent
		}

		next, err := table.WithColumns(&domain.Column{
			Key:        key,
			Label:      spec.Name,
			Kind:       domain.KindReal,
			IsMeasure:  true,
			Calculated: true,
			Data:       domain.NewNumericVector(domain.KindReal, nums, absent),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("calculation %q: %v", spec.Name, err)
		}
		table = next
	}
	return table, warnings, nil
}

// rowEnv resolves {field} placeholders against row i. Placeholders may use
// the normalized key directly or the display label.
func rowEnv(table *domain.Table, i int) expr.Env {
	return func(name string) (expr.Value, bool) {
		col, ok := table.Column(name)
		if !ok {
			col, ok = table.Column(loader.KeyFor(name))
		}
		if !ok {
			return expr.Value{}, false
		}
		num, present := col.Data.Float(i)
		if !present {
			return expr.Value{Absent: true}, true
		}
		return expr.Value{Num: num}, true
	}
}
