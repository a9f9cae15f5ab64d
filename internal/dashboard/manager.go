// Package dashboard manages the contracts datasets behind the budget
// dashboard: upload and replacement, the primary-dataset projection file,
// and assembling DashboardView responses with filters and what-if scenarios.
package dashboard

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"cpor-analytics/internal/contracts"
	"cpor-analytics/internal/domain"
)

// ErrNotFound is returned for unknown dashboard dataset ids.
var ErrNotFound = errors.New("dashboard dataset not found")

// Entry is one stored contracts dataset.
type Entry struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Bundle    *contracts.Bundle
}

// Info returns the listing form of the entry.
func (e *Entry) Info() domain.DatasetInfo {
	return domain.DatasetInfo{ID: e.ID, Name: e.Name}
}

// Options configures a Manager.
type Options struct {
	// Normalizer turns uploaded tables into contract bundles. Required.
	Normalizer *contracts.Normalizer

	// ProjectionPath, when set, is where the primary dataset is
	// materialized as dashboard_data.json. Empty disables the projection.
	ProjectionPath string

	// OnReplace is invoked with the new primary dataset id after an upload
	// or remote refresh replaces it. Optional.
	OnReplace func(datasetID string)

	Logger *log.Logger
	Clock  func() time.Time
}

// Manager is the in-memory registry of contracts datasets. The newest
// dataset is the primary one: it feeds the projection file and is the
// default for queries without an explicit id.
type Manager struct {
	mu      sync.RWMutex
	byID    map[string]*Entry
	primary string

	norm           *contracts.Normalizer
	projectionPath string
	onReplace      func(string)
	log            *log.Logger
	now            func() time.Time
}

func NewManager(opts Options) *Manager {
	m := &Manager{
		byID:           make(map[string]*Entry),
		norm:           opts.Normalizer,
		projectionPath: opts.ProjectionPath,
		onReplace:      opts.OnReplace,
		log:            opts.Logger,
		now:            opts.Clock,
	}
	if m.norm == nil {
		m.norm = contracts.NewNormalizer()
	}
	if m.log == nil {
		m.log = log.New(os.Stdout, "[dashboard] ", log.LstdFlags)
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Upload normalizes the table and stores it as the new primary dataset.
func (m *Manager) Upload(name string, table *domain.Table) (*Entry, error) {
	bundle, err := m.norm.Normalize(table)
	if err != nil {
		return nil, err
	}

	entry := &Entry{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: m.now(),
		Bundle:    bundle,
	}

	m.mu.Lock()
	m.byID[entry.ID] = entry
	m.primary = entry.ID
	m.mu.Unlock()

	m.publish(entry)
	return entry, nil
}

// publish rewrites the projection file and fires the replacement hook.
func (m *Manager) publish(entry *Entry) {
	if err := m.writeProjection(entry); err != nil {
		m.log.Printf("projection write failed: %v", err)
	}
	if m.onReplace != nil {
		m.onReplace(entry.ID)
	}
}

// Get returns the entry for id, or the primary entry when id is empty.
func (m *Manager) Get(id string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if id == "" {
		id = m.primary
	}
	entry, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return entry, nil
}

// List returns the datasets in upload order.
func (m *Manager) List() []domain.DatasetInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked()
}

func (m *Manager) listLocked() []domain.DatasetInfo {
	entries := make([]*Entry, 0, len(m.byID))
	for _, entry := range m.byID {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	infos := make([]domain.DatasetInfo, len(entries))
	for i, entry := range entries {
		infos[i] = entry.Info()
	}
	return infos
}

// Delete removes a dataset. When the primary is deleted, the newest
// remaining dataset takes its place and is republished. Idempotent.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	if _, ok := m.byID[id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.byID, id)

	var replacement *Entry
	if m.primary == id {
		for _, entry := range m.byID {
			if replacement == nil || entry.CreatedAt.After(replacement.CreatedAt) {
				replacement = entry
			}
		}
		if replacement != nil {
			m.primary = replacement.ID
		} else {
			m.primary = ""
		}
	}
	m.mu.Unlock()

	if replacement != nil {
		m.publish(replacement)
	}
}

// Count returns the number of stored dashboard datasets.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byID)
}
