package dashboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"cpor-analytics/internal/contracts"
	"cpor-analytics/internal/domain"
)

// projection is the on-disk snapshot of the primary dataset. The field names
// follow the legacy dashboard_data.json layout consumed by external scripts.
type projection struct {
	KPIs               domain.KPIs           `json:"kpis"`
	UGRAnalysis        []domain.UGRRow       `json:"ugr_analysis"`
	MonthlyConsumption []domain.MonthlyPoint `json:"monthly_consumption"`
	ExpiringContracts  []domain.ExpiryEntry  `json:"expiring_contracts_list"`
	ExpiredContracts   []domain.ExpiryEntry  `json:"expired_contracts_list"`
	RawDataForFilters  domain.FilterOptions  `json:"raw_data_for_filters"`
}

// writeProjection materializes the entry's unfiltered analytics to the
// projection path. The file is written to a temp sibling and renamed so
// readers never observe a partial snapshot.
func (m *Manager) writeProjection(entry *Entry) error {
	if m.projectionPath == "" {
		return nil
	}

	rows := entry.Bundle.Rows
	expiring, expired := m.norm.ExpiryLists(rows)
	snap := projection{
		KPIs:               m.norm.KPIs(rows),
		UGRAnalysis:        m.norm.UnitBreakdown(rows),
		MonthlyConsumption: contracts.MonthlySeries(rows, entry.Bundle.Months),
		ExpiringContracts:  expiring,
		ExpiredContracts:   expired,
		RawDataForFilters:  contracts.FilterOptions(rows, entry.Bundle.Months),
	}

	payload, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode projection: %w", err)
	}

	dir := filepath.Dir(m.projectionPath)
	tmp, err := os.CreateTemp(dir, ".dashboard_data-*.json")
	if err != nil {
		return fmt.Errorf("create temp projection: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write projection: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close projection: %w", err)
	}
	if err := os.Rename(tmpName, m.projectionPath); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish projection: %w", err)
	}
	return nil
}
