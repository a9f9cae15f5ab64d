package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"cpor-analytics/internal/dashboard"
	"cpor-analytics/internal/domain"
	"cpor-analytics/internal/loader"
)

// Chart mode ids accepted by the dashboard query.
const (
	chartModeTotal   = "total"
	chartModeMonthly = "monthly"
)

func validChartMode(mode string) bool {
	return mode == "" || mode == chartModeTotal || mode == chartModeMonthly
}

// dashboardEnvelope is the response of dashboard upload and remote refresh.
type dashboardEnvelope struct {
	Dataset  domain.DatasetInfo   `json:"dataset"`
	Datasets []domain.DatasetInfo `json:"datasets"`
	Warnings []string             `json:"warnings,omitempty"`
}

func (s *Server) handleDashboardUpload(w http.ResponseWriter, r *http.Request) {
	filename, data, err := readUpload(w, r)
	if err != nil {
		s.metrics.RecordUpload("dashboard", 0, err)
		s.writeError(w, r, err)
		return
	}

	entry, err := s.storeDashboardWorkbook(filename, data)
	s.metrics.RecordUpload("dashboard", len(data), err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.envelope(entry))
}

// storeDashboardWorkbook loads and normalizes workbook bytes into a new
// primary contracts dataset.
func (s *Server) storeDashboardWorkbook(filename string, data []byte) (*dashboard.Entry, error) {
	table, err := loader.Load(filename, data)
	if err != nil {
		return nil, err
	}
	entry, err := s.dash.Upload(datasetName(filename), table)
	if err != nil {
		return nil, err
	}
	s.metrics.DashboardDatasets.Set(float64(s.dash.Count()))
	return entry, nil
}

func (s *Server) envelope(entry *dashboard.Entry) dashboardEnvelope {
	return dashboardEnvelope{
		Dataset:  entry.Info(),
		Datasets: s.dash.List(),
		Warnings: entry.Bundle.Warnings,
	}
}

func (s *Server) handleDashboardQuery(w http.ResponseWriter, r *http.Request) {
	var q dashboard.Query
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	s.serveDashboardView(w, r, q)
}

func (s *Server) handleDashboardGet(w http.ResponseWriter, r *http.Request) {
	s.serveDashboardView(w, r, dashboard.Query{
		DatasetID: r.URL.Query().Get("datasetId"),
		ChartMode: r.URL.Query().Get("chartMode"),
	})
}

func (s *Server) serveDashboardView(w http.ResponseWriter, r *http.Request, q dashboard.Query) {
	if !validChartMode(q.ChartMode) {
		err := fmt.Errorf("%w: unknown chartMode %q", errBadRequest, q.ChartMode)
		s.metrics.RecordDashboardQuery(err)
		s.writeError(w, r, err)
		return
	}

	view, err := s.dash.View(q)
	s.metrics.RecordDashboardQuery(err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// dashboardExportRequest selects the export target and format on top of a
// dashboard query.
type dashboardExportRequest struct {
	dashboard.Query
	Target string `json:"target"`
	Format string `json:"format"`
}

func (s *Server) handleDashboardExport(w http.ResponseWriter, r *http.Request) {
	var req dashboardExportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	slice, err := s.dash.ExportData(req.Query, req.Target)
	if err != nil {
		if !errors.Is(err, dashboard.ErrNotFound) {
			err = fmt.Errorf("%w: %v", errBadRequest, err)
		}
		s.metrics.RecordExport(req.Format, err)
		s.writeError(w, r, err)
		return
	}

	file, err := s.exporter.Table(r.Context(), slice.Title, slice.Header, slice.Rows, slice.Currency, req.Format)
	s.metrics.RecordExport(req.Format, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeFile(w, file.Name, file.ContentType, file.Data)
}

func (s *Server) handleDriveRefresh(w http.ResponseWriter, r *http.Request) {
	if s.syncToken != "" {
		token := r.Header.Get("X-Portal-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.syncToken)) != 1 {
			s.writeError(w, r, ErrForbidden)
			return
		}
	}
	if s.fetcher == nil {
		s.writeError(w, r, fmt.Errorf("%w: no remote source configured", errBadRequest))
		return
	}

	wb, err := s.fetcher.Fetch(r.Context())
	if err != nil {
		s.metrics.RecordDriveRefresh(err)
		s.writeError(w, r, err)
		return
	}

	entry, err := s.storeDashboardWorkbook(wb.Name+".xlsx", wb.Data)
	s.metrics.RecordDriveRefresh(err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Printf("remote refresh replaced primary dataset with %s", entry.ID)
	writeJSON(w, http.StatusOK, s.envelope(entry))
}
