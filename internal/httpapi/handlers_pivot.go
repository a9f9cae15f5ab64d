package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"cpor-analytics/internal/dataset"
	"cpor-analytics/internal/domain"
	"cpor-analytics/internal/loader"
)

// uploadResponse describes a freshly stored pivot dataset.
type uploadResponse struct {
	DatasetID    string                    `json:"datasetId"`
	Name         string                    `json:"name"`
	Columns      []domain.SchemaEntry      `json:"columns"`
	Dimensions   []string                  `json:"dimensions"`
	Measures     []string                  `json:"measures"`
	Schema       map[string]string         `json:"schema"`
	RowCount     int                       `json:"rowCount"`
	Aggregations []domain.AggregatorOption `json:"aggregations"`
	PostColumns  []domain.ColumnRef        `json:"availablePostColumns"`
}

func newUploadResponse(ds *dataset.Dataset) uploadResponse {
	resp := uploadResponse{
		DatasetID:    ds.ID,
		Name:         ds.Name,
		Columns:      ds.Schema(),
		Schema:       make(map[string]string),
		RowCount:     ds.Table.RowCount(),
		Aggregations: ds.Aggregations(),
		PostColumns:  ds.AvailablePostColumns(),
	}
	for _, entry := range resp.Columns {
		resp.Schema[entry.Key] = string(entry.Kind)
		if entry.IsMeasure {
			resp.Measures = append(resp.Measures, entry.Key)
		} else {
			resp.Dimensions = append(resp.Dimensions, entry.Key)
		}
	}
	return resp
}

// readUpload pulls the multipart "file" part out of the request.
func readUpload(w http.ResponseWriter, r *http.Request) (name string, data []byte, err error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing multipart field \"file\"", errBadRequest)
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("%w: read upload: %v", errBadRequest, err)
	}
	return header.Filename, data, nil
}

// datasetName strips the extension off an uploaded filename.
func datasetName(filename string) string {
	base := filepath.Base(filename)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	if name == "" {
		return "dataset"
	}
	return name
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	filename, data, err := readUpload(w, r)
	if err != nil {
		s.metrics.RecordUpload("pivot", 0, err)
		s.writeError(w, r, err)
		return
	}

	table, err := loader.Load(filename, data)
	s.metrics.RecordUpload("pivot", len(data), err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ds := s.store.Put(datasetName(filename), table)
	s.metrics.DatasetsAlive.Set(float64(s.store.Count()))
	writeJSON(w, http.StatusOK, newUploadResponse(ds))
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"datasets": s.store.List()})
}

func (s *Server) handleFilterValues(w http.ResponseWriter, r *http.Request) {
	datasetID := r.URL.Query().Get("datasetId")
	field := r.URL.Query().Get("field")

	ds, err := s.store.Get(datasetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	values, err := ds.FilterValues(field)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"values": values})
}

// runPivot executes the query under the hard deadline and tags slow queries
// with a warning once the soft deadline is crossed.
func (s *Server) runPivot(r *http.Request, q domain.PivotQuery) (*domain.PivotResult, error) {
	ctx, cancel := context.WithTimeout(r.Context(), s.hardDeadline)
	defer cancel()

	ds, err := s.store.Get(q.DatasetID)
	if err != nil {
		return nil, err
	}

	start := s.now()
	result, err := s.planner.Run(ctx, ds, q)
	elapsed := s.now().Sub(start)
	s.metrics.RecordPivot(ds.Table.RowCount(), elapsed.Seconds(), err)
	if err != nil {
		return nil, err
	}

	if elapsed > s.softDeadline {
		s.log.Printf("slow pivot on %s: %v", q.DatasetID, elapsed)
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("Consulta demorou %s", elapsed.Round(100*time.Millisecond)))
	}
	return result, nil
}

func (s *Server) handlePivot(w http.ResponseWriter, r *http.Request) {
	var q domain.PivotQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	result, err := s.runPivot(r, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// exportRequest is a pivot query plus the download format.
type exportRequest struct {
	domain.PivotQuery
	Format string `json:"format"`
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	ds, err := s.store.Get(req.DatasetID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.runPivot(r, req.PivotQuery)
	if err != nil {
		s.metrics.RecordExport(req.Format, err)
		s.writeError(w, r, err)
		return
	}

	file, err := s.exporter.Pivot(r.Context(), result, ds.Name, req.Format)
	s.metrics.RecordExport(req.Format, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeFile(w, file.Name, file.ContentType, file.Data)
}

func writeFile(w http.ResponseWriter, name, contentType string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	s.store.Delete(mux.Vars(r)["id"])
	s.metrics.DatasetsAlive.Set(float64(s.store.Count()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetCalculations(w http.ResponseWriter, r *http.Request) {
	var set domain.CalculationSet
	if err := json.NewDecoder(r.Body).Decode(&set); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	ds, err := s.store.SetCalculations(mux.Vars(r)["id"], set)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := newUploadResponse(ds)
	writeJSON(w, http.StatusOK, map[string]any{
		"datasetId":            resp.DatasetID,
		"columns":              resp.Columns,
		"measures":             resp.Measures,
		"schema":               resp.Schema,
		"availablePostColumns": resp.PostColumns,
		"calculations":         ds.Calculations,
		"warnings":             ds.Warnings,
	})
}
