// Package export renders pivot results and dashboard tables into downloadable
// files. All formats flatten through the same intermediate grid, so Excel,
// PDF and CSV output agree on layout and on the pt-BR value rendering.
package export

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cpor-analytics/internal/domain"
)

// ErrUnsupportedFormat is returned for export format ids without a renderer.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// Export format ids accepted over the API.
const (
	FormatExcel = "excel"
	FormatPDF   = "pdf"
	FormatCSV   = "csv"
)

// File is a rendered download.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Exporter renders grids. It is stateless; the clock is injectable so
// generated filenames are deterministic in tests.
type Exporter struct {
	now func() time.Time
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithClock overrides the time source used for filenames.
func WithClock(now func() time.Time) Option {
	return func(e *Exporter) { e.now = now }
}

func New(opts ...Option) *Exporter {
	e := &Exporter{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Pivot renders a pivot result. The dataset name seeds the filename.
func (e *Exporter) Pivot(ctx context.Context, result *domain.PivotResult, datasetName, format string) (*File, error) {
	return e.render(ctx, flattenPivot(result, datasetName), format)
}

// Table renders a generic labelled grid, used by the dashboard exports.
func (e *Exporter) Table(ctx context.Context, title string, header []string, rows [][]string, currency []bool, format string) (*File, error) {
	return e.render(ctx, flattenTable(title, header, rows, currency), format)
}

func (e *Exporter) render(ctx context.Context, g *grid, format string) (*File, error) {
	switch format {
	case FormatExcel:
		data, err := renderExcel(ctx, g)
		if err != nil {
			return nil, err
		}
		return e.file(g.title, "xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data), nil
	case FormatPDF:
		data, err := renderPDF(ctx, g)
		if err != nil {
			return nil, err
		}
		return e.file(g.title, "pdf", "application/pdf", data), nil
	case FormatCSV:
		data, err := renderCSV(ctx, g)
		if err != nil {
			return nil, err
		}
		return e.file(g.title, "csv", "text/csv; charset=utf-8", data), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func (e *Exporter) file(title, ext, contentType string, data []byte) *File {
	return &File{
		Name:        fmt.Sprintf("%s_%s.%s", sanitizeFilename(title), e.now().Format("20060102_150405"), ext),
		ContentType: contentType,
		Data:        data,
	}
}

var filenameJunk = regexp.MustCompile(`[^\p{L}\p{N}_-]+`)

func sanitizeFilename(title string) string {
	cleaned := filenameJunk.ReplaceAllString(strings.TrimSpace(title), "_")
	cleaned = strings.Trim(cleaned, "_")
	if cleaned == "" {
		return "export"
	}
	return cleaned
}
