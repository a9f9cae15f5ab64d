// Package loader parses uploaded spreadsheet bytes into typed in-memory
// tables. Decoder selection is driven by the declared filename suffix;
// schema inference (column kinds, measure detection, key normalization)
// is shared by all decoders.
package loader

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"cpor-analytics/internal/domain"
)

// Load failures, matched with errors.Is by the HTTP facade.
var (
	// ErrUnsupportedFormat is returned for filename suffixes without a decoder.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrMalformed is returned when the bytes cannot be decoded.
	ErrMalformed = errors.New("malformed input")

	// ErrEmptyInput is returned when decoding yields no data rows.
	ErrEmptyInput = errors.New("no data rows found")

	// ErrSchemaConflict is returned when header deduplication cannot
	// produce a unique column key.
	ErrSchemaConflict = errors.New("conflicting column headers")
)

// Load decodes the uploaded bytes into a table. The filename is used only
// to select the decoder; content is never sniffed across formats.
func Load(filename string, data []byte) (*domain.Table, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var (
		header  []string
		records [][]string
		err     error
	)
	switch ext {
	case ".csv", ".txt":
		header, records, err = decodeDelimited(data, 0)
	case ".tsv", ".tab":
		header, records, err = decodeDelimited(data, '\t')
	case ".json":
		header, records, err = decodeJSON(data)
	case ".xlsx":
		header, records, err = decodeSpreadsheet(data)
	case ".xls":
		header, records, err = decodeLegacySpreadsheet(data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptyInput
	}

	return buildTable(header, records)
}
