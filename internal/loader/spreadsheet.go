package loader

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Sheet names preferred over the first sheet when present.
var preferredSheets = []string{"planilha1", "sheet1"}

func decodeSpreadsheet(data []byte) ([]string, [][]string, error) {
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, ErrEmptyInput
	}
	sheet := sheets[0]
	for _, name := range sheets {
		if isPreferredSheet(name) {
			sheet = name
			break
		}
	}

	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return splitHeader(rows)
}

// decodeLegacySpreadsheet reads the pre-OOXML binary workbook format.
func decodeLegacySpreadsheet(data []byte) ([]string, [][]string, error) {
	book, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if book.NumSheets() == 0 {
		return nil, nil, ErrEmptyInput
	}

	sheet := book.GetSheet(0)
	for i := 0; i < book.NumSheets(); i++ {
		if s := book.GetSheet(i); s != nil && isPreferredSheet(s.Name) {
			sheet = s
			break
		}
	}
	if sheet == nil {
		return nil, nil, ErrEmptyInput
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, row.LastCol())
		for c := row.FirstCol(); c < row.LastCol(); c++ {
			cells[c] = row.Col(c)
		}
		rows = append(rows, cells)
	}
	return splitHeader(rows)
}

// splitHeader treats the first non-blank row as the header and pads ragged
// data rows to the header width.
func splitHeader(rows [][]string) ([]string, [][]string, error) {
	var header []string
	var records [][]string
	for _, row := range rows {
		if isBlankRecord(row) {
			continue
		}
		if header == nil {
			header = trimAll(row)
			continue
		}
		cells := trimAll(row)
		for len(cells) < len(header) {
			cells = append(cells, "")
		}
		records = append(records, cells[:len(header)])
	}
	if header == nil {
		return nil, nil, ErrEmptyInput
	}
	return header, records, nil
}

func isPreferredSheet(name string) bool {
	lowered := strings.ToLower(strings.TrimSpace(name))
	for _, pref := range preferredSheets {
		if lowered == pref {
			return true
		}
	}
	return false
}
