package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"strconv"
)

// renderCSV writes the grid with semicolon separators, the convention for
// pt-BR spreadsheets where comma is the decimal mark. A BOM keeps Excel
// from mangling the accents.
func renderCSV(ctx context.Context, g *grid) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("\uFEFF")

	w := csv.NewWriter(&buf)
	w.Comma = ';'

	if err := w.Write(g.header); err != nil {
		return nil, err
	}
	record := make([]string, len(g.header))
	for _, row := range g.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for c := range record {
			record[c] = ""
			if c >= len(row) {
				continue
			}
			if row[c].isNum {
				record[c] = csvNumber(row[c].num)
			} else {
				record[c] = row[c].text
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// csvNumber uses a decimal comma to match the semicolon-separated layout.
func csvNumber(v float64) string {
	out := []byte(strconv.FormatFloat(v, 'f', 2, 64))
	for i := range out {
		if out[i] == '.' {
			out[i] = ','
		}
	}
	return string(out)
}
