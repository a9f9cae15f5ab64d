package export

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-pdf/fpdf"
)

// renderPDF lays the grid out on landscape A4, repeating the header row on
// every page. Column widths share the printable width evenly.
func renderPDF(ctx context.Context, g *grid) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	pdf.SetAutoPageBreak(false, 12)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH, _ := pdf.PageSize(1)
	printable := pageW - 20
	cols := len(g.header)
	if cols == 0 {
		cols = 1
	}
	colW := printable / float64(cols)
	const rowH = 6.0

	writeHeader := func() {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(printable, 8, tr(g.title), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 8)
		pdf.SetFillColor(221, 235, 247)
		for _, title := range g.header {
			pdf.CellFormat(colW, rowH, tr(clip(title, 28)), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 8)
	}

	pdf.AddPage()
	writeHeader()

	for _, row := range g.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if pdf.GetY()+rowH > pageH-12 {
			pdf.AddPage()
			writeHeader()
		}
		for c := 0; c < len(g.header); c++ {
			text, align := "", "L"
			if c < len(row) {
				if row[c].isNum {
					text = formatPDFNumber(row[c].num, c < len(g.currency) && g.currency[c])
					align = "R"
				} else {
					text = clip(row[c].text, 30)
				}
			}
			pdf.CellFormat(colW, rowH, tr(text), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf render: %w", err)
	}
	return buf.Bytes(), nil
}

// formatPDFNumber renders with pt-BR separators: thousands dots, decimal
// comma, optional currency prefix.
func formatPDFNumber(v float64, currency bool) string {
	formatted := strconv.FormatFloat(v, 'f', 2, 64)
	neg := strings.HasPrefix(formatted, "-")
	formatted = strings.TrimPrefix(formatted, "-")

	parts := strings.SplitN(formatted, ".", 2)
	whole := parts[0]
	var grouped []string
	for len(whole) > 3 {
		grouped = append([]string{whole[len(whole)-3:]}, grouped...)
		whole = whole[:len(whole)-3]
	}
	grouped = append([]string{whole}, grouped...)

	out := strings.Join(grouped, ".") + "," + parts[1]
	if neg {
		out = "-" + out
	}
	if currency {
		out = "R$ " + out
	}
	return out
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
