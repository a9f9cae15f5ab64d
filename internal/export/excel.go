package export

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const excelSheet = "Dados"

// renderExcel writes the grid to a single-sheet workbook with a bold,
// frozen header row and pt-BR number formats on value columns.
func renderExcel(ctx context.Context, g *grid) ([]byte, error) {
	book := excelize.NewFile()
	defer book.Close()

	index, err := book.NewSheet(excelSheet)
	if err != nil {
		return nil, err
	}
	book.SetActiveSheet(index)
	if err := book.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}

	headerStyle, err := book.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err != nil {
		return nil, err
	}
	numberFormat := "#,##0.00"
	numberStyle, err := book.NewStyle(&excelize.Style{CustomNumFmt: &numberFormat})
	if err != nil {
		return nil, err
	}
	currencyFormat := `"R$" #,##0.00`
	currencyStyle, err := book.NewStyle(&excelize.Style{CustomNumFmt: &currencyFormat})
	if err != nil {
		return nil, err
	}

	for c, title := range g.header {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return nil, err
		}
		if err := book.SetCellValue(excelSheet, cell, title); err != nil {
			return nil, err
		}
		if err := book.SetCellStyle(excelSheet, cell, cell, headerStyle); err != nil {
			return nil, err
		}
	}

	for r, row := range g.rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for c, value := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return nil, err
			}
			if !value.isNum {
				if value.text != "" {
					if err := book.SetCellValue(excelSheet, cell, value.text); err != nil {
						return nil, err
					}
				}
				continue
			}
			if err := book.SetCellValue(excelSheet, cell, value.num); err != nil {
				return nil, err
			}
			style := numberStyle
			if c < len(g.currency) && g.currency[c] {
				style = currencyStyle
			}
			if err := book.SetCellStyle(excelSheet, cell, cell, style); err != nil {
				return nil, err
			}
		}
	}

	if err := book.SetPanes(excelSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, err
	}

	if len(g.header) > 0 {
		last, err := excelize.ColumnNumberToName(len(g.header))
		if err != nil {
			return nil, err
		}
		if err := book.SetColWidth(excelSheet, "A", last, 18); err != nil {
			return nil, err
		}
	}

	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("excel render: %w", err)
	}
	return buf.Bytes(), nil
}
