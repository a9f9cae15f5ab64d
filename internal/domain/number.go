package domain

import (
	"strconv"
	"strings"
)

// ParseNumber coerces Brazilian-formatted numeric text into a float64.
// It strips the R$ currency prefix and whitespace, and resolves the
// comma/dot ambiguity by treating the rightmost separator as decimal
// ("1.234,56" → 1234.56, "1,234.56" → 1234.56, "10,5" → 10.5).
func ParseNumber(raw string) (float64, bool) {
	text := strings.TrimSpace(raw)
	if text == "" || text == "-" || text == "--" {
		return 0, false
	}
	text = strings.ReplaceAll(text, "R$", "")
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, " ", "")
	if text == "" {
		return 0, false
	}

	hasComma := strings.Contains(text, ",")
	hasDot := strings.Contains(text, ".")
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(text, ",") > strings.LastIndex(text, ".") {
			text = strings.ReplaceAll(text, ".", "")
			text = strings.ReplaceAll(text, ",", ".")
		} else {
			text = strings.ReplaceAll(text, ",", "")
		}
	case hasComma:
		text = strings.ReplaceAll(text, ",", ".")
	}

	value, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseNumberOrZero is ParseNumber with the contracts-normalizer default:
// unparseable or empty cells count as zero.
func ParseNumberOrZero(raw string) float64 {
	value, ok := ParseNumber(raw)
	if !ok {
		return 0
	}
	return value
}
