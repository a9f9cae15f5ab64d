package loader

import (
	"encoding/csv"
	"fmt"
	"strings"
)

var delimiterCandidates = []rune{',', ';', '\t', '|'}

// sniffDelimiter counts candidate separators in the first non-empty line
// and picks the most frequent one. Comma wins ties and empty samples.
func sniffDelimiter(text string) rune {
	var sample string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			sample = line
			break
		}
	}

	best := ','
	bestCount := 0
	for _, cand := range delimiterCandidates {
		count := strings.Count(sample, string(cand))
		if count > bestCount {
			best = cand
			bestCount = count
		}
	}
	return best
}

// decodeDelimited parses CSV-like text. A zero delimiter means sniff.
// The first non-empty line is the header; remaining lines are rows.
func decodeDelimited(data []byte, delimiter rune) ([]string, [][]string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	text = strings.TrimPrefix(text, "\uFEFF")
	if delimiter == 0 {
		delimiter = sniffDelimiter(text)
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	lines, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var header []string
	var records [][]string
	for _, line := range lines {
		if isBlankRecord(line) {
			continue
		}
		if header == nil {
			header = trimAll(line)
			continue
		}
		row := trimAll(line)
		// Ragged lines pad to the header width.
		for len(row) < len(header) {
			row = append(row, "")
		}
		records = append(records, row[:len(header)])
	}
	if header == nil {
		return nil, nil, ErrEmptyInput
	}
	return header, records, nil
}

func isBlankRecord(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func trimAll(fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = strings.TrimSpace(f)
	}
	return out
}
