package loader

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cpor-analytics/internal/domain"
)

const (
	// inferSampleSize caps how many non-empty values feed type inference.
	inferSampleSize = 500

	numericThreshold = 0.90
	dateThreshold    = 0.80

	// booleanMinCount is the minimum number of {0,1} values needed to
	// reclassify a numeric column as boolean.
	booleanMinCount = 4
)

// identifierPattern matches column keys that look like identifiers rather
// than measures (ids, tax numbers, plan and contract codes).
var identifierPattern = regexp.MustCompile(`^id$|^id_|_id$|cnpj|cpf|pi_|contrato`)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/2006",
}

// buildTable infers column kinds from the string records and assembles the
// typed table. Header labels are normalized and deduplicated first.
func buildTable(header []string, records [][]string) (*domain.Table, error) {
	labels, keys, err := normalizeHeader(header)
	if err != nil {
		return nil, err
	}

	cols := make([]*domain.Column, len(keys))
	for i := range keys {
		values := make([]string, len(records))
		for r, rec := range records {
			values[r] = rec[i]
		}
		cols[i] = buildColumn(keys[i], labels[i], values)
	}
	return domain.NewTable(cols)
}

// normalizeHeader produces display labels (trimmed, inner whitespace
// collapsed, accents preserved) and normalized keys (lowercase, snake).
// Key collisions get a numeric suffix; a collision that survives the
// suffix search is a schema conflict.
func normalizeHeader(header []string) (labels, keys []string, err error) {
	labels = make([]string, len(header))
	keys = make([]string, len(header))
	taken := make(map[string]bool, len(header))

	for i, raw := range header {
		label := collapseWhitespace(raw)
		if label == "" {
			label = fmt.Sprintf("col_%d", i+1)
		}
		labels[i] = label

		key := KeyFor(label)
		if taken[key] {
			resolved := ""
			for suffix := 2; suffix <= len(header)+1; suffix++ {
				candidate := fmt.Sprintf("%s_%d", key, suffix)
				if !taken[candidate] {
					resolved = candidate
					break
				}
			}
			if resolved == "" {
				return nil, nil, fmt.Errorf("%w: column %q", ErrSchemaConflict, label)
			}
			key = resolved
		}
		taken[key] = true
		keys[i] = key
	}
	return labels, keys, nil
}

// KeyFor derives the stable column key from a display label: lowercase,
// non-alphanumerics replaced by underscores, repeats collapsed.
func KeyFor(label string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(label) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	key := strings.Trim(b.String(), "_")
	if key == "" {
		return "col"
	}
	return key
}

func collapseWhitespace(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// buildColumn infers the kind of one column from a sample of its values
// and materializes the typed vector.
func buildColumn(key, label string, values []string) *domain.Column {
	kind := inferKind(values)

	col := &domain.Column{Key: key, Label: label, Kind: kind}
	switch kind {
	case domain.KindInteger, domain.KindReal:
		nums := make([]float64, len(values))
		absent := make([]bool, len(values))
		for i, v := range values {
			parsed, ok := domain.ParseNumber(v)
			if !ok {
				absent[i] = true
				continue
			}
			nums[i] = parsed
		}
		if isBooleanColumn(nums, absent) {
			col.Kind = domain.KindBoolean
			col.Data = domain.NewNumericVector(domain.KindBoolean, nums, absent)
			return col
		}
		col.Data = domain.NewNumericVector(kind, nums, absent)
		col.IsMeasure = !identifierPattern.MatchString(key)
	case domain.KindDate:
		times := make([]time.Time, len(values))
		absent := make([]bool, len(values))
		for i, v := range values {
			parsed, ok := parseDate(v)
			if !ok {
				absent[i] = true
				continue
			}
			times[i] = parsed
		}
		col.Data = domain.NewTimeVector(times, absent)
	default:
		col.Kind = domain.KindText
		col.Data = domain.NewTextVector(values)
	}
	return col
}

// inferKind samples up to inferSampleSize non-empty values and applies the
// threshold rules: ≥90% integers → integer, ≥90% reals → real, ≥80% dates
// → date, otherwise text.
func inferKind(values []string) domain.Kind {
	var sample []string
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		sample = append(sample, v)
		if len(sample) == inferSampleSize {
			break
		}
	}
	if len(sample) == 0 {
		return domain.KindText
	}

	ints, reals, dates := 0, 0, 0
	for _, v := range sample {
		if parsed, ok := domain.ParseNumber(v); ok {
			reals++
			if parsed == math.Trunc(parsed) && !strings.ContainsAny(v, ".,") {
				ints++
			}
		}
		if _, ok := parseDate(v); ok {
			dates++
		}
	}

	total := float64(len(sample))
	switch {
	case float64(ints)/total >= numericThreshold:
		return domain.KindInteger
	case float64(reals)/total >= numericThreshold:
		return domain.KindReal
	case float64(dates)/total >= dateThreshold:
		return domain.KindDate
	default:
		return domain.KindText
	}
}

func isBooleanColumn(nums []float64, absent []bool) bool {
	count := 0
	for i, n := range nums {
		if absent[i] {
			continue
		}
		if n != 0 && n != 1 {
			return false
		}
		count++
	}
	return count >= booleanMinCount
}

func parseDate(raw string) (time.Time, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, false
	}
	// Bare numbers are never dates even if a layout would accept them.
	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
