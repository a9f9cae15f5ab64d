package contracts

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"cpor-analytics/internal/domain"
)

// Semantic fields the normalizer looks for in a contracts workbook.
const (
	fieldDescription      = "description"
	fieldUGR              = "ugr"
	fieldPI               = "pi"
	fieldSupplier         = "supplier"
	fieldProcess          = "process"
	fieldContractNumber   = "contractNumber"
	fieldStatus           = "status"
	fieldProrrogation     = "prorrogation"
	fieldVigency          = "vigency"
	fieldMonthlyAvg       = "monthlyAvg"
	fieldEstimatedAnnual  = "estimatedAnnual"
	fieldExecuted         = "executed"
	fieldCommitted        = "committed"
	fieldCommittedCurrent = "committedCurrent"
	fieldCommittedCarry   = "committedCarry"
)

// columnAliases maps each semantic field to the header spellings seen across
// the contract spreadsheets, most specific first. Matching happens on the
// folded header (lowercased, diacritics stripped, whitespace squashed).
var columnAliases = map[string][]string{
	fieldDescription:      {"descricao da despesa", "descricao", "despesa", "objeto"},
	fieldUGR:              {"ugr beneficiada", "ugr", "unidade gestora", "unidade"},
	fieldPI:               {"plano interno", "pi"},
	fieldSupplier:         {"cnpj da contratada", "cnpj", "fornecedor"},
	fieldProcess:          {"processo", "nup"},
	fieldContractNumber:   {"numero do contrato", "n do contrato", "contrato"},
	fieldStatus:           {"situacao", "status"},
	fieldProrrogation:     {"prorrogacao", "prorrogavel"},
	fieldVigency:          {"fim da vigencia", "termino da vigencia", "vigencia final", "vigencia"},
	fieldMonthlyAvg:       {"valor mensal estimado", "media mensal", "valor mensal"},
	fieldEstimatedAnnual:  {"valor total estimado", "total estimado", "valor anual estimado", "valor estimado"},
	fieldExecuted:         {"total executado", "valor executado", "executado"},
	fieldCommitted:        {"empenho + rap", "empenhado total", "total empenhado"},
	fieldCommittedCurrent: {"saldo de empenhos", "saldo empenho", "empenhado", "empenho"},
	fieldCommittedCarry:   {"saldo rap", "restos a pagar", "rap"},
}

// requiredFields trigger a warning when no column resolves to them.
var requiredFields = []string{
	fieldDescription, fieldUGR, fieldEstimatedAnnual,
}

// columnMap is the outcome of alias resolution for one table.
type columnMap struct {
	fields map[string]*domain.Column
	months []monthColumn
}

type monthColumn struct {
	info domain.MonthInfo
	col  *domain.Column
}

func (m *columnMap) field(name string) (*domain.Column, bool) {
	col, ok := m.fields[name]
	return col, ok
}

var diacriticReplacer = strings.NewReplacer(
	"á", "a", "à", "a", "â", "a", "ã", "a", "ä", "a",
	"é", "e", "è", "e", "ê", "e", "ë", "e",
	"í", "i", "ì", "i", "î", "i", "ï", "i",
	"ó", "o", "ò", "o", "ô", "o", "õ", "o", "ö", "o",
	"ú", "u", "ù", "u", "û", "u", "ü", "u",
	"ç", "c", "ñ", "n",
	"º", "", "ª", "",
)

// fold normalizes a header or description for matching: lowercase, strip
// diacritics, squash whitespace and underscores.
func fold(s string) string {
	lowered := diacriticReplacer.Replace(strings.ToLower(s))
	lowered = strings.ReplaceAll(lowered, "_", " ")
	return strings.Join(strings.Fields(lowered), " ")
}

// resolveColumns maps the table's columns onto semantic fields and detects
// per-month value columns. Each table column binds at most once; exact alias
// matches win over prefix matches.
func resolveColumns(table *domain.Table, defaultYear int) (*columnMap, []string) {
	var warnings []string
	cm := &columnMap{fields: make(map[string]*domain.Column)}
	taken := make(map[string]bool)

	// Month columns first, so "jan/25" never binds to a semantic alias.
	seenMonths := make(map[string]bool)
	for _, col := range table.Columns() {
		info, ok := parseMonthHeader(col.Label, defaultYear)
		if !ok {
			continue
		}
		if seenMonths[info.Key] {
			warnings = append(warnings, fmt.Sprintf("Coluna de mês duplicada ignorada: %q", col.Label))
			taken[col.Key] = true
			continue
		}
		seenMonths[info.Key] = true
		taken[col.Key] = true
		cm.months = append(cm.months, monthColumn{info: info, col: col})
	}
	sort.Slice(cm.months, func(i, j int) bool {
		return cm.months[i].info.Order.Before(cm.months[j].info.Order)
	})

	folded := make([]string, len(table.Columns()))
	for i, col := range table.Columns() {
		folded[i] = fold(col.Label)
	}

	bind := func(field string, exact bool) {
		if _, bound := cm.fields[field]; bound {
			return
		}
		for _, alias := range columnAliases[field] {
			for i, col := range table.Columns() {
				if taken[col.Key] {
					continue
				}
				match := folded[i] == alias
				if !exact {
					match = strings.HasPrefix(folded[i], alias)
				}
				if match {
					cm.fields[field] = col
					taken[col.Key] = true
					return
				}
			}
		}
	}

	order := []string{
		fieldDescription, fieldUGR, fieldPI, fieldSupplier, fieldProcess,
		fieldContractNumber, fieldStatus, fieldProrrogation, fieldVigency,
		fieldMonthlyAvg, fieldEstimatedAnnual, fieldExecuted,
		fieldCommitted, fieldCommittedCurrent, fieldCommittedCarry,
	}
	for _, field := range order {
		bind(field, true)
	}
	for _, field := range order {
		bind(field, false)
	}

	for _, field := range requiredFields {
		if _, ok := cm.fields[field]; !ok {
			warnings = append(warnings, fmt.Sprintf("Coluna obrigatória não encontrada: %s", field))
		}
	}
	return cm, warnings
}

// Portuguese month names, short and long, mapped to month numbers.
var monthNames = map[string]time.Month{
	"jan": time.January, "janeiro": time.January,
	"fev": time.February, "fevereiro": time.February,
	"mar": time.March, "marco": time.March,
	"abr": time.April, "abril": time.April,
	"mai": time.May, "maio": time.May,
	"jun": time.June, "junho": time.June,
	"jul": time.July, "julho": time.July,
	"ago": time.August, "agosto": time.August,
	"set": time.September, "setembro": time.September,
	"out": time.October, "outubro": time.October,
	"nov": time.November, "novembro": time.November,
	"dez": time.December, "dezembro": time.December,
}

var (
	yearMonthPattern = regexp.MustCompile(`^(\d{4})[-_/ ](\d{1,2})$`)
	isoDatePattern   = regexp.MustCompile(`^(\d{4})-(\d{2})-\d{2}`)
	namedPattern     = regexp.MustCompile(`^([a-z]+)[ /._-]*(\d{2,4})?$`)
)

// parseMonthHeader recognizes month value columns: "2025-01", dates, and
// Portuguese month names with an optional 2- or 4-digit year ("jan/25",
// "janeiro 2025"). Years default to defaultYear when omitted.
func parseMonthHeader(label string, defaultYear int) (domain.MonthInfo, bool) {
	text := fold(label)

	if m := yearMonthPattern.FindStringSubmatch(text); m != nil {
		return monthInfo(label, atoi(m[1]), time.Month(atoi(m[2])))
	}
	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		return monthInfo(label, atoi(m[1]), time.Month(atoi(m[2])))
	}
	if m := namedPattern.FindStringSubmatch(text); m != nil {
		month, ok := monthNames[m[1]]
		if !ok {
			return domain.MonthInfo{}, false
		}
		year := defaultYear
		if m[2] != "" {
			year = atoi(m[2])
			if year < 100 {
				year += 2000
			}
		}
		return monthInfo(label, year, month)
	}
	return domain.MonthInfo{}, false
}

func monthInfo(label string, year int, month time.Month) (domain.MonthInfo, bool) {
	if month < time.January || month > time.December || year < 2000 || year > 2100 {
		return domain.MonthInfo{}, false
	}
	order := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return domain.MonthInfo{
		Key:    fmt.Sprintf("month_%04d_%02d", year, int(month)),
		Label:  label,
		Order:  order,
		Source: label,
	}, true
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}
