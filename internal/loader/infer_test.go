package loader

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"cpor-analytics/internal/domain"
)

func TestKeyFor(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"Valor Estimado", "valor_estimado"},
		{"  Nº do Contrato  ", "n_do_contrato"},
		{"UGR", "ugr"},
		{"Saldo (R$)", "saldo_r"},
		{"já_normalizado", "j_normalizado"},
		{"___", "col"},
		{"", "col"},
	}
	for _, tc := range cases {
		if got := KeyFor(tc.label); got != tc.want {
			t.Errorf("KeyFor(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

func TestKeyForIdempotent(t *testing.T) {
	labels := []string{"Valor Estimado", "Média Mensal", "PI 2026", "col_3"}
	for _, label := range labels {
		once := KeyFor(label)
		if twice := KeyFor(once); twice != once {
			t.Errorf("KeyFor(KeyFor(%q)) = %q, want %q", label, twice, once)
		}
	}
}

func TestNormalizeHeaderCollisions(t *testing.T) {
	labels, keys, err := normalizeHeader([]string{"Valor", "valor", "VALOR", ""})
	if err != nil {
		t.Fatal(err)
	}
	wantKeys := []string{"valor", "valor_2", "valor_3", "col_4"}
	for i := range wantKeys {
		if keys[i] != wantKeys[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], wantKeys[i])
		}
	}
	if labels[3] != "col_4" {
		t.Errorf("labels[3] = %q, want col_4", labels[3])
	}
}

func TestNormalizeHeaderCollapsesWhitespace(t *testing.T) {
	labels, _, err := normalizeHeader([]string{"  Valor   Estimado \t"})
	if err != nil {
		t.Fatal(err)
	}
	if labels[0] != "Valor Estimado" {
		t.Errorf("label = %q, want %q", labels[0], "Valor Estimado")
	}
}

func TestInferKindThresholds(t *testing.T) {
	repeat := func(v string, n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = v
		}
		return out
	}

	cases := []struct {
		name   string
		values []string
		want   domain.Kind
	}{
		{"all integers", []string{"1", "2", "30", "400"}, domain.KindInteger},
		{"mixed decimals", []string{"1,5", "2.25", "3", "4"}, domain.KindReal},
		{"currency", []string{"R$ 1.000,50", "R$ 2,00", "R$ 30", "1500"}, domain.KindReal},
		{"ninety percent numeric", append(repeat("10", 9), "abc"), domain.KindInteger},
		{"below threshold", append(repeat("10", 8), "abc", "def"), domain.KindText},
		{"dates iso", []string{"2026-01-15", "2026-02-01", "2026-03-10", "2026-04-05", "x"}, domain.KindDate},
		{"dates brazilian", []string{"15/01/2026", "01/02/2026", "10/03/2026", "20/04/2026"}, domain.KindDate},
		{"empty column", []string{"", "", ""}, domain.KindText},
		{"text", []string{"CMDO", "DSAU", "DCTIM"}, domain.KindText},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := inferKind(tc.values); got != tc.want {
				t.Errorf("inferKind = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestBuildColumnBoolean(t *testing.T) {
	col := buildColumn("ativo", "Ativo", []string{"1", "0", "1", "1", "0"})
	if col.Kind != domain.KindBoolean {
		t.Fatalf("kind = %v, want boolean", col.Kind)
	}
	if col.IsMeasure {
		t.Error("boolean columns must not be measures")
	}

	// Too few values to trust the {0,1} pattern: stays integer.
	col = buildColumn("flag", "Flag", []string{"1", "0", "1"})
	if col.Kind != domain.KindInteger {
		t.Errorf("kind = %v, want integer", col.Kind)
	}
}

func TestBuildColumnIdentifierDenyList(t *testing.T) {
	cases := []struct {
		key     string
		measure bool
	}{
		{"valor_estimado", true},
		{"id", false},
		{"id_contrato", false},
		{"processo_id", false},
		{"cnpj", false},
		{"cpf_responsavel", false},
		{"pi_2026", false},
		{"numero_contrato", false},
		{"quantidade", true},
	}
	for _, tc := range cases {
		col := buildColumn(tc.key, tc.key, []string{"10", "20", "30"})
		if col.IsMeasure != tc.measure {
			t.Errorf("IsMeasure(%q) = %v, want %v", tc.key, col.IsMeasure, tc.measure)
		}
	}
}

func TestParseDateRejectsBareNumbers(t *testing.T) {
	if _, ok := parseDate("20260115"); ok {
		t.Error("bare number accepted as date")
	}
	if _, ok := parseDate("2026-01-15"); !ok {
		t.Error("ISO date rejected")
	}
	if _, ok := parseDate("15/01/2026"); !ok {
		t.Error("dd/mm/yyyy date rejected")
	}
}

func TestInferSampleCap(t *testing.T) {
	// The first 500 non-empty values decide the kind; junk past the cap
	// cannot flip a numeric column to text.
	var b strings.Builder
	b.WriteString("valor\n")
	for i := 0; i < inferSampleSize; i++ {
		fmt.Fprintf(&b, "%d\n", i)
	}
	for i := 0; i < 200; i++ {
		b.WriteString("texto\n")
	}

	table, err := Load("grande.csv", []byte(b.String()))
	if err != nil {
		t.Fatal(err)
	}
	col, _ := table.Column("valor")
	if col.Kind != domain.KindInteger {
		t.Errorf("kind = %v, want integer", col.Kind)
	}
	// Values past the cap that fail coercion become absent cells.
	if !col.Data.Absent(inferSampleSize) {
		t.Error("non-numeric tail cell should be absent")
	}
}

func TestNormalizeHeaderExhaustedSuffixes(t *testing.T) {
	// More duplicate labels than available suffixes cannot happen with the
	// n+1 search window, so this documents the error path via a direct call.
	header := make([]string, 3)
	for i := range header {
		header[i] = "x"
	}
	_, keys, err := normalizeHeader(header)
	if err != nil {
		if !errors.Is(err, ErrSchemaConflict) {
			t.Fatalf("err = %v, want ErrSchemaConflict", err)
		}
		return
	}
	if keys[2] != "x_3" {
		t.Errorf("keys[2] = %q, want x_3", keys[2])
	}
}
