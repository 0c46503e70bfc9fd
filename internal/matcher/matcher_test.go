package matcher

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gazette-cli/internal/model"
)

func TestScoreContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		snippet string
		want    float64
	}{
		{"empty is neutral", "", 0.5},
		{"attorney with colon", "Advogado: OAB/SP 123.456", 0.75},
		{"negative keywords capped", "Processo 1234/SP CPF telefone", 0.3},
		{"name and parentheses", "Dr. João Silva (OAB/SP 123.456)", 0.85},
		{"clamped at one", "Advogado Dr. Doutor Defensor: João Silva (intimado)", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.want, ScoreContext(tt.snippet), 1e-9)
		})
	}
}

func TestScoreContext_AccentInsensitive(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, ScoreContext("intimação"), ScoreContext("intimacao"), 1e-9)
	assert.InDelta(t, 0.6, ScoreContext("causidico"), 1e-9)
}

func TestFindTargets_AttorneyScenario(t *testing.T) {
	t.Parallel()

	m := New()
	got := m.FindTargets("...Advogado: OAB/SP 123.456...", []model.Identity{{Number: "123456", Jurisdiction: "SP"}}, 0.3)

	require.Len(t, got, 1)
	assert.Equal(t, "123456", got[0].Number)
	assert.Equal(t, "SP", got[0].Jurisdiction)
	assert.GreaterOrEqual(t, got[0].ContextScore, 0.7)
	assert.InDelta(t, 0.79, got[0].ContextScore, 1e-9)
	assert.Equal(t, "attorney_oab", got[0].PatternID)
	assert.Equal(t, "Advogado: OAB/SP 123.456", got[0].Raw)
}

func TestFindAll_RejectsNoise(t *testing.T) {
	t.Parallel()

	m := New()
	got := m.FindAll("Advogado: OAB/ZZ 123.456 e OAB/SP 111.111", 0)
	assert.Empty(t, got)
}

func TestFindAll_PatternVariants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want model.Identity
	}{
		{"OAB/SP 123.456", model.Identity{Number: "123456", Jurisdiction: "SP"}},
		{"OAB RJ nº 98.765", model.Identity{Number: "98765", Jurisdiction: "RJ"}},
		{"inscrito sob 123.456/MG", model.Identity{Number: "123456", Jurisdiction: "MG"}},
		{"registro 654321-PR", model.Identity{Number: "654321", Jurisdiction: "PR"}},
		{"(OAB/BA 12.345)", model.Identity{Number: "12345", Jurisdiction: "BA"}},
		{"Advogada: OAB/RS 45.678", model.Identity{Number: "45678", Jurisdiction: "RS"}},
		{"Dra. Maria Souza - OAB/SC nº 34.567", model.Identity{Number: "34567", Jurisdiction: "SC"}},
		{"OAB-PE: 23456", model.Identity{Number: "23456", Jurisdiction: "PE"}},
		{"Inscrição OAB/CE sob o nº 7.654", model.Identity{Number: "7654", Jurisdiction: "CE"}},
		{"Procurador: OAB 55.443-GO", model.Identity{Number: "55443", Jurisdiction: "GO"}},
		{"Defensora: 33.221/AM", model.Identity{Number: "33221", Jurisdiction: "AM"}},
		{"Patrono: José Lima (OAB 44.556/PA)", model.Identity{Number: "44556", Jurisdiction: "PA"}},
		{"Registro OAB nº 66.778 (PB)", model.Identity{Number: "66778", Jurisdiction: "PB"}},
	}

	m := New()
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			got := m.FindAll(tt.text, 0)
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Identity)
		})
	}
}

func TestFindAll_DedupKeepsBestInstance(t *testing.T) {
	t.Parallel()

	text := "Advogado: OAB/SP 123.456 " + strings.Repeat("x ", 300) + "123456/SP"
	m := New()

	got := m.FindAll(text, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "attorney_oab", got[0].PatternID)
	assert.Equal(t, 0, got[0].Start)
	assert.InDelta(t, 0.79, got[0].ContextScore, 1e-9)

	assert.Equal(t, 2, m.CountMentions(text, model.Identity{Number: "123.456", Jurisdiction: "sp"}))
	assert.Equal(t, 0, m.CountMentions(text, model.Identity{Number: "654321", Jurisdiction: "SP"}))
}

func TestFindAll_SortedAndThresholdMonotonic(t *testing.T) {
	t.Parallel()

	text := "Advogado: OAB/SP 123.456. " + strings.Repeat("- ", 150) +
		"Processo 4321/RJ CPF telefone. " + strings.Repeat("- ", 150) +
		"Dr. João Silva (OAB/MG 98.765)"
	m := New()

	all := m.FindAll(text, 0)
	require.Len(t, all, 3)
	for i := 1; i < len(all); i++ {
		assert.GreaterOrEqual(t, all[i-1].ContextScore, all[i].ContextScore)
	}
	assert.Equal(t, "RJ", all[2].Jurisdiction)

	prev := len(all)
	for _, threshold := range []float64{0.1, 0.3, 0.5, 0.7, 0.9, 1.0} {
		n := len(m.FindAll(text, threshold))
		assert.LessOrEqual(t, n, prev, "threshold %.1f", threshold)
		prev = n
	}
}

func TestFindAll_Idempotent(t *testing.T) {
	t.Parallel()

	text := "Intimação. Advogado: OAB/SP 123.456; Defensor: 33.221/AM; (OAB/BA 12.345)"
	m := New()
	assert.Equal(t, m.FindAll(text, 0.2), m.FindAll(text, 0.2))
}

func TestFindTargets_FiltersAndNormalizes(t *testing.T) {
	t.Parallel()

	text := "Advogado: OAB/SP 123.456 e Advogada: OAB/RJ 65.432"
	m := New()

	got := m.FindTargets(text, []model.Identity{{Number: "123.456", Jurisdiction: "sp"}}, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "SP", got[0].Jurisdiction)

	assert.Nil(t, m.FindTargets(text, nil, 0))
}

func TestPatterns(t *testing.T) {
	t.Parallel()

	ps := New().Patterns()
	require.Len(t, ps, 13)

	seen := make(map[string]bool)
	for _, p := range ps {
		assert.False(t, seen[p.ID], "duplicate pattern id %s", p.ID)
		seen[p.ID] = true
		assert.Greater(t, p.Weight, 0.0)
		assert.LessOrEqual(t, p.Weight, 1.0)
		assert.NotEmpty(t, p.Expr())
	}
}

func TestContextWindow(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("á", 300) + "X" + strings.Repeat("é", 300)
	start := strings.Index(text, "X")

	snippet := contextWindow(text, start, start+1, 201)
	assert.True(t, utf8.ValidString(snippet))
	assert.True(t, strings.HasPrefix(snippet, "..."))
	assert.True(t, strings.HasSuffix(snippet, "..."))
	assert.Contains(t, snippet, "X")

	short := contextWindow("OAB/SP 123.456", 0, 14, 200)
	assert.Equal(t, "OAB/SP 123.456", short)
}

func TestFold(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Intimacao Codigo", Fold("Intimação Código"))
}
