package scorer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gazette-cli/internal/model"
)

func TestPositionScore(t *testing.T) {
	tests := []struct {
		name      string
		position  int
		docLength int
		want      float64
	}{
		{"start", 0, 10000, 1.0},
		{"end", 10000, 10000, 0.0},
		{"first fifth boundary", 2000, 10000, 0.8},
		{"middle", 5000, 10000, 0.6},
		{"four fifths", 8000, 10000, 0.4},
		{"deep in the tail", 9500, 10000, 0.1},
		{"past the end clamps", 12000, 10000, 0.0},
		{"empty document", 0, 0, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, PositionScore(tt.position, tt.docLength), 1e-9)
		})
	}
}

func TestPositionScore_MiddleIsStrictlyBetween(t *testing.T) {
	got := PositionScore(5000, 10000)
	assert.Greater(t, got, 0.4)
	assert.Less(t, got, 0.8)
}

func TestPositionScore_NonIncreasing(t *testing.T) {
	prev := PositionScore(0, 1000)
	for pos := 10; pos <= 1000; pos += 10 {
		cur := PositionScore(pos, 1000)
		assert.LessOrEqual(t, cur, prev+1e-12, "position %d", pos)
		prev = cur
	}
}

func TestDensityScore(t *testing.T) {
	tests := []struct {
		name      string
		mentions  int
		docLength int
		want      float64
	}{
		{"single mention", 1, 1000, 0.2},
		{"two mentions bonus", 2, 1000, 0.5},
		{"three mentions bonus", 3, 1000, 0.8},
		{"saturates", 10, 1000, 1.0},
		{"sparse", 1, 10000, 0.02},
		{"empty document", 3, 0, 0},
		{"no mentions", 0, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DensityScore(tt.mentions, tt.docLength), 1e-9)
		})
	}
}

func TestClassifyActType(t *testing.T) {
	tests := []struct {
		context string
		want    model.ActType
	}{
		{"Fica o advogado INTIMADO para manifestação", model.ActNotice},
		{"Ante o exposto, JULGO PROCEDENTE o pedido", model.ActRuling},
		{"Defiro o pedido de vista", model.ActOrder},
		{"Determino a remessa dos autos", model.ActDecision},
		{"ACÓRDÃO da Terceira Turma", model.ActAppellateRuling},
		{"Designo audiência para o dia 10", model.ActHearing},
		{"Citação do réu por edital", model.ActSummons},
		{"Pauta de julgamento da sessão", model.ActJudgment},
		{"Lista de advogados cadastrados", model.ActNone},
	}
	for _, tt := range tests {
		t.Run(tt.context, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyActType(tt.context))
		})
	}
}

func TestClassifyActType_WholeWordStems(t *testing.T) {
	for _, context := range []string{
		"O autor solicita vista dos autos",
		"Processo de licitação nº 12/2025",
		"Curso de capacitação de servidores",
	} {
		assert.Equal(t, model.ActNone, ClassifyActType(context), context)
	}
	assert.Equal(t, model.ActSummons, ClassifyActType("Cite-se o réu. (citação por edital)"))
	assert.Equal(t, model.ActNotice, ClassifyActType("Fica intimada a parte autora"))
}

func TestHasWordPrefix(t *testing.T) {
	assert.True(t, hasWordPrefix("cita", "cita"))
	assert.True(t, hasWordPrefix("edital de citacao", "cita"))
	assert.True(t, hasWordPrefix("solicita a citacao", "cita"), "a later occurrence may start a word")
	assert.False(t, hasWordPrefix("solicita", "cita"))
	assert.False(t, hasWordPrefix("", "cita"))
}

func TestClassifyActType_FirstCategoryWins(t *testing.T) {
	// Both a notice and a ruling keyword; notices are checked first.
	assert.Equal(t, model.ActNotice, ClassifyActType("Sentença publicada. Intimação das partes."))
}

func TestScore_TailMentionPulledDown(t *testing.T) {
	s := New(DefaultConfig())

	got := s.Score(0.79, 1, 10000, 9500, model.ActNone)
	assert.InDelta(t, 0.342, got, 1e-9)
	assert.True(t, s.NeedsManualReview(got, false))
}

func TestScore_ClampedToOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextWeight = 1
	cfg.ActTypeBonus = 0.5
	s := New(cfg)

	got := s.Score(1, 10, 1000, 0, model.ActNotice)
	assert.InDelta(t, 1.0, got, 1e-9)
}

func TestScore_ActTypeBonus(t *testing.T) {
	s := New(DefaultConfig())

	without := s.Score(0.5, 1, 1000, 500, model.ActNone)
	with := s.Score(0.5, 1, 1000, 500, model.ActRuling)
	assert.InDelta(t, 0.1, with-without, 1e-9)
}

func TestEvaluate(t *testing.T) {
	s := New(DefaultConfig())

	in := Input{
		Candidate: model.CandidateMatch{
			Identity:     model.Identity{Number: "123456", Jurisdiction: "SP"},
			Context:      "Fica INTIMADO o advogado",
			ContextScore: 0.8,
			Start:        0,
		},
		MentionCount: 2,
		DocLength:    1000,
	}

	got := s.Evaluate(in)
	assert.Equal(t, model.ActNotice, got.ActType)
	assert.InDelta(t, 0.5, got.DensityScore, 1e-9)
	assert.InDelta(t, 1.0, got.PositionScore, 1e-9)
	assert.InDelta(t, 0.77, got.FinalScore, 1e-9)
	assert.False(t, got.NeedsManualReview)

	in.ViaOCR = true
	assert.True(t, s.Evaluate(in).NeedsManualReview, "OCR text is always reviewed")
}

func TestCandidateThreshold(t *testing.T) {
	s := New(DefaultConfig())
	assert.InDelta(t, 0.24, s.CandidateThreshold(0.3), 1e-9)
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig(DefaultConfig()))

	cfg := DefaultConfig()
	cfg.DensityWeight = -0.1
	cfg.ReviewThreshold = 2
	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "density_weight must be >= 0")
	assert.Contains(t, err.Error(), "review_threshold must be between 0 and 1")

	cfg = DefaultConfig()
	cfg.ContextWeight = 0.9
	err = ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights should sum to at most 1")

	cfg = DefaultConfig()
	cfg.CandidateFactor = 0
	assert.Error(t, ValidateConfig(cfg))
}

func TestWeightSum(t *testing.T) {
	assert.InDelta(t, 0.9, WeightSum(DefaultConfig()), 1e-9)
}
