package scorer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sells-group/gazette-cli/internal/config"
	"github.com/sells-group/gazette-cli/internal/matcher"
	"github.com/sells-group/gazette-cli/internal/model"
)

const (
	// Density saturates at this many mentions per 1,000 characters.
	densitySaturation = 5.0

	densityBonusMany = 0.2 // three or more mentions
	densityBonusTwo  = 0.1
)

// actKeywords is checked in order; the first category with a keyword in the
// context wins. Keywords are accent-folded and lowercase, and only match at
// the start of a word, so "cita" does not fire on "solicita" or "licitacao".
var actKeywords = []struct {
	act      model.ActType
	keywords []string
}{
	{model.ActNotice, []string{"intima", "intimacao", "intimado", "intimada"}},
	{model.ActRuling, []string{"sentenca", "julgo procedente", "julgo improcedente"}},
	{model.ActOrder, []string{"despacho", "indefiro", "defiro"}},
	{model.ActDecision, []string{"decisao", "decido", "determino"}},
	{model.ActAppellateRuling, []string{"acordao", "acordam"}},
	{model.ActHearing, []string{"audiencia", "designo", "assinalo"}},
	{model.ActSummons, []string{"cita", "citacao", "citado", "citada"}},
	{model.ActJudgment, []string{"julgamento", "julgar"}},
}

// Scorer combines context, density and position into a final relevance
// score. It is stateless and safe for concurrent use.
type Scorer struct {
	cfg config.ScoringConfig
}

// New creates a Scorer with the given weights.
func New(cfg config.ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Config returns the weights the scorer was built with.
func (s *Scorer) Config() config.ScoringConfig {
	return s.cfg
}

// Score returns the final relevance score in [0, 1]. Position and docLength
// are byte offsets into the extracted text.
func (s *Scorer) Score(contextScore float64, mentionCount, docLength, position int, act model.ActType) float64 {
	final := contextScore*s.cfg.ContextWeight +
		DensityScore(mentionCount, docLength)*s.cfg.DensityWeight +
		PositionScore(position, docLength)*s.cfg.PositionWeight
	if act != model.ActNone {
		final += s.cfg.ActTypeBonus
	}
	return clamp(final)
}

// Input describes one candidate in the document it was found in.
type Input struct {
	Candidate    model.CandidateMatch
	MentionCount int
	DocLength    int
	ViaOCR       bool
}

// Breakdown is the scored form of an Input.
type Breakdown struct {
	DensityScore      float64
	PositionScore     float64
	FinalScore        float64
	ActType           model.ActType
	NeedsManualReview bool
}

// Evaluate scores a candidate and classifies the act it appears in.
func (s *Scorer) Evaluate(in Input) Breakdown {
	act := ClassifyActType(in.Candidate.Context)
	final := s.Score(in.Candidate.ContextScore, in.MentionCount, in.DocLength, in.Candidate.Start, act)
	return Breakdown{
		DensityScore:      DensityScore(in.MentionCount, in.DocLength),
		PositionScore:     PositionScore(in.Candidate.Start, in.DocLength),
		FinalScore:        final,
		ActType:           act,
		NeedsManualReview: s.NeedsManualReview(final, in.ViaOCR),
	}
}

// NeedsManualReview reports whether a publication must be checked by hand:
// always for OCR text, otherwise when the final score is below the review
// threshold.
func (s *Scorer) NeedsManualReview(final float64, viaOCR bool) bool {
	return viaOCR || final < s.cfg.ReviewThreshold
}

// CandidateThreshold is the context score the matcher is run at. It sits
// below minScore so candidates that density or position would lift are not
// discarded early.
func (s *Scorer) CandidateThreshold(minScore float64) float64 {
	return minScore * s.cfg.CandidateFactor
}

// DensityScore rates how often an identity is mentioned relative to the
// document size.
func DensityScore(mentionCount, docLength int) float64 {
	if docLength <= 0 || mentionCount <= 0 {
		return 0
	}
	perThousand := float64(mentionCount) / (float64(docLength) / 1000)
	score := min(1, perThousand/densitySaturation)

	switch {
	case mentionCount >= 3:
		score += densityBonusMany
	case mentionCount == 2:
		score += densityBonusTwo
	}
	return min(1, score)
}

// PositionScore favors mentions near the start of a document. It falls
// linearly from 1.0 to 0.8 over the first fifth, to 0.4 by four fifths, and
// to 0.0 at the end.
func PositionScore(position, docLength int) float64 {
	if docLength <= 0 {
		return 0.5
	}
	p := clamp(float64(position) / float64(docLength))

	switch {
	case p <= 0.2:
		return 0.8 + 0.2*(1-p/0.2)
	case p <= 0.8:
		return 0.4 + 0.4*(1-(p-0.2)/0.6)
	default:
		return 0.4 * (1 - (p-0.8)/0.2)
	}
}

// ClassifyActType returns the kind of judicial act a context snippet belongs
// to, or ActNone.
func ClassifyActType(context string) model.ActType {
	folded := matcher.Fold(strings.ToLower(context))
	for _, a := range actKeywords {
		for _, kw := range a.keywords {
			if hasWordPrefix(folded, kw) {
				return a.act
			}
		}
	}
	return model.ActNone
}

// hasWordPrefix reports whether kw occurs in s at the start of a word.
func hasWordPrefix(s, kw string) bool {
	for from := 0; from < len(s); {
		i := strings.Index(s[from:], kw)
		if i < 0 {
			return false
		}
		i += from
		prev, _ := utf8.DecodeLastRuneInString(s[:i])
		if i == 0 || !unicode.IsLetter(prev) {
			return true
		}
		from = i + 1
	}
	return false
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}
