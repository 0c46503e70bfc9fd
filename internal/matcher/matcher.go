// Package matcher finds OAB registration mentions in gazette text.
package matcher

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/gazette-cli/internal/model"
)

// defaultWindow is how many bytes of text on each side of a match are used
// as its context.
const defaultWindow = 200

// Matcher runs the ordered pattern set over text. It holds no per-call state
// and is safe for concurrent use.
type Matcher struct {
	patterns []Pattern
	window   int
}

// New returns a Matcher with the built-in pattern set.
func New() *Matcher {
	return &Matcher{patterns: defaultPatterns(), window: defaultWindow}
}

// Patterns returns the pattern set in evaluation order.
func (m *Matcher) Patterns() []Pattern {
	out := make([]Pattern, len(m.patterns))
	copy(out, m.patterns)
	return out
}

// Expr returns the pattern's regular expression source.
func (p Pattern) Expr() string {
	return p.re.String()
}

type hit struct {
	id       model.Identity
	pattern  *Pattern
	start    int
	end      int
	numStart int
}

// scan returns every valid raw hit of every pattern, in pattern order.
func (m *Matcher) scan(text string) []hit {
	var hits []hit
	for i := range m.patterns {
		p := &m.patterns[i]
		for _, loc := range p.re.FindAllStringSubmatchIndex(text, -1) {
			ni, ui := 2*p.numberGroup, 2*p.ufGroup
			if ni+1 >= len(loc) || ui+1 >= len(loc) || loc[ni] < 0 || loc[ui] < 0 {
				zap.L().Debug("matcher: skipping malformed match",
					zap.String("pattern", p.ID),
					zap.Int("offset", loc[0]),
				)
				continue
			}

			id := model.NewIdentity(text[loc[ni]:loc[ni+1]], text[loc[ui]:loc[ui+1]])
			if !id.Valid() {
				continue
			}
			hits = append(hits, hit{
				id:       id,
				pattern:  p,
				start:    loc[0],
				end:      loc[1],
				numStart: loc[ni],
			})
		}
	}
	return hits
}

// FindAll returns one candidate per distinct identity, the best scoring
// instance of each, sorted by context score descending. Candidates scoring
// below minScore are dropped.
func (m *Matcher) FindAll(text string, minScore float64) []model.CandidateMatch {
	type best struct {
		cand   model.CandidateMatch
		weight float64
	}
	byID := make(map[model.Identity]best)

	for _, h := range m.scan(text) {
		snippet := contextWindow(text, h.start, h.end, m.window)
		cand := model.CandidateMatch{
			Identity:     h.id,
			Context:      snippet,
			Start:        h.start,
			End:          h.end,
			PatternID:    h.pattern.ID,
			ContextScore: blend(ScoreContext(snippet), h.pattern.Weight),
			Raw:          text[h.start:h.end],
		}

		cur, ok := byID[h.id]
		if !ok || outranks(cand, h.pattern.Weight, cur.cand, cur.weight) {
			byID[h.id] = best{cand: cand, weight: h.pattern.Weight}
		}
	}

	out := make([]model.CandidateMatch, 0, len(byID))
	for _, b := range byID {
		if b.cand.ContextScore >= minScore {
			out = append(out, b.cand)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ContextScore != out[j].ContextScore {
			return out[i].ContextScore > out[j].ContextScore
		}
		return out[i].Start < out[j].Start
	})
	return out
}

// outranks reports whether a should replace b as the surviving instance of
// an identity.
func outranks(a model.CandidateMatch, aWeight float64, b model.CandidateMatch, bWeight float64) bool {
	if a.ContextScore != b.ContextScore {
		return a.ContextScore > b.ContextScore
	}
	if aWeight != bWeight {
		return aWeight > bWeight
	}
	return a.Start < b.Start
}

// FindTargets is FindAll restricted to the given identities. Targets are
// normalized before comparison.
func (m *Matcher) FindTargets(text string, targets []model.Identity, minScore float64) []model.CandidateMatch {
	if len(targets) == 0 {
		return nil
	}
	want := make(map[model.Identity]bool, len(targets))
	for _, t := range targets {
		want[model.NewIdentity(t.Number, t.Jurisdiction)] = true
	}

	all := m.FindAll(text, minScore)
	out := all[:0]
	for _, c := range all {
		if want[c.Identity] {
			out = append(out, c)
		}
	}
	return out
}

// CountMentions returns how many distinct places in text mention id under
// any pattern.
func (m *Matcher) CountMentions(text string, id model.Identity) int {
	id = model.NewIdentity(id.Number, id.Jurisdiction)
	seen := make(map[int]bool)
	for _, h := range m.scan(text) {
		if h.id == id {
			seen[h.numStart] = true
		}
	}
	return len(seen)
}
