package matcher

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Keywords that suggest the digits near them are a lawyer's registration.
var positiveKeywords = foldAll(
	"advogado", "advogada", "adv", "dr", "dra", "doutor", "doutora",
	"defensor", "defensora", "procurador", "procuradora",
	"causídico", "causídica", "patrono", "patrona", "representante",
	"subscrito", "subscrita", "intimação", "intimado", "intimada",
)

// Keywords that suggest the digits are some other identifier.
var negativeKeywords = foldAll(
	"processo", "cnpj", "cpf", "telefone", "cep", "protocolo", "senha",
	"código", "numero",
)

var properNounPair = regexp.MustCompile(`\p{Lu}\p{Ll}+\s+\p{Lu}\p{Ll}+`)

const (
	baseScore        = 0.5
	keywordStep      = 0.1
	maxPositiveBoost = 0.3
	maxNegativeCut   = 0.2
	properNounBonus  = 0.2
	formattingBonus  = 0.05

	// Share of the final context score taken from the surrounding text;
	// the rest comes from the pattern weight.
	contextShare = 0.8
)

// ScoreContext rates how likely a snippet surrounds a genuine registration
// mention. The result is in [0, 1].
func ScoreContext(snippet string) float64 {
	folded := Fold(strings.ToLower(snippet))
	score := baseScore

	if n := countPresent(folded, positiveKeywords); n > 0 {
		score += min(maxPositiveBoost, float64(n)*keywordStep)
	}
	if n := countPresent(folded, negativeKeywords); n > 0 {
		score -= min(maxNegativeCut, float64(n)*keywordStep)
	}
	if properNounPair.MatchString(snippet) {
		score += properNounBonus
	}
	if strings.ContainsAny(snippet, "()") {
		score += formattingBonus
	}
	if strings.Contains(snippet, ":") {
		score += formattingBonus
	}
	return clamp(score)
}

func blend(contextual, weight float64) float64 {
	return clamp(contextShare*contextual + (1-contextShare)*weight)
}

func clamp(v float64) float64 {
	return max(0, min(1, v))
}

func countPresent(s string, words []string) int {
	n := 0
	for _, w := range words {
		if strings.Contains(s, w) {
			n++
		}
	}
	return n
}

// Fold removes diacritics so "intimação" and "intimacao" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func foldAll(words ...string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = Fold(w)
	}
	return out
}

// contextWindow returns up to window bytes on each side of [start, end),
// widened to rune boundaries, with "..." marking truncated sides.
func contextWindow(text string, start, end, window int) string {
	from := max(0, start-window)
	to := min(len(text), end+window)
	for from > 0 && !utf8.RuneStart(text[from]) {
		from--
	}
	for to < len(text) && !utf8.RuneStart(text[to]) {
		to++
	}

	snippet := text[from:to]
	if from > 0 {
		snippet = "..." + snippet
	}
	if to < len(text) {
		snippet += "..."
	}
	return snippet
}
