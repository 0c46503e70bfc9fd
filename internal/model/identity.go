package model

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// jurisdictions is the set of valid two-letter state codes an OAB
// registration can belong to.
var jurisdictions = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {},
	"ES": {}, "GO": {}, "MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {},
	"PB": {}, "PR": {}, "PE": {}, "PI": {}, "RJ": {}, "RN": {}, "RS": {},
	"RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {},
}

// IsJurisdiction reports whether uf is one of the 27 Brazilian state codes.
func IsJurisdiction(uf string) bool {
	_, ok := jurisdictions[strings.ToUpper(uf)]
	return ok
}

// Identity is a professional registration: a number plus the jurisdiction
// that issued it.
type Identity struct {
	Number       string `json:"number"`
	Jurisdiction string `json:"jurisdiction"`
}

// NewIdentity builds a normalized Identity from raw number and jurisdiction text.
func NewIdentity(number, jurisdiction string) Identity {
	return Identity{
		Number:       NormalizeNumber(number),
		Jurisdiction: strings.ToUpper(strings.TrimSpace(jurisdiction)),
	}
}

// String renders the identity as NUMBER/UF.
func (i Identity) String() string {
	return i.Number + "/" + i.Jurisdiction
}

// Valid reports whether the identity has a known jurisdiction and a 4-6 digit
// number that is not a single repeated digit.
func (i Identity) Valid() bool {
	if !IsJurisdiction(i.Jurisdiction) {
		return false
	}
	n := len(i.Number)
	if n < 4 || n > 6 {
		return false
	}
	for _, r := range i.Number {
		if r < '0' || r > '9' {
			return false
		}
	}
	return strings.Count(i.Number, i.Number[:1]) != n
}

// NormalizeNumber strips dots, hyphens and whitespace from a registration number.
func NormalizeNumber(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		switch r {
		case '.', '-', ' ', '\t', '\n', '\r', '\u00a0':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

var (
	identityNumberFirst = regexp.MustCompile(`^([\d.\s]+?)\s*[/\-\s]\s*([A-Z]{2})$`)
	identityUFFirst     = regexp.MustCompile(`^(?:OAB)?[\s/:\-]*([A-Z]{2})[\s/:\-]*(?:N[º°O]?\.?\s*)?([\d.\s]+)$`)
)

// ParseIdentity parses user input such as "123456/SP", "123.456-SP",
// "SP 123456" or "OAB/SP 123.456".
func ParseIdentity(s string) (Identity, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	if in == "" {
		return Identity{}, eris.New("model: empty identity")
	}

	var id Identity
	if m := identityNumberFirst.FindStringSubmatch(in); m != nil {
		id = NewIdentity(m[1], m[2])
	} else if m := identityUFFirst.FindStringSubmatch(in); m != nil {
		id = NewIdentity(m[2], m[1])
	} else {
		return Identity{}, eris.Errorf("model: unrecognized identity %q", s)
	}

	if !id.Valid() {
		return Identity{}, eris.Errorf("model: invalid identity %q", s)
	}
	return id, nil
}
