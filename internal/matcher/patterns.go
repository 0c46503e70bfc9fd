package matcher

import "regexp"

// Pattern is one textual shape an OAB registration is written in.
type Pattern struct {
	ID     string
	Weight float64
	re     *regexp.Regexp

	// Capture group indexes for the number and the jurisdiction.
	numberGroup int
	ufGroup     int
}

func newPattern(id string, weight float64, expr string, numberGroup, ufGroup int) Pattern {
	return Pattern{
		ID:          id,
		Weight:      weight,
		re:          regexp.MustCompile(expr),
		numberGroup: numberGroup,
		ufGroup:     ufGroup,
	}
}

const num = `(\d{1,3}\.?\d{3})`

// defaultPatterns is ordered from the most to the least specific shape.
// Weights reflect how unambiguous each shape is.
func defaultPatterns() []Pattern {
	return []Pattern{
		// OAB/SP 123.456, OAB SP nº 123456
		newPattern("oab_slash_uf_number", 0.9, `(?i)\bOAB[/\s]*([A-Z]{2})[^\d]{0,5}`+num+`\b`, 2, 1),
		newPattern("oab_space_uf_number", 0.9, `(?i)\bOAB\s+([A-Z]{2})\s+n?º?\s?`+num+`\b`, 2, 1),

		// 123.456/SP, 123456 SP. Case-sensitive so ordinary words are not read as UFs.
		newPattern("number_slash_uf", 0.5, `\b`+num+`[/\s]*([A-Z]{2})\b`, 1, 2),
		newPattern("number_hyphen_uf", 0.55, `\b`+num+`-([A-Z]{2})\b`, 1, 2),

		// (OAB/SP 123.456)
		newPattern("parenthesized_oab", 0.9, `(?i)\(OAB[/\s]*([A-Z]{2})[^\d]{0,5}`+num+`\)`, 2, 1),

		// Advogado: OAB/SP 123.456
		newPattern("attorney_oab", 0.95, `(?i)Advogad[oa]s?[:\s]+OAB[/\s]*([A-Z]{2})[^\d]{0,5}`+num, 2, 1),

		// Dr. João Silva - OAB/SP nº 123.456
		newPattern("doctor_name_oab", 0.85, `(?i)Dra?\.\s+[\p{L}\s]+-\s*OAB[/\s]*([A-Z]{2})\s+n?º?\s?`+num, 2, 1),

		// OAB-SP: 123456
		newPattern("oab_hyphen_uf_colon", 0.85, `(?i)\bOAB-([A-Z]{2}):\s*`+num+`\b`, 2, 1),

		// Inscrição OAB/SP sob o nº 123.456
		newPattern("registration_oab", 0.9, `(?i)Inscri[çc][ãa]o\s+OAB[/\s]*([A-Z]{2})\s+(?:sob\s+)?(?:o\s+)?n?º?\s?`+num, 2, 1),

		// Procurador: OAB 123456-SP
		newPattern("attorney_general_oab", 0.85, `(?i)Procuradora?[:\s]+OAB\s+`+num+`\s*[-/]\s*([A-Z]{2})`, 1, 2),

		// Defensor: 123456/SP
		newPattern("defender_number_uf", 0.8, `(?i)Defensora?[:\s]+`+num+`[/\s]*([A-Z]{2})`, 1, 2),

		// Patrono: João Silva (OAB 123456/SP)
		newPattern("counsel_oab", 0.85, `(?i)Patron[oa]s?[:\s]+[\p{L}\s.]+\(OAB\s+`+num+`[-/]([A-Z]{2})\)`, 1, 2),

		// Registro OAB nº 123456 (SP)
		newPattern("register_oab_parenthesized_uf", 0.85, `(?i)Registro\s+OAB\s+n?º?\s?`+num+`\s*\(([A-Z]{2})\)`, 1, 2),
	}
}
