package extract

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v]+`)
	extraBlankLines = regexp.MustCompile(`\n{3,}`)
)

// Normalize cleans extracted text: NFC composition, LF line endings, single
// spaces, no leading or trailing blanks on a line, and at most one empty line
// in a row.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")

	text = extraBlankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
