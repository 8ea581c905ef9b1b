package condition

import (
	"regexp"
	"strings"
)

var (
	varRef   = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	andWord  = regexp.MustCompile(`\bAND\b`)
	orWord   = regexp.MustCompile(`\bOR\b`)
	notWord  = regexp.MustCompile(`\bNOT\b`)
	inWord   = regexp.MustCompile(`\bIN\b`)
	singleEq = regexp.MustCompile(`([^=!<>])=([^=~])`)
)

// Rewrite converts rule condition syntax into an expr expression. Quoted
// segments are copied verbatim.
func Rewrite(condition string) string {
	var out strings.Builder
	var plain strings.Builder

	flush := func() {
		s := plain.String()
		s = varRef.ReplaceAllString(s, "$1")
		s = andWord.ReplaceAllString(s, "&&")
		s = orWord.ReplaceAllString(s, "||")
		s = inWord.ReplaceAllString(s, "in")
		s = notWord.ReplaceAllString(s, "not")
		s = singleEq.ReplaceAllString(s, "$1==$2")
		out.WriteString(s)
		plain.Reset()
	}

	var quote rune
	for _, r := range condition {
		switch {
		case quote != 0:
			out.WriteRune(r)
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '\'' || r == '`':
			flush()
			quote = r
			out.WriteRune(r)
		default:
			plain.WriteRune(r)
		}
	}
	flush()
	return out.String()
}
