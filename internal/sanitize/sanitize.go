// Package sanitize cleans game labels supplied by MCP clients before they
// are simulated, stored, or rendered back into markdown. It strips control
// characters, markup, and anything that would break the whitespace-separated
// text game format.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/nvandessel/equilibria/internal/game"
)

// MaxTitleLength is the maximum allowed length for a game title, in runes.
const MaxTitleLength = 120

// MaxChoiceLength is the maximum allowed length for a choice name, in runes.
const MaxChoiceLength = 32

// Pre-compiled regular expressions for performance.
var (
	// reXMLTag matches XML/HTML tags including those with attributes and self-closing tags.
	// It also matches XML processing instructions like <?xml ...?>.
	reXMLTag = regexp.MustCompile(`<[/?!]?[a-zA-Z][a-zA-Z0-9]*(?:\s+[^>]*)?/?>|<\?[^?]*\?>`)

	// reLeadingMarkup matches heading and quote markers at the start of a title.
	reLeadingMarkup = regexp.MustCompile(`^[#>\s]+`)

	// reTripleBacktick matches triple (or more) backtick sequences used in code fences.
	reTripleBacktick = regexp.MustCompile("```+")

	// reWhitespace matches any run of whitespace.
	reWhitespace = regexp.MustCompile(`\s+`)

	// reRepeatedHyphens matches 2 or more consecutive hyphens.
	reRepeatedHyphens = regexp.MustCompile(`-{2,}`)

	// reRepeatedUnderscores matches 2 or more consecutive underscores.
	reRepeatedUnderscores = regexp.MustCompile(`_{2,}`)
)

// Title sanitizes a game title into a single line of plain text.
//
// The pipeline runs in this order:
//  1. Replace control characters (including newlines and tabs) with spaces
//  2. Strip XML/HTML tags
//  3. Collapse triple backticks to a single backtick
//  4. Drop leading markdown heading and quote markers
//  5. Collapse whitespace runs and trim
//  6. Truncate to MaxTitleLength runes
func Title(input string) string {
	if input == "" {
		return ""
	}

	s := replaceControlChars(input)
	s = reXMLTag.ReplaceAllString(s, "")
	s = reTripleBacktick.ReplaceAllString(s, "`")
	s = reLeadingMarkup.ReplaceAllString(s, "")
	s = reWhitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	return truncateRunes(s, MaxTitleLength)
}

// ChoiceName sanitizes a choice label, keeping only letters, digits, '-',
// '_' and apostrophes. Repeated hyphens and underscores are collapsed and the result
// is limited to MaxChoiceLength runes. Whitespace becomes '-' so the label
// stays one token in the text game format.
func ChoiceName(input string) string {
	if input == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(input))
	for _, r := range strings.TrimSpace(input) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '\'':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}
	s := b.String()

	s = reRepeatedHyphens.ReplaceAllString(s, "-")
	s = reRepeatedUnderscores.ReplaceAllString(s, "_")

	return truncateRunes(s, MaxChoiceLength)
}

// Definition returns a copy of d with the title and every choice name
// sanitized. Payoffs are copied unchanged.
func Definition(d game.Definition) game.Definition {
	out := game.Definition{
		Title:   Title(d.Title),
		Choices: make([]string, len(d.Choices)),
		Payoffs: make([][][2]int, len(d.Payoffs)),
	}
	for i, c := range d.Choices {
		out.Choices[i] = ChoiceName(c)
	}
	for i, row := range d.Payoffs {
		out.Payoffs[i] = append([][2]int(nil), row...)
	}
	return out
}

// replaceControlChars replaces every control character with a space.
func replaceControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsControl(r) {
			b.WriteByte(' ')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
