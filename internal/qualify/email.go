// Package qualify turns an email reply plus a resolved credential into a
// normalized classification result.
package qualify

import (
	"regexp"
	"strings"
)

var (
	styleBlockRe  = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	scriptBlockRe = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	tagRe         = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// NormalizeBody picks the text to classify: the plain-text body when
// present, otherwise plain text derived from the HTML body.
func NormalizeBody(bodyText, bodyHTML string) string {
	if bodyText != "" {
		return bodyText
	}
	return StripHTML(bodyHTML)
}

// StripHTML derives plain text from HTML: style and script blocks are
// removed entirely (including content), remaining tags are replaced with
// spaces, whitespace runs collapse to single spaces, and the result is
// trimmed. Deterministic and side-effect-free.
func StripHTML(html string) string {
	s := styleBlockRe.ReplaceAllString(html, "")
	s = scriptBlockRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, " ")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
