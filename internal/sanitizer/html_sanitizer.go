// Package sanitizer cleans admin-supplied HTML before it is stored.
// Content descriptions and lesson notes are authored in a rich-text
// editor and rendered in member browsers, so script and event-handler
// vectors must never survive the round trip.
package sanitizer

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// HTMLSanitizer cleans rich-text fields
type HTMLSanitizer interface {
	// SanitizeRichText cleans a description or lesson-notes fragment
	SanitizeRichText(html string) string
	// SanitizePlainText strips all markup, for titles and link labels
	SanitizePlainText(s string) string
}

// DefaultHTMLSanitizer implements HTMLSanitizer using bluemonday
type DefaultHTMLSanitizer struct {
	richText  *bluemonday.Policy
	plainText *bluemonday.Policy
}

// NewHTMLSanitizer creates a sanitizer with policies tuned for
// catalog content
func NewHTMLSanitizer() *DefaultHTMLSanitizer {
	rich := bluemonday.UGCPolicy()

	rich.AllowElements(
		"p", "br", "hr", "div", "span",
		"h2", "h3", "h4",
		"strong", "b", "em", "i", "u",
		"blockquote", "pre", "code",
		"ul", "ol", "li",
		"a", "img",
	)
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowAttrs("src", "alt", "width", "height").OnElements("img")
	rich.RequireNoFollowOnLinks(true)
	rich.AllowURLSchemes("http", "https", "mailto")

	return &DefaultHTMLSanitizer{
		richText:  rich,
		plainText: bluemonday.StrictPolicy(),
	}
}

// SanitizeRichText cleans a description or lesson-notes fragment
func (s *DefaultHTMLSanitizer) SanitizeRichText(html string) string {
	if html == "" {
		return ""
	}
	return strings.TrimSpace(s.richText.Sanitize(html))
}

// SanitizePlainText strips all markup, leaving text content only
func (s *DefaultHTMLSanitizer) SanitizePlainText(str string) string {
	if str == "" {
		return ""
	}
	return strings.TrimSpace(s.plainText.Sanitize(str))
}
