// Package htmlsanitize strips markup from admin-entered display strings
// (organization and group names) before they are returned to clients.
package htmlsanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// bluemonday policies are safe for concurrent use once built.
var strict = bluemonday.StrictPolicy()

// PlainText removes every tag from s and returns readable text.
// Entities produced by the sanitizer are unescaped because callers encode
// the result as JSON, not HTML.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(s)))
}
