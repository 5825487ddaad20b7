package keywords

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/aparm539/nwHacks2026/internal/database"
)

var strict = bluemonday.StrictPolicy()

// StripHTML removes markup from item text and decodes entities.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	// Item bodies use bare <p> between paragraphs; keep a word break where each tag was.
	s = strings.ReplaceAll(s, "<", " <")
	s = html.UnescapeString(strict.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

// PrepareText joins the title and body of each live item into one document for
// scoring, truncated to at most maxChars runes (0 = no limit).
func PrepareText(items []database.Item, maxChars int) string {
	var sb strings.Builder
	for _, it := range items {
		if it.Deleted || it.Dead {
			continue
		}
		var parts []string
		if it.Title != nil {
			if t := StripHTML(*it.Title); t != "" {
				parts = append(parts, t)
			}
		}
		if it.Text != nil {
			if t := StripHTML(*it.Text); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) == 0 {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(strings.Join(parts, ". "))
	}

	text := sb.String()
	if maxChars > 0 {
		if r := []rune(text); len(r) > maxChars {
			text = string(r[:maxChars])
		}
	}
	return text
}
