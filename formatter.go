package webquery

import (
	"strconv"
	"strings"
)

// FormatSearchResults formats search matches for display or LLM context.
// Each match is headed by its section path (or the URL when the chunk has
// none) and its similarity score. Matches are separated by blank lines.
func FormatSearchResults(url string, results []SearchResult) string {
	if len(results) == 0 {
		return ""
	}

	parts := make([]string, 0, len(results))
	for _, res := range results {
		header := strings.Join(res.SectionPath, " > ")
		if header == "" {
			header = url
		}
		score := strconv.FormatFloat(res.Score, 'f', 3, 64)
		parts = append(parts, "## "+header+" (score "+score+")\n"+res.Text)
	}

	return strings.Join(parts, "\n\n")
}

// FormatOutline renders a page outline as an indented markdown list.
func FormatOutline(sections []Section) string {
	if len(sections) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, s := range sections {
		sb.WriteString(strings.Repeat("  ", s.Level-1))
		sb.WriteString("- ")
		sb.WriteString(s.Title)
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
