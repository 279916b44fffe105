package webquery

// Converter converts HTML to Markdown.
type Converter interface {
	// Convert transforms clean HTML (e.g., an extractor's content node)
	// into Markdown, preserving headings, links, lists, and code blocks.
	Convert(html string) (string, error)
}
