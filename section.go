package webquery

import (
	"strconv"
	"strings"
	"unicode"
)

// Section represents a heading in a markdown document.
type Section struct {
	Level  int    `json:"level"`
	Title  string `json:"title"`
	Anchor string `json:"anchor"`
}

// ExtractSections scans markdown and returns all ATX headings (H1-H6) in
// document order. Headings inside fenced code blocks are ignored. Anchors
// are URL-safe; duplicates get numeric suffixes.
func ExtractSections(markdown string) []Section {
	if markdown == "" {
		return nil
	}

	var sections []Section
	anchorCounts := make(map[string]int)
	inFence := false

	for _, line := range strings.Split(markdown, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}

		level, title := parseHeading(trimmed)
		if level == 0 {
			continue
		}

		anchor := slugify(title)
		if n, ok := anchorCounts[anchor]; ok {
			anchorCounts[anchor] = n + 1
			anchor = anchor + "-" + strconv.Itoa(n)
		} else {
			anchorCounts[anchor] = 1
		}

		sections = append(sections, Section{
			Level:  level,
			Title:  title,
			Anchor: anchor,
		})
	}

	return sections
}

// parseHeading returns the level and title of an ATX heading line, or
// level 0 when the line is not a heading.
func parseHeading(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(line) || line[level] != ' ' {
		return 0, ""
	}
	title := strings.TrimSpace(line[level+1:])
	if title == "" {
		return 0, ""
	}
	return level, title
}

// slugify creates a URL-safe anchor from a title, lowercase with hyphens
// for word breaks.
func slugify(title string) string {
	var sb strings.Builder
	pendingHyphen := false

	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingHyphen && sb.Len() > 0 {
				sb.WriteRune('-')
			}
			sb.WriteRune(r)
			pendingHyphen = false
		case unicode.IsSpace(r) || r == '-':
			pendingHyphen = true
		}
	}

	return sb.String()
}
