package textsplit

import "strings"

type Section struct {
	Title   string `json:"title"`
	Level   int    `json:"level"`
	Content string `json:"content"`
}

// SplitSections segments text on headings. Only headings at or above
// maxLevel open a new section; deeper ones stay in the body of their parent.
// maxLevel <= 0 means every heading splits.
//
// The text before the first heading forms an untitled level-1 section.
// Sections with blank content are dropped.
func SplitSections(text string, maxLevel int) []Section {
	lines := splitLines(text)
	sections := make([]Section, 0, 4)

	title, level := "", 1
	var body []string
	emit := func() {
		if len(body) == 0 {
			return
		}
		content := strings.Join(body, "\n")
		if strings.TrimSpace(content) == "" {
			return
		}
		sections = append(sections, Section{Title: title, Level: level, Content: content})
	}

	for _, line := range lines {
		if h, ok := DetectHeading(line); ok && (maxLevel <= 0 || h.Level <= maxLevel) {
			emit()
			title, level, body = h.Title, h.Level, nil
			continue
		}
		body = append(body, line)
	}
	emit()
	return sections
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}
