package textsplit

import (
	"regexp"
	"strings"
)

const maxHeadingLevel = 6

var (
	markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(.+)`)
	numericHeading  = regexp.MustCompile(`^(\d+(?:\.\d+){0,5})\s+(.+)`)
)

type Heading struct {
	Level int
	Title string
}

// DetectHeading reports whether line is a markdown heading ("## Title") or a
// numeric outline heading ("1.2.3 Title").
func DetectHeading(line string) (Heading, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Heading{}, false
	}
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return Heading{Level: len(m[1]), Title: strings.TrimSpace(m[2])}, true
	}
	if m := numericHeading.FindStringSubmatch(line); m != nil {
		level := strings.Count(m[1], ".") + 1
		if level > maxHeadingLevel {
			level = maxHeadingLevel
		}
		return Heading{Level: level, Title: strings.TrimSpace(m[2])}, true
	}
	return Heading{}, false
}
