package extract

import (
	"regexp"
	"strings"
)

var (
	lineSplitRe  = regexp.MustCompile(`\r?\n`)
	innerSpaceRe = regexp.MustCompile(`\s+`)
)

// NormalizeLines splits raw document text into cleaned lines: inner
// whitespace collapsed to single spaces, leading/trailing space trimmed,
// empty lines dropped.
func NormalizeLines(text string) []string {
	raw := lineSplitRe.Split(text, -1)
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		cleaned := strings.TrimSpace(innerSpaceRe.ReplaceAllString(line, " "))
		if cleaned == "" {
			continue
		}
		lines = append(lines, cleaned)
	}
	return lines
}
