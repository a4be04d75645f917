package extract

import (
	"regexp"

	"github.com/finsheet-io/finsheet/internal/core/domain"
)

// DefaultCandidateLineLimit bounds LLM prompt size.
const DefaultCandidateLineLimit = 220

var (
	baseKeywordRe     = regexp.MustCompile(`(?i)\b(revenue|sales|income|expense|profit|loss|operating|ebit|eps|earnings|cost)\b`)
	extendedKeywordRe = regexp.MustCompile(`(?i)\b(revenue|sales|income|expense|profit|loss|operating|ebitda|ebit|eps|earnings|cost|tax|depreciation|finance)\b`)
)

// SelectCandidateLines filters normalized lines down to the financially
// relevant ones: a numeric token plus at least one financial keyword.
// The result bounds the LLM prompt and is never used as output rows.
func SelectCandidateLines(profile domain.Profile, text string, maxLines int) []string {
	if maxLines <= 0 {
		maxLines = DefaultCandidateLineLimit
	}
	keywordRe := baseKeywordRe
	if profile == domain.ProfileExtended {
		keywordRe = extendedKeywordRe
	}

	var candidates []string
	for _, line := range NormalizeLines(text) {
		if !numericTokenRe.MatchString(line) || !keywordRe.MatchString(line) {
			continue
		}
		candidates = append(candidates, line)
		if len(candidates) == maxLines {
			break
		}
	}
	return candidates
}
