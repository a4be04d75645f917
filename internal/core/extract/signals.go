package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Heuristic signal detection over raw statement text. Every detector is
// best-effort and never fails: missing signals degrade to UNKNOWN/unknown
// or empty lists.

const (
	minReportingYear = 1990

	CurrencyUnknown = "UNKNOWN"
	UnitsUnknown    = "unknown"
)

var (
	yearTokenRe = regexp.MustCompile(`\b(19|20)\d{2}\b`)

	// Year mentions inside a fiscal-year context window carry far more
	// signal than the global token scan, so they are ranked first.
	yearContextRe = regexp.MustCompile(`(?i)(?:fiscal\s+year|years?\s+ended|for\s+the\s+years?\s+ended)[^\n]{0,150}`)

	periodTokenRe = regexp.MustCompile(`(?i)\b(?:Q([1-4])\s*)?FY\s*'?(\d{2,4})\b`)

	contextSnippetRe = regexp.MustCompile(`(?i)(currency|amounts?\s+in|stated\s+in|presented\s+in|in\s+millions?|in\s+billions?|in\s+thousands?)`)

	currencyWordRes = []struct {
		code string
		re   *regexp.Regexp
	}{
		{"USD", regexp.MustCompile(`(?i)\b(USD|US dollars?|U\.S\. dollars?)\b`)},
		{"INR", regexp.MustCompile(`(?i)\b(INR|Indian rupees?|Rupees?)\b|(?i)(?:^|[^\w])Rs\.?(?:[^\w]|$)`)},
		{"EUR", regexp.MustCompile(`(?i)\b(EUR|Euros?)\b`)},
		{"GBP", regexp.MustCompile(`(?i)\b(GBP|Pounds? sterling)\b`)},
	}

	currencySymbols = []struct {
		code   string
		symbol string
	}{
		{"USD", "$"},
		{"EUR", "€"},
		{"GBP", "£"},
	}

	unitRes = []struct {
		units string
		re    *regexp.Regexp
	}{
		{"billions", regexp.MustCompile(`(?i)\b(amounts?|figures?|statements?|values?)\s+(are\s+)?(presented|stated|reported)?\s*in\s+billions?\b|(?i)\bin\s+billions?\b`)},
		{"millions", regexp.MustCompile(`(?i)\b(amounts?|figures?|statements?|values?)\s+(are\s+)?(presented|stated|reported)?\s*in\s+millions?\b|(?i)\bin\s+millions?\b`)},
		{"thousands", regexp.MustCompile(`(?i)\b(amounts?|figures?|statements?|values?)\s+(are\s+)?(presented|stated|reported)?\s*in\s+thousands?\b|(?i)\bin\s+thousands?\b`)},
	}
)

func maxReportingYear() int {
	return time.Now().UTC().Year() + 1
}

func collectYearCounts(source string) map[int]int {
	counts := make(map[int]int)
	upper := maxReportingYear()
	for _, token := range yearTokenRe.FindAllString(source, -1) {
		year, err := strconv.Atoi(token)
		if err != nil || year < minReportingYear || year > upper {
			continue
		}
		counts[year]++
	}
	return counts
}

type yearCount struct {
	year  int
	count int
}

// rankYears orders by frequency descending, breaking ties on the larger
// (more recent) year.
func rankYears(counts map[int]int) []yearCount {
	ranked := make([]yearCount, 0, len(counts))
	for year, count := range counts {
		ranked = append(ranked, yearCount{year: year, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].year > ranked[j].year
	})
	return ranked
}

func yearsToStrings(ranked []yearCount, limit int) []string {
	years := make([]string, 0, len(ranked))
	for _, item := range ranked {
		years = append(years, strconv.Itoa(item.year))
	}
	if len(years) > limit {
		years = years[:limit]
	}
	return years
}

// DetectYears returns up to four reporting years ranked by relevance.
// Precedence: years inside fiscal-year context windows, then globally
// repeated years (count >= 2), then the raw ranked list. The tier order is
// observable on ambiguous documents and must not be reordered.
func DetectYears(text string) []string {
	if contextMatches := yearContextRe.FindAllString(text, -1); len(contextMatches) > 0 {
		contextCounts := collectYearCounts(strings.Join(contextMatches, "\n"))
		if len(contextCounts) > 0 {
			return yearsToStrings(rankYears(contextCounts), 4)
		}
	}

	ranked := rankYears(collectYearCounts(text))

	var stable []yearCount
	for _, item := range ranked {
		if item.count >= 2 {
			stable = append(stable, item)
		}
	}
	if len(stable) > 0 {
		return yearsToStrings(stable, 4)
	}
	return yearsToStrings(ranked, 4)
}

// DetectPeriods finds period labels such as "FY25" or "Q1 FY26" and
// canonicalizes them ("FY2025", "Q1 FY2026"), preserving first-seen order
// and capping at eight. Documents without period tokens fall back to the
// detected year list.
func DetectPeriods(text string) []string {
	seen := make(map[string]bool)
	var periods []string
	for _, match := range periodTokenRe.FindAllStringSubmatch(text, -1) {
		quarter, year := match[1], match[2]
		if len(year) == 2 {
			year = "20" + year
		}
		label := "FY" + year
		if quarter != "" {
			label = fmt.Sprintf("Q%s %s", quarter, label)
		}
		if seen[label] {
			continue
		}
		seen[label] = true
		periods = append(periods, label)
		if len(periods) == 8 {
			break
		}
	}
	if len(periods) > 0 {
		return periods
	}
	return DetectYears(text)
}

// contextSource narrows detection to lines that talk about presentation
// ("currency", "amounts in", unit words). Documents without such lines are
// scanned whole.
func contextSource(text string) string {
	var snippets []string
	for _, line := range NormalizeLines(text) {
		if contextSnippetRe.MatchString(line) {
			snippets = append(snippets, line)
		}
	}
	if len(snippets) > 0 {
		return strings.Join(snippets, "\n")
	}
	return text
}

// DetectCurrency resolves the reporting currency from the closed set
// {USD, INR, EUR, GBP, UNKNOWN}. Explicit currency words win over bare
// symbols; the first match in priority order is returned.
func DetectCurrency(text string) string {
	source := contextSource(text)
	for _, candidate := range currencyWordRes {
		if candidate.re.MatchString(source) {
			return candidate.code
		}
	}
	for _, candidate := range currencySymbols {
		if strings.Contains(source, candidate.symbol) {
			return candidate.code
		}
	}
	return CurrencyUnknown
}

// DetectUnits resolves the unit of measure from the closed set
// {billions, millions, thousands, unknown}, largest unit first.
func DetectUnits(text string) string {
	source := contextSource(text)
	for _, candidate := range unitRes {
		if candidate.re.MatchString(source) {
			return candidate.units
		}
	}
	return UnitsUnknown
}
