package article

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	citationRe = regexp.MustCompile(`\[(\d+)\]`)
	issueRe    = regexp.MustCompile(`(?i)error|incorrect|inaccurate|outdated|missing`)
)

func CountWords(text string) int {
	return len(strings.Fields(text))
}

// ExtractCitations returns the distinct [n] citation numbers in ascending order.
func ExtractCitations(text string) []int {
	var out []int
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// ExtractQuestions returns every trimmed line containing a question mark.
func ExtractQuestions(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "?") {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

// FactCheckIssues returns report lines that flag a problem.
func FactCheckIssues(report string) []string {
	var out []string
	for _, line := range strings.Split(report, "\n") {
		if issueRe.MatchString(line) {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

// Improvements describes how a rewrite changed the length of a text.
func Improvements(original, rewritten string) []string {
	var out []string
	if len(original) != len(rewritten) {
		out = append(out, fmt.Sprintf("Length changed: %d → %d characters", len(original), len(rewritten)))
	}
	if a, b := CountWords(original), CountWords(rewritten); a != b {
		out = append(out, fmt.Sprintf("Word count: %d → %d", a, b))
	}
	return out
}

// Combine joins section bodies in the given order.
func Combine(sections []string) string {
	return strings.Join(sections, "\n\n")
}
