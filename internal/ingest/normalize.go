package ingest

import (
	"regexp"
	"strings"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Normalize drops carriage returns, collapses runs of three or more
// newlines, trims, and truncates to maxChars runes followed by marker.
// maxChars <= 0 disables truncation.
func Normalize(text string, maxChars int, marker string) string {
	text = strings.ReplaceAll(text, "\r", "")
	text = blankRuns.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	if maxChars <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxChars {
		return text
	}
	return string(runes[:maxChars]) + marker
}

// HeadLines keeps the first n lines of text. n <= 0 keeps everything.
func HeadLines(text string, n int) string {
	if n <= 0 {
		return text
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) <= n {
		return text
	}
	return strings.Join(lines[:n], "\n")
}
