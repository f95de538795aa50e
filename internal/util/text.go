package util

import (
	"regexp"
	"strings"
)

var (
	reSpaces    = regexp.MustCompile(`\s+`)
	reWideSplit = regexp.MustCompile(`\s{2,}|\t`)
)

// NormalizeSpaces collapses whitespace runs and trims.
func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// LowerTrim is the canonical form used for keyword matching.
func LowerTrim(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// ContainsAny reports whether s contains any of the probes.
func ContainsAny(s string, probes ...string) bool {
	for _, p := range probes {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// SplitWide splits a text line into columns on tabs or runs of two or more spaces.
func SplitWide(line string) []string {
	parts := reWideSplit.Split(strings.TrimSpace(line), -1)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SanitizeFilename makes an identifier safe for use as a file name.
func SanitizeFilename(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_", "\"", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
