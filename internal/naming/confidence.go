package naming

import (
	"regexp"
	"strings"
)

var (
	allCapsPattern       = regexp.MustCompile(`^[A-Z0-9]+$`)
	releasePrefixPattern = regexp.MustCompile(`(?i)^(x264|h264|h265|hevc|aac|dts|bluray|webrip|hdtv|repack|proper|internal)`)
)

// scoreParse adjusts a pattern family's base confidence with title heuristics.
// Short, all-caps or garbage-prefixed titles lose confidence; a detected year
// adds a little.
func scoreParse(title, stem string, base float64, hasYear bool) float64 {
	confidence := base

	if strings.TrimSpace(title) == strings.TrimSpace(stem) {
		confidence -= 0.1
	}

	if releasePrefixPattern.MatchString(title) {
		confidence -= 0.4
	}

	if len(title) < 3 {
		confidence -= 0.3
	}

	if len(title) > 4 && allCapsPattern.MatchString(title) {
		confidence -= 0.2
	}

	if hasGarbagePrefix(title) {
		confidence -= 0.4
	}

	if hasYear {
		confidence += 0.05
	}

	return clamp01(confidence)
}

func hasGarbagePrefix(title string) bool {
	lower := strings.ToLower(title)
	prefixes := []string{"www.", "http", "[", "1080", "720", "2160", "x264", "h264"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// IsParseFailure reports whether info is the raw-stem fallback, i.e. no
// pattern family could extract a title.
func IsParseFailure(info ParsedInfo) bool {
	return info.Pattern == PatternRaw
}
