package ai

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var (
	fencePattern    = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
	titlePattern    = regexp.MustCompile(`"title"\s*:\s*"((?:[^"\\]|\\.)+)"`)
	yearPattern     = regexp.MustCompile(`"year"\s*:\s*"?(\d{4})`)
	typePattern     = regexp.MustCompile(`"type"\s*:\s*"(movie|tv|anime)"`)
	seasonPattern   = regexp.MustCompile(`"season"\s*:\s*"?(\d{1,3})`)
	episodesPattern = regexp.MustCompile(`"episodes"\s*:\s*\[\s*(\d{1,4})`)
	confPattern     = regexp.MustCompile(`"confidence"\s*:\s*([\d.]+)`)
)

// partialConfidenceCap bounds the confidence of a result recovered by field
// regexes, which never beats a cleanly decoded answer.
const partialConfidenceCap = 0.8

// Salvage extracts a Result from untrusted model output. It strips code
// fences, tries a JSON decode, then decodes the first balanced {...} span,
// and finally falls back to per-field regexes.
func Salvage(response string) (*Result, bool) {
	text := stripFences(response)

	if r, ok := decode(text); ok {
		return r, true
	}
	if span, ok := firstObject(text); ok {
		if r, ok := decode(span); ok {
			return r, true
		}
	}
	return ExtractPartialResult(text)
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

func decode(s string) (*Result, bool) {
	var r Result
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return nil, false
	}
	return &r, true
}

// firstObject returns the first balanced {...} span, ignoring braces inside
// string literals.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ExtractPartialResult recovers the known fields from truncated or otherwise
// broken JSON. A title is required.
func ExtractPartialResult(response string) (*Result, bool) {
	var result Result
	if err := json.Unmarshal([]byte(response), &result); err == nil {
		return &result, true
	}

	titleMatch := titlePattern.FindStringSubmatch(response)
	if titleMatch == nil {
		return nil, false
	}
	title, err := strconv.Unquote(`"` + titleMatch[1] + `"`)
	if err != nil {
		title = titleMatch[1]
	}

	result = Result{
		Title:      title,
		Confidence: 0.7,
	}

	if m := yearPattern.FindStringSubmatch(response); m != nil {
		if year, err := strconv.Atoi(m[1]); err == nil {
			result.Year.Value = &year
		}
	}
	if m := typePattern.FindStringSubmatch(response); m != nil {
		result.Type = m[1]
	}
	if m := seasonPattern.FindStringSubmatch(response); m != nil {
		if season, err := strconv.Atoi(m[1]); err == nil {
			result.Season.Value = &season
		}
	}
	if m := episodesPattern.FindStringSubmatch(response); m != nil {
		if ep, err := strconv.Atoi(m[1]); err == nil {
			result.Episodes = []int{ep}
		}
	}
	if m := confPattern.FindStringSubmatch(response); m != nil {
		if conf, err := strconv.ParseFloat(m[1], 64); err == nil {
			result.Confidence = min(conf, partialConfidenceCap)
		}
	}

	return &result, true
}
