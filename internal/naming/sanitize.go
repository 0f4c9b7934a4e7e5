package naming

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxSegmentBytes caps a single generated path segment. Most filesystems
// allow 255 bytes; the slack leaves room for "_N" collision suffixes and
// extensions.
const MaxSegmentBytes = 200

const forbiddenChars = `<>:"/\|?*`

// Sanitize makes s safe to use as one path segment on every common
// filesystem: forbidden characters and control runes are removed, whitespace
// is collapsed, trailing dots and spaces are trimmed and the result is capped
// at MaxSegmentBytes on a rune boundary. An empty result becomes "_".
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == utf8.RuneError || unicode.IsControl(r) || strings.ContainsRune(forbiddenChars, r) {
			continue
		}
		b.WriteRune(r)
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	out = trimSegment(out)

	if len(out) > MaxSegmentBytes {
		out = truncateBytes(out, MaxSegmentBytes)
		out = trimSegment(out)
	}

	if out == "" {
		return "_"
	}
	return out
}

func trimSegment(s string) string {
	return strings.TrimRightFunc(strings.TrimSpace(s), func(r rune) bool {
		return r == '.' || unicode.IsSpace(r)
	})
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
