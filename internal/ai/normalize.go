package ai

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Nomadcxx/jellysort/internal/naming"
)

var (
	separatorPattern = regexp.MustCompile(`[._-]+`)
	// Valid media extensions that should be stripped
	mediaExtensions = map[string]bool{
		".mkv": true, ".mp4": true, ".avi": true, ".mov": true,
		".wmv": true, ".flv": true, ".webm": true, ".m4v": true,
		".mpg": true, ".mpeg": true, ".ts": true, ".m2ts": true,
		".rmvb": true,
	}
)

// NormalizeForCache normalizes a filename for cache key lookup.
// This ensures different separator variants hit the same cache entry.
func NormalizeForCache(filename string) string {
	base := filepath.Base(filename)

	// Only strip known media extensions so ".S01E01" survives.
	ext := strings.ToLower(filepath.Ext(base))
	if mediaExtensions[ext] {
		base = strings.TrimSuffix(base, filepath.Ext(base))
	}

	base = strings.ToLower(base)
	base = separatorPattern.ReplaceAllString(base, " ")
	return strings.Join(strings.Fields(base), " ")
}

// toParsed validates a provider result and converts it. It returns false when
// the result carries no usable title.
func (r *Result) toParsed() (*naming.ParsedInfo, bool) {
	title := naming.StripExtensionSuffix(r.Title)
	title = strings.Join(strings.Fields(title), " ")
	if title == "" || strings.EqualFold(title, "unknown") {
		return nil, false
	}

	info := &naming.ParsedInfo{
		Title:         title,
		OriginalTitle: strings.TrimSpace(naming.StripExtensionSuffix(r.OriginalTitle)),
		Year:          validYear(r.Year.Value),
		Season:        nonNegative(r.Season.Value),
		MediaType:     naming.ParseMediaType(strings.ToLower(strings.TrimSpace(r.Type))),
		Confidence:    clampConfidence(r.Confidence),
		Source:        naming.SourceAI,
		Pattern:       "ai",
	}

	switch {
	case len(r.Episodes) > 0:
		info.Episode = naming.IntPtr(r.Episodes[0])
		if len(r.Episodes) > 1 && r.Episodes[len(r.Episodes)-1] > r.Episodes[0] {
			info.EpisodeEnd = naming.IntPtr(r.Episodes[len(r.Episodes)-1])
		}
	case r.AbsoluteEpisode.Value != nil:
		info.Episode = nonNegative(r.AbsoluteEpisode.Value)
	}

	if info.MediaType == naming.MediaUnknown && info.Episode != nil {
		info.MediaType = naming.MediaTV
	}
	return info, true
}

func validYear(y *int) *int {
	if y == nil || *y < 1888 || *y > 2100 {
		return nil
	}
	return y
}

func nonNegative(v *int) *int {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

func clampConfidence(c float64) float64 {
	switch {
	case c <= 0:
		// Models that omit confidence still produced a validated title.
		return 0.5
	case c > 1:
		return 1
	default:
		return c
	}
}
