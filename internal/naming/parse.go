package naming

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Pattern family names, recorded on ParsedInfo.Pattern.
const (
	PatternSeasonEpisode = "season_episode"
	PatternCrossFormat   = "cross_format"
	PatternCJK           = "cjk"
	PatternEpisodeOnly   = "episode"
	PatternAbsolute      = "absolute"
	PatternBracket       = "bracket_group"
	PatternTriple        = "title_year_resolution"
	PatternParenYear     = "title_paren_year"
	PatternYearScan      = "year_scan"
	PatternRaw           = "raw"
)

const cjkNumber = `[0-9零〇一二两三四五六七八九十百]+`

var (
	// S01E02, S01E01-E03, S01E01E02, s1.e2
	seasonEpisodeRegex = regexp.MustCompile(`(?i)(^|[^a-z0-9])s(\d{1,2})[ ._]?e(\d{1,4})(?:[ ._]?-?[ ._]?e(\d{1,4}))?(?:[^0-9]|$)`)
	// 1x02, but never 1920x1080
	crossFormatRegex = regexp.MustCompile(`(?i)(^|[^a-z0-9])(\d{1,2})x(\d{2,3})(?:[^a-z0-9]|$)`)

	cjkSeasonRegex  = regexp.MustCompile(`第\s*(` + cjkNumber + `)\s*季`)
	cjkEpisodeRegex = regexp.MustCompile(`第\s*(` + cjkNumber + `)\s*[集话話]`)

	// EP01, Episode 5, E07
	episodeOnlyRegex = regexp.MustCompile(`(?i)(^|[^a-z0-9])(?:episode|ep|e)[ ._]?(\d{1,4})(?:[^a-z0-9]|$)`)

	// "[Group] Title - 05", "Title - 01-12"
	dashEpisodeRegex = regexp.MustCompile(`(?i)(^|\s)-\s(\d{2,3})(?:\s?-\s?(\d{2,3}))?(?:v\d+)?(?:[\s\[(]|$)`)
	// "[Group][Title][05]"
	bracketEpisodeRegex = regexp.MustCompile(`\[(\d{2,3})(?:v\d+)?\]`)
	// "[Group] Title 05 [1080p]"
	trailingNumberRegex = regexp.MustCompile(`^\s*\[[^\]]+\]\s*(.+?)\s(\d{2,3})(?:v\d+)?\s*(?:[\[(]|$)`)

	doubleBracketRegex = regexp.MustCompile(`^\s*\[([^\]]+)\]\s*\[([^\]]+)\]`)
	groupTitleRegex    = regexp.MustCompile(`^\s*\[[^\]]+\]\s*([^\[]+)`)

	tripleRegex    = regexp.MustCompile(`(?i)^(.+?)[ ._\-(\[]+((?:19|20)\d{2})[ ._\-)\]]+(\d{3,4}[pi]|4k|uhd)`)
	parenYearRegex = regexp.MustCompile(`^(.+?)\s*\(((?:19|20)\d{2})\)`)
	yearScanRegex  = regexp.MustCompile(`(?:^|[^0-9])((?:19|20)\d{2})(?:[^0-9]|$)`)
	numericRegex   = regexp.MustCompile(`^\d+$`)
)

// Base confidence per pattern family before title heuristics are applied.
var familyBase = map[string]float64{
	PatternSeasonEpisode: 0.9,
	PatternCrossFormat:   0.85,
	PatternCJK:           0.85,
	PatternEpisodeOnly:   0.75,
	PatternAbsolute:      0.75,
	PatternBracket:       0.7,
	PatternTriple:        0.8,
	PatternParenYear:     0.85,
	PatternYearScan:      0.5,
	PatternRaw:           0.3,
}

// episodeMarker is the result of the season/episode family.
type episodeMarker struct {
	season     *int
	episode    *int
	episodeEnd *int
	prefix     string
	pattern    string
}

// Parse derives structured identity from a filename. It is pure and
// deterministic, so results can be cached by filename.
//
// Pattern families are tried most specific first: season/episode markers,
// bracketed release group, title+year+resolution, title+(year). The first
// family that yields a title different from the raw stem wins; otherwise a
// bare year scan is used and finally the cleaned stem itself.
func Parse(filename string) ParsedInfo {
	stem := stripMediaExtension(normalizeInput(filepath.Base(strings.TrimSpace(filename))))

	info := ParsedInfo{
		MediaType:    MediaUnknown,
		Source:       SourceLocal,
		Resolution:   extractResolution(stem),
		ReleaseGroup: leadingGroup(stem),
	}

	marker := findEpisode(stem)
	if marker != nil {
		info.Season = marker.season
		info.Episode = marker.episode
		info.EpisodeEnd = marker.episodeEnd
		info.Pattern = marker.pattern

		if title, year := titleAndYear(marker.prefix); accepted(title, stem) {
			info.Title = title
			info.Year = year
		}
	}

	if info.Title == "" {
		title, year, pattern := findTitle(stem)
		info.Title = title
		if info.Year == nil {
			info.Year = year
		}
		if info.Pattern == "" {
			info.Pattern = pattern
		}
	}

	if info.Title == "" {
		info.Title = strings.TrimSpace(stem)
		info.Pattern = PatternRaw
	}

	info.MediaType = detectMediaType(info)
	info.Confidence = scoreParse(info.Title, stem, familyBase[info.Pattern], info.Year != nil)
	return info
}

// accepted reports whether a candidate title may win: non-empty and different
// from the raw stem.
func accepted(title, stem string) bool {
	return title != "" && title != stem && !numericOnlyNoise(title)
}

func numericOnlyNoise(title string) bool {
	return numericRegex.MatchString(title) && len(title) < 3
}

func findEpisode(stem string) *episodeMarker {
	if m := seasonEpisodeRegex.FindStringSubmatchIndex(stem); m != nil {
		return &episodeMarker{
			season:     atoiPtr(stem, m[4], m[5]),
			episode:    atoiPtr(stem, m[6], m[7]),
			episodeEnd: atoiPtr(stem, m[8], m[9]),
			prefix:     stem[:m[3]],
			pattern:    PatternSeasonEpisode,
		}
	}

	if m := crossFormatRegex.FindStringSubmatchIndex(stem); m != nil {
		return &episodeMarker{
			season:  atoiPtr(stem, m[4], m[5]),
			episode: atoiPtr(stem, m[6], m[7]),
			prefix:  stem[:m[3]],
			pattern: PatternCrossFormat,
		}
	}

	if marker := findCJKEpisode(stem); marker != nil {
		return marker
	}

	spaced := strings.ReplaceAll(stem, "_", " ")

	if m := episodeOnlyRegex.FindStringSubmatchIndex(spaced); m != nil {
		return &episodeMarker{
			episode: atoiPtr(spaced, m[4], m[5]),
			prefix:  spaced[:m[3]],
			pattern: PatternEpisodeOnly,
		}
	}

	if m := dashEpisodeRegex.FindStringSubmatchIndex(spaced); m != nil {
		return &episodeMarker{
			episode:    atoiPtr(spaced, m[4], m[5]),
			episodeEnd: atoiPtr(spaced, m[6], m[7]),
			prefix:     spaced[:m[3]],
			pattern:    PatternAbsolute,
		}
	}

	if leadingGroup(spaced) == "" {
		return nil
	}

	for _, m := range bracketEpisodeRegex.FindAllStringSubmatchIndex(spaced, -1) {
		n, _ := strconv.Atoi(spaced[m[2]:m[3]])
		if n == 480 || n == 576 || n == 720 {
			continue
		}
		return &episodeMarker{
			episode: &n,
			prefix:  spaced[:m[0]],
			pattern: PatternAbsolute,
		}
	}

	if m := trailingNumberRegex.FindStringSubmatchIndex(spaced); m != nil {
		return &episodeMarker{
			episode: atoiPtr(spaced, m[4], m[5]),
			prefix:  spaced[:m[3]],
			pattern: PatternAbsolute,
		}
	}

	return nil
}

func findCJKEpisode(stem string) *episodeMarker {
	em := cjkEpisodeRegex.FindStringSubmatchIndex(stem)
	if em == nil {
		return nil
	}
	episode, ok := parseChineseNumber(stem[em[2]:em[3]])
	if !ok {
		return nil
	}

	marker := &episodeMarker{
		episode: &episode,
		prefix:  stem[:em[0]],
		pattern: PatternCJK,
	}

	season := 1
	if sm := cjkSeasonRegex.FindStringSubmatchIndex(stem); sm != nil {
		if n, ok := parseChineseNumber(stem[sm[2]:sm[3]]); ok {
			season = n
		}
		if sm[0] < em[0] {
			marker.prefix = stem[:sm[0]]
		}
	}
	marker.season = &season
	return marker
}

// findTitle runs families (b) through (d) and then the year scan.
func findTitle(stem string) (string, *int, string) {
	if leadingGroup(stem) != "" {
		if m := doubleBracketRegex.FindStringSubmatch(stem); m != nil {
			if title, year := titleAndYear(m[2]); accepted(title, stem) && !isReleaseToken(m[2]) {
				return title, year, PatternBracket
			}
		}
		if m := groupTitleRegex.FindStringSubmatch(stem); m != nil {
			if title, year := titleAndYear(m[1]); accepted(title, stem) {
				return title, year, PatternBracket
			}
		}
	}

	if m := tripleRegex.FindStringSubmatch(stem); m != nil {
		if title := cleanPrefix(m[1]); accepted(title, stem) {
			return title, atoi(m[2]), PatternTriple
		}
	}

	if m := parenYearRegex.FindStringSubmatch(stem); m != nil {
		if title := cleanPrefix(m[1]); accepted(title, stem) {
			return title, atoi(m[2]), PatternParenYear
		}
	}

	if m := yearScanRegex.FindStringSubmatchIndex(stem); m != nil {
		year := atoi(stem[m[2]:m[3]])
		if title := CleanTitle(stem[:m[2]]); title != "" {
			return title, year, PatternYearScan
		}
		if title := CleanTitle(stem[m[3]:]); title != "" {
			return title, year, PatternYearScan
		}
	}

	if title := CleanTitle(stem); accepted(title, stem) {
		return title, nil, PatternYearScan
	}
	return "", nil, ""
}

func isReleaseToken(s string) bool {
	return cleanTokens(s) == "" || numericRegex.MatchString(strings.TrimSpace(s))
}

func detectMediaType(info ParsedInfo) MediaType {
	switch {
	case info.Season != nil:
		return MediaTV
	case info.Episode != nil && info.ReleaseGroup != "":
		return MediaAnime
	case info.Episode != nil:
		return MediaTV
	case info.Year != nil:
		return MediaMovie
	default:
		return MediaUnknown
	}
}

func atoiPtr(s string, start, end int) *int {
	if start < 0 || end < 0 {
		return nil
	}
	return atoi(s[start:end])
}

func atoi(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
