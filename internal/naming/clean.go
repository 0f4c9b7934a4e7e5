package naming

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Pre-compiled release token patterns, removed from every extracted title.
var releaseTokenPatterns []*regexp.Regexp

var (
	bracketGroupRegex    = regexp.MustCompile(`\[[^\]]*\]|【[^】]*】`)
	emptyParensRegex     = regexp.MustCompile(`\(\s*\)`)
	hyphenRemnantRegex   = regexp.MustCompile(`\s-[A-Za-z0-9]+$`)
	trailingYearRegex    = regexp.MustCompile(`[\s(\[]*\b((?:19|20)\d{2})\b[)\]]?\s*$`)
	collapseSpacesRegex  = regexp.MustCompile(`\s+`)
	resolutionRegex      = regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(2160p|1080p|1080i|720p|576p|480p|4k|uhd)(?:[^a-z0-9]|$)`)
	leadingBracketRegex  = regexp.MustCompile(`^\s*(?:\[([^\]]+)\]|【([^】]+)】)`)
	mediaExtensionRegexp = regexp.MustCompile(`(?i)\.(mkv|mp4|avi|mov|wmv|flv|webm|m4v|mpg|mpeg|ts|m2ts|rmvb|iso)$`)
)

func init() {
	patterns := []string{
		// Resolution
		`\b\d{3,4}[pi]\b`,
		`\b(4K|UHD|FHD|QHD)\b`,

		// HDR
		`\b(HDR10\+?|HDR10Plus|Dolby\s?Vision|DoVi|DV|HDR|HLG|SDR)\b`,

		// Audio, most specific first
		`\b(DTS-HD\s?MA|DTS-HD\s?HRA|DTS-HD|DTS-X|DTS-ES)\b`,
		`\b(DD\+?|DDP|E?AC3|AAC|AC3)\d\s\d\b`,
		`\b(DD\+?|DDP|E?AC3|AAC|AC3)\b`,
		`\b(TrueHD|Atmos|FLAC|PCM|LPCM|Opus|MP3|DTS)\b`,
		`\b\d\s\d\b`,
		`\b(Stereo|Mono)\b`,

		// Source
		`\b(BluRay|Blu-ray|BDRip|BRRip|BDMV|REMUX|WEB-DL|WEBDL|WEBRip|WEB|WEB-HD)\b`,
		`\b(HDTV|PDTV|SDTV|DVDRip|DVD|DVDSCR|HDRip|TVRip)\b`,
		`\b(HDTS|HDCAM|TELESYNC)\b`,

		// Streaming platforms
		`\b(AMZN|NF|DSNP|HMAX|HULU|ATVP|PCOK|PMTP|CR|B-Global|Baha)\b`,

		// Video codecs
		`\bH\s?26[456]\b`,
		`\b(x264|x265|x266|HEVC|AVC|AV1|XviD|DivX|MPEG2|VC-1|VP9)\b`,
		`\b(8bit|10bit|12bit|Hi10P|Hi10)\b`,

		// Languages and subtitles
		`\b(MULTI|DUAL|DUBBED|SUBBED|MSubs|Subs|CHS|CHT|GB|BIG5|JPSC|JPTC)\b`,
		`(简体|繁体|简繁|简日|繁日|中文字幕|内嵌|内封|外挂)`,

		// Release tags and editions
		`\b(PROPER|REPACK|iNTERNAL|LiMiTED|UNRATED|EXTENDED|REMASTERED|IMAX|UNCUT|COMPLETE)\b`,
		`\bDirectors?\s?Cut\b`,
		`\bv\d+\b`,

		// Well-known groups that appear as bare tokens
		`\b(RARBG|YTS|YIFY|EVO|FGT|SPARKS|NTb|TEPES)\b`,
	}

	releaseTokenPatterns = make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		releaseTokenPatterns = append(releaseTokenPatterns, regexp.MustCompile(`(?i)`+p))
	}
}

// normalizeInput folds full-width characters to their narrow forms and applies
// NFC so that "第１２集" and "第12集" parse identically.
func normalizeInput(s string) string {
	s = norm.NFC.String(s)
	return width.Narrow.String(s)
}

// stripMediaExtension removes a known media extension. filepath.Ext is not used
// because stems such as "Show.S01E01" would lose their episode marker.
func stripMediaExtension(name string) string {
	return mediaExtensionRegexp.ReplaceAllString(name, "")
}

// StripExtensionSuffix removes a media extension echoed at the end of a title
// (e.g. "Movie Name.mkv"). Exposed for classifier output normalization.
func StripExtensionSuffix(title string) string {
	return strings.TrimSpace(stripMediaExtension(strings.TrimSpace(title)))
}

// CleanTitle strips resolution/codec/source/audio tokens, bracketed groups, a
// trailing year and hyphenated group remnants, then collapses whitespace.
// It runs for every extracted title, not only the fallback path.
func CleanTitle(s string) string {
	title, _ := titleAndYear(s)
	return title
}

// titleAndYear cleans s and splits off a trailing year. A year that is the
// whole title ("2012") stays in the title.
func titleAndYear(s string) (string, *int) {
	s = cleanTokens(s)
	if m := trailingYearRegex.FindStringSubmatchIndex(s); m != nil {
		if title := trimTitle(s[:m[0]]); title != "" {
			year, _ := strconv.Atoi(s[m[2]:m[3]])
			return title, &year
		}
	}
	return trimTitle(s), nil
}

// cleanPrefix cleans the text before an already captured year. A number at
// its end belongs to the title ("Blade Runner 2049 (2017)").
func cleanPrefix(s string) string {
	return trimTitle(cleanTokens(s))
}

func cleanTokens(s string) string {
	s = normalizeInput(s)
	s = strings.NewReplacer(".", " ", "_", " ").Replace(s)
	s = bracketGroupRegex.ReplaceAllString(s, " ")

	for _, re := range releaseTokenPatterns {
		s = re.ReplaceAllString(s, " ")
	}

	s = emptyParensRegex.ReplaceAllString(s, " ")
	s = collapseSpaces(s)
	return hyphenRemnantRegex.ReplaceAllString(s, "")
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(collapseSpacesRegex.ReplaceAllString(s, " "))
}

func trimTitle(s string) string {
	s = collapseSpaces(s)
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || strings.ContainsRune("-_.~:,+&[(", r)
	})
}

// extractResolution returns the normalized resolution token, if any.
func extractResolution(s string) string {
	m := resolutionRegex.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	res := strings.ToLower(m[1])
	if res == "4k" || res == "uhd" {
		return "2160p"
	}
	return res
}

// leadingGroup returns the release group of a "[Group] ..." style name.
func leadingGroup(s string) string {
	m := leadingBracketRegex.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(m[2])
}
