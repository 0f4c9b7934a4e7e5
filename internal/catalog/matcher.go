package catalog

import (
	"context"
	"strings"
	"unicode"

	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/naming"
)

const (
	// MinMatchScore is the bar a candidate has to clear to become a Match.
	MinMatchScore = 0.3

	scoreTitleExact    = 0.5
	scoreTitleContains = 0.35
	scoreTitleOverlap  = 0.3
	scoreYearExact     = 0.3
	scoreYearNear      = 0.15
	scoreYearUnknown   = 0.1
)

// Matcher picks the best catalog candidate for a parsed filename.
type Matcher struct {
	catalog Catalog
	logger  *logging.Logger
}

// NewMatcher wraps c. A nil catalog behaves like None.
func NewMatcher(c Catalog, logger *logging.Logger) *Matcher {
	if c == nil {
		c = None{}
	}
	return &Matcher{catalog: c, logger: logger}
}

// Match searches the catalog and returns the best candidate with its score.
// hint overrides parsed.MediaType when set. No candidate, a best score under
// MinMatchScore, or a lookup error all yield (nil, 0).
func (m *Matcher) Match(ctx context.Context, parsed naming.ParsedInfo, hint naming.MediaType) (*Match, float64) {
	title := strings.TrimSpace(parsed.Title)
	if title == "" {
		return nil, 0
	}

	mediaType := parsed.MediaType
	if hint != "" && hint != naming.MediaUnknown {
		mediaType = hint
	}

	candidates := m.search(ctx, title, parsed.Year, mediaType)
	if len(candidates) == 0 && parsed.OriginalTitle != "" && parsed.OriginalTitle != title {
		candidates = m.search(ctx, parsed.OriginalTitle, parsed.Year, mediaType)
	}

	best, score := Best(parsed, candidates)
	if best == nil {
		return nil, 0
	}

	match := &Match{
		ExternalID:     best.ExternalID,
		CanonicalTitle: best.Title,
		CanonicalYear:  best.Year,
		MediaType:      best.MediaType,
		Confidence:     score,
		Overview:       best.Overview,
		PosterURL:      best.PosterURL,
		FanartURL:      best.FanartURL,
	}
	if match.MediaType == "" || match.MediaType == naming.MediaUnknown {
		match.MediaType = mediaType
	}

	if parsed.Episode != nil && match.MediaType != naming.MediaMovie {
		season := naming.IntValue(parsed.Season, 1)
		ep, err := m.catalog.GetEpisode(ctx, best.ExternalID, season, *parsed.Episode)
		if err != nil {
			m.logger.Warn("catalog", "Episode lookup failed",
				logging.F("show", best.ExternalID),
				logging.F("season", season),
				logging.F("episode", *parsed.Episode),
				logging.F("error", err.Error()))
		} else if ep != nil {
			match.EpisodeTitle = ep.Title
		}
	}

	return match, score
}

func (m *Matcher) search(ctx context.Context, title string, year *int, mediaType naming.MediaType) []Candidate {
	var out []Candidate
	lookup := func(kind string, fn func(context.Context, string, *int) ([]Candidate, error)) {
		res, err := fn(ctx, title, year)
		if err != nil {
			m.logger.Warn("catalog", "Lookup failed, treating as no match",
				logging.F("kind", kind),
				logging.F("title", title),
				logging.F("error", err.Error()))
			return
		}
		out = append(out, res...)
	}

	switch mediaType {
	case naming.MediaMovie:
		lookup("movie", m.catalog.SearchMovie)
	case naming.MediaTV, naming.MediaAnime:
		lookup("show", m.catalog.SearchShow)
	default:
		lookup("movie", m.catalog.SearchMovie)
		lookup("show", m.catalog.SearchShow)
	}
	return out
}

// Best scores candidates against parsed and returns the winner. Ties keep the
// earlier candidate. Returns (nil, 0) when nothing reaches MinMatchScore.
func Best(parsed naming.ParsedInfo, candidates []Candidate) (*Candidate, float64) {
	var best *Candidate
	bestScore := 0.0
	for i := range candidates {
		s := Score(parsed, candidates[i])
		if best == nil || s > bestScore {
			best = &candidates[i]
			bestScore = s
		}
	}
	if best == nil || bestScore < MinMatchScore {
		return nil, 0
	}
	return best, bestScore
}

// Score rates a single candidate in [0,1].
func Score(parsed naming.ParsedInfo, c Candidate) float64 {
	ts := titleScore(parsed.Title, c.Title)
	if c.OriginalTitle != "" {
		if alt := titleScore(parsed.Title, c.OriginalTitle); alt > ts {
			ts = alt
		}
	}
	if parsed.OriginalTitle != "" {
		if alt := titleScore(parsed.OriginalTitle, c.Title); alt > ts {
			ts = alt
		}
	}
	return clamp01(ts + yearScore(parsed.Year, c.Year))
}

func titleScore(a, b string) float64 {
	wa, wb := words(a), words(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	na, nb := strings.Join(wa, " "), strings.Join(wb, " ")
	if na == nb {
		return scoreTitleExact
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return scoreTitleContains
	}
	return jaccard(wa, wb) * scoreTitleOverlap
}

func yearScore(a, b *int) float64 {
	if a == nil || b == nil {
		return scoreYearUnknown
	}
	switch d := *a - *b; {
	case d == 0:
		return scoreYearExact
	case d == 1 || d == -1:
		return scoreYearNear
	default:
		return 0
	}
}

// words lowercases s and splits it on anything that is not a letter or digit.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func jaccard(a, b []string) float64 {
	setA := make(map[string]struct{}, len(a))
	for _, w := range a {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, w := range b {
		setB[w] = struct{}{}
	}
	inter := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
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
