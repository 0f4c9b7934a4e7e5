package naming

import "fmt"

// MediaType classifies what a file most likely is.
type MediaType string

const (
	MediaMovie   MediaType = "movie"
	MediaTV      MediaType = "tv"
	MediaAnime   MediaType = "anime"
	MediaUnknown MediaType = "unknown"
)

// ParseMediaType converts a loose string ("show", "series", "film") into a MediaType.
func ParseMediaType(s string) MediaType {
	switch s {
	case "movie", "film":
		return MediaMovie
	case "tv", "show", "series", "episode":
		return MediaTV
	case "anime":
		return MediaAnime
	default:
		return MediaUnknown
	}
}

// ParseSource indicates which parser produced a ParsedInfo.
type ParseSource string

const (
	SourceLocal ParseSource = "local"
	SourceAI    ParseSource = "ai"
)

// ParsedInfo is the structured identity derived from a filename. It is never
// persisted on its own, only embedded into an item row.
type ParsedInfo struct {
	Title         string      `json:"title"`
	OriginalTitle string      `json:"original_title,omitempty"`
	Year          *int        `json:"year,omitempty"`
	Season        *int        `json:"season,omitempty"`
	Episode       *int        `json:"episode,omitempty"`
	EpisodeEnd    *int        `json:"episode_end,omitempty"`
	Resolution    string      `json:"resolution,omitempty"`
	ReleaseGroup  string      `json:"release_group,omitempty"`
	MediaType     MediaType   `json:"media_type"`
	Confidence    float64     `json:"parse_confidence"`
	Source        ParseSource `json:"parse_source"`
	Pattern       string      `json:"pattern,omitempty"`
}

// IsEpisodic reports whether the item should be laid out as a series.
func (p ParsedInfo) IsEpisodic() bool {
	return p.MediaType == MediaTV || p.MediaType == MediaAnime || p.Season != nil || p.Episode != nil
}

func (p ParsedInfo) String() string {
	s := p.Title
	if p.Year != nil {
		s += fmt.Sprintf(" (%d)", *p.Year)
	}
	if p.Season != nil && p.Episode != nil {
		s += fmt.Sprintf(" S%02dE%02d", *p.Season, *p.Episode)
	} else if p.Episode != nil {
		s += fmt.Sprintf(" E%02d", *p.Episode)
	}
	return s
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// IntValue dereferences p, returning def when nil.
func IntValue(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
