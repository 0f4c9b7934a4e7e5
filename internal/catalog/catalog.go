// Package catalog looks parsed filenames up in an external movie/TV metadata
// service and scores the candidates it returns.
package catalog

import (
	"context"
	"fmt"

	"github.com/Nomadcxx/jellysort/internal/naming"
)

// Candidate is one search hit from a Catalog, in the order the catalog
// returned it.
type Candidate struct {
	ExternalID    string
	Title         string
	OriginalTitle string
	Year          *int
	MediaType     naming.MediaType
	Overview      string
	PosterURL     string
	FanartURL     string
}

// Episode is the catalog's view of a single episode.
type Episode struct {
	Season   int
	Episode  int
	Title    string
	Overview string
	AirDate  string
}

// Catalog is the lookup service. An empty result is not an error.
type Catalog interface {
	SearchMovie(ctx context.Context, title string, year *int) ([]Candidate, error)
	SearchShow(ctx context.Context, title string, year *int) ([]Candidate, error)
	GetEpisode(ctx context.Context, showID string, season, episode int) (*Episode, error)
}

// Match is the winning candidate for a ParsedInfo. It is only ever persisted
// embedded in an item row.
type Match struct {
	ExternalID     string           `json:"external_id"`
	CanonicalTitle string           `json:"canonical_title"`
	CanonicalYear  *int             `json:"canonical_year,omitempty"`
	MediaType      naming.MediaType `json:"media_type,omitempty"`
	Confidence     float64          `json:"match_confidence"`
	Overview       string           `json:"overview,omitempty"`
	PosterURL      string           `json:"poster_url,omitempty"`
	FanartURL      string           `json:"fanart_url,omitempty"`
	EpisodeTitle   string           `json:"episode_title,omitempty"`
}

func (m *Match) String() string {
	if m == nil {
		return "<no match>"
	}
	if m.CanonicalYear != nil {
		return fmt.Sprintf("%s (%d) [%s] %.2f", m.CanonicalTitle, *m.CanonicalYear, m.ExternalID, m.Confidence)
	}
	return fmt.Sprintf("%s [%s] %.2f", m.CanonicalTitle, m.ExternalID, m.Confidence)
}

// None is a Catalog that never finds anything. It is used when no lookup
// service is configured so every item falls through to parsed-only naming.
type None struct{}

func (None) SearchMovie(context.Context, string, *int) ([]Candidate, error) { return nil, nil }
func (None) SearchShow(context.Context, string, *int) ([]Candidate, error)  { return nil, nil }
func (None) GetEpisode(context.Context, string, int, int) (*Episode, error) { return nil, nil }
