package catalog

import (
	"context"
	"fmt"
	"sync"
)

// Static is an in-memory Catalog. Searches return every entry sharing at least
// one word with the query, in insertion order, so ranking stays with the
// Matcher.
type Static struct {
	mu       sync.RWMutex
	movies   []Candidate
	shows    []Candidate
	episodes map[string]Episode
	err      error
	calls    int
}

func NewStatic() *Static {
	return &Static{episodes: make(map[string]Episode)}
}

func (s *Static) AddMovie(c Candidate) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movies = append(s.movies, c)
	return s
}

func (s *Static) AddShow(c Candidate) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shows = append(s.shows, c)
	return s
}

func (s *Static) AddEpisode(showID string, ep Episode) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.episodes[episodeKey(showID, ep.Season, ep.Episode)] = ep
	return s
}

// FailWith makes every lookup return err. Pass nil to clear it.
func (s *Static) FailWith(err error) *Static {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Calls returns the number of lookups served.
func (s *Static) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

func (s *Static) SearchMovie(_ context.Context, title string, _ *int) ([]Candidate, error) {
	return s.search(s.movies, title)
}

func (s *Static) SearchShow(_ context.Context, title string, _ *int) ([]Candidate, error) {
	return s.search(s.shows, title)
}

func (s *Static) GetEpisode(_ context.Context, showID string, season, episode int) (*Episode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	ep, ok := s.episodes[episodeKey(showID, season, episode)]
	if !ok {
		return nil, nil
	}
	return &ep, nil
}

func (s *Static) search(pool []Candidate, title string) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	query := words(title)
	var out []Candidate
	for _, c := range pool {
		if sharesWord(query, words(c.Title)) || sharesWord(query, words(c.OriginalTitle)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func sharesWord(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func episodeKey(showID string, season, episode int) string {
	return fmt.Sprintf("%s:%d:%d", showID, season, episode)
}
