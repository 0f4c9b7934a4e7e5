package organizer

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/naming"
)

// FolderNames are the secondary folders each media type is sorted into.
type FolderNames struct {
	Anime string `json:"anime"`
	Movie string `json:"movie"`
	TV    string `json:"tv"`
}

// CategoryStrategy decides the secondary folder of an item and whether a
// series counts as anime.
type CategoryStrategy struct {
	Enabled       bool        `json:"enabled"`
	AnimeKeywords []string    `json:"anime_keywords"`
	Folders       FolderNames `json:"folders"`
}

func CategoryFromConfig(cfg config.CategoryConfig) CategoryStrategy {
	return CategoryStrategy{
		Enabled:       cfg.Enabled,
		AnimeKeywords: append([]string(nil), cfg.AnimeKeywords...),
		Folders: FolderNames{
			Anime: cfg.AnimeFolder,
			Movie: cfg.MovieFolder,
			TV:    cfg.TVFolder,
		},
	}
}

func categoryFromRecord(r *database.CategoryStrategy) CategoryStrategy {
	return CategoryStrategy{
		Enabled:       r.Enabled,
		AnimeKeywords: append([]string(nil), r.AnimeKeywords...),
		Folders:       FolderNames{Anime: r.AnimeFolder, Movie: r.MovieFolder, TV: r.TVFolder},
	}
}

func (s CategoryStrategy) record() *database.CategoryStrategy {
	return &database.CategoryStrategy{
		Enabled:       s.Enabled,
		AnimeKeywords: append([]string(nil), s.AnimeKeywords...),
		AnimeFolder:   s.Folders.Anime,
		MovieFolder:   s.Folders.Movie,
		TVFolder:      s.Folders.TV,
	}
}

// Detect returns the media type of the file at path. When the strategy is
// enabled, a series whose path mentions an anime keyword becomes anime.
func (s CategoryStrategy) Detect(path string, parsed naming.ParsedInfo) naming.MediaType {
	t := parsed.MediaType
	if t == "" {
		t = naming.MediaUnknown
	}
	if !s.Enabled || t == naming.MediaMovie || t == naming.MediaAnime {
		return t
	}
	if t == naming.MediaUnknown && !parsed.IsEpisodic() {
		return t
	}
	if s.mentionsAnime(path) {
		return naming.MediaAnime
	}
	return t
}

func (s CategoryStrategy) mentionsAnime(path string) bool {
	lower := strings.ToLower(filepath.ToSlash(path))
	for _, kw := range s.AnimeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// FolderFor returns the secondary folder for t, or "" when disabled.
func (s CategoryStrategy) FolderFor(t naming.MediaType) string {
	if !s.Enabled {
		return ""
	}
	switch t {
	case naming.MediaAnime:
		return s.Folders.Anime
	case naming.MediaMovie:
		return s.Folders.Movie
	case naming.MediaTV:
		return s.Folders.TV
	default:
		return ""
	}
}

// CategoryStore persists the strategy singleton.
type CategoryStore interface {
	GetCategoryStrategy(ctx context.Context) (*database.CategoryStrategy, error)
	SaveCategoryStrategy(ctx context.Context, s *database.CategoryStrategy) error
}

// CategoryCache keeps the strategy in memory. The first Get loads the stored
// row, falling back to the configured default when none was saved.
type CategoryCache struct {
	mu       sync.Mutex
	store    CategoryStore
	fallback CategoryStrategy
	current  *CategoryStrategy
}

func NewCategoryCache(store CategoryStore, fallback CategoryStrategy) *CategoryCache {
	return &CategoryCache{store: store, fallback: fallback}
}

func (c *CategoryCache) Get(ctx context.Context) (CategoryStrategy, error) {
	if c == nil {
		return CategoryStrategy{}, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current != nil {
		return *c.current, nil
	}
	s := c.fallback
	if c.store != nil {
		rec, err := c.store.GetCategoryStrategy(ctx)
		if err != nil {
			return c.fallback, err
		}
		if rec != nil {
			s = categoryFromRecord(rec)
		}
	}
	c.current = &s
	return s, nil
}

// Save persists s and replaces the cached copy.
func (c *CategoryCache) Save(ctx context.Context, s CategoryStrategy) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		if err := c.store.SaveCategoryStrategy(ctx, s.record()); err != nil {
			return err
		}
	}
	c.current = &s
	return nil
}
