package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CategoryStrategy is the persisted singleton that decides which secondary
// folder a media type lands in.
type CategoryStrategy struct {
	Enabled       bool
	AnimeKeywords []string
	AnimeFolder   string
	MovieFolder   string
	TVFolder      string
	UpdatedAt     time.Time
}

// GetCategoryStrategy returns nil, nil when none has been saved yet.
func (m *MediaDB) GetCategoryStrategy(ctx context.Context) (*CategoryStrategy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var s CategoryStrategy
	var keywords string
	err := m.db.QueryRowContext(ctx, `
		SELECT enabled, anime_keywords, anime_folder, movie_folder, tv_folder, updated_at
		FROM category_strategy WHERE id = 1`,
	).Scan(&s.Enabled, &keywords, &s.AnimeFolder, &s.MovieFolder, &s.TVFolder, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(keywords), &s.AnimeKeywords); err != nil {
		return nil, fmt.Errorf("decode anime keywords: %w", err)
	}
	return &s, nil
}

// SaveCategoryStrategy replaces the singleton row.
func (m *MediaDB) SaveCategoryStrategy(ctx context.Context, s *CategoryStrategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	keywords := s.AnimeKeywords
	if keywords == nil {
		keywords = []string{}
	}
	data, err := json.Marshal(keywords)
	if err != nil {
		return err
	}
	s.UpdatedAt = time.Now().UTC()

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO category_strategy (id, enabled, anime_keywords, anime_folder, movie_folder, tv_folder, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			enabled = excluded.enabled,
			anime_keywords = excluded.anime_keywords,
			anime_folder = excluded.anime_folder,
			movie_folder = excluded.movie_folder,
			tv_folder = excluded.tv_folder,
			updated_at = excluded.updated_at`,
		s.Enabled, string(data), s.AnimeFolder, s.MovieFolder, s.TVFolder, s.UpdatedAt,
	)
	return err
}
