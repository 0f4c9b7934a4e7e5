package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ScrapeRecord is the flattened, long-lived view of a scrape item. It is
// keyed by item id and survives deletion of the job.
type ScrapeRecord struct {
	ItemID       int64
	JobID        string
	OriginalPath string
	NewPath      string
	Title        string
	Year         *int
	Season       *int
	Episode      *int
	MediaType    string
	ExternalID   string
	Status       string
	NFOPath      string
	PosterPath   string
	FanartPath   string
	ErrorCode    string
	ErrorMessage string
	UpdatedAt    time.Time
}

const recordColumns = `item_id, job_id, original_path, new_path, title, year, season, episode,
	media_type, external_id, status, nfo_path, poster_path, fanart_path,
	error_code, error_message, updated_at`

// GetScrapeRecord returns ErrNotFound when no record exists for itemID.
func (m *MediaDB) GetScrapeRecord(ctx context.Context, itemID int64) (*ScrapeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row := m.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM scrape_records WHERE item_id = ?`, itemID)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("scrape record %d: %w", itemID, ErrNotFound)
	}
	return r, err
}

// ListScrapeRecords returns the records of one job in item order.
func (m *MediaDB) ListScrapeRecords(ctx context.Context, jobID string) ([]*ScrapeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, err := m.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM scrape_records
		WHERE job_id = ? ORDER BY item_id`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScrapeRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// upsertRecord projects the current item row into scrape_records.
func upsertRecord(ctx context.Context, tx *sql.Tx, itemID int64, now time.Time) error {
	row := tx.QueryRowContext(ctx, `SELECT `+scrapeItems.columns()+` FROM scrape_items WHERE id = ?`, itemID)
	it, err := scanItem(row, scrapeItems)
	if err != nil {
		return fmt.Errorf("load scrape item %d: %w", itemID, err)
	}

	r := ScrapeRecord{
		ItemID:       it.ID,
		JobID:        it.BatchID,
		OriginalPath: it.OriginalPath,
		NewPath:      it.NewPath,
		Status:       string(it.Status),
		NFOPath:      it.NFOPath,
		PosterPath:   it.PosterPath,
		FanartPath:   it.FanartPath,
		ErrorCode:    it.ErrorCode,
		ErrorMessage: it.ErrorMessage,
	}
	if it.Parsed != nil {
		r.Title = it.Parsed.Title
		r.Year = it.Parsed.Year
		r.Season = it.Parsed.Season
		r.Episode = it.Parsed.Episode
		r.MediaType = string(it.Parsed.MediaType)
	}
	if it.Match != nil {
		r.Title = it.Match.CanonicalTitle
		r.ExternalID = it.Match.ExternalID
		if it.Match.CanonicalYear != nil {
			r.Year = it.Match.CanonicalYear
		}
		if it.Match.MediaType != "" {
			r.MediaType = string(it.Match.MediaType)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO scrape_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO UPDATE SET
			new_path = excluded.new_path,
			title = excluded.title,
			year = excluded.year,
			season = excluded.season,
			episode = excluded.episode,
			media_type = excluded.media_type,
			external_id = excluded.external_id,
			status = excluded.status,
			nfo_path = excluded.nfo_path,
			poster_path = excluded.poster_path,
			fanart_path = excluded.fanart_path,
			error_code = excluded.error_code,
			error_message = excluded.error_message,
			updated_at = excluded.updated_at`,
		r.ItemID, r.JobID, r.OriginalPath, r.NewPath, r.Title, r.Year, r.Season, r.Episode,
		r.MediaType, r.ExternalID, r.Status, r.NFOPath, r.PosterPath, r.FanartPath,
		r.ErrorCode, r.ErrorMessage, now,
	)
	if err != nil {
		return fmt.Errorf("upsert scrape record %d: %w", itemID, err)
	}
	return nil
}

func scanRecord(row rowScanner) (*ScrapeRecord, error) {
	var r ScrapeRecord
	err := row.Scan(
		&r.ItemID, &r.JobID, &r.OriginalPath, &r.NewPath, &r.Title, &r.Year, &r.Season, &r.Episode,
		&r.MediaType, &r.ExternalID, &r.Status, &r.NFOPath, &r.PosterPath, &r.FanartPath,
		&r.ErrorCode, &r.ErrorMessage, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
