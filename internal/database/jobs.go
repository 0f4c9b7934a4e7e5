package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/google/uuid"
)

// JobStatus is the lifecycle of a scrape job.
type JobStatus string

const (
	JobPending             JobStatus = "pending"
	JobRunning             JobStatus = "running"
	JobCompleted           JobStatus = "completed"
	JobCompletedWithErrors JobStatus = "completed_with_errors"
	JobFailed              JobStatus = "failed"
	JobCancelled           JobStatus = "cancelled"
)

// Terminal reports whether the job will not run again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobCompletedWithErrors, JobFailed, JobCancelled:
		return true
	}
	return false
}

// ScrapeJob identifies, renames and decorates every media file under a
// directory with sidecar metadata.
type ScrapeJob struct {
	ID           string
	TargetPath   string
	Options      json.RawMessage
	Status       JobStatus
	Counters     Counters
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
}

// ScrapeItem is a RenameItem plus the sidecars written for it. The embedded
// BatchID holds the owning job id.
type ScrapeItem struct {
	RenameItem
	NFOPath    string
	PosterPath string
	FanartPath string
}

// JobID returns the owning scrape job.
func (s *ScrapeItem) JobID() string { return s.BatchID }

const jobColumns = `id, target_path, options, status, total_items, success_items,
	failed_items, skipped_items, error_message, created_at, updated_at, started_at, finished_at`

// CreateScrapeJob inserts a pending job.
func (m *MediaDB) CreateScrapeJob(ctx context.Context, j *ScrapeJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = JobPending
	}
	if len(j.Options) == 0 {
		j.Options = json.RawMessage("{}")
	}
	now := time.Now().UTC()
	j.CreatedAt, j.UpdatedAt = now, now

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO scrape_jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.TargetPath, string(j.Options), string(j.Status),
		j.Counters.Total, j.Counters.Success, j.Counters.Failed, j.Counters.Skipped,
		j.ErrorMessage, j.CreatedAt, j.UpdatedAt, j.StartedAt, j.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scrape job: %w", err)
	}
	return nil
}

// GetScrapeJob returns ErrNotFound when id is unknown.
func (m *MediaDB) GetScrapeJob(ctx context.Context, id string) (*ScrapeJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row := m.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return j, err
}

// ListScrapeJobs returns jobs in any of statuses (all when empty), oldest first.
func (m *MediaDB) ListScrapeJobs(ctx context.Context, statuses ...JobStatus) ([]*ScrapeJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := `SELECT ` + jobColumns + ` FROM scrape_jobs`
	var args []interface{}
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at, rowid`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScrapeJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// SetScrapeJobStatus is the compare-and-set transition for jobs. Entering
// running stamps started_at; entering a terminal status stamps finished_at.
func (m *MediaDB) SetScrapeJobStatus(ctx context.Context, id string, from, to JobStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	query := `UPDATE scrape_jobs SET status = ?, error_message = ?, updated_at = ?`
	args := []interface{}{string(to), errMsg, now}
	if to == JobRunning {
		query += `, started_at = COALESCE(started_at, ?), finished_at = NULL`
		args = append(args, now)
	}
	if to.Terminal() {
		query += `, finished_at = ?`
		args = append(args, now)
	}
	query += ` WHERE id = ? AND status = ?`
	args = append(args, id, string(from))

	res, err := m.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return m.casResult(ctx, res, "scrape_jobs", id)
}

// SetScrapeJobCounters overwrites the job counters. Jobs recount from their
// items so a resumed worker never double counts.
func (m *MediaDB) SetScrapeJobCounters(ctx context.Context, id string, c Counters) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.ExecContext(ctx, `
		UPDATE scrape_jobs SET total_items = ?, success_items = ?, failed_items = ?,
			skipped_items = ?, updated_at = ?
		WHERE id = ?`,
		c.Total, c.Success, c.Failed, c.Skipped, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteScrapeJob removes the job and its items. Scrape records are kept.
func (m *MediaDB) DeleteScrapeJob(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.db.ExecContext(ctx, `DELETE FROM scrape_jobs WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return nil
}

// AddScrapeItems inserts items for a job, skipping paths already present so a
// rescan after a crash is harmless. It returns how many rows were new.
func (m *MediaDB) AddScrapeItems(ctx context.Context, jobID string, items []*ScrapeItem) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	added := 0
	for _, it := range items {
		it.BatchID = jobID
		id, err := insertItem(ctx, tx, scrapeItems, it, now, true)
		if err != nil {
			return added, err
		}
		if id == 0 {
			continue
		}
		it.ID = id
		it.CreatedAt, it.UpdatedAt = now, now
		if err := upsertRecord(ctx, tx, id, now); err != nil {
			return added, err
		}
		added++
	}
	return added, tx.Commit()
}

// GetScrapeItem returns ErrNotFound when id is unknown.
func (m *MediaDB) GetScrapeItem(ctx context.Context, id int64) (*ScrapeItem, error) {
	return m.getItem(ctx, scrapeItems, id)
}

// ListScrapeItems returns a job's items in id order.
func (m *MediaDB) ListScrapeItems(ctx context.Context, jobID string, f ItemFilter) ([]*ScrapeItem, error) {
	return m.listItems(ctx, scrapeItems, jobID, f)
}

// UpdateScrapeItem is UpdateRenameItem for scrape items; the item's scrape
// record is refreshed in the same transaction.
func (m *MediaDB) UpdateScrapeItem(ctx context.Context, id int64, to lifecycle.Status, upd ItemUpdate) (lifecycle.Status, error) {
	return m.updateItem(ctx, scrapeItems, id, to, upd)
}

// CountScrapeItems tallies a job's items by outcome: renamed items are
// successes, failure states are failures and needs_confirmation is skipped.
func (m *MediaDB) CountScrapeItems(ctx context.Context, jobID string) (Counters, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var c Counters
	err := m.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status IN (?, ?) THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)
		FROM scrape_items WHERE job_id = ?`,
		string(lifecycle.StatusRenamed),
		string(lifecycle.StatusScrapeFailed), string(lifecycle.StatusRenameFailed),
		string(lifecycle.StatusNeedsConfirmation),
		jobID,
	).Scan(&c.Total, &c.Success, &c.Failed, &c.Skipped)
	return c, err
}

func scanJob(row rowScanner) (*ScrapeJob, error) {
	var j ScrapeJob
	var opts, status string
	err := row.Scan(
		&j.ID, &j.TargetPath, &opts, &status,
		&j.Counters.Total, &j.Counters.Success, &j.Counters.Failed, &j.Counters.Skipped,
		&j.ErrorMessage, &j.CreatedAt, &j.UpdatedAt, &j.StartedAt, &j.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Options = json.RawMessage(opts)
	j.Status = JobStatus(status)
	return &j, nil
}
