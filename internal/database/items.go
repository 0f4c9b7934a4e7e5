package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/naming"
)

// RelatedFile is a sibling (subtitle, nfo, artwork) that travels with its
// media file. NewPath is filled in once the sibling has been relocated.
type RelatedFile struct {
	OriginalPath string `json:"original_path"`
	NewPath      string `json:"new_path,omitempty"`
}

// RenameItem is one source file inside a rename batch.
type RenameItem struct {
	ID                 int64
	BatchID            string
	OriginalPath       string
	OriginalName       string
	NewPath            string
	NewName            string
	Parsed             *naming.ParsedInfo
	Match              *catalog.Match
	OverallConfidence  float64
	Status             lifecycle.Status
	NeedsConfirmation  bool
	ConfirmationReason string
	RelatedFiles       []RelatedFile
	Action             string
	ErrorCode          string
	ErrorMessage       string
	ExecOrder          int
	ExecutedAt         *time.Time
	RolledBackAt       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Executed reports whether the item was applied and not yet undone.
func (it *RenameItem) Executed() bool {
	return it.ExecutedAt != nil && it.RolledBackAt == nil
}

// ItemUpdate lists the columns to change alongside a status transition.
// Nil pointers and false flags leave the column alone.
type ItemUpdate struct {
	NewPath            *string
	NewName            *string
	Parsed             *naming.ParsedInfo
	Match              *catalog.Match
	ClearMatch         bool
	OverallConfidence  *float64
	NeedsConfirmation  *bool
	ConfirmationReason *string
	RelatedFiles       []RelatedFile
	Action             *string
	ErrorCode          *string
	ErrorMessage       *string
	// ClearError blanks error_code and error_message.
	ClearError bool
	// MarkExecuted stamps executed_at and takes the next exec_order in the
	// parent, clearing any earlier rollback.
	MarkExecuted bool
	// ClearExecuted drops executed_at, used when an interrupted rename is reset.
	ClearExecuted  bool
	MarkRolledBack bool

	NFOPath    *string
	PosterPath *string
	FanartPath *string
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	Statuses []lifecycle.Status
	// OnlyExecuted keeps items that were executed and not rolled back, newest
	// execution first.
	OnlyExecuted bool
	Limit        int
}

// Ptr returns a pointer to v, for filling ItemUpdate.
func Ptr[T any](v T) *T { return &v }

type itemTable struct {
	name      string
	parentCol string
	scrape    bool
}

var (
	renameItems = itemTable{name: "rename_items", parentCol: "batch_id"}
	scrapeItems = itemTable{name: "scrape_items", parentCol: "job_id", scrape: true}
)

func (t itemTable) columns() string {
	cols := "id, " + t.parentCol + `, original_path, original_name, new_path, new_name,
		parsed, catalog_match, overall_confidence, status, needs_confirmation,
		confirmation_reason, related_files, effective_action, error_code, error_message,
		exec_order, executed_at, rolled_back_at, created_at, updated_at`
	if t.scrape {
		cols += ", nfo_path, poster_path, fanart_path"
	}
	return cols
}

// GetRenameItem returns ErrNotFound when id is unknown.
func (m *MediaDB) GetRenameItem(ctx context.Context, id int64) (*RenameItem, error) {
	it, err := m.getItem(ctx, renameItems, id)
	if err != nil {
		return nil, err
	}
	return &it.RenameItem, nil
}

// ListRenameItems returns the items of a batch in id order, or newest
// execution first when f.OnlyExecuted is set.
func (m *MediaDB) ListRenameItems(ctx context.Context, batchID string, f ItemFilter) ([]*RenameItem, error) {
	items, err := m.listItems(ctx, renameItems, batchID, f)
	if err != nil {
		return nil, err
	}
	out := make([]*RenameItem, len(items))
	for i, it := range items {
		out[i] = &it.RenameItem
	}
	return out, nil
}

// UpdateRenameItem re-reads the item's persisted status, checks the
// transition to `to`, and applies upd with a compare-and-set on that status.
// It returns the status the item was in.
func (m *MediaDB) UpdateRenameItem(ctx context.Context, id int64, to lifecycle.Status, upd ItemUpdate) (lifecycle.Status, error) {
	return m.updateItem(ctx, renameItems, id, to, upd)
}

func (m *MediaDB) getItem(ctx context.Context, t itemTable, id int64) (*ScrapeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row := m.db.QueryRowContext(ctx, `SELECT `+t.columns()+` FROM `+t.name+` WHERE id = ?`, id)
	it, err := scanItem(row, t)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %d: %w", t.name, id, ErrNotFound)
	}
	return it, err
}

func (m *MediaDB) listItems(ctx context.Context, t itemTable, parentID string, f ItemFilter) ([]*ScrapeItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	query := `SELECT ` + t.columns() + ` FROM ` + t.name + ` WHERE ` + t.parentCol + ` = ?`
	args := []interface{}{parentID}
	if len(f.Statuses) > 0 {
		query += ` AND status IN (?` + strings.Repeat(", ?", len(f.Statuses)-1) + `)`
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if f.OnlyExecuted {
		query += ` AND executed_at IS NOT NULL AND rolled_back_at IS NULL ORDER BY exec_order DESC, id DESC`
	} else {
		query += ` ORDER BY id`
	}
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ScrapeItem
	for rows.Next() {
		it, err := scanItem(rows, t)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (m *MediaDB) updateItem(ctx context.Context, t itemTable, id int64, to lifecycle.Status, upd ItemUpdate) (lifecycle.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var parentID string
	read := func() (lifecycle.Status, error) {
		var current string
		err := tx.QueryRowContext(ctx, `SELECT status, `+t.parentCol+` FROM `+t.name+` WHERE id = ?`, id).
			Scan(&current, &parentID)
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%s %d: %w", t.name, id, ErrNotFound)
		}
		return lifecycle.Status(current), err
	}

	now := time.Now().UTC()
	write := func(from lifecycle.Status) error {
		return m.writeItem(ctx, tx, t, id, from, to, parentID, upd, now)
	}
	from, err := lifecycle.Guard(read, to, write)
	if err != nil {
		return from, err
	}

	if t.scrape {
		if err := upsertRecord(ctx, tx, id, now); err != nil {
			return from, err
		}
	}
	return from, tx.Commit()
}

// writeItem applies upd and the status change while the row is still in from.
func (m *MediaDB) writeItem(ctx context.Context, tx *sql.Tx, t itemTable, id int64,
	from, to lifecycle.Status, parentID string, upd ItemUpdate, now time.Time) error {
	sets := []string{"status = ?", "updated_at = ?"}
	args := []interface{}{string(to), now}
	set := func(col string, v interface{}) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if upd.NewPath != nil {
		set("new_path", *upd.NewPath)
	}
	if upd.NewName != nil {
		set("new_name", *upd.NewName)
	}
	if upd.Parsed != nil {
		set("parsed", encodeJSON(upd.Parsed))
	}
	if upd.ClearMatch {
		set("catalog_match", nil)
	} else if upd.Match != nil {
		set("catalog_match", encodeJSON(upd.Match))
	}
	if upd.OverallConfidence != nil {
		set("overall_confidence", *upd.OverallConfidence)
	}
	if upd.NeedsConfirmation != nil {
		set("needs_confirmation", *upd.NeedsConfirmation)
	}
	if upd.ConfirmationReason != nil {
		set("confirmation_reason", *upd.ConfirmationReason)
	}
	if upd.RelatedFiles != nil {
		set("related_files", encodeRelated(upd.RelatedFiles))
	}
	if upd.Action != nil {
		set("effective_action", *upd.Action)
	}
	if upd.ClearError {
		set("error_code", "")
		set("error_message", "")
	}
	if upd.ErrorCode != nil {
		set("error_code", *upd.ErrorCode)
	}
	if upd.ErrorMessage != nil {
		set("error_message", *upd.ErrorMessage)
	}
	if upd.MarkExecuted {
		set("executed_at", now)
		set("rolled_back_at", nil)
		sets = append(sets, "exec_order = (SELECT COALESCE(MAX(exec_order), 0) + 1 FROM "+t.name+" WHERE "+t.parentCol+" = ?)")
		args = append(args, parentID)
	}
	if upd.ClearExecuted {
		set("executed_at", nil)
	}
	if upd.MarkRolledBack {
		set("rolled_back_at", now)
	}
	if t.scrape {
		if upd.NFOPath != nil {
			set("nfo_path", *upd.NFOPath)
		}
		if upd.PosterPath != nil {
			set("poster_path", *upd.PosterPath)
		}
		if upd.FanartPath != nil {
			set("fanart_path", *upd.FanartPath)
		}
	}

	args = append(args, id, string(from))
	res, err := tx.ExecContext(ctx,
		`UPDATE `+t.name+` SET `+strings.Join(sets, ", ")+` WHERE id = ? AND status = ?`, args...)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", t.name, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d left %s: %w", t.name, id, from, ErrConflict)
	}
	return nil
}

// insertItem writes one row. With ignoreExisting, a row for the same parent
// and original path is left untouched and the returned id is 0.
func insertItem(ctx context.Context, tx *sql.Tx, t itemTable, it *ScrapeItem, now time.Time, ignoreExisting bool) (int64, error) {
	if it.Status == "" {
		it.Status = lifecycle.StatusPending
	}
	if !lifecycle.Reachable(it.Status) {
		return 0, fmt.Errorf("item %s: status %s is not reachable", it.OriginalPath, it.Status)
	}

	cols := t.parentCol + `, original_path, original_name, new_path, new_name, parsed,
		catalog_match, overall_confidence, status, needs_confirmation, confirmation_reason,
		related_files, effective_action, error_code, error_message, created_at, updated_at`
	args := []interface{}{
		it.BatchID, it.OriginalPath, it.OriginalName, it.NewPath, it.NewName,
		encodeJSON(it.Parsed), encodeJSON(it.Match), it.OverallConfidence,
		string(it.Status), it.NeedsConfirmation, it.ConfirmationReason,
		encodeRelated(it.RelatedFiles), it.Action, it.ErrorCode, it.ErrorMessage, now, now,
	}
	if t.scrape {
		cols += ", nfo_path, poster_path, fanart_path"
		args = append(args, it.NFOPath, it.PosterPath, it.FanartPath)
	}

	verb := "INSERT"
	if ignoreExisting {
		verb = "INSERT OR IGNORE"
	}
	placeholders := "?" + strings.Repeat(", ?", len(args)-1)
	res, err := tx.ExecContext(ctx, verb+` INTO `+t.name+` (`+cols+`) VALUES (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("insert %s %s: %w", t.name, it.OriginalPath, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, nil
	}
	return res.LastInsertId()
}

func scanItem(row rowScanner, t itemTable) (*ScrapeItem, error) {
	var it ScrapeItem
	var parsed, match sql.NullString
	var status, related string
	dest := []interface{}{
		&it.ID, &it.BatchID, &it.OriginalPath, &it.OriginalName, &it.NewPath, &it.NewName,
		&parsed, &match, &it.OverallConfidence, &status, &it.NeedsConfirmation,
		&it.ConfirmationReason, &related, &it.Action, &it.ErrorCode, &it.ErrorMessage,
		&it.ExecOrder, &it.ExecutedAt, &it.RolledBackAt, &it.CreatedAt, &it.UpdatedAt,
	}
	if t.scrape {
		dest = append(dest, &it.NFOPath, &it.PosterPath, &it.FanartPath)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	it.Status = lifecycle.Status(status)
	if parsed.Valid && parsed.String != "" {
		it.Parsed = &naming.ParsedInfo{}
		if err := json.Unmarshal([]byte(parsed.String), it.Parsed); err != nil {
			return nil, fmt.Errorf("decode parsed info of item %d: %w", it.ID, err)
		}
	}
	if match.Valid && match.String != "" {
		it.Match = &catalog.Match{}
		if err := json.Unmarshal([]byte(match.String), it.Match); err != nil {
			return nil, fmt.Errorf("decode match of item %d: %w", it.ID, err)
		}
	}
	if related != "" {
		if err := json.Unmarshal([]byte(related), &it.RelatedFiles); err != nil {
			return nil, fmt.Errorf("decode related files of item %d: %w", it.ID, err)
		}
	}
	return &it, nil
}

// encodeJSON returns nil for nil pointers so the column stays NULL.
func encodeJSON[T any](v *T) interface{} {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return string(data)
}

func encodeRelated(files []RelatedFile) string {
	if len(files) == 0 {
		return "[]"
	}
	data, err := json.Marshal(files)
	if err != nil {
		return "[]"
	}
	return string(data)
}
