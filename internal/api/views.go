package api

import (
	"encoding/json"
	"time"

	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/naming"
)

// BatchView is the wire shape of a rename batch.
type BatchView struct {
	ID           string            `json:"id"`
	TargetPath   string            `json:"target_path"`
	Options      json.RawMessage   `json:"options,omitempty"`
	Status       string            `json:"status"`
	Counters     database.Counters `json:"counters"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// JobView is the wire shape of a scrape job.
type JobView struct {
	ID           string            `json:"id"`
	TargetPath   string            `json:"target_path"`
	Options      json.RawMessage   `json:"options,omitempty"`
	Status       string            `json:"status"`
	Running      bool              `json:"running"`
	Counters     database.Counters `json:"counters"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}

// ItemView is one file of a batch or job.
type ItemView struct {
	ID                 int64                  `json:"id"`
	OriginalPath       string                 `json:"original_path"`
	NewPath            string                 `json:"new_path,omitempty"`
	NewName            string                 `json:"new_name,omitempty"`
	Status             lifecycle.Status       `json:"status"`
	Parsed             *naming.ParsedInfo     `json:"parsed,omitempty"`
	Match              *catalog.Match         `json:"match,omitempty"`
	Confidence         float64                `json:"confidence"`
	NeedsConfirmation  bool                   `json:"needs_confirmation"`
	ConfirmationReason string                 `json:"confirmation_reason,omitempty"`
	RelatedFiles       []database.RelatedFile `json:"related_files,omitempty"`
	ErrorCode          string                 `json:"error_code,omitempty"`
	ErrorMessage       string                 `json:"error_message,omitempty"`
	ExecutedAt         *time.Time             `json:"executed_at,omitempty"`
	RolledBackAt       *time.Time             `json:"rolled_back_at,omitempty"`

	NFOPath    string `json:"nfo_path,omitempty"`
	PosterPath string `json:"poster_path,omitempty"`
	FanartPath string `json:"fanart_path,omitempty"`
}

// OperationView is one audit log row.
type OperationView struct {
	Type       string    `json:"type"`
	ItemID     int64     `json:"item_id,omitempty"`
	Source     string    `json:"source"`
	Target     string    `json:"target,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	Bytes      int64     `json:"bytes,omitempty"`
	ExecutedBy string    `json:"executed_by"`
	ExecutedAt time.Time `json:"executed_at"`
}

func batchView(b *database.RenameBatch) BatchView {
	return BatchView{
		ID:           b.ID,
		TargetPath:   b.TargetPath,
		Options:      b.Options,
		Status:       string(b.Status),
		Counters:     b.Counters,
		ErrorMessage: b.ErrorMessage,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
	}
}

func jobView(j *database.ScrapeJob, running bool) JobView {
	return JobView{
		ID:           j.ID,
		TargetPath:   j.TargetPath,
		Options:      j.Options,
		Status:       string(j.Status),
		Running:      running,
		Counters:     j.Counters,
		ErrorMessage: j.ErrorMessage,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		FinishedAt:   j.FinishedAt,
	}
}

func itemView(it *database.RenameItem) ItemView {
	return ItemView{
		ID:                 it.ID,
		OriginalPath:       it.OriginalPath,
		NewPath:            it.NewPath,
		NewName:            it.NewName,
		Status:             it.Status,
		Parsed:             it.Parsed,
		Match:              it.Match,
		Confidence:         it.OverallConfidence,
		NeedsConfirmation:  it.NeedsConfirmation,
		ConfirmationReason: it.ConfirmationReason,
		RelatedFiles:       it.RelatedFiles,
		ErrorCode:          it.ErrorCode,
		ErrorMessage:       it.ErrorMessage,
		ExecutedAt:         it.ExecutedAt,
		RolledBackAt:       it.RolledBackAt,
	}
}

func itemViews(items []*database.RenameItem) []ItemView {
	out := make([]ItemView, len(items))
	for i, it := range items {
		out[i] = itemView(it)
	}
	return out
}

func scrapeItemViews(items []*database.ScrapeItem) []ItemView {
	out := make([]ItemView, len(items))
	for i, it := range items {
		v := itemView(&it.RenameItem)
		v.NFOPath = it.NFOPath
		v.PosterPath = it.PosterPath
		v.FanartPath = it.FanartPath
		out[i] = v
	}
	return out
}

func operationViews(ops []database.OperationLog) []OperationView {
	out := make([]OperationView, len(ops))
	for i, op := range ops {
		out[i] = OperationView{
			Type:       string(op.OperationType),
			ItemID:     op.ItemID,
			Source:     op.SourcePath,
			Target:     op.TargetPath,
			Reason:     op.Reason,
			Bytes:      op.Bytes,
			ExecutedBy: string(op.ExecutedBy),
			ExecutedAt: op.ExecutedAt,
		}
	}
	return out
}
