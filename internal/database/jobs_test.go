package database

import (
	"context"
	"errors"
	"testing"

	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/naming"
)

func newJob(t *testing.T, db *MediaDB) *ScrapeJob {
	t.Helper()
	j := &ScrapeJob{TargetPath: "/downloads"}
	if err := db.CreateScrapeJob(context.Background(), j); err != nil {
		t.Fatalf("CreateScrapeJob: %v", err)
	}
	return j
}

func TestScrapeJob_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	j := newJob(t, db)

	if j.Status != JobPending || j.ID == "" {
		t.Fatalf("unexpected new job: %+v", j)
	}
	if err := db.SetScrapeJobStatus(ctx, j.ID, JobPending, JobRunning, ""); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetScrapeJob(ctx, j.ID)
	if got.StartedAt == nil || got.FinishedAt != nil {
		t.Errorf("running job timestamps: %+v", got)
	}

	running, err := db.ListScrapeJobs(ctx, JobRunning)
	if err != nil || len(running) != 1 {
		t.Fatalf("ListScrapeJobs(running) = %d, %v", len(running), err)
	}

	if err := db.SetScrapeJobStatus(ctx, j.ID, JobPending, JobCancelled, ""); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	if err := db.SetScrapeJobStatus(ctx, j.ID, JobRunning, JobCancelled, "stopped"); err != nil {
		t.Fatal(err)
	}
	got, _ = db.GetScrapeJob(ctx, j.ID)
	if got.Status != JobCancelled || got.FinishedAt == nil || got.ErrorMessage != "stopped" {
		t.Errorf("cancelled job: %+v", got)
	}
	if !got.Status.Terminal() {
		t.Error("cancelled must be terminal")
	}
}

func TestAddScrapeItems_Idempotent(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	j := newJob(t, db)

	mk := func(p string) *ScrapeItem {
		return &ScrapeItem{RenameItem: RenameItem{OriginalPath: p, OriginalName: p[1:], Status: lifecycle.StatusScanned}}
	}
	n, err := db.AddScrapeItems(ctx, j.ID, []*ScrapeItem{mk("/a.mkv"), mk("/b.mkv")})
	if err != nil || n != 2 {
		t.Fatalf("first add = %d, %v", n, err)
	}
	n, err = db.AddScrapeItems(ctx, j.ID, []*ScrapeItem{mk("/a.mkv"), mk("/c.mkv")})
	if err != nil || n != 1 {
		t.Fatalf("second add = %d, %v", n, err)
	}

	items, _ := db.ListScrapeItems(ctx, j.ID, ItemFilter{})
	if len(items) != 3 {
		t.Fatalf("got %d items, want 3", len(items))
	}
	if items[0].JobID() != j.ID {
		t.Errorf("JobID = %s", items[0].JobID())
	}
	records, _ := db.ListScrapeRecords(ctx, j.ID)
	if len(records) != 3 || records[0].Status != string(lifecycle.StatusScanned) {
		t.Errorf("records not created on insert: %+v", records)
	}
}

func TestUpdateScrapeItem_UpsertsRecordThatOutlivesJob(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	j := newJob(t, db)

	it := &ScrapeItem{RenameItem: RenameItem{OriginalPath: "/dl/Show.S01E02.mkv", OriginalName: "Show.S01E02.mkv", Status: lifecycle.StatusScanned}}
	if _, err := db.AddScrapeItems(ctx, j.ID, []*ScrapeItem{it}); err != nil {
		t.Fatal(err)
	}

	parsed := &naming.ParsedInfo{Title: "Show", Season: naming.IntPtr(1), Episode: naming.IntPtr(2), MediaType: naming.MediaTV}
	if _, err := db.UpdateScrapeItem(ctx, it.ID, lifecycle.StatusScraping, ItemUpdate{Parsed: parsed}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpdateScrapeItem(ctx, it.ID, lifecycle.StatusScraped, ItemUpdate{
		Match:   &catalog.Match{ExternalID: "42", CanonicalTitle: "The Show", CanonicalYear: naming.IntPtr(2019)},
		NFOPath: Ptr("/lib/The Show (2019)/Season 01/The Show - S01E02.nfo"),
	}); err != nil {
		t.Fatal(err)
	}

	rec, err := db.GetScrapeRecord(ctx, it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Title != "The Show" || rec.ExternalID != "42" || *rec.Year != 2019 || *rec.Episode != 2 {
		t.Errorf("record not projected: %+v", rec)
	}
	if rec.Status != string(lifecycle.StatusScraped) || rec.NFOPath == "" {
		t.Errorf("record status/nfo: %+v", rec)
	}

	// scraped -> matching is not an edge.
	if _, err := db.UpdateScrapeItem(ctx, it.ID, lifecycle.StatusMatching, ItemUpdate{}); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}

	if err := db.DeleteScrapeJob(ctx, j.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetScrapeItem(ctx, it.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("item should be gone with the job: %v", err)
	}
	if _, err := db.GetScrapeRecord(ctx, it.ID); err != nil {
		t.Errorf("record must survive job deletion: %v", err)
	}
}

func TestCountScrapeItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	j := newJob(t, db)

	statuses := []lifecycle.Status{
		lifecycle.StatusRenamed, lifecycle.StatusRenamed, lifecycle.StatusScrapeFailed,
		lifecycle.StatusRenameFailed, lifecycle.StatusNeedsConfirmation, lifecycle.StatusScanned,
	}
	var items []*ScrapeItem
	for i, s := range statuses {
		items = append(items, &ScrapeItem{RenameItem: RenameItem{
			OriginalPath: "/f" + string(rune('a'+i)), OriginalName: "f", Status: s,
		}})
	}
	if _, err := db.AddScrapeItems(ctx, j.ID, items); err != nil {
		t.Fatal(err)
	}

	c, err := db.CountScrapeItems(ctx, j.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := Counters{Total: 6, Success: 2, Failed: 2, Skipped: 1}
	if c != want {
		t.Errorf("counters = %+v, want %+v", c, want)
	}
	if err := db.SetScrapeJobCounters(ctx, j.ID, c); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetScrapeJob(ctx, j.ID)
	if got.Counters != want {
		t.Errorf("persisted counters = %+v", got.Counters)
	}
}
