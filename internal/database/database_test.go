package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/naming"
)

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) *MediaDB {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := OpenPath(dbPath)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return db
}

func sampleItem(path string, status lifecycle.Status) *RenameItem {
	return &RenameItem{
		OriginalPath: path,
		OriginalName: filepath.Base(path),
		Status:       status,
		Parsed: &naming.ParsedInfo{
			Title:      "Inception",
			Year:       naming.IntPtr(2010),
			MediaType:  naming.MediaMovie,
			Confidence: 0.85,
			Source:     naming.SourceLocal,
		},
		Match: &catalog.Match{
			ExternalID:     "27205",
			CanonicalTitle: "Inception",
			CanonicalYear:  naming.IntPtr(2010),
			Confidence:     0.8,
		},
		OverallConfidence: 0.825,
		RelatedFiles:      []RelatedFile{{OriginalPath: path[:len(path)-4] + ".srt"}},
	}
}

func TestDatabaseOpenClose(t *testing.T) {
	db := setupTestDB(t)

	if _, err := os.Stat(db.Path()); os.IsNotExist(err) {
		t.Errorf("database file was not created at %s", db.Path())
	}

	version, err := db.SchemaVersion()
	if err != nil {
		t.Fatalf("failed to query schema_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("schema version = %d, want %d", version, currentSchemaVersion)
	}

	// Reopening must not re-run migrations.
	path := db.Path()
	db.Close()
	again, err := OpenPath(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer again.Close()
	if v, _ := again.SchemaVersion(); v != currentSchemaVersion {
		t.Errorf("schema version after reopen = %d", v)
	}
}

func TestOpenInMemory(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer db.Close()

	b := &RenameBatch{TargetPath: "/media"}
	if err := db.CreateRenameBatch(context.Background(), b, nil); err != nil {
		t.Fatalf("CreateRenameBatch: %v", err)
	}
	if _, err := db.GetRenameBatch(context.Background(), b.ID); err != nil {
		t.Fatalf("GetRenameBatch: %v", err)
	}
}

func TestCreateRenameBatch_RoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	items := []*RenameItem{
		sampleItem("/media/in/Inception.2010.1080p.mkv", lifecycle.StatusMatched),
		sampleItem("/media/in/other.mkv", lifecycle.StatusNeedsConfirmation),
	}
	items[1].Match = nil
	items[1].NeedsConfirmation = true
	items[1].ConfirmationReason = "no_catalog_match"

	b := &RenameBatch{
		TargetPath: "/media/in",
		Options:    []byte(`{"standard":"emby"}`),
		Status:     BatchPreviewing,
		Counters:   Counters{Total: 2, Skipped: 0},
	}
	if err := db.CreateRenameBatch(ctx, b, items); err != nil {
		t.Fatalf("CreateRenameBatch: %v", err)
	}
	if b.ID == "" {
		t.Fatal("expected generated batch id")
	}
	if items[0].ID == 0 || items[1].ID == 0 || items[0].BatchID != b.ID {
		t.Fatalf("item ids not assigned: %+v %+v", items[0], items[1])
	}

	got, err := db.GetRenameBatch(ctx, b.ID)
	if err != nil {
		t.Fatalf("GetRenameBatch: %v", err)
	}
	if got.Status != BatchPreviewing || got.Counters.Total != 2 || string(got.Options) != `{"standard":"emby"}` {
		t.Errorf("unexpected batch: %+v", got)
	}

	list, err := db.ListRenameItems(ctx, b.ID, ItemFilter{})
	if err != nil {
		t.Fatalf("ListRenameItems: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d items, want 2", len(list))
	}
	first := list[0]
	if first.Parsed == nil || first.Parsed.Title != "Inception" || *first.Parsed.Year != 2010 {
		t.Errorf("parsed info lost: %+v", first.Parsed)
	}
	if first.Match == nil || first.Match.ExternalID != "27205" {
		t.Errorf("match lost: %+v", first.Match)
	}
	if len(first.RelatedFiles) != 1 || first.RelatedFiles[0].OriginalPath != "/media/in/Inception.2010.1080p.srt" {
		t.Errorf("related files lost: %+v", first.RelatedFiles)
	}
	if first.ExecutedAt != nil || first.RolledBackAt != nil {
		t.Error("fresh item must not be executed")
	}
	if list[1].Match != nil || !list[1].NeedsConfirmation || list[1].ConfirmationReason != "no_catalog_match" {
		t.Errorf("unexpected second item: %+v", list[1])
	}

	filtered, err := db.ListRenameItems(ctx, b.ID, ItemFilter{Statuses: []lifecycle.Status{lifecycle.StatusMatched, lifecycle.StatusParsed}})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != items[0].ID {
		t.Errorf("status filter returned %d items", len(filtered))
	}
}

func TestCreateRenameBatch_RejectsUnknownStatus(t *testing.T) {
	db := setupTestDB(t)
	err := db.CreateRenameBatch(context.Background(), &RenameBatch{TargetPath: "/x"},
		[]*RenameItem{sampleItem("/x/a.mkv", lifecycle.Status("bogus"))})
	if err == nil {
		t.Fatal("expected error for unreachable status")
	}
	batches, _ := db.ListRenameBatches(context.Background(), 10)
	if len(batches) != 0 {
		t.Errorf("batch must not be created when an item fails, got %d", len(batches))
	}
}

func TestGetRenameBatch_NotFound(t *testing.T) {
	db := setupTestDB(t)
	_, err := db.GetRenameBatch(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetRenameBatchStatus_CompareAndSet(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b := &RenameBatch{TargetPath: "/media", Status: BatchPreviewing}
	if err := db.CreateRenameBatch(ctx, b, nil); err != nil {
		t.Fatal(err)
	}

	if err := db.SetRenameBatchStatus(ctx, b.ID, BatchPreviewing, BatchExecuting, ""); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	err := db.SetRenameBatchStatus(ctx, b.ID, BatchPreviewing, BatchExecuting, "")
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("stale transition: expected ErrConflict, got %v", err)
	}
	err = db.SetRenameBatchStatus(ctx, "nope", BatchPreviewing, BatchExecuting, "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown batch: expected ErrNotFound, got %v", err)
	}

	if err := db.AddRenameBatchCounters(ctx, b.ID, Counters{Success: 2, Failed: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.AddRenameBatchCounters(ctx, b.ID, Counters{Success: 1, Skipped: 4}); err != nil {
		t.Fatal(err)
	}
	got, _ := db.GetRenameBatch(ctx, b.ID)
	if got.Counters != (Counters{Success: 3, Failed: 1, Skipped: 4}) {
		t.Errorf("counters = %+v", got.Counters)
	}
	if !BatchCompleted.Terminal() || BatchExecuting.Terminal() {
		t.Error("Terminal classification is wrong")
	}
}

func TestClaimRenameBatch_OneWinner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b := &RenameBatch{TargetPath: "/media", Status: BatchPreviewing}
	if err := db.CreateRenameBatch(ctx, b, nil); err != nil {
		t.Fatal(err)
	}

	claim, err := db.ClaimRenameBatch(ctx, b.ID, BatchPreviewing, 0)
	if err != nil || claim != 1 {
		t.Fatalf("first claim = %d, %v", claim, err)
	}

	// Two resumers that both loaded claim 1: only the first wins.
	if claim, err = db.ClaimRenameBatch(ctx, b.ID, BatchExecuting, 1); err != nil || claim != 2 {
		t.Fatalf("resume claim = %d, %v", claim, err)
	}
	if _, err := db.ClaimRenameBatch(ctx, b.ID, BatchExecuting, 1); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale claim: expected ErrConflict, got %v", err)
	}
	if _, err := db.ClaimRenameBatch(ctx, "nope", BatchExecuting, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown batch: expected ErrNotFound, got %v", err)
	}

	got, err := db.RenameBatchClaim(ctx, b.ID)
	if err != nil || got != 2 {
		t.Fatalf("claim = %d, %v", got, err)
	}
	loaded, _ := db.GetRenameBatch(ctx, b.ID)
	if loaded.Status != BatchExecuting || loaded.Claim != 2 {
		t.Errorf("batch = %s claim %d", loaded.Status, loaded.Claim)
	}
}

func TestUpdateRenameItem_GuardsTransitions(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	it := sampleItem("/media/a.mkv", lifecycle.StatusMatched)
	if err := db.CreateRenameBatch(ctx, &RenameBatch{TargetPath: "/media"}, []*RenameItem{it}); err != nil {
		t.Fatal(err)
	}

	from, err := db.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenamed, ItemUpdate{})
	var te *lifecycle.TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if from != lifecycle.StatusMatched {
		t.Errorf("from = %s", from)
	}
	got, _ := db.GetRenameItem(ctx, it.ID)
	if got.Status != lifecycle.StatusMatched {
		t.Errorf("status changed despite rejected transition: %s", got.Status)
	}

	if _, err := db.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenaming, ItemUpdate{
		NewPath: Ptr("/media/Inception (2010)/Inception (2010).mkv"),
		NewName: Ptr("Inception (2010).mkv"),
	}); err != nil {
		t.Fatalf("matched -> renaming: %v", err)
	}
	// Same-state writes are no-ops for the guard but still persist fields.
	if _, err := db.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenaming, ItemUpdate{Action: Ptr("copy")}); err != nil {
		t.Fatalf("renaming -> renaming: %v", err)
	}
	got, _ = db.GetRenameItem(ctx, it.ID)
	if got.NewName != "Inception (2010).mkv" || got.Action != "copy" {
		t.Errorf("fields not persisted: %+v", got)
	}

	if _, err := db.UpdateRenameItem(ctx, 999, lifecycle.StatusRenaming, ItemUpdate{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateRenameItem_ExecutionOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	items := []*RenameItem{
		sampleItem("/m/a.mkv", lifecycle.StatusParsed),
		sampleItem("/m/b.mkv", lifecycle.StatusParsed),
		sampleItem("/m/c.mkv", lifecycle.StatusParsed),
	}
	b := &RenameBatch{TargetPath: "/m"}
	if err := db.CreateRenameBatch(ctx, b, items); err != nil {
		t.Fatal(err)
	}

	// Execute c, a, then b.
	for _, it := range []*RenameItem{items[2], items[0], items[1]} {
		if _, err := db.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenaming, ItemUpdate{}); err != nil {
			t.Fatal(err)
		}
		if _, err := db.UpdateRenameItem(ctx, it.ID, lifecycle.StatusRenamed, ItemUpdate{MarkExecuted: true}); err != nil {
			t.Fatal(err)
		}
	}

	executed, err := db.ListRenameItems(ctx, b.ID, ItemFilter{OnlyExecuted: true})
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, it := range executed {
		order = append(order, filepath.Base(it.OriginalPath))
	}
	if len(order) != 3 || order[0] != "b.mkv" || order[1] != "a.mkv" || order[2] != "c.mkv" {
		t.Fatalf("reverse execution order = %v", order)
	}
	if executed[0].ExecOrder != 3 || executed[2].ExecOrder != 1 {
		t.Errorf("exec orders = %d..%d", executed[0].ExecOrder, executed[2].ExecOrder)
	}

	if _, err := db.UpdateRenameItem(ctx, items[1].ID, lifecycle.StatusRenamed, ItemUpdate{MarkRolledBack: true}); err != nil {
		t.Fatal(err)
	}
	executed, _ = db.ListRenameItems(ctx, b.ID, ItemFilter{OnlyExecuted: true})
	if len(executed) != 2 {
		t.Errorf("rolled back item still listed as executed: %d", len(executed))
	}
	got, _ := db.GetRenameItem(ctx, items[1].ID)
	if got.Executed() || got.RolledBackAt == nil {
		t.Errorf("rollback not recorded: %+v", got)
	}
}

func TestDeleteRenameBatch_CascadesItems(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	it := sampleItem("/m/a.mkv", lifecycle.StatusParsed)
	b := &RenameBatch{TargetPath: "/m"}
	if err := db.CreateRenameBatch(ctx, b, []*RenameItem{it}); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteRenameBatch(ctx, b.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetRenameItem(ctx, it.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("item survived batch deletion: %v", err)
	}
}

func TestConcurrentItemUpdates(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	var items []*RenameItem
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		items = append(items, sampleItem("/m/"+name+".mkv", lifecycle.StatusMatched))
	}
	b := &RenameBatch{TargetPath: "/m"}
	if err := db.CreateRenameBatch(ctx, b, items); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	for _, it := range items {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if _, err := db.UpdateRenameItem(ctx, id, lifecycle.StatusRenaming, ItemUpdate{}); err != nil {
				t.Errorf("renaming %d: %v", id, err)
				return
			}
			if _, err := db.UpdateRenameItem(ctx, id, lifecycle.StatusRenamed, ItemUpdate{MarkExecuted: true}); err != nil {
				t.Errorf("renamed %d: %v", id, err)
			}
		}(it.ID)
	}
	wg.Wait()

	executed, _ := db.ListRenameItems(ctx, b.ID, ItemFilter{OnlyExecuted: true})
	seen := map[int]bool{}
	for _, it := range executed {
		if seen[it.ExecOrder] {
			t.Errorf("duplicate exec order %d", it.ExecOrder)
		}
		seen[it.ExecOrder] = true
	}
	if len(seen) != len(items) {
		t.Errorf("got %d distinct exec orders, want %d", len(seen), len(items))
	}
}

func TestCategoryStrategy(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	s, err := db.GetCategoryStrategy(ctx)
	if err != nil || s != nil {
		t.Fatalf("expected nil strategy before save, got %+v, %v", s, err)
	}

	in := &CategoryStrategy{Enabled: true, AnimeKeywords: []string{"anime", "动画"}, AnimeFolder: "Anime", MovieFolder: "Movies", TVFolder: "TV"}
	if err := db.SaveCategoryStrategy(ctx, in); err != nil {
		t.Fatal(err)
	}
	in.TVFolder = "Series"
	if err := db.SaveCategoryStrategy(ctx, in); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetCategoryStrategy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Enabled || got.TVFolder != "Series" || len(got.AnimeKeywords) != 2 || got.AnimeKeywords[1] != "动画" {
		t.Errorf("unexpected strategy: %+v", got)
	}
}

func TestLogOperation(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	ops := []OperationLog{
		{OperationType: OpMove, BatchID: "b1", ItemID: 1, SourcePath: "/a", TargetPath: "/b", Bytes: 100, ExecutedBy: ExecCLI},
		{OperationType: OpRollback, BatchID: "b1", ItemID: 1, SourcePath: "/b", TargetPath: "/a", Bytes: 100, ExecutedBy: ExecCLI},
		{OperationType: OpCopy, BatchID: "b2", ItemID: 7, SourcePath: "/c", TargetPath: "/d", Bytes: 50, ExecutedBy: ExecAPI},
	}
	for _, op := range ops {
		if err := db.LogOperation(ctx, op); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := db.GetRecentOperations(ctx, "b1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].OperationType != OpRollback {
		t.Errorf("unexpected recent operations: %+v", recent)
	}

	counts, bytes, err := db.GetOperationStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts[OpMove] != 1 || counts[OpCopy] != 1 || counts[OpRollback] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if bytes != 150 {
		t.Errorf("bytes = %d, want 150", bytes)
	}
}
