package organizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nomadcxx/jellysort/internal/ai"
	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/lifecycle"
	"github.com/Nomadcxx/jellysort/internal/llm"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

func setupTestDB(t *testing.T) *database.MediaDB {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("video"), 0644))
}

func testCatalog() *catalog.Static {
	return catalog.NewStatic().
		AddMovie(catalog.Candidate{ExternalID: "m1", Title: "Movie Name", Year: naming.IntPtr(2023), MediaType: naming.MediaMovie}).
		AddShow(catalog.Candidate{ExternalID: "s1", Title: "Show Name", Year: naming.IntPtr(2020), MediaType: naming.MediaTV})
}

func newTestEngine(t *testing.T, db *database.MediaDB, opts ...Option) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.ParseConcurrency = 2
	base := []Option{WithCatalog(testCatalog())}
	return NewEngine(db, cfg, append(base, opts...)...)
}

func itemByName(items []*database.RenameItem, name string) *database.RenameItem {
	for _, it := range items {
		if it.OriginalName == name {
			return it
		}
	}
	return nil
}

func TestPreview_ProposesCanonicalLayout(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))
	createTestFile(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.en.srt"))
	createTestFile(t, filepath.Join(dir, "dl", "Show.Name.S01E02.1080p.WEB-DL.mkv"))
	createTestFile(t, filepath.Join(dir, "Unknown.Thing.mkv"))

	db := setupTestDB(t)
	e := newTestEngine(t, db)

	res, err := e.Preview(context.Background(), dir, PreviewOptions{})
	require.NoError(t, err)
	require.Len(t, res.Items, 3)
	assert.Equal(t, database.BatchPreviewing, res.Batch.Status)
	assert.Equal(t, 3, res.Batch.Counters.Total)

	movie := itemByName(res.Items, "Movie.Name.2023.1080p.BluRay.mkv")
	require.NotNil(t, movie)
	assert.Equal(t, lifecycle.StatusMatched, movie.Status)
	assert.Equal(t, filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023).mkv"), movie.NewPath)
	require.NotNil(t, movie.Match)
	assert.Equal(t, "m1", movie.Match.ExternalID)
	assert.InDelta(t, (movie.Parsed.Confidence+movie.Match.Confidence)/2, movie.OverallConfidence, 1e-9)
	require.Len(t, movie.RelatedFiles, 1)

	show := itemByName(res.Items, "Show.Name.S01E02.1080p.WEB-DL.mkv")
	require.NotNil(t, show)
	assert.Equal(t, filepath.Join(dir, "Show Name (2020)", "Season 01", "Show Name - S01E02.mkv"), show.NewPath)

	unknown := itemByName(res.Items, "Unknown.Thing.mkv")
	require.NotNil(t, unknown)
	assert.Equal(t, lifecycle.StatusNeedsConfirmation, unknown.Status)
	assert.True(t, unknown.NeedsConfirmation)
	assert.Nil(t, unknown.Match)

	stored, err := db.ListRenameItems(context.Background(), res.Batch.ID, database.ItemFilter{})
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	// Preview never touches the filesystem.
	assert.FileExists(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))
}

func TestExecuteRollback_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv")
	sub := filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.en.srt")
	show := filepath.Join(dir, "Show.Name.S01E02.1080p.WEB-DL.mkv")
	createTestFile(t, movie)
	createTestFile(t, sub)
	createTestFile(t, show)

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)

	res, err := e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Success)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, database.BatchCompleted, res.Status)

	newMovie := filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023).mkv")
	assert.FileExists(t, newMovie)
	assert.FileExists(t, filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023).en.srt"))
	assert.FileExists(t, filepath.Join(dir, "Show Name (2020)", "Season 01", "Show Name - S01E02.mkv"))
	assert.NoFileExists(t, movie)

	ops, err := db.GetRecentOperations(ctx, prev.Batch.ID, 10)
	require.NoError(t, err)
	assert.Len(t, ops, 3, "two moves and one sidecar")

	// Executing a finished batch again must not touch anything.
	_, err = e.Execute(ctx, prev.Batch.ID, nil)
	assert.True(t, errors.Is(err, ErrBatchTerminal))
	assert.FileExists(t, newMovie)

	rb, err := e.Rollback(ctx, prev.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rb.Restored)
	assert.Equal(t, 0, rb.Failed)
	assert.FileExists(t, movie)
	assert.FileExists(t, sub)
	assert.FileExists(t, show)
	assert.NoDirExists(t, filepath.Join(dir, "Movie Name (2023)"))
	assert.NoDirExists(t, filepath.Join(dir, "Show Name (2020)"))

	b, err := db.GetRenameBatch(ctx, prev.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, database.BatchRolledBack, b.Status)

	_, err = e.Rollback(ctx, prev.Batch.ID)
	assert.True(t, errors.Is(err, ErrAlreadyRolledBack))
}

func TestExecute_EmptyBatchCompletes(t *testing.T) {
	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, t.TempDir(), PreviewOptions{})
	require.NoError(t, err)

	res, err := e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Success)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, database.BatchCompleted, res.Status)
}

func TestExecute_OverridePromotesNeedsConfirmation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Unknown.Thing.mkv")
	createTestFile(t, src)

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)
	require.Len(t, prev.Items, 1)
	require.Equal(t, lifecycle.StatusNeedsConfirmation, prev.Items[0].Status)

	res, err := e.Execute(ctx, prev.Batch.ID, map[string]string{src: "Known Thing (2001)"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Success)

	want := filepath.Join(filepath.Dir(prev.Items[0].NewPath), "Known Thing (2001).mkv")
	assert.FileExists(t, want)
	assert.NoFileExists(t, src)

	it, err := db.GetRenameItem(ctx, prev.Items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusRenamed, it.Status)
	assert.False(t, it.NeedsConfirmation)
	assert.NotNil(t, it.ExecutedAt)
}

func TestExecute_WithoutOverrideLeavesUnconfirmedItems(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Unknown.Thing.mkv")
	createTestFile(t, src)

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)
	res, err := e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Success+res.Failed+res.Skipped)
	assert.FileExists(t, src)
}

func TestExecute_CollisionGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)

	occupied := filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023).mkv")
	createTestFile(t, occupied)

	res, err := e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Success)
	assert.Equal(t, filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023)_1.mkv"), res.Items[0].NewPath)
	assert.FileExists(t, occupied)
}

func TestExecute_SourceMissingFailsOnlyThatItem(t *testing.T) {
	dir := t.TempDir()
	movie := filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv")
	createTestFile(t, movie)
	createTestFile(t, filepath.Join(dir, "Show.Name.S01E02.1080p.WEB-DL.mkv"))

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)
	require.NoError(t, os.Remove(movie))

	res, err := e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, database.BatchCompletedWithErrors, res.Status)

	var failed *ItemOutcome
	for i := range res.Items {
		if res.Items[i].Outcome == OutcomeFailed {
			failed = &res.Items[i]
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, CodeSourceMissing, failed.ErrorCode)

	it, err := db.GetRenameItem(ctx, failed.ItemID)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StatusRenameFailed, it.Status)
	assert.Equal(t, string(CodeSourceMissing), it.ErrorCode)
}

// failingTransferer fails every transfer whose source has the given base name.
type failingTransferer struct {
	transfer.Transferer
	name string
}

func (f failingTransferer) Transfer(action transfer.Action, src, dst string, opts transfer.Options) (*transfer.Result, error) {
	if filepath.Base(src) == f.name {
		return nil, errors.New("disk on fire")
	}
	return f.Transferer.Transfer(action, src, dst, opts)
}

func TestExecute_TransferErrorIsolatedToItem(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))
	createTestFile(t, filepath.Join(dir, "Show.Name.S01E02.1080p.WEB-DL.mkv"))

	db := setupTestDB(t)
	e := newTestEngine(t, db, WithTransferer(failingTransferer{
		Transferer: transfer.NewNativeTransferer(0),
		name:       "Movie.Name.2023.1080p.BluRay.mkv",
	}))
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)

	res, err := e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, database.BatchCompletedWithErrors, res.Status)

	for _, out := range res.Items {
		if out.Outcome == OutcomeFailed {
			assert.Equal(t, CodeTransferFailed, out.ErrorCode)
		}
	}
	assert.FileExists(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))
	assert.FileExists(t, filepath.Join(dir, "Show Name (2020)", "Season 01", "Show Name - S01E02.mkv"))
}

func TestCopyAction_RollbackRemovesCopy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv")
	createTestFile(t, src)

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{Action: transfer.ActionCopy})
	require.NoError(t, err)
	_, err = e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)

	target := filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023).mkv")
	assert.FileExists(t, src)
	assert.FileExists(t, target)

	rb, err := e.Rollback(ctx, prev.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rb.Restored)
	assert.FileExists(t, src)
	assert.NoFileExists(t, target)
}

func TestRollback_OccupiedOriginalIsCounted(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv")
	createTestFile(t, src)

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)
	_, err = e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)

	createTestFile(t, src)
	rb, err := e.Rollback(ctx, prev.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, rb.Restored)
	assert.Equal(t, 1, rb.Failed)
	assert.Equal(t, CodeFilesystemConflict, rb.Items[0].ErrorCode)
	assert.FileExists(t, filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023).mkv"))
}

func TestPreview_OutsideAllowedRootsIsRejected(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))

	db := setupTestDB(t)
	cfg := DefaultConfig()
	cfg.AllowedRoots = []string{t.TempDir()}
	e := NewEngine(db, cfg, WithCatalog(testCatalog()))

	_, err := e.Preview(context.Background(), dir, PreviewOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, transfer.ErrPathSecurity))
	assert.Equal(t, CodePathSecurityViolation, CodeOf(err))
}

func TestPreview_OutputRootOutsideAllowedRootsIsRejected(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))

	db := setupTestDB(t)
	cfg := DefaultConfig()
	cfg.AllowedRoots = []string{dir}
	e := NewEngine(db, cfg, WithCatalog(testCatalog()))

	_, err := e.Preview(context.Background(), dir, PreviewOptions{OutputRoot: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, transfer.ErrPathSecurity))
	assert.FileExists(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))
}

func TestSingleFileTarget_ExecuteAndRollback(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv")
	createTestFile(t, src)

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, src, PreviewOptions{})
	require.NoError(t, err)
	require.Len(t, prev.Items, 1)

	target := filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023).mkv")
	res, err := e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, database.BatchCompleted, res.Status)
	assert.FileExists(t, target)

	// The target file itself is gone now; rollback must still find its root.
	rb, err := e.Rollback(ctx, prev.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rb.Restored)
	assert.FileExists(t, src)
}

func TestPreview_OutputRoot(t *testing.T) {
	dir := t.TempDir()
	out := t.TempDir()
	createTestFile(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{OutputRoot: out})
	require.NoError(t, err)
	require.Len(t, prev.Items, 1)
	assert.Equal(t, filepath.Join(out, "Movie Name (2023)", "Movie Name (2023).mkv"), prev.Items[0].NewPath)

	res, err := e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.FileExists(t, prev.Items[0].NewPath)
}

type slowProvider struct{}

func (slowProvider) ID() string             { return "slow" }
func (slowProvider) Type() llm.ProviderType { return llm.ProviderTypeOllama }
func (slowProvider) Info() llm.ProviderInfo { return llm.ProviderInfo{ID: "slow"} }
func (slowProvider) Complete(ctx context.Context, _ string, _ llm.CompletionOptions) (*llm.Completion, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPreview_SlowClassifierDoesNotStallGroup(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.b.c.mkv", "d.e.f.mkv", "g.h.i.mkv", "j.k.l.mkv"} {
		createTestFile(t, filepath.Join(dir, name))
	}

	db := setupTestDB(t)
	classifier := ai.NewClassifier([]llm.Provider{slowProvider{}}, ai.WithHardCap(50*time.Millisecond))
	e := newTestEngine(t, db, WithClassifier(classifier))

	start := time.Now()
	res, err := e.Preview(context.Background(), dir, PreviewOptions{Algorithm: AlgorithmAIOnly})
	require.NoError(t, err)
	assert.Len(t, res.Items, 4)
	assert.Less(t, time.Since(start), 5*time.Second)
	for _, it := range res.Items {
		require.NotNil(t, it.Parsed)
		assert.Equal(t, naming.SourceLocal, it.Parsed.Source)
	}
}

func TestStatus_CountsByItemStatus(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))
	createTestFile(t, filepath.Join(dir, "Unknown.Thing.mkv"))

	db := setupTestDB(t)
	e := newTestEngine(t, db)
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)

	snap, err := e.Status(ctx, prev.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.ByStatus[lifecycle.StatusMatched])
	assert.Equal(t, 1, snap.ByStatus[lifecycle.StatusNeedsConfirmation])

	_, err = e.Status(ctx, "missing")
	assert.True(t, errors.Is(err, ErrBatchNotFound))
}

func TestFail_FollowsStateMachine(t *testing.T) {
	boom := itemErr(CodeParseFailure, "identification aborted", errors.New("boom"))

	tests := []struct {
		name     string
		from     lifecycle.Status
		wantTo   lifecycle.Status
		wantCode string
	}{
		{"pending", lifecycle.StatusPending, lifecycle.StatusRenameFailed, string(CodeParseFailure)},
		{"matching", lifecycle.StatusMatching, lifecycle.StatusRenameFailed, string(CodeParseFailure)},
		{"needs confirmation", lifecycle.StatusNeedsConfirmation, lifecycle.StatusRenameFailed, string(CodeParseFailure)},
		{"renamed has no failure edge", lifecycle.StatusRenamed, lifecycle.StatusRenamed, "invalid_state_transition"},
		{"scrape failed has no rename failure edge", lifecycle.StatusScrapeFailed, lifecycle.StatusScrapeFailed, "invalid_state_transition"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			it := &database.RenameItem{Status: tt.from}
			fail(it, boom)
			assert.Equal(t, tt.wantTo, it.Status)
			assert.Equal(t, tt.wantCode, it.ErrorCode)
			assert.NotEmpty(t, it.ErrorMessage)
		})
	}
}

func TestRollback_RemovesEmptyCategoryFolder(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "anime-inbox", "Show.Name.S01E02.1080p.WEB-DL.mkv")
	createTestFile(t, src)

	db := setupTestDB(t)
	e := newTestEngine(t, db, WithCategory(CategoryStrategy{
		Enabled:       true,
		AnimeKeywords: []string{"anime"},
		Folders:       FolderNames{Anime: "Anime", Movie: "Movies", TV: "TV Shows"},
	}))
	ctx := context.Background()

	prev, err := e.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)
	res, err := e.Execute(ctx, prev.Batch.ID, nil)
	require.NoError(t, err)
	require.Equal(t, 1, res.Success)
	assert.FileExists(t, filepath.Join(dir, "Anime", "Show Name (2020)", "Season 01", "Show Name - S01E02.mkv"))

	rb, err := e.Rollback(ctx, prev.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rb.Restored)
	assert.FileExists(t, src)
	assert.NoDirExists(t, filepath.Join(dir, "Anime"))
	assert.DirExists(t, dir)
}

// takeoverTransferer runs onFirst before the first transfer it performs.
type takeoverTransferer struct {
	transfer.Transferer
	once    *sync.Once
	onFirst func()
}

func (h takeoverTransferer) Transfer(action transfer.Action, src, dst string, opts transfer.Options) (*transfer.Result, error) {
	h.once.Do(h.onFirst)
	return h.Transferer.Transfer(action, src, dst, opts)
}

func TestExecute_TakenOverBatchStopsAndResumesElsewhere(t *testing.T) {
	dir := t.TempDir()
	createTestFile(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))
	createTestFile(t, filepath.Join(dir, "Show.Name.S01E02.1080p.WEB-DL.mkv"))

	db := setupTestDB(t)
	ctx := context.Background()
	var batchID string

	// Another process claims the batch while the first item is being placed.
	first := newTestEngine(t, db, WithTransferer(takeoverTransferer{
		Transferer: transfer.NewNativeTransferer(0),
		once:       &sync.Once{},
		onFirst: func() {
			_, err := db.ClaimRenameBatch(ctx, batchID, database.BatchExecuting, 1)
			require.NoError(t, err)
		},
	}))

	prev, err := first.Preview(ctx, dir, PreviewOptions{})
	require.NoError(t, err)
	batchID = prev.Batch.ID

	res, err := first.Execute(ctx, batchID, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBatchBusy))
	assert.Equal(t, 1, res.Success)

	b, err := db.GetRenameBatch(ctx, batchID)
	require.NoError(t, err)
	assert.Equal(t, database.BatchExecuting, b.Status, "a lost claim must not fail the batch")
	assert.Equal(t, int64(2), b.Claim)

	second := newTestEngine(t, db)
	res, err = second.Execute(ctx, batchID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Success)
	assert.Equal(t, database.BatchCompleted, res.Status)

	assert.FileExists(t, filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023).mkv"))
	assert.FileExists(t, filepath.Join(dir, "Show Name (2020)", "Season 01", "Show Name - S01E02.mkv"))
}
