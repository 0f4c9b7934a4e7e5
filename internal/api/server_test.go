package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nomadcxx/jellysort/internal/catalog"
	"github.com/Nomadcxx/jellysort/internal/config"
	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/organizer"
	"github.com/Nomadcxx/jellysort/internal/scrape"
)

type testEnv struct {
	db      *database.MediaDB
	runner  *scrape.Runner
	handler http.Handler
}

func newTestEnv(t *testing.T, allowedRoots ...string) *testEnv {
	t.Helper()
	db, err := database.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cat := catalog.NewStatic().
		AddMovie(catalog.Candidate{ExternalID: "m1", Title: "Movie Name", Year: naming.IntPtr(2023), MediaType: naming.MediaMovie})

	cfg := organizer.DefaultConfig()
	cfg.AllowedRoots = allowedRoots
	engine := organizer.NewEngine(db, cfg, organizer.WithCatalog(cat))
	runner := scrape.NewRunner(db, engine, scrape.WithSidecars(false, false))
	t.Cleanup(runner.Close)

	srv := NewServer(engine, runner, db, config.ServerConfig{Addr: "127.0.0.1:0"}, WithVersion("test"))
	return &testEnv{db: db, runner: runner, handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func mediaDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"Movie.Name.2023.1080p.BluRay.mkv", "Unknown.Thing.mkv"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("video"), 0644))
	}
	return dir
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	decode(t, w, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestBatchPreviewExecuteRollback(t *testing.T) {
	env := newTestEnv(t)
	dir := mediaDir(t)

	w := env.do(t, http.MethodPost, "/api/v1/batches", map[string]interface{}{"target_path": dir})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var preview previewResponse
	decode(t, w, &preview)
	assert.Equal(t, string(database.BatchPreviewing), preview.Batch.Status)
	assert.Len(t, preview.Items, 2)
	id := preview.Batch.ID

	w = env.do(t, http.MethodGet, "/api/v1/batches/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status batchStatusResponse
	decode(t, w, &status)
	assert.Len(t, status.Items, 2)

	w = env.do(t, http.MethodPost, "/api/v1/batches/"+id+"/execute", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var exec organizer.ExecuteResult
	decode(t, w, &exec)
	assert.Equal(t, 1, exec.Success)
	assert.Equal(t, database.BatchCompleted, exec.Status)
	assert.FileExists(t, filepath.Join(dir, "Movie Name (2023)", "Movie Name (2023).mkv"))

	w = env.do(t, http.MethodGet, "/api/v1/batches/"+id+"/operations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ops []OperationView
	decode(t, w, &ops)
	assert.NotEmpty(t, ops)

	w = env.do(t, http.MethodPost, "/api/v1/batches/"+id+"/execute", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/batches/"+id+"/rollback", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rb organizer.RollbackResult
	decode(t, w, &rb)
	assert.Equal(t, 1, rb.Restored)
	assert.FileExists(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))

	w = env.do(t, http.MethodPost, "/api/v1/batches/"+id+"/rollback", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	var apiErr map[string]string
	decode(t, w, &apiErr)
	assert.Equal(t, "already_rolled_back", apiErr["code"])

	w = env.do(t, http.MethodGet, "/api/v1/batches?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []BatchView
	decode(t, w, &list)
	require.Len(t, list, 1)
	assert.Equal(t, string(database.BatchRolledBack), list[0].Status)
}

func TestBatchErrors(t *testing.T) {
	env := newTestEnv(t)
	dir := mediaDir(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown batch", http.MethodGet, "/api/v1/batches/nope", nil, http.StatusNotFound, "not_found"},
		{"execute unknown batch", http.MethodPost, "/api/v1/batches/nope/execute", nil, http.StatusNotFound, "not_found"},
		{"missing target", http.MethodPost, "/api/v1/batches", map[string]string{}, http.StatusBadRequest, "invalid_request"},
		{"target does not exist", http.MethodPost, "/api/v1/batches",
			map[string]string{"target_path": filepath.Join(dir, "gone")}, http.StatusBadRequest, "target_not_found"},
		{"bad algorithm", http.MethodPost, "/api/v1/batches",
			map[string]string{"target_path": dir, "algorithm": "guess"}, http.StatusBadRequest, "invalid_request"},
		{"unknown field", http.MethodPost, "/api/v1/batches",
			map[string]string{"target_path": dir, "colour": "red"}, http.StatusBadRequest, "invalid_request"},
		{"bad limit", http.MethodGet, "/api/v1/batches?limit=-1", nil, http.StatusBadRequest, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			var body map[string]string
			decode(t, w, &body)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestPathOutsideAllowedRootsIsForbidden(t *testing.T) {
	env := newTestEnv(t, t.TempDir())
	dir := mediaDir(t)

	for _, path := range []string{"/api/v1/batches", "/api/v1/jobs"} {
		w := env.do(t, http.MethodPost, path, map[string]string{"target_path": dir})
		require.Equal(t, http.StatusForbidden, w.Code, w.Body.String())
		var body map[string]string
		decode(t, w, &body)
		assert.Equal(t, string(organizer.CodePathSecurityViolation), body["code"])
	}
	assert.FileExists(t, filepath.Join(dir, "Movie.Name.2023.1080p.BluRay.mkv"))
}

func TestJobCreateStartAndStatus(t *testing.T) {
	env := newTestEnv(t)
	dir := mediaDir(t)

	w := env.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"target_path": dir, "start": true})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var job JobView
	decode(t, w, &job)
	require.NotEmpty(t, job.ID)
	assert.NotEqual(t, string(database.JobPending), job.Status)

	env.runner.Wait()

	w = env.do(t, http.MethodGet, "/api/v1/jobs/"+job.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status jobStatusResponse
	decode(t, w, &status)
	assert.Equal(t, string(database.JobCompleted), status.Job.Status)
	assert.False(t, status.Job.Running)
	assert.Equal(t, database.Counters{Total: 2, Success: 1, Skipped: 1}, status.Job.Counters)
	assert.Len(t, status.Items, 2)

	// Finished jobs cannot be restarted or stopped.
	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = env.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/stop", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/jobs?status=completed,failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []JobView
	decode(t, w, &list)
	assert.Len(t, list, 1)
}

func TestJobStopPending(t *testing.T) {
	env := newTestEnv(t)
	dir := mediaDir(t)

	w := env.do(t, http.MethodPost, "/api/v1/jobs", map[string]interface{}{"target_path": dir})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var job JobView
	decode(t, w, &job)
	assert.Equal(t, string(database.JobPending), job.Status)

	for i := 0; i < 2; i++ {
		w = env.do(t, http.MethodPost, "/api/v1/jobs/"+job.ID+"/stop", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decode(t, w, &job)
		assert.Equal(t, string(database.JobCancelled), job.Status)
	}

	w = env.do(t, http.MethodPost, "/api/v1/jobs/missing/start", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCategoryRoundTrip(t *testing.T) {
	env := newTestEnv(t)

	want := organizer.CategoryStrategy{
		Enabled:       true,
		AnimeKeywords: []string{"anime", "subsplease"},
		Folders:       organizer.FolderNames{Anime: "Anime", Movie: "Movies", TV: "Shows"},
	}
	w := env.do(t, http.MethodPut, "/api/v1/category", want)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/v1/category", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got organizer.CategoryStrategy
	decode(t, w, &got)
	assert.Equal(t, want, got)

	stored, err := env.db.GetCategoryStrategy(t.Context())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "Shows", stored.TVFolder)
}
