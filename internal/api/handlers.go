package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Nomadcxx/jellysort/internal/database"
	"github.com/Nomadcxx/jellysort/internal/logging"
	"github.com/Nomadcxx/jellysort/internal/naming"
	"github.com/Nomadcxx/jellysort/internal/organizer"
	"github.com/Nomadcxx/jellysort/internal/scrape"
	"github.com/Nomadcxx/jellysort/internal/transfer"
)

const maxBodyBytes = 1 << 20

// OptionsRequest carries the per-run overrides accepted by preview and job
// creation. Empty fields fall back to the configuration.
type OptionsRequest struct {
	Algorithm  string `json:"algorithm,omitempty"`
	Standard   string `json:"standard,omitempty"`
	Action     string `json:"action,omitempty"`
	OutputRoot string `json:"output_root,omitempty"`
	ForceAI    bool   `json:"force_ai,omitempty"`
}

func (o OptionsRequest) preview() (organizer.PreviewOptions, error) {
	opts := organizer.PreviewOptions{OutputRoot: o.OutputRoot, ForceAI: o.ForceAI}
	var err error
	if o.Algorithm != "" {
		if opts.Algorithm, err = organizer.ParseAlgorithm(o.Algorithm); err != nil {
			return opts, err
		}
	}
	if o.Standard != "" {
		if opts.Standard, err = naming.ParseStandard(o.Standard); err != nil {
			return opts, err
		}
	}
	if o.Action != "" {
		if opts.Action, err = transfer.ParseAction(o.Action); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

type previewRequest struct {
	TargetPath string `json:"target_path"`
	OptionsRequest
}

type previewResponse struct {
	Batch BatchView  `json:"batch"`
	Items []ItemView `json:"items"`
}

type executeRequest struct {
	// Overrides maps an original path to a replacement file name.
	Overrides map[string]string `json:"overrides,omitempty"`
}

type batchStatusResponse struct {
	Batch    BatchView      `json:"batch"`
	ByStatus map[string]int `json:"by_status"`
	Items    []ItemView     `json:"items"`
}

type createJobRequest struct {
	TargetPath     string `json:"target_path"`
	Start          bool   `json:"start"`
	WriteNFO       *bool  `json:"write_nfo,omitempty"`
	DownloadImages *bool  `json:"download_images,omitempty"`
	OptionsRequest
}

type jobStatusResponse struct {
	Job   JobView    `json:"job"`
	Items []ItemView `json:"items"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TargetPath) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "target_path is required")
		return
	}
	opts, err := req.preview()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	res, err := s.engine.Preview(r.Context(), req.TargetPath, opts)
	if err != nil {
		s.fail(w, "Preview failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, previewResponse{
		Batch: batchView(res.Batch),
		Items: itemViews(res.Items),
	})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	batches, err := s.store.ListRenameBatches(r.Context(), limit)
	if err != nil {
		s.fail(w, "List batches failed", err)
		return
	}
	out := make([]BatchView, len(batches))
	for i, b := range batches {
		out[i] = batchView(b)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "Batch status failed", err)
		return
	}
	byStatus := make(map[string]int, len(snap.ByStatus))
	for st, n := range snap.ByStatus {
		byStatus[string(st)] = n
	}
	writeJSON(w, http.StatusOK, batchStatusResponse{
		Batch:    batchView(snap.Batch),
		ByStatus: byStatus,
		Items:    itemViews(snap.Items),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	res, err := s.engine.Execute(r.Context(), chi.URLParam(r, "id"), req.Overrides)
	if err != nil {
		s.fail(w, "Execute failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Rollback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "Rollback failed", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchOperations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ops, err := s.store.GetRecentOperations(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.fail(w, "List operations failed", err)
		return
	}
	writeJSON(w, http.StatusOK, operationViews(ops))
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.TargetPath) == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "target_path is required")
		return
	}
	popts, err := req.preview()
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	job, err := s.runner.Create(r.Context(), req.TargetPath, scrape.Options{
		PreviewOptions: popts,
		WriteNFO:       req.WriteNFO,
		DownloadImages: req.DownloadImages,
	})
	if err != nil {
		s.fail(w, "Create job failed", err)
		return
	}
	if req.Start {
		if err := s.runner.Start(r.Context(), job.ID); err != nil {
			s.fail(w, "Start job failed", err)
			return
		}
		if job, err = s.reloadJob(r, job.ID); err != nil {
			s.fail(w, "Reload job failed", err)
			return
		}
	}
	writeJSON(w, http.StatusCreated, jobView(job, s.runner.Running(job.ID)))
}

// reloadJob rereads a job so the view carries the status written by Start.
func (s *Server) reloadJob(r *http.Request, id string) (*database.ScrapeJob, error) {
	snap, err := s.runner.Status(r.Context(), id)
	if err != nil {
		return nil, err
	}
	return snap.Job, nil
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []database.JobStatus
	for _, v := range r.URL.Query()["status"] {
		for _, st := range strings.Split(v, ",") {
			if st = strings.TrimSpace(st); st != "" {
				statuses = append(statuses, database.JobStatus(st))
			}
		}
	}
	jobs, err := s.store.ListScrapeJobs(r.Context(), statuses...)
	if err != nil {
		s.fail(w, "List jobs failed", err)
		return
	}
	out := make([]JobView, len(jobs))
	for i, j := range jobs {
		out[i] = jobView(j, s.runner.Running(j.ID))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	snap, err := s.runner.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, "Job status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, jobStatusResponse{
		Job:   jobView(snap.Job, snap.Running),
		Items: scrapeItemViews(snap.Items),
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.runner.Start)
}

func (s *Server) handleStopJob(w http.ResponseWriter, r *http.Request) {
	s.jobAction(w, r, s.runner.Stop)
}

func (s *Server) jobAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, id string) error) {
	id := chi.URLParam(r, "id")
	if err := action(r.Context(), id); err != nil {
		s.fail(w, "Job action failed", err)
		return
	}
	snap, err := s.runner.Status(r.Context(), id)
	if err != nil {
		s.fail(w, "Job status failed", err)
		return
	}
	writeJSON(w, http.StatusOK, jobView(snap.Job, snap.Running))
}

func (s *Server) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	strategy, err := s.engine.Categories().Get(r.Context())
	if err != nil {
		s.fail(w, "Load category strategy failed", err)
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

func (s *Server) handlePutCategory(w http.ResponseWriter, r *http.Request) {
	var strategy organizer.CategoryStrategy
	if !decodeBody(w, r, &strategy) {
		return
	}
	if err := s.engine.Categories().Save(r.Context(), strategy); err != nil {
		s.fail(w, "Save category strategy failed", err)
		return
	}
	writeJSON(w, http.StatusOK, strategy)
}

// fail maps err onto a status code and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, msg string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("api", msg, err)
	} else {
		s.logger.Debug("api", msg, logging.F("error", err.Error()))
	}
	writeError(w, status, code, err.Error())
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, organizer.ErrBatchNotFound), errors.Is(err, scrape.ErrJobNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, transfer.ErrPathSecurity):
		return http.StatusForbidden, string(organizer.CodePathSecurityViolation)
	case errors.Is(err, organizer.ErrAlreadyRolledBack):
		return http.StatusConflict, "already_rolled_back"
	case errors.Is(err, organizer.ErrBatchTerminal), errors.Is(err, scrape.ErrJobTerminal):
		return http.StatusConflict, "terminal"
	case errors.Is(err, organizer.ErrBatchBusy), errors.Is(err, database.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusBadRequest, "target_not_found"
	case errors.Is(err, scrape.ErrClosed):
		return http.StatusServiceUnavailable, "shutting_down"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeBody reads a JSON body into v. An empty body leaves v at its zero
// value.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("invalid body: %v", err))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}
