package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/psylab/epochsync/internal/loader"
	"github.com/psylab/epochsync/internal/pipeline"
	"github.com/psylab/epochsync/internal/report"
)

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	// Limit total request size.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1024*1024) // extra 1MB for form overhead

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonError(w, "invalid multipart form: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	logData, logName, err := s.readFormFile(r, "log")
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	triggerData, triggerName, err := s.readFormFile(r, "triggers")
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !loader.IsSupportedTriggerFile(triggerName) {
		jsonError(w, fmt.Sprintf("unsupported trigger file type: %s", filepath.Ext(triggerName)), http.StatusBadRequest)
		return
	}

	opts := s.cfg.Sync
	if v := r.FormValue("entry_delimiter"); v != "" {
		opts.EntryDelimiter = v
	}
	if v := r.FormValue("kv_delimiter"); v != "" {
		opts.KVDelimiter = v
	}
	if v := r.FormValue("depth_key"); v != "" {
		opts.DepthKey = v
	}
	if v := r.FormValue("patterns"); v != "" {
		opts.ConditionPatterns = splitPatterns(v)
	}
	if v := r.FormValue("edf_signal"); v != "" {
		opts.EDFSignal = v
	}
	keepTree := r.FormValue("include_tree") == "true"

	if len(opts.ConditionPatterns) == 0 {
		jsonError(w, "patterns is required (comma-separated condition globs)", http.StatusBadRequest)
		return
	}

	sessionID := r.FormValue("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	now := time.Now()
	job := &pipeline.Job{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		Status:          pipeline.StatusQueued,
		Phase:           "queued",
		LogFilename:     logName,
		TriggerFilename: triggerName,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	job.SetInput(logData, triggerData, opts, keepTree)

	if err := s.orchestrator.Submit(job); err != nil {
		jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]any{
		"job_id":     job.ID,
		"session_id": job.SessionID,
		"status":     job.Status,
		"poll_url":   fmt.Sprintf("/api/sessions/%s/status", job.ID),
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.orchestrator.GetJob(jobID)
	if job == nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	snap := job.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleSessionEpochs(w http.ResponseWriter, r *http.Request) {
	res, code, errMsg := s.lookupResult(chi.URLParam(r, "jobID"))
	if res == nil {
		jsonError(w, errMsg, code)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"session_id":      res.SessionID,
		"epochs":          res.Epochs,
		"aligned":         res.Aligned,
		"skipped_markers": res.SkippedMarkers,
	})
}

func (s *Server) handleSessionTree(w http.ResponseWriter, r *http.Request) {
	res, code, errMsg := s.lookupResult(chi.URLParam(r, "jobID"))
	if res == nil {
		jsonError(w, errMsg, code)
		return
	}
	if res.Tree == nil {
		jsonError(w, "tree not retained for this session (submit with include_tree=true)", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(res.Tree)
}

func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	res, code, errMsg := s.lookupResult(chi.URLParam(r, "jobID"))
	if res == nil {
		jsonError(w, errMsg, code)
		return
	}
	html, err := report.HTML(res.SessionID, res.Epochs, res.SkippedMarkers)
	if err != nil {
		jsonError(w, "report rendering failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(html)
}

// lookupResult finds a completed result by job ID, checking the in-memory
// job first and falling back to the persisted result store for evicted jobs.
func (s *Server) lookupResult(jobID string) (*pipeline.Result, int, string) {
	if job := s.orchestrator.GetJob(jobID); job != nil {
		if res := job.Result(); res != nil {
			return res, 0, ""
		}
		snap := job.Snapshot()
		if snap.Status == pipeline.StatusFailed {
			return nil, http.StatusConflict, "job failed during phase " + snap.Phase
		}
		return nil, http.StatusAccepted, "job not complete yet"
	}
	// The job may have been evicted after completion. Results are keyed by
	// session ID, which callers commonly set equal to the job ID.
	var res pipeline.Result
	if err := s.results.Load(jobID, &res); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, http.StatusNotFound, "job not found"
		}
		return nil, http.StatusInternalServerError, "failed to load result: " + err.Error()
	}
	return &res, 0, ""
}

func (s *Server) readFormFile(r *http.Request, field string) ([]byte, string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, "", fmt.Errorf("%s file is required: %w", field, err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.cfg.MaxUploadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read %s file", field)
	}
	if int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, "", fmt.Errorf("%s file exceeds max size (%d bytes)", field, s.cfg.MaxUploadBytes)
	}
	return data, sanitizeFilename(header.Filename), nil
}

func splitPatterns(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func sanitizeFilename(name string) string {
	// Strip path components, keep only the base name.
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	name = strings.ReplaceAll(name, "..", "_")
	if name == "" || name == "." {
		name = "unnamed"
	}
	return name
}
