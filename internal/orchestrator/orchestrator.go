// Package orchestrator exposes the HTTP API: job submission, direct uploads,
// progress polling, result retrieval, and job cancellation.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/docextract/internal/config"
	"github.com/local/docextract/internal/dispatcher"
	"github.com/local/docextract/internal/statuscheck"
	"github.com/local/docextract/internal/store"
)

const maxUploadBytes = 64 << 20

type Queue interface {
	Enqueue(ctx context.Context, payload []byte) error
	CancelJob(ctx context.Context, jobID string) error
}

type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
	Get(ctx context.Context, jobID string) (store.Status, bool, error)
	SetFileJobMapping(ctx context.Context, fileKey, jobID string) error
	GetJobByFileID(ctx context.Context, fileKey string) (string, error)
}

type ResultStore interface {
	Get(ctx context.Context, jobID string) (store.Result, bool, error)
}

type Uploader interface {
	UploadResult(ctx context.Context, key string, data []byte, contentType string) error
}

type Dependencies struct {
	Queue   Queue
	Status  StatusStore
	Results ResultStore
	Storage Uploader
	Checker *statuscheck.Checker
}

type Orchestrator struct {
	deps Dependencies
	cfg  cfgpkg.StorageConfig
}

func New(deps Dependencies, cfg cfgpkg.StorageConfig) *Orchestrator {
	return &Orchestrator{deps: deps, cfg: cfg}
}

func (o *Orchestrator) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/status", o.handleStatus)
	mux.HandleFunc("/api/extract", o.handleExtract)
	mux.HandleFunc("/api/upload", o.handleUpload)
	mux.HandleFunc("/api/progress/", o.handleProgress)
	mux.HandleFunc("/api/result/", o.handleResult)
	mux.HandleFunc("/webhook/cancel_job", o.handleCancelJob)
}

type extractReq struct {
	FileKey   string `json:"file_key"`
	Filename  string `json:"filename"`
	Task      string `json:"task"`
	Topic     string `json:"topic"`
	AnswerKey string `json:"answer_key"`
	AIEngine  string `json:"ai_engine"`
}

type jobResp struct {
	Status  string `json:"status"`
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

// handleStatus reports the readiness of external dependencies.
func (o *Orchestrator) handleStatus(w http.ResponseWriter, r *http.Request) {
	if o.deps.Checker == nil {
		http.Error(w, "status checks disabled", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(o.deps.Checker.Summary(r.Context()))
}

// handleExtract enqueues a job for a document already in storage.
func (o *Orchestrator) handleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	defer r.Body.Close()
	var req extractReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.FileKey == "" {
		http.Error(w, "missing file_key", http.StatusBadRequest)
		return
	}
	task := normalizeTask(req.Task)
	if task == "" {
		http.Error(w, "unknown task", http.StatusBadRequest)
		return
	}

	jobID := uuid.NewString()
	o.submit(w, r, dispatcher.Job{
		JobID:          jobID,
		Task:           task,
		FileKey:        req.FileKey,
		Filename:       req.Filename,
		Topic:          req.Topic,
		AnswerKey:      req.AnswerKey,
		Engine:         strings.ToLower(req.AIEngine),
		IdempotencyKey: fmt.Sprintf("doc:%s", jobID),
	})
}

// handleUpload accepts a multipart document, stores it, and enqueues a job.
func (o *Orchestrator) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	task := normalizeTask(r.FormValue("task"))
	if task == "" {
		http.Error(w, "unknown task", http.StatusBadRequest)
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "read upload failed", http.StatusInternalServerError)
		return
	}
	if len(data) > maxUploadBytes {
		http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
		return
	}
	name := hdr.Filename
	if name == "" {
		name = "upload.pdf"
	}

	jobID := uuid.NewString()
	key := fmt.Sprintf("%s%s/%s", o.cfg.UploadPrefix, jobID, name)
	if err := o.deps.Storage.UploadResult(r.Context(), key, data, hdr.Header.Get("Content-Type")); err != nil {
		log.Error().Err(err).Str("key", key).Msg("Upload to storage failed")
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}

	o.submit(w, r, dispatcher.Job{
		JobID:          jobID,
		Task:           task,
		FileKey:        key,
		Filename:       name,
		Topic:          r.FormValue("topic"),
		AnswerKey:      r.FormValue("answer_key"),
		Engine:         strings.ToLower(r.FormValue("ai_engine")),
		IdempotencyKey: fmt.Sprintf("doc:%s", jobID),
	})
}

func (o *Orchestrator) submit(w http.ResponseWriter, r *http.Request, job dispatcher.Job) {
	start := time.Now().UTC()
	_ = o.deps.Status.Set(r.Context(), job.JobID, store.Status{
		Status:   store.StatusQueued,
		Progress: 0,
		Message:  "Queued",
		Start:    &start,
		Metadata: map[string]any{"file_key": job.FileKey, "task": job.Task},
	})
	if err := o.deps.Queue.Enqueue(r.Context(), job.Encode()); err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Enqueue failed")
		http.Error(w, "queue unavailable", http.StatusServiceUnavailable)
		return
	}
	if err := o.deps.Status.SetFileJobMapping(r.Context(), job.FileKey, job.JobID); err != nil {
		log.Warn().Err(err).Str("job_id", job.JobID).Msg("File-to-job mapping failed")
	}
	log.Info().Str("job_id", job.JobID).Str("task", job.Task).Str("file_key", job.FileKey).Msg("Job created")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(jobResp{Status: "ok", JobID: job.JobID, Message: "Job created"})
}

func (o *Orchestrator) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/progress/")
	st, ok, err := o.deps.Status.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"job_id":     id,
		"status":     st.Status,
		"progress":   st.Progress,
		"message":    st.Message,
		"start_time": st.Start,
		"end_time":   st.End,
	})
}

func (o *Orchestrator) handleResult(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/result/")
	res, ok, err := o.deps.Results.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "error", http.StatusInternalServerError)
		return
	}
	if !ok {
		// Distinguish "still running" from "unknown job" for the client.
		if st, stOk, _ := o.deps.Status.Get(r.Context(), id); stOk && st.Status != store.StatusFailed {
			http.Error(w, "not ready", http.StatusAccepted)
			return
		}
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

type cancelReq struct {
	JobID   string `json:"job_id"`
	FileKey string `json:"file_key,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func (o *Orchestrator) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req cancelReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	// Callers that only know the uploaded file address the job through the
	// file-to-job mapping recorded at submission.
	if req.JobID == "" && req.FileKey != "" {
		jobID, err := o.deps.Status.GetJobByFileID(r.Context(), req.FileKey)
		if err != nil {
			http.Error(w, "no job for file", http.StatusNotFound)
			return
		}
		req.JobID = jobID
	}
	if req.JobID == "" {
		http.Error(w, "missing job_id", http.StatusBadRequest)
		return
	}
	if err := o.deps.Queue.CancelJob(r.Context(), req.JobID); err != nil {
		http.Error(w, "cancel failed", http.StatusInternalServerError)
		return
	}
	st, ok, _ := o.deps.Status.Get(r.Context(), req.JobID)
	if !ok {
		st = store.Status{}
	}
	st.Status = store.StatusCancelled
	msg := "Cancelled"
	if req.Reason != "" {
		msg = fmt.Sprintf("Cancelled: %s", req.Reason)
	}
	st.Message = msg
	now := time.Now().UTC()
	st.End = &now
	_ = o.deps.Status.Set(r.Context(), req.JobID, st)
	log.Info().Str("job_id", req.JobID).Str("reason", req.Reason).Msg("Job cancelled")
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "job_id": req.JobID, "status": store.StatusCancelled})
}

func normalizeTask(task string) string {
	switch strings.ToLower(strings.TrimSpace(task)) {
	case "", dispatcher.TaskExtract:
		return dispatcher.TaskExtract
	case dispatcher.TaskStudyGuide:
		return dispatcher.TaskStudyGuide
	case dispatcher.TaskGradeExam:
		return dispatcher.TaskGradeExam
	default:
		return ""
	}
}
