package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	cfgpkg "github.com/local/docextract/internal/config"
	"github.com/local/docextract/internal/dispatcher"
	"github.com/local/docextract/internal/store"
)

type fakeQueue struct {
	enqueued  [][]byte
	cancelled []string
}

func (f *fakeQueue) Enqueue(ctx context.Context, payload []byte) error {
	f.enqueued = append(f.enqueued, payload)
	return nil
}

func (f *fakeQueue) CancelJob(ctx context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

type fakeStatus struct {
	statuses map[string]store.Status
	fileJobs map[string]string
}

func (f *fakeStatus) Set(ctx context.Context, jobID string, st store.Status) error {
	if f.statuses == nil {
		f.statuses = make(map[string]store.Status)
	}
	f.statuses[jobID] = st
	return nil
}

func (f *fakeStatus) Get(ctx context.Context, jobID string) (store.Status, bool, error) {
	st, ok := f.statuses[jobID]
	return st, ok, nil
}

func (f *fakeStatus) SetFileJobMapping(ctx context.Context, fileKey, jobID string) error {
	if f.fileJobs == nil {
		f.fileJobs = make(map[string]string)
	}
	f.fileJobs[fileKey] = jobID
	return nil
}

func (f *fakeStatus) GetJobByFileID(ctx context.Context, fileKey string) (string, error) {
	jobID, ok := f.fileJobs[fileKey]
	if !ok {
		return "", fmt.Errorf("no job found for file %s", fileKey)
	}
	return jobID, nil
}

type fakeResults struct {
	results map[string]store.Result
}

func (f *fakeResults) Get(ctx context.Context, jobID string) (store.Result, bool, error) {
	res, ok := f.results[jobID]
	return res, ok, nil
}

type fakeUploader struct {
	keys map[string][]byte
}

func (f *fakeUploader) UploadResult(ctx context.Context, key string, data []byte, contentType string) error {
	if f.keys == nil {
		f.keys = make(map[string][]byte)
	}
	f.keys[key] = data
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *fakeQueue, *fakeStatus, *fakeResults, *fakeUploader) {
	t.Helper()
	q := &fakeQueue{}
	st := &fakeStatus{}
	res := &fakeResults{results: map[string]store.Result{}}
	up := &fakeUploader{}
	o := New(Dependencies{Queue: q, Status: st, Results: res, Storage: up},
		cfgpkg.StorageConfig{UploadPrefix: "uploads/", ResultPrefix: "results/"})
	mux := http.NewServeMux()
	o.RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, q, st, res, up
}

func TestHandleExtractEnqueues(t *testing.T) {
	srv, q, st, _, _ := newTestServer(t)

	body := `{"file_key":"uploads/x/doc.pdf","filename":"doc.pdf","task":"study_guide","topic":"cells"}`
	resp, err := http.Post(srv.URL+"/api/extract", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var jr struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jr); err != nil {
		t.Fatal(err)
	}
	if jr.JobID == "" {
		t.Fatal("no job_id in response")
	}

	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.enqueued))
	}
	job, err := dispatcher.DecodeJob(q.enqueued[0])
	if err != nil {
		t.Fatal(err)
	}
	if job.Task != dispatcher.TaskStudyGuide || job.FileKey != "uploads/x/doc.pdf" || job.Topic != "cells" {
		t.Errorf("job = %+v", job)
	}
	if got := st.statuses[jr.JobID]; got.Status != store.StatusQueued {
		t.Errorf("status = %q, want queued", got.Status)
	}
	if got := st.fileJobs["uploads/x/doc.pdf"]; got != jr.JobID {
		t.Errorf("file mapping = %q, want %q", got, jr.JobID)
	}
}

func TestHandleExtractValidation(t *testing.T) {
	srv, _, _, _, _ := newTestServer(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing file_key", body: `{"task":"extract"}`, want: http.StatusBadRequest},
		{name: "unknown task", body: `{"file_key":"k","task":"translate"}`, want: http.StatusBadRequest},
		{name: "invalid json", body: `{nope`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/extract", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestHandleUploadStoresAndEnqueues(t *testing.T) {
	srv, q, _, _, up := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("file", "essay.docx")
	_, _ = fw.Write([]byte("file bytes"))
	_ = mw.WriteField("task", "extract")
	_ = mw.Close()

	resp, err := http.Post(srv.URL+"/api/upload", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	if len(up.keys) != 1 {
		t.Fatalf("stored %d objects, want 1", len(up.keys))
	}
	for key, data := range up.keys {
		if !strings.HasPrefix(key, "uploads/") || !strings.HasSuffix(key, "/essay.docx") {
			t.Errorf("key = %q", key)
		}
		if string(data) != "file bytes" {
			t.Errorf("stored data = %q", data)
		}
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(q.enqueued))
	}
}

func TestHandleProgress(t *testing.T) {
	srv, _, st, _, _ := newTestServer(t)
	_ = st.Set(context.Background(), "job-1", store.Status{Status: store.StatusProcessing, Progress: 40, Message: "Reading document text"})

	resp, err := http.Get(srv.URL + "/api/progress/job-1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status   string `json:"status"`
		Progress int    `json:"progress"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != store.StatusProcessing || body.Progress != 40 {
		t.Errorf("body = %+v", body)
	}

	resp2, err := http.Get(srv.URL + "/api/progress/nope")
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", resp2.StatusCode)
	}
}

func TestHandleResultStates(t *testing.T) {
	srv, _, st, res, _ := newTestServer(t)
	res.results["done-job"] = store.Result{JobID: "done-job", Task: "extract", Text: "extracted text"}
	_ = st.Set(context.Background(), "running-job", store.Status{Status: store.StatusProcessing})

	resp, err := http.Get(srv.URL + "/api/result/done-job")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("done job status = %d, want 200", resp.StatusCode)
	}
	var result store.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Text != "extracted text" {
		t.Errorf("result = %+v", result)
	}

	resp2, _ := http.Get(srv.URL + "/api/result/running-job")
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusAccepted {
		t.Errorf("running job status = %d, want 202", resp2.StatusCode)
	}

	resp3, _ := http.Get(srv.URL + "/api/result/unknown-job")
	resp3.Body.Close()
	if resp3.StatusCode != http.StatusNotFound {
		t.Errorf("unknown job status = %d, want 404", resp3.StatusCode)
	}
}

func TestHandleCancelJob(t *testing.T) {
	srv, q, st, _, _ := newTestServer(t)
	_ = st.Set(context.Background(), "job-9", store.Status{Status: store.StatusProcessing})

	body := `{"job_id":"job-9","reason":"user clicked cancel"}`
	resp, err := http.Post(srv.URL+"/webhook/cancel_job", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(q.cancelled) != 1 || q.cancelled[0] != "job-9" {
		t.Errorf("cancelled = %v", q.cancelled)
	}
	if got := st.statuses["job-9"]; got.Status != store.StatusCancelled || got.End == nil {
		t.Errorf("status after cancel = %+v", got)
	}
}

func TestHandleCancelJobByFileKey(t *testing.T) {
	srv, q, st, _, _ := newTestServer(t)
	_ = st.Set(context.Background(), "job-12", store.Status{Status: store.StatusProcessing})
	_ = st.SetFileJobMapping(context.Background(), "uploads/j/essay.docx", "job-12")

	body := `{"file_key":"uploads/j/essay.docx"}`
	resp, err := http.Post(srv.URL+"/webhook/cancel_job", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(q.cancelled) != 1 || q.cancelled[0] != "job-12" {
		t.Errorf("cancelled = %v", q.cancelled)
	}

	resp2, _ := http.Post(srv.URL+"/webhook/cancel_job", "application/json", strings.NewReader(`{"file_key":"uploads/unknown"}`))
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusNotFound {
		t.Errorf("unknown file status = %d, want 404", resp2.StatusCode)
	}
}

func TestNormalizeTask(t *testing.T) {
	for in, want := range map[string]string{
		"":              dispatcher.TaskExtract,
		"extract":       dispatcher.TaskExtract,
		" Study_Guide ": dispatcher.TaskStudyGuide,
		"grade_exam":    dispatcher.TaskGradeExam,
		"translate":     "",
	} {
		if got := normalizeTask(in); got != want {
			t.Errorf("normalizeTask(%q) = %q, want %q", in, got, want)
		}
	}
}
