package dispatcher

import (
	"context"
	"strings"
	"testing"
	"time"

	cfgpkg "github.com/local/docextract/internal/config"
	"github.com/local/docextract/internal/extract"
	"github.com/local/docextract/internal/storage"
	"github.com/local/docextract/internal/store"
)

type memQueue struct {
	cancelled map[string]bool
	idemDone  map[string]bool
	delayed   [][]byte
	dlq       []string
}

func newMemQueue() *memQueue {
	return &memQueue{cancelled: map[string]bool{}, idemDone: map[string]bool{}}
}

func (q *memQueue) Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error) {
	return "", nil, nil
}
func (q *memQueue) Ack(ctx context.Context, msgID string) error { return nil }
func (q *memQueue) EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error {
	q.delayed = append(q.delayed, payload)
	return nil
}
func (q *memQueue) AddDLQ(ctx context.Context, payload []byte, reason string) error {
	q.dlq = append(q.dlq, reason)
	return nil
}
func (q *memQueue) IsCancelled(ctx context.Context, jobID string) (bool, error) {
	return q.cancelled[jobID], nil
}
func (q *memQueue) IsIdemDone(ctx context.Context, key string) (bool, error) {
	return q.idemDone[key], nil
}
func (q *memQueue) MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error {
	q.idemDone[key] = true
	return nil
}

type memStorage struct {
	objects map[string][]byte
}

func (s *memStorage) Download(ctx context.Context, key, password string) ([]byte, *storage.ObjectInfo, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, nil, context.DeadlineExceeded
	}
	return data, &storage.ObjectInfo{OriginalName: "doc.txt"}, nil
}

type memStatus struct {
	last map[string]store.Status
}

func (s *memStatus) Set(ctx context.Context, jobID string, st store.Status) error {
	if s.last == nil {
		s.last = map[string]store.Status{}
	}
	s.last[jobID] = st
	return nil
}

type memResults struct {
	saved []store.Result
}

func (s *memResults) Save(ctx context.Context, res store.Result) error {
	s.saved = append(s.saved, res)
	return nil
}

type stubPipeline struct {
	res *extract.Result
	err error
}

func (p *stubPipeline) Extract(ctx context.Context, doc extract.Document, progress extract.Progress) (*extract.Result, error) {
	return p.res, p.err
}

func testWorker(q Queue, st *memStatus, res *memResults, pipe Extractor, objects map[string][]byte) *Worker {
	cfg := cfgpkg.FromEnv()
	cfg.Worker.JobMaxAttempts = 3
	return New(cfg, Dependencies{
		Queue:    q,
		Storage:  &memStorage{objects: objects},
		Status:   st,
		Results:  res,
		Pipeline: pipe,
	})
}

func TestHandleExtractJobSucceeds(t *testing.T) {
	q := newMemQueue()
	st := &memStatus{}
	res := &memResults{}
	pipe := &stubPipeline{res: &extract.Result{Kind: extract.KindText, Text: "extracted", Strategy: extract.StrategyLibrary}}
	w := testWorker(q, st, res, pipe, map[string][]byte{"uploads/j1/doc.txt": []byte("body")})

	job := Job{JobID: "j1", Task: TaskExtract, FileKey: "uploads/j1/doc.txt", IdempotencyKey: "doc:j1"}
	w.handle(job, "msg-1")

	if len(res.saved) != 1 {
		t.Fatalf("saved %d results, want 1", len(res.saved))
	}
	if got := res.saved[0]; got.Text != "extracted" || got.Strategy != extract.StrategyLibrary {
		t.Errorf("result = %+v", got)
	}
	if st.last["j1"].Status != store.StatusDone {
		t.Errorf("final status = %q, want done", st.last["j1"].Status)
	}
	if !q.idemDone["doc:j1"] {
		t.Error("idempotency key not marked done")
	}
}

func TestHandleCancelledJobSkipsWork(t *testing.T) {
	q := newMemQueue()
	q.cancelled["j2"] = true
	st := &memStatus{}
	res := &memResults{}
	w := testWorker(q, st, res, &stubPipeline{}, nil)

	w.handle(Job{JobID: "j2", Task: TaskExtract, FileKey: "k"}, "msg-2")

	if len(res.saved) != 0 {
		t.Errorf("cancelled job produced %d results", len(res.saved))
	}
	if st.last["j2"].Status != store.StatusCancelled {
		t.Errorf("status = %q, want cancelled", st.last["j2"].Status)
	}
}

func TestHandleDuplicateJobSkipped(t *testing.T) {
	q := newMemQueue()
	q.idemDone["doc:j3"] = true
	st := &memStatus{}
	res := &memResults{}
	w := testWorker(q, st, res, &stubPipeline{}, nil)

	w.handle(Job{JobID: "j3", Task: TaskExtract, FileKey: "k", IdempotencyKey: "doc:j3"}, "msg-3")

	if len(res.saved) != 0 {
		t.Errorf("duplicate job produced %d results", len(res.saved))
	}
}

func TestHandleTerminalExtractionError(t *testing.T) {
	q := newMemQueue()
	st := &memStatus{}
	res := &memResults{}
	pipe := &stubPipeline{err: &extract.Error{Code: extract.CodeExhausted, Hint: "Try converting it to DOCX."}}
	w := testWorker(q, st, res, pipe, map[string][]byte{"k": []byte("body")})

	w.handle(Job{JobID: "j4", Task: TaskExtract, FileKey: "k"}, "msg-4")

	if len(q.dlq) != 1 || q.dlq[0] != extract.CodeExhausted {
		t.Errorf("dlq = %v, want one %s entry", q.dlq, extract.CodeExhausted)
	}
	if len(q.delayed) != 0 {
		t.Error("terminal error should not schedule a retry")
	}
	if got := st.last["j4"]; got.Status != store.StatusFailed || got.Message != "Try converting it to DOCX." {
		t.Errorf("status = %+v", got)
	}
}

func TestHandleTransientErrorRetries(t *testing.T) {
	q := newMemQueue()
	st := &memStatus{}
	res := &memResults{}
	// Download fails; no object stored.
	w := testWorker(q, st, res, &stubPipeline{}, nil)

	w.handle(Job{JobID: "j5", Task: TaskExtract, FileKey: "missing"}, "msg-5")

	if len(q.delayed) != 1 {
		t.Fatalf("delayed = %d, want 1 retry", len(q.delayed))
	}
	retried, err := DecodeJob(q.delayed[0])
	if err != nil {
		t.Fatal(err)
	}
	if retried.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", retried.Attempt)
	}
}

func TestOversizedPromptFailsWithoutRetry(t *testing.T) {
	q := newMemQueue()
	st := &memStatus{}
	res := &memResults{}
	long := strings.Repeat("photosynthesis chlorophyll thylakoid ", 200)
	pipe := &stubPipeline{res: &extract.Result{Kind: extract.KindText, Text: long, Strategy: extract.StrategyLibrary}}

	cfg := cfgpkg.FromEnv()
	cfg.Worker.JobMaxAttempts = 3
	cfg.Providers.MaxPromptTokens = 100
	w := New(cfg, Dependencies{
		Queue:    q,
		Storage:  &memStorage{objects: map[string][]byte{"k": []byte("body")}},
		Status:   st,
		Results:  res,
		Pipeline: pipe,
	})

	w.handle(Job{JobID: "j7", Task: TaskStudyGuide, FileKey: "k"}, "msg-7")

	if len(q.delayed) != 0 {
		t.Error("oversized prompt should not be retried")
	}
	if len(q.dlq) != 1 {
		t.Fatalf("dlq = %d entries, want 1", len(q.dlq))
	}
	if st.last["j7"].Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", st.last["j7"].Status)
	}
	if len(res.saved) != 0 {
		t.Errorf("oversized prompt saved %d results", len(res.saved))
	}
}

func TestRetryExhaustionMovesToDLQ(t *testing.T) {
	q := newMemQueue()
	st := &memStatus{}
	res := &memResults{}
	w := testWorker(q, st, res, &stubPipeline{}, nil)

	w.handle(Job{JobID: "j6", Task: TaskExtract, FileKey: "missing", Attempt: 2}, "msg-6")

	if len(q.dlq) != 1 {
		t.Fatalf("dlq = %d entries, want 1", len(q.dlq))
	}
	if len(q.delayed) != 0 {
		t.Error("exhausted job should not be rescheduled")
	}
	if st.last["j6"].Status != store.StatusFailed {
		t.Errorf("status = %q, want failed", st.last["j6"].Status)
	}
}
