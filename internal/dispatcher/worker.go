// Package dispatcher runs the worker pool that drains the document queue:
// fetch from storage, extract, optionally generate study material, persist
// the result.
package dispatcher

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docextract/internal/ai"
	cfgpkg "github.com/local/docextract/internal/config"
	"github.com/local/docextract/internal/extract"
	"github.com/local/docextract/internal/guide"
	"github.com/local/docextract/internal/limiter"
	"github.com/local/docextract/internal/metrics"
	"github.com/local/docextract/internal/storage"
	"github.com/local/docextract/internal/store"
)

// Queue is the slice of the job queue the worker needs.
type Queue interface {
	Dequeue(ctx context.Context, consumer string, timeout time.Duration) (string, []byte, error)
	Ack(ctx context.Context, msgID string) error
	EnqueueDelayed(ctx context.Context, payload []byte, executeAt time.Time) error
	AddDLQ(ctx context.Context, payload []byte, reason string) error
	IsCancelled(ctx context.Context, jobID string) (bool, error)
	IsIdemDone(ctx context.Context, key string) (bool, error)
	MarkIdemDone(ctx context.Context, key string, ttl time.Duration) error
}

// Storage fetches uploaded document bytes.
type Storage interface {
	Download(ctx context.Context, key, password string) ([]byte, *storage.ObjectInfo, error)
}

// StatusStore records job progress for the web API.
type StatusStore interface {
	Set(ctx context.Context, jobID string, st store.Status) error
}

// ResultStore persists finished job output.
type ResultStore interface {
	Save(ctx context.Context, res store.Result) error
}

// Extractor runs the document extraction pipeline.
type Extractor interface {
	Extract(ctx context.Context, doc extract.Document, progress extract.Progress) (*extract.Result, error)
}

// Dependencies wires the worker's collaborators.
type Dependencies struct {
	Queue     Queue
	Storage   Storage
	Status    StatusStore
	Results   ResultStore
	Pipeline  Extractor
	Limiter   *limiter.Adaptive
	OpenAI    ai.Client
	Anthropic ai.Client
}

type Worker struct {
	conf cfgpkg.Config
	deps Dependencies
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(conf cfgpkg.Config, deps Dependencies) *Worker {
	if deps.OpenAI == nil {
		deps.OpenAI = ai.NewOpenAIClient()
	}
	if deps.Anthropic == nil {
		deps.Anthropic = ai.NewAnthropicClient()
	}
	return &Worker{conf: conf, deps: deps, stop: make(chan struct{})}
}

func (w *Worker) Start() {
	n := w.conf.Worker.Concurrency
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go w.loop(i)
	}
}

func (w *Worker) Stop(ctx context.Context) error {
	close(w.stop)
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop(id int) {
	defer w.wg.Done()
	consumer := fmt.Sprintf("worker-%d", id)
	log.Info().Int("worker", id).Msg("Worker started")
	for {
		select {
		case <-w.stop:
			log.Info().Int("worker", id).Msg("Worker stopped")
			return
		default:
		}

		msgID, data, err := w.deps.Queue.Dequeue(context.Background(), consumer, 2*time.Second)
		if err != nil {
			log.Error().Err(err).Msg("Queue dequeue error")
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if data == nil {
			continue
		}

		job, err := DecodeJob(data)
		if err != nil || job.JobID == "" {
			log.Error().Err(err).Str("msg_id", msgID).Msg("Dropping malformed job payload")
			_ = w.deps.Queue.AddDLQ(context.Background(), data, "malformed payload")
			_ = w.deps.Queue.Ack(context.Background(), msgID)
			continue
		}

		w.handle(job, msgID)
		_ = w.deps.Queue.Ack(context.Background(), msgID)
	}
}

func (w *Worker) handle(job Job, msgID string) {
	ctx, cancel := context.WithTimeout(context.Background(), w.conf.Extract.DocTimeout)
	defer cancel()

	if cancelled, _ := w.deps.Queue.IsCancelled(ctx, job.JobID); cancelled {
		log.Warn().Str("job_id", job.JobID).Msg("Job cancelled before processing, skipping")
		w.setStatus(job.JobID, store.StatusCancelled, 100, "Cancelled")
		metrics.IncProcessed("cancelled")
		return
	}
	if job.IdempotencyKey != "" {
		if done, _ := w.deps.Queue.IsIdemDone(ctx, job.IdempotencyKey); done {
			log.Info().Str("job_id", job.JobID).Msg("Job already completed, skipping duplicate")
			return
		}
	}

	w.setStatus(job.JobID, store.StatusProcessing, 5, "Fetching document")
	err := w.process(ctx, job)
	if err == nil {
		if job.IdempotencyKey != "" {
			_ = w.deps.Queue.MarkIdemDone(context.Background(), job.IdempotencyKey, 24*time.Hour)
		}
		metrics.IncProcessed("success")
		return
	}

	var exErr *extract.Error
	if errors.As(err, &exErr) && exErr.Code != extract.CodeEnvironment {
		// Extraction errors are terminal: retrying the same bytes cannot
		// change the outcome. Surface the hint to the user.
		log.Error().Err(err).Str("job_id", job.JobID).Str("code", exErr.Code).Msg("Job failed terminally")
		w.setStatus(job.JobID, store.StatusFailed, 100, exErr.Hint)
		_ = w.deps.Queue.AddDLQ(context.Background(), job.Encode(), exErr.Code)
		metrics.IncProcessed("dlq")
		return
	}

	if isFatalError(err) {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Job failed on a non-retryable error")
		w.setStatus(job.JobID, store.StatusFailed, 100, "The request could not be processed. Check the document and task inputs.")
		_ = w.deps.Queue.AddDLQ(context.Background(), job.Encode(), "non_retryable")
		metrics.IncProcessed("dlq")
		return
	}

	w.retry(job, err)
}

func (w *Worker) process(ctx context.Context, job Job) error {
	data, info, err := w.fetch(ctx, job.FileKey)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", job.FileKey, err)
	}
	filename := job.Filename
	var mime string
	if info != nil {
		mime = info.ContentType
		if filename == "" {
			filename = info.OriginalName
		}
	}

	progress := func(msg string) {
		w.setStatus(job.JobID, store.StatusProcessing, 40, msg)
	}

	start := time.Now()
	res, err := w.deps.Pipeline.Extract(ctx, extract.Document{Data: data, MIME: mime, Filename: filename}, progress)
	if err != nil {
		return err
	}
	metrics.ObserveExtractionDuration(res.Strategy, time.Since(start))

	if cancelled, _ := w.deps.Queue.IsCancelled(ctx, job.JobID); cancelled {
		w.setStatus(job.JobID, store.StatusCancelled, 100, "Cancelled")
		return nil
	}

	result := store.Result{
		JobID:     job.JobID,
		Task:      job.Task,
		Strategy:  res.Strategy,
		Text:      res.Text,
		PageCount: len(res.Pages),
	}

	if job.Task == TaskStudyGuide || job.Task == TaskGradeExam {
		w.setStatus(job.JobID, store.StatusProcessing, 70, "Generating with AI")
		output, provider, model, err := w.generate(ctx, job, res)
		if err != nil {
			return fmt.Errorf("ai generation: %w", err)
		}
		result.Output = output
		result.Provider = provider
		result.Model = model
	}

	if err := w.deps.Results.Save(ctx, result); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	w.setStatus(job.JobID, store.StatusDone, 100, "Completed")
	log.Info().Str("job_id", job.JobID).Str("task", job.Task).Str("strategy", res.Strategy).Msg("Job completed")
	return nil
}

// fetch resolves a file reference: http(s) URLs are downloaded directly,
// anything else is treated as an object key in storage.
func (w *Worker) fetch(ctx context.Context, fileKey string) ([]byte, *storage.ObjectInfo, error) {
	if !strings.HasPrefix(fileKey, "http://") && !strings.HasPrefix(fileKey, "https://") {
		return w.deps.Storage.Download(ctx, fileKey, w.conf.Storage.EncryptionKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileKey, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, nil, &HTTPError{StatusCode: resp.StatusCode, Provider: "source", Body: "fetching source document"}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	info := &storage.ObjectInfo{
		OriginalName: path.Base(req.URL.Path),
		ContentType:  resp.Header.Get("Content-Type"),
		Size:         int64(len(data)),
	}
	return data, info, nil
}

// generate builds the prompt for the job's task and runs it through the
// provider failover ladder.
func (w *Worker) generate(ctx context.Context, job Job, res *extract.Result) (string, string, string, error) {
	var prompt string
	switch job.Task {
	case TaskGradeExam:
		prompt = guide.ExamGradingPrompt(res.Text, job.AnswerKey)
	default:
		prompt = guide.StudyGuidePrompt(res.Text, job.Topic)
	}

	if max := w.conf.Providers.MaxPromptTokens; max > 0 {
		if est := guide.EstimateTokens(prompt); est > max {
			return "", "", "", &ValidationError{Message: fmt.Sprintf("prompt estimated at %d tokens exceeds the %d token cap", est, max)}
		}
	}

	var images []ai.Image
	for _, p := range res.Pages {
		images = append(images, ai.Image{
			Base64: base64.StdEncoding.EncodeToString(p.Bytes),
			MIME:   p.MIMEType,
		})
	}

	return w.generateWithFailover(ctx, job, guide.SystemPrompt(job.Task), prompt, images)
}

func (w *Worker) retry(job Job, cause error) {
	job.Attempt++
	if job.Attempt >= w.conf.Worker.JobMaxAttempts {
		log.Error().Err(cause).Str("job_id", job.JobID).Int("attempts", job.Attempt).Msg("Job exhausted retries, moving to DLQ")
		w.setStatus(job.JobID, store.StatusFailed, 100, "Processing failed, please try again later")
		_ = w.deps.Queue.AddDLQ(context.Background(), job.Encode(), cause.Error())
		metrics.IncProcessed("dlq")
		return
	}

	delay := w.conf.Worker.RetryBaseDelay
	for i := 1; i < job.Attempt; i++ {
		delay = time.Duration(float64(delay) * w.conf.Worker.RetryBackoffFactor)
	}
	delay += w.conf.Worker.RetryJitter

	log.Warn().Err(cause).Str("job_id", job.JobID).Int("attempt", job.Attempt).Dur("delay", delay).Msg("Scheduling job retry")
	metrics.IncRetry()
	if err := w.deps.Queue.EnqueueDelayed(context.Background(), job.Encode(), time.Now().Add(delay)); err != nil {
		log.Error().Err(err).Str("job_id", job.JobID).Msg("Failed to schedule retry")
		_ = w.deps.Queue.AddDLQ(context.Background(), job.Encode(), "retry scheduling failed")
	}
}

func (w *Worker) setStatus(jobID, state string, progress int, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st := store.Status{Status: state, Progress: progress, Message: msg}
	now := time.Now().UTC()
	if state == store.StatusDone || state == store.StatusFailed || state == store.StatusCancelled {
		st.End = &now
	}
	if err := w.deps.Status.Set(ctx, jobID, st); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("Status update failed")
	}
}
