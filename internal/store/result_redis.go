package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Result is the finished output of a document job. Text holds the extracted
// or condensed document text; Output holds generated study material or a
// grade report when the job asked for one.
type Result struct {
	JobID      string    `json:"job_id"`
	Task       string    `json:"task"`
	Strategy   string    `json:"strategy,omitempty"`
	Text       string    `json:"text,omitempty"`
	Output     string    `json:"output,omitempty"`
	PageCount  int       `json:"page_count,omitempty"`
	Provider   string    `json:"provider,omitempty"`
	Model      string    `json:"model,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// ResultStore persists job results in Redis with a TTL; the web API reads
// them back for /api/result.
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultStore(redisURL string, ttl time.Duration) (*ResultStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opt)
	if err := c.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &ResultStore{client: c, ttl: ttl}, nil
}

func (s *ResultStore) Close() error { return s.client.Close() }

func (s *ResultStore) key(jobID string) string { return fmt.Sprintf("doc:%s:result", jobID) }

func (s *ResultStore) Save(ctx context.Context, res Result) error {
	if res.FinishedAt.IsZero() {
		res.FinishedAt = time.Now().UTC()
	}
	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.client.Set(ctx, s.key(res.JobID), b, s.ttl).Err()
}

func (s *ResultStore) Get(ctx context.Context, jobID string) (Result, bool, error) {
	raw, err := s.client.Get(ctx, s.key(jobID)).Bytes()
	if err == redis.Nil {
		return Result{}, false, nil
	}
	if err != nil {
		return Result{}, false, err
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return Result{}, false, fmt.Errorf("unmarshal result: %w", err)
	}
	return res, true, nil
}
