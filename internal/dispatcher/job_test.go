package dispatcher

import (
	"context"
	"errors"
	"testing"

	"github.com/local/docextract/internal/ai"
)

func TestJobEncodeDecode(t *testing.T) {
	in := Job{
		JobID:          "job-123",
		Task:           TaskStudyGuide,
		FileKey:        "uploads/job-123/lecture.pdf",
		Filename:       "lecture.pdf",
		Topic:          "photosynthesis",
		Engine:         "openai",
		IdempotencyKey: "idem-1",
		Attempt:        2,
	}

	out, err := DecodeJob(in.Encode())
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch:\nin:  %+v\nout: %+v", in, out)
	}
}

func TestDecodeJobMalformed(t *testing.T) {
	if _, err := DecodeJob([]byte("{not json")); err == nil {
		t.Error("want error for malformed payload")
	}
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "content refused", err: ai.ErrContentRefused, want: true},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "rate limit", err: &RateLimitError{Provider: "openai", Model: "gpt-4.1", Reason: "429"}, want: true},
		{name: "http 503", err: &HTTPError{StatusCode: 503, Provider: "anthropic"}, want: true},
		{name: "http 429", err: &HTTPError{StatusCode: 429, Provider: "openai"}, want: true},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "plain error", err: errors.New("something else entirely"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isTransientError(tt.err); got != tt.want {
				t.Errorf("isTransientError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsFatalError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "validation", err: &ValidationError{Message: "prompt too long"}, want: true},
		{name: "http 400", err: &HTTPError{StatusCode: 400, Provider: "openai"}, want: true},
		{name: "http 429 not fatal", err: &HTTPError{StatusCode: 429, Provider: "openai"}, want: false},
		{name: "http 500 not fatal", err: &HTTPError{StatusCode: 500, Provider: "openai"}, want: false},
		{name: "bad request text", err: errors.New("provider said: bad request"), want: true},
		{name: "plain error", err: errors.New("flaky network blip"), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isFatalError(tt.err); got != tt.want {
				t.Errorf("isFatalError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
