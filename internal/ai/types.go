package ai

import (
	"context"
	"errors"
	"time"
)

// Image is one document page attached to a vision request.
type Image struct {
	Base64 string
	MIME   string
}

// Request is a generic inference request. Text-only requests leave Images
// empty; scanned documents attach rendered pages instead of Text.
type Request struct {
	JobID     string
	Model     string
	System    string
	Prompt    string
	Images    []Image
	MaxTokens int
	Timeout   time.Duration
}

type Response struct {
	Text      string
	TokensIn  int
	TokensOut int
}

// Client interface for providers like OpenAI, Anthropic.
type Client interface {
	Name() string
	Do(ctx context.Context, req Request) (Response, error)
}

var (
	ErrRateLimited    = errors.New("rate_limited")
	ErrContentRefused = errors.New("content_refused")
)

func IsRateLimited(err error) bool    { return errors.Is(err, ErrRateLimited) }
func IsContentRefused(err error) bool { return errors.Is(err, ErrContentRefused) }
