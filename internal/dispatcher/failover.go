package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/docextract/internal/ai"
	"github.com/local/docextract/internal/metrics"
)

// generateWithFailover walks a four-step ladder: primary provider primary
// model, primary provider secondary model, then the same pair on the
// secondary provider. A shared Redis breaker skips models that recently rate
// limited, and a local semaphore caps in-flight requests per model.
func (w *Worker) generateWithFailover(ctx context.Context, job Job, system, prompt string, images []ai.Image) (string, string, string, error) {
	primaryProv := w.conf.Providers.PrimaryEngine
	secondaryProv := w.conf.Providers.SecondaryEngine
	if job.Engine != "" {
		primaryProv = job.Engine
		if primaryProv == "openai" {
			secondaryProv = "anthropic"
		} else {
			secondaryProv = "openai"
		}
	}

	attempts := []struct {
		provider string
		model    string
	}{
		{primaryProv, w.model(primaryProv, "primary")},
		{primaryProv, w.model(primaryProv, "secondary")},
		{secondaryProv, w.model(secondaryProv, "primary")},
		{secondaryProv, w.model(secondaryProv, "secondary")},
	}

	var lastErr error
	for i, att := range attempts {
		if att.model == "" {
			continue
		}
		if i > 0 && att.model == attempts[i-1].model && att.provider == attempts[i-1].provider {
			continue
		}
		if w.deps.Limiter != nil && w.deps.Limiter.IsOpen(ctx, att.provider, att.model) {
			log.Debug().Str("provider", att.provider).Str("model", att.model).Msg("Breaker open, skipping attempt")
			continue
		}

		release := func() {}
		if w.deps.Limiter != nil {
			var ok bool
			release, ok = w.deps.Limiter.Allow(att.provider, att.model)
			if !ok {
				log.Debug().Str("provider", att.provider).Str("model", att.model).Msg("Local inflight cap reached, skipping attempt")
				continue
			}
		}

		log.Info().Str("job_id", job.JobID).Str("provider", att.provider).Str("model", att.model).Msgf("AI attempt %d/%d", i+1, len(attempts))
		resp, err := w.callProvider(ctx, job, att.provider, att.model, system, prompt, images)
		release()

		if err == nil {
			if w.deps.Limiter != nil {
				w.deps.Limiter.Close(ctx, att.provider, att.model)
			}
			return resp.Text, att.provider, att.model, nil
		}
		lastErr = err

		if isFatalError(err) {
			log.Error().Err(err).Str("job_id", job.JobID).Str("provider", att.provider).Str("model", att.model).Msg("Fatal provider error, aborting failover")
			return "", "", "", err
		}
		if isTransientError(err) && w.deps.Limiter != nil {
			w.deps.Limiter.Open(ctx, att.provider, att.model)
		}
		log.Warn().Err(err).Str("job_id", job.JobID).Str("provider", att.provider).Str("model", att.model).Msg("Provider attempt failed, trying next")
	}

	metrics.ObserveProvider("all", "all", "exhausted", 0)
	if lastErr == nil {
		lastErr = fmt.Errorf("no provider attempts were possible for job %s", job.JobID)
	}
	return "", "", "", lastErr
}

func (w *Worker) callProvider(ctx context.Context, job Job, provider, model, system, prompt string, images []ai.Image) (ai.Response, error) {
	timeout := w.conf.Worker.RequestTimeout
	if provider == "openai" {
		timeout = w.conf.Worker.OpenAITimeout
	}
	if provider == "anthropic" {
		timeout = w.conf.Worker.AnthropicTimeout
	}

	var client ai.Client
	switch provider {
	case "openai":
		client = w.deps.OpenAI
	case "anthropic":
		client = w.deps.Anthropic
	default:
		return ai.Response{}, fmt.Errorf("unknown provider: %s", provider)
	}

	req := ai.Request{
		JobID:   job.JobID,
		Model:   model,
		System:  system,
		Prompt:  prompt,
		Images:  images,
		Timeout: timeout,
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Do(cctx, req)
	dur := time.Since(start)

	if err != nil && cctx.Err() == context.DeadlineExceeded {
		metrics.ObserveProvider(provider, model, "timeout", dur)
		return ai.Response{}, &RateLimitError{Provider: provider, Model: model, Reason: "timeout"}
	}

	result := "success"
	if err != nil {
		switch {
		case ai.IsRateLimited(err):
			result = "rate_limited"
		case ai.IsContentRefused(err):
			result = "content_refused"
			metrics.IncRefusal(provider, model)
		case isTransientError(err):
			result = "transient"
		case isFatalError(err):
			result = "fatal"
		default:
			result = "unknown"
		}
		log.Warn().Str("job_id", job.JobID).Str("provider", provider).Str("model", model).Dur("duration", dur).Str("result", result).Err(err).Msg("AI provider call failed")
	} else {
		log.Debug().Str("job_id", job.JobID).Str("provider", provider).Str("model", model).Dur("duration", dur).Int("tokens_in", resp.TokensIn).Int("tokens_out", resp.TokensOut).Msg("AI provider call success")
	}
	metrics.ObserveProvider(provider, model, result, dur)
	return resp, err
}

func (w *Worker) model(provider, tier string) string {
	models := w.conf.Providers.OpenAI
	if provider == "anthropic" {
		models = w.conf.Providers.Anthropic
	}
	switch tier {
	case "secondary":
		return models.Secondary
	case "fast":
		return models.Fast
	default:
		return models.Primary
	}
}
