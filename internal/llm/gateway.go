// Package llm provides the rate-limited, retrying gateway to the
// metadata-generation model endpoint.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/semaphore"

	"github.com/vaulttag/vaulttag/internal/config"
	"github.com/vaulttag/vaulttag/internal/metadata"
)

// ErrMalformedResponse marks model output that could not be parsed into
// the expected fields. Not retried: a structurally broken response is
// unlikely to improve on a second attempt.
var ErrMalformedResponse = errors.New("model response not parseable as metadata")

const systemPrompt = "You are a metadata assistant. Return only JSON or YAML representing metadata (no extra commentary)."

// maxPromptChars bounds the excerpt sent to the model so oversized notes
// do not blow the context window.
const maxPromptChars = 12000

// Gateway issues metadata-generation calls against the configured model.
// A single Gateway is shared by all file workers; its internal semaphore
// caps concurrent in-flight calls independently of the worker count.
type Gateway struct {
	model      llms.Model
	slots      *semaphore.Weighted
	timeout    time.Duration
	maxRetries uint64

	summaryWords int
	maxTags      int

	log *slog.Logger
}

// NewGateway creates a gateway for the configured provider.
func NewGateway(cfg config.Config, log *slog.Logger) (*Gateway, error) {
	var model llms.Model
	var err error

	switch cfg.Provider {
	case config.ProviderOpenAI:
		model, err = openai.New(
			openai.WithBaseURL(cfg.Endpoint),
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithServerURL(cfg.Endpoint),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}

	return newGateway(model, cfg, log), nil
}

// newGateway wires a gateway around an existing model, used directly by
// tests to substitute a fake.
func newGateway(model llms.Model, cfg config.Config, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		model:        model,
		slots:        semaphore.NewWeighted(int64(cfg.ModelConcurrency)),
		timeout:      cfg.RequestTimeout,
		maxRetries:   uint64(cfg.MaxRetries),
		summaryWords: cfg.SummaryWordLimit,
		maxTags:      cfg.MaxTags,
		log:          log,
	}
}

// Generate asks the model for summary, tags, and a detected date for the
// given body. It blocks until a concurrency slot is free, retries
// transport failures with backoff, and treats unparseable output as a
// terminal ErrMalformedResponse. The slot is released on every path.
func (g *Gateway) Generate(ctx context.Context, body string) (*metadata.Generated, error) {
	if err := g.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire model slot: %w", err)
	}
	defer g.slots.Release(1)

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, systemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, buildPrompt(body)),
	}

	var raw string
	attempt := 0
	op := func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.model.GenerateContent(callCtx, messages,
			llms.WithTemperature(0.2),
			llms.WithMaxTokens(400),
		)
		if err != nil {
			if ctx.Err() != nil {
				// run was cancelled, retrying would only delay shutdown
				return backoff.Permanent(err)
			}
			g.log.Warn("model call failed", "attempt", attempt, "error", err)
			return err
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("%w: no choices", ErrMalformedResponse))
		}
		raw = resp.Choices[0].Content
		return nil
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.maxRetries),
		ctx,
	)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}

	gen, err := parseResponse(raw, g.summaryWords, g.maxTags)
	if err != nil {
		return nil, err
	}
	return gen, nil
}

// buildPrompt matches the instruction contract in parseResponse: the
// model is asked for summary, tags, date, and date_confidence keys only.
func buildPrompt(body string) string {
	if len(body) > maxPromptChars {
		body = body[:maxPromptChars]
	}
	return "Given the following note text, return a JSON or YAML object with these keys:\n" +
		"- summary: a concise summary of maximum 50 words\n" +
		"- tags: a list (up to 3) of short keyword tags\n" +
		"- date: a date found in the text (YYYY-MM-DD format) if present, null if none found\n" +
		"- date_confidence: confidence level (0.0 to 1.0) that the extracted date is accurate\n\n" +
		"For date detection, look for dates near the beginning of the text. " +
		"Only return a date if you are very confident (confidence > 0.9).\n" +
		"Return only the object (JSON or YAML), no extra commentary.\n\n" +
		body
}
