// Package llm wraps Genkit text generation behind a single client that
// rate limits, retries transient failures, and meters every call.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/donnabot/donna/internal/cost"
	"github.com/donnabot/donna/internal/log"
)

// Meter records usage for one model call. *cost.Meter satisfies this.
type Meter interface {
	Record(ctx context.Context, model, operation string, usage *ai.GenerationUsage)
}

// Result is one completed generation.
type Result struct {
	Text    string
	Usage   *ai.GenerationUsage
	CostUSD float64
}

// Client issues text generations against one configured model. Every call
// goes through the rate limiter and the retry loop, and is metered on
// success.
//
// Client is safe for concurrent use.
type Client struct {
	g           *genkit.Genkit
	modelName   string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	bareModel   string // model only, for pricing lookup
	temperature float64
	limiter     *rate.Limiter
	retryConfig RetryConfig
	meter       Meter
	logger      log.Logger
}

// New creates a Client for modelName (provider/model form).
// meter may be nil, in which case calls are not accounted.
func New(g *genkit.Genkit, modelName string, temperature float64, meter Meter, logger log.Logger) *Client {
	bare := modelName
	if i := strings.LastIndex(modelName, "/"); i >= 0 {
		bare = modelName[i+1:]
	}

	return &Client{
		g:           g,
		modelName:   modelName,
		bareModel:   bare,
		temperature: temperature,
		// Hosted LLM APIs tolerate roughly this request rate per key.
		limiter:     rate.NewLimiter(rate.Every(time.Second), 2),
		retryConfig: DefaultRetryConfig(),
		meter:       meter,
		logger:      logger,
	}
}

// Model returns the bare model name used for pricing.
func (c *Client) Model() string { return c.bareModel }

// Generate answers a single user prompt under the given system prompt.
// operation labels the call in the usage log.
func (c *Client) Generate(ctx context.Context, operation, system, prompt string) (*Result, error) {
	msgs := []*ai.Message{ai.NewUserMessage(ai.NewTextPart(prompt))}
	return c.GenerateMessages(ctx, operation, system, msgs)
}

// GenerateMessages generates from a full message history.
func (c *Client) GenerateMessages(ctx context.Context, operation, system string, msgs []*ai.Message) (*Result, error) {
	resp, err := c.executeWithRetry(ctx,
		ai.WithModelName(c.modelName),
		ai.WithSystem(system),
		ai.WithMessages(msgs...),
		ai.WithConfig(map[string]any{"temperature": c.temperature}),
	)
	if err != nil {
		return nil, err
	}

	result := &Result{Text: resp.Text(), Usage: resp.Usage}
	if resp.Usage != nil {
		_, _, result.CostUSD = cost.Compute(resp.Usage, cost.ResolvePricing(c.bareModel))
		if c.meter != nil {
			c.meter.Record(ctx, c.bareModel, operation, resp.Usage)
		}
	}

	return result, nil
}

// executeWithRetry runs one generation with exponential backoff. Each
// attempt is rate limited individually.
func (c *Client) executeWithRetry(ctx context.Context, opts ...ai.GenerateOption) (*ai.ModelResponse, error) {
	var lastErr error
	delay := c.retryConfig.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
		}

		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err == nil {
			c.logger.Debug("generation completed",
				"model", c.modelName,
				"attempts", attempt+1,
				"elapsed", time.Since(start))
			return resp, nil
		}

		lastErr = err

		if !retryableError(err) {
			return nil, fmt.Errorf("generate: %w", err)
		}

		if attempt == c.retryConfig.MaxRetries {
			break
		}

		c.logger.Debug("retrying after error",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, c.retryConfig.MaxInterval)
		}
	}

	return nil, fmt.Errorf("generate after %d retries (elapsed: %v): %w",
		c.retryConfig.MaxRetries, time.Since(start), lastErr)
}
