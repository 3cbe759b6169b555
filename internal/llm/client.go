// Package llm is the agent client used by every council: one call to one model,
// or a fan-out over a roster that waits for every call to settle.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mtzanidakis/council/internal/config"
	"golang.org/x/time/rate"
)

// Message is one chat turn sent to a model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is a successful model reply. A failed call is represented by a nil *Response.
type Response struct {
	Content string `json:"content"`
}

// UserMessage is shorthand for a single-turn prompt.
func UserMessage(content string) []Message {
	return []Message{{Role: "user", Content: content}}
}

// Provider performs one completion against a concrete API.
type Provider interface {
	Complete(ctx context.Context, model string, messages []Message) (string, error)
}

var errEmptyCompletion = errors.New("empty completion")

type route struct {
	prefix   string
	provider Provider
}

type Client struct {
	fallback Provider
	routes   []route
	limiter  *rate.Limiter
	timeout  time.Duration
}

type Option func(*Client)

// WithRoute sends models starting with prefix to p. The prefix is stripped before the call.
func WithRoute(prefix string, p Provider) Option {
	return func(c *Client) {
		if p != nil && prefix != "" {
			c.routes = append(c.routes, route{prefix: prefix, provider: p})
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit caps outgoing calls across all models. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func NewClient(p Provider, opts ...Option) *Client {
	c := &Client{fallback: p}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FromConfig builds the production client: an OpenAI-compatible endpoint for every
// model, plus direct Anthropic access for "anthropic:" models when a key is set.
func FromConfig(cfg config.ProviderConfig) *Client {
	opts := []Option{
		WithTimeout(cfg.Timeout),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
	}
	if cfg.AnthropicAPIKey != "" {
		opts = append(opts, WithRoute(AnthropicPrefix, NewAnthropic(cfg.AnthropicAPIKey, cfg.MaxTokens)))
	}
	return NewClient(NewOpenRouter(cfg.BaseURL, cfg.APIKey, cfg.MaxTokens), opts...)
}

func (c *Client) resolve(model string) (Provider, string) {
	for _, r := range c.routes {
		if strings.HasPrefix(model, r.prefix) {
			return r.provider, strings.TrimPrefix(model, r.prefix)
		}
	}
	return c.fallback, model
}

// QueryModel calls a single model. It never returns an error: transport failures,
// provider errors and timeouts are logged and reported as nil.
func (c *Client) QueryModel(ctx context.Context, model string, messages []Message) *Response {
	provider, name := c.resolve(model)
	if provider == nil {
		slog.Warn("no provider for model", "model", model)
		callsTotal.WithLabelValues(model, "error").Inc()
		return nil
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			slog.Warn("rate limiter wait failed", "model", model, "error", err)
			callsTotal.WithLabelValues(model, "error").Inc()
			return nil
		}
	}

	start := time.Now()
	content, err := provider.Complete(ctx, name, messages)
	callDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(content) == "" {
		err = errEmptyCompletion
	}
	if err != nil {
		slog.Warn("model query failed", "model", model, "duration", time.Since(start), "error", err)
		callsTotal.WithLabelValues(model, "error").Inc()
		return nil
	}

	callsTotal.WithLabelValues(model, "ok").Inc()
	return &Response{Content: content}
}

// QueryModels calls every model concurrently with the same messages and waits for
// all of them. Every model appears as a key; failed models map to nil.
func (c *Client) QueryModels(ctx context.Context, models []string, messages []Message) map[string]*Response {
	results := make(map[string]*Response, len(models))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, model := range models {
		wg.Add(1)
		go func(model string) {
			defer wg.Done()
			resp := c.QueryModel(ctx, model, messages)

			mu.Lock()
			results[model] = resp
			mu.Unlock()
		}(model)
	}

	wg.Wait()
	return results
}
