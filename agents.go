package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const systemPrompt = `You are a senior front-end engineer generating static web pages.
Follow the requested response format exactly. Never truncate code and never replace code with placeholders such as "..." or "rest unchanged".`

// GenerationConfig is the per-call configuration
type GenerationConfig struct {
	MaxTokens   int
	Temperature float64
	Role        string
}

// GenerationClient sends one instruction and returns the model's text.
// Implementations do not retry; retries belong to the pipeline.
type GenerationClient interface {
	Name() string
	Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error)
}

// Middleware decorates a GenerationClient with a cross-cutting concern
type Middleware func(GenerationClient) GenerationClient

// Wrap applies middlewares in left-to-right order: Wrap(c, A, B) => A(B(c))
func Wrap(inner GenerationClient, mws ...Middleware) GenerationClient {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}

// generate calls the client and normalizes every failure, including a
// panic and an empty answer, into a *GenerationError.
func generate(ctx context.Context, client GenerationClient, prompt string, cfg GenerationConfig, attempt int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = &GenerationError{Role: cfg.Role, Attempt: attempt, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	text, err = client.Generate(ctx, prompt, cfg)
	if err != nil {
		var genErr *GenerationError
		if errors.As(err, &genErr) {
			return "", err
		}
		return "", &GenerationError{Role: cfg.Role, Attempt: attempt, Err: err}
	}
	if strings.TrimSpace(text) == "" {
		return "", &GenerationError{Role: cfg.Role, Attempt: attempt, Err: ErrEmptyResponse}
	}
	return text, nil
}

// AnthropicClient generates text through llmkit's Anthropic API
type AnthropicClient struct {
	apiKey string
	model  string
}

// NewAnthropicClient creates a client for the given API key and model. An
// empty model leaves the choice to llmkit.
func NewAnthropicClient(apiKey, model string) (*AnthropicClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("creating anthropic client: API key required")
	}
	return &AnthropicClient{apiKey: apiKey, model: model}, nil
}

func (c *AnthropicClient) Name() string { return "anthropic:" + c.model }

// Generate sends a single stateless request so no conversation history
// leaks between stages. The SDK call is not context-aware; when ctx ends
// first the result is discarded.
func (c *AnthropicClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	settings := types.RequestSettings{
		Model:       c.model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		response, err := anthropic.PromptWithSettings(systemPrompt, prompt, "", c.apiKey, settings)
		if err != nil {
			done <- result{err: fmt.Errorf("%s agent failed: %w", cfg.Role, err)}
			return
		}
		if len(response.Content) == 0 {
			done <- result{err: fmt.Errorf("%s agent: %w", cfg.Role, ErrEmptyResponse)}
			return
		}
		done <- result{text: response.Content[0].Text}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.text, r.err
	}
}

// ErrOffline is returned by OfflineClient for every call
var ErrOffline = errors.New("offline mode: no generation backend configured")

// OfflineClient never reaches a backend, which makes every stage use its
// fallback. Useful for previews and for exercising the fallback path.
type OfflineClient struct{}

func (OfflineClient) Name() string { return "offline" }

func (OfflineClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	return "", ErrOffline
}

// WithLogging logs request size, latency and errors per role
func WithLogging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next GenerationClient) GenerationClient {
		return &loggingClient{next: next, logger: logger}
	}
}

type loggingClient struct {
	next   GenerationClient
	logger *zap.Logger
}

func (l *loggingClient) Name() string { return l.next.Name() }

func (l *loggingClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	start := time.Now()
	l.logger.Debug("Generation request",
		zap.String("backend", l.next.Name()),
		zap.String("role", cfg.Role),
		zap.Int("prompt_bytes", len(prompt)),
		zap.Int("max_tokens", cfg.MaxTokens))

	text, err := l.next.Generate(ctx, prompt, cfg)
	if err != nil {
		l.logger.Warn("Generation failed",
			zap.String("role", cfg.Role),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return text, err
	}
	l.logger.Debug("Generation response",
		zap.String("role", cfg.Role),
		zap.Int("response_bytes", len(text)),
		zap.Duration("elapsed", time.Since(start)))
	return text, nil
}

// WithCache memoizes successful responses by role, parameters and prompt.
// A size <= 0 disables caching.
func WithCache(size int) Middleware {
	return func(next GenerationClient) GenerationClient {
		if size <= 0 {
			return next
		}
		cache, err := lru.New[string, string](size)
		if err != nil {
			return next
		}
		return &cachedClient{next: next, cache: cache}
	}
}

type cachedClient struct {
	next  GenerationClient
	cache *lru.Cache[string, string]
}

func (c *cachedClient) Name() string { return c.next.Name() }

func (c *cachedClient) Generate(ctx context.Context, prompt string, cfg GenerationConfig) (string, error) {
	key := cacheKey(prompt, cfg)
	if text, ok := c.cache.Get(key); ok {
		return text, nil
	}
	text, err := c.next.Generate(ctx, prompt, cfg)
	if err == nil && strings.TrimSpace(text) != "" {
		c.cache.Add(key, text)
	}
	return text, err
}

func cacheKey(prompt string, cfg GenerationConfig) string {
	h := sha256.New()
	h.Write([]byte(cfg.Role))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(cfg.MaxTokens)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(cfg.Temperature, 'f', -1, 64)))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}

// NewGenerationClient builds the configured backend wrapped in logging and caching
func NewGenerationClient(ctx context.Context, settings *Settings, apiKey string, logger *zap.Logger) (GenerationClient, error) {
	var (
		base GenerationClient
		err  error
	)
	switch settings.Provider {
	case "gemini":
		base, err = NewGeminiClient(ctx, apiKey, settings.Model)
	case "offline":
		base = OfflineClient{}
	default:
		base, err = NewAnthropicClient(apiKey, settings.Model)
	}
	if err != nil {
		return nil, err
	}
	return Wrap(base, WithLogging(logger), WithCache(settings.CacheSize)), nil
}
