package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

// ContentResult represents the result of fetching a reference
type ContentResult struct {
	Title string
	Text  string // Markdown or plain text
}

// ContentFetcher handles fetching and processing reference content from URLs
type ContentFetcher struct {
	handlers []ContentHandler
	client   *http.Client
	logger   *zap.Logger
}

// NewContentFetcher creates a new content fetcher with default handlers
func NewContentFetcher(logger *zap.Logger) *ContentFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &ContentFetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}

	// Most specific first
	f.AddHandler(&PlainTextHandler{})
	f.AddHandler(NewHTMLHandler()) // fallback

	return f
}

// AddHandler adds a content handler to the chain
func (f *ContentFetcher) AddHandler(handler ContentHandler) {
	f.handlers = append(f.handlers, handler)
}

// FetchContent fetches and processes content using the handler chain
func (f *ContentFetcher) FetchContent(ctx context.Context, url string) (*ContentResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "page-writer/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	f.logger.Debug("Reference response",
		zap.String("url", url),
		zap.Int("status", resp.StatusCode),
		zap.String("content_type", resp.Header.Get("Content-Type")))

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPError{StatusCode: resp.StatusCode, URL: url}
	}

	for _, handler := range f.handlers {
		if handler.CanHandle(url, resp) {
			return handler.Handle(url, resp)
		}
	}

	return nil, fmt.Errorf("no handler found for %s", url)
}

// FetchReference fetches a reference and renders it for the enhancement
// prompt, capped at roughly maxTokens.
func (f *ContentFetcher) FetchReference(ctx context.Context, url string, maxTokens int) (string, error) {
	content, err := f.FetchContent(ctx, url)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if content.Title != "" {
		sb.WriteString("# " + content.Title + "\n\n")
	}
	sb.WriteString(content.Text)
	return limitContentTokens(sb.String(), maxTokens), nil
}

// limitContentTokens limits content to approximately N tokens (4 chars ≈ 1 token)
func limitContentTokens(content string, maxTokens int) string {
	if maxTokens <= 0 {
		return content
	}
	maxChars := maxTokens * 4
	if len(content) <= maxChars {
		return content
	}
	cut := maxChars
	// Do not split a multi-byte rune.
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "\n[reference truncated]"
}
