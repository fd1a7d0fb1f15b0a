package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Mock handler for testing
type mockHandler struct {
	canHandleResult bool
	handleResult    *ContentResult
	handleError     error
}

func (m *mockHandler) CanHandle(url string, resp *http.Response) bool {
	return m.canHandleResult
}

func (m *mockHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	return m.handleResult, m.handleError
}

func TestNewContentFetcher(t *testing.T) {
	fetcher := NewContentFetcher(nil)

	require.NotNil(t, fetcher)
	assert.NotNil(t, fetcher.client)
	require.Len(t, fetcher.handlers, 2)
	assert.IsType(t, &PlainTextHandler{}, fetcher.handlers[0])
	assert.IsType(t, &HTMLHandler{}, fetcher.handlers[1])
}

func TestAddHandler(t *testing.T) {
	fetcher := &ContentFetcher{}
	mockH := &mockHandler{canHandleResult: true}
	fetcher.AddHandler(mockH)

	require.Len(t, fetcher.handlers, 1)
	assert.Same(t, mockH, fetcher.handlers[0])
}

func TestFetchContentHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	fetcher := NewContentFetcher(nil)
	fetcher.client = server.Client()

	result, err := fetcher.FetchContent(context.Background(), server.URL)

	assert.Nil(t, result)
	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr), "want *HTTPError, got %v", err)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Equal(t, server.URL, httpErr.URL)
}

func TestFetchContentHandlerChain(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("body"))
	}))
	defer server.Close()

	t.Run("first matching handler wins", func(t *testing.T) {
		fetcher := &ContentFetcher{client: server.Client(), logger: zap.NewNop()}
		fetcher.AddHandler(&mockHandler{canHandleResult: false, handleResult: &ContentResult{Text: "skipped"}})
		fetcher.AddHandler(&mockHandler{canHandleResult: true, handleResult: &ContentResult{Text: "second"}})
		fetcher.AddHandler(&mockHandler{canHandleResult: true, handleResult: &ContentResult{Text: "third"}})

		result, err := fetcher.FetchContent(context.Background(), server.URL)
		require.NoError(t, err)
		assert.Equal(t, "second", result.Text)
	})

	t.Run("no handler", func(t *testing.T) {
		fetcher := &ContentFetcher{client: server.Client(), logger: zap.NewNop()}
		fetcher.AddHandler(&mockHandler{canHandleResult: false})

		_, err := fetcher.FetchContent(context.Background(), server.URL)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no handler found")
	})
}

func TestFetchContentCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fetcher := NewContentFetcher(nil)
	_, err := fetcher.FetchContent(ctx, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchReference(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><title>Acme Bakery</title></head><body><main><h1>Fresh bread</h1><p>` +
			strings.Repeat("Sourdough every morning. ", 200) + `</p></main></body></html>`))
	}))
	defer server.Close()

	fetcher := NewContentFetcher(nil)
	fetcher.client = server.Client()

	ref, err := fetcher.FetchReference(context.Background(), server.URL, 50)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "# Acme Bakery\n\n"))
	assert.Contains(t, ref, "Fresh bread")
	assert.True(t, strings.HasSuffix(ref, "[reference truncated]"))
	assert.LessOrEqual(t, len(ref), 50*4+len("\n[reference truncated]"))
}

func TestLimitContentTokens(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		maxTokens int
		want      string
	}{
		{"under limit", "short", 10, "short"},
		{"no limit", "anything", 0, "anything"},
		{"exact limit", "abcdefgh", 2, "abcdefgh"},
		{"over limit", "abcdefghij", 2, "abcdefgh\n[reference truncated]"},
		{"keeps runes whole", "aaaéé", 1, "aaa\n[reference truncated]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, limitContentTokens(tt.content, tt.maxTokens))
		})
	}
}
