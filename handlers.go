package main

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

// maxReferenceBytes bounds how much of a response body is read
const maxReferenceBytes = 4 << 20

// HTTPError represents an HTTP error with status code
type HTTPError struct {
	StatusCode int
	URL        string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// ContentHandler processes URLs based on response inspection
type ContentHandler interface {
	CanHandle(url string, resp *http.Response) bool
	Handle(url string, resp *http.Response) (*ContentResult, error)
}

// readBody decodes the body to UTF-8 using the declared or sniffed charset
func readBody(resp *http.Response) ([]byte, error) {
	r, err := charset.NewReader(io.LimitReader(resp.Body, maxReferenceBytes), resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("detecting charset: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

func mediaType(resp *http.Response) string {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return mt
}

// PlainTextHandler passes text and Markdown references through unchanged
type PlainTextHandler struct{}

func (h *PlainTextHandler) CanHandle(url string, resp *http.Response) bool {
	switch mediaType(resp) {
	case "text/plain", "text/markdown", "text/x-markdown":
		return true
	}
	lower := strings.ToLower(url)
	return strings.HasSuffix(lower, ".md") || strings.HasSuffix(lower, ".txt")
}

func (h *PlainTextHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	return &ContentResult{Text: strings.TrimSpace(string(body))}, nil
}

// HTMLHandler handles regular HTML content (fallback)
type HTMLHandler struct {
	converter *md.Converter
}

// NewHTMLHandler creates a handler that drops page chrome before conversion
func NewHTMLHandler() *HTMLHandler {
	conv := md.NewConverter("", true, nil)
	conv.Remove("script", "style", "noscript", "iframe")
	return &HTMLHandler{converter: conv}
}

func (h *HTMLHandler) CanHandle(url string, resp *http.Response) bool {
	return true
}

func (h *HTMLHandler) Handle(url string, resp *http.Response) (*ContentResult, error) {
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())

	// Navigation and footers describe the reference site, not its content.
	doc.Find("nav, footer, header nav, [role=navigation]").Remove()
	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("body").First()
	}
	if root.Length() == 0 {
		root = doc.Selection
	}

	markdown := h.converter.Convert(root)
	return &ContentResult{Title: title, Text: strings.TrimSpace(markdown)}, nil
}
