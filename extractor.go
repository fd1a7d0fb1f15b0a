package main

import (
	"encoding/json"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// Strategy names, in the order they are tried.
const (
	StrategyLanguageFence = "language_fence"
	StrategySectionHeader = "section_header"
	StrategyUntaggedFence = "untagged_fence"
	StrategyRawText       = "raw_text"
	StrategyFallback      = "fallback"
)

var (
	reFence  = regexp.MustCompile("(?s)```([^\\n`]*)\\n(.*?)```")
	reTag    = regexp.MustCompile(`<[a-zA-Z!][^>]*>`)
	reHeader = regexp.MustCompile(`^([A-Z]+)(?:_[A-Z]+)*\s*:?$`)
	reMarkup = regexp.MustCompile(`(?i)<!doctype|<html[\s>]|<body[\s>]|<head[\s>]`)
)

// fence is one fenced code block found in a response
type fence struct {
	label string
	body  string
	start int
}

// findFences returns every closed fence in text, in order.
func findFences(text string) []fence {
	matches := reFence.FindAllStringSubmatchIndex(text, -1)
	fences := make([]fence, 0, len(matches))
	for _, m := range matches {
		info := strings.TrimSpace(text[m[2]:m[3]])
		if f := strings.Fields(info); len(f) > 0 {
			info = f[0]
		}
		fences = append(fences, fence{
			label: strings.ToLower(info),
			body:  text[m[4]:m[5]],
			start: m[0],
		})
	}
	return fences
}

// languageLabels lists the fence labels accepted as an exact match per kind
func languageLabels(kind Kind) []string {
	switch kind {
	case KindHTML:
		return []string{"html"}
	case KindCSS:
		return []string{"css"}
	case KindJS:
		return []string{"js", "javascript"}
	case KindJSON:
		return []string{"json"}
	}
	return nil
}

// headerNames lists the section header prefixes per kind, e.g. HTML in HTML_OPTIMIZED:
func headerNames(kind Kind) []string {
	switch kind {
	case KindJS:
		return []string{"JS", "JAVASCRIPT"}
	default:
		return []string{strings.ToUpper(string(kind))}
	}
}

// ExtractionStrategy is one rule for locating code inside a response.
// Find returns every candidate it matched, possibly empty strings.
type ExtractionStrategy struct {
	Name string
	Find func(raw string, kind Kind) []string
}

// DefaultStrategies is the ordered cascade; the first non-empty candidate wins.
var DefaultStrategies = []ExtractionStrategy{
	{Name: StrategyLanguageFence, Find: findLanguageFence},
	{Name: StrategySectionHeader, Find: findSectionHeader},
	{Name: StrategyUntaggedFence, Find: findUntaggedFence},
	{Name: StrategyRawText, Find: findRawText},
}

func findLanguageFence(raw string, kind Kind) []string {
	var out []string
	labels := languageLabels(kind)
	for _, f := range findFences(raw) {
		for _, l := range labels {
			if f.label == l {
				out = append(out, f.body)
				break
			}
		}
	}
	return out
}

func findSectionHeader(raw string, kind Kind) []string {
	var out []string
	for _, f := range findFences(raw) {
		if precedingHeader(raw[:f.start], kind) {
			out = append(out, f.body)
		}
	}
	return out
}

// precedingHeader reports whether the last non-empty line before a fence
// is a header for kind such as "HTML_OPTIMIZED:" or "**CSS:**".
func precedingHeader(before string, kind Kind) bool {
	before = strings.TrimRight(before, " \t\r\n")
	line := before
	if i := strings.LastIndex(before, "\n"); i >= 0 {
		line = before[i+1:]
	}
	line = strings.ToUpper(strings.Trim(line, " \t*#>_`"))
	m := reHeader.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	for _, name := range headerNames(kind) {
		if m[1] == name {
			return true
		}
	}
	return false
}

func findUntaggedFence(raw string, kind Kind) []string {
	var out []string
	for _, f := range findFences(raw) {
		if f.label == "" && !foreignTo(kind, f.body) {
			out = append(out, f.body)
		}
	}
	return out
}

func findRawText(raw string, kind Kind) []string {
	text := strings.TrimSpace(raw)
	if text == "" || foreignTo(kind, text) {
		return nil
	}
	return []string{text}
}

// foreignTo guards against taking another artifact's content for kind.
func foreignTo(kind Kind, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	isJSON := (strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[")) && json.Valid([]byte(text))
	switch kind {
	case KindHTML:
		return isJSON || !reTag.MatchString(text)
	case KindCSS:
		return isJSON || reMarkup.MatchString(text) || !strings.Contains(text, "{")
	case KindJS:
		return isJSON || reMarkup.MatchString(text)
	case KindJSON:
		return !strings.HasPrefix(text, "{") && !strings.HasPrefix(text, "[")
	}
	return true
}

// Extractor turns a raw model response into an Artifact. It never fails.
type Extractor struct {
	strategies []ExtractionStrategy
	logger     *zap.Logger
}

// NewExtractor creates an extractor with the default strategy cascade
func NewExtractor(logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{strategies: DefaultStrategies, logger: logger}
}

// Extract returns the first non-empty candidate of the first matching
// strategy, trimmed, or fallbackText with OriginFallback.
func (e *Extractor) Extract(rawText string, kind Kind, fallbackText string) Artifact {
	art, _ := e.ExtractDetailed(rawText, kind, fallbackText)
	return art
}

// ExtractDetailed is Extract plus a non-fatal report: *ExtractionAmbiguity
// when several candidates matched, *ExtractionMiss when the fallback was used.
func (e *Extractor) ExtractDetailed(rawText string, kind Kind, fallbackText string) (Artifact, error) {
	partial := ""
	for _, s := range e.strategies {
		candidates := e.find(s, rawText, kind)
		var nonEmpty []string
		for _, c := range candidates {
			if c = strings.TrimSpace(c); c != "" {
				nonEmpty = append(nonEmpty, c)
			}
		}
		if len(nonEmpty) == 0 {
			if len(candidates) > 0 && partial == "" {
				partial = s.Name
			}
			continue
		}

		var report error
		if len(nonEmpty) > 1 {
			report = &ExtractionAmbiguity{Kind: kind, Strategy: s.Name, Candidates: len(nonEmpty)}
			e.logger.Debug("Ambiguous extraction, using first candidate",
				zap.String("kind", string(kind)),
				zap.String("strategy", s.Name),
				zap.Int("candidates", len(nonEmpty)))
		}
		e.logger.Debug("Extracted artifact",
			zap.String("kind", string(kind)),
			zap.String("strategy", s.Name),
			zap.Int("bytes", len(nonEmpty[0])))
		return Artifact{Kind: kind, Content: nonEmpty[0], Origin: OriginModelExtracted, Strategy: s.Name}, report
	}

	e.logger.Info("No usable content in response, using fallback",
		zap.String("kind", string(kind)),
		zap.String("partial_match", partial),
		zap.Int("response_bytes", len(rawText)))
	miss := &ExtractionMiss{Kind: kind, PartialMatch: partial, ResponseLen: len(rawText)}
	return Artifact{Kind: kind, Content: fallbackText, Origin: OriginFallback, Strategy: StrategyFallback}, miss
}

// find runs one strategy, turning a panic into "no match" so extraction stays total.
func (e *Extractor) find(s ExtractionStrategy, raw string, kind Kind) (out []string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("Extraction strategy panicked", zap.String("strategy", s.Name), zap.Any("panic", r))
			out = nil
		}
	}()
	return s.Find(raw, kind)
}
