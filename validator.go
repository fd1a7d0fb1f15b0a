package main

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aktagon/page-writer/internal/htmlfix"
)

// Validation issues. The first three are fatal.
const (
	IssueTooShort          = "too short"
	IssueShrank            = "shrank suspiciously"
	IssueTruncated         = "appears truncated"
	IssueDuplicateHeader   = "duplicate document header"
	IssueMissingStylesheet = "missing stylesheet reference"
	IssueMissingScript     = "missing script reference"
)

var fatalIssues = map[string]bool{
	IssueTooShort:  true,
	IssueShrank:    true,
	IssueTruncated: true,
}

var (
	reHTMLOpen  = regexp.MustCompile(`(?i)<html[\s>]`)
	reHTMLClose = regexp.MustCompile(`(?i)</html\s*>`)
)

// ValidatorConfig holds the heuristic thresholds
type ValidatorConfig struct {
	MinLength map[Kind]int
	// ShrinkRatio is the minimum fraction of the original's length a revision must keep.
	ShrinkRatio float64
}

// DefaultValidatorConfig returns the documented defaults
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MinLength:   map[Kind]int{KindHTML: 50, KindCSS: 20, KindJS: 10},
		ShrinkRatio: 0.3,
	}
}

// ArtifactValidator decides whether an extracted artifact is usable. All
// checks are advisory; callers act on IsValid.
type ArtifactValidator struct {
	config ValidatorConfig
}

// NewArtifactValidator creates a validator with the given thresholds
func NewArtifactValidator(config ValidatorConfig) *ArtifactValidator {
	if config.MinLength == nil {
		config.MinLength = DefaultValidatorConfig().MinLength
	}
	return &ArtifactValidator{config: config}
}

// Validate checks candidate on its own and, when original is given, against it.
func (v *ArtifactValidator) Validate(candidate Artifact, original *Artifact) ValidationResult {
	content := strings.TrimSpace(candidate.Content)
	var issues []string

	if len(content) < v.config.MinLength[candidate.Kind] {
		issues = append(issues, IssueTooShort)
	}

	if original != nil && original.SizeBytes() > 0 {
		if float64(len(content)) < v.config.ShrinkRatio*float64(len(strings.TrimSpace(original.Content))) {
			issues = append(issues, IssueShrank)
		}
	}

	if looksTruncated(candidate.Kind, content) {
		issues = append(issues, IssueTruncated)
	}

	result := ValidationResult{}
	if candidate.Kind == KindHTML && content != "" {
		if htmlfix.DoctypeCount(content) > 1 {
			issues = append(issues, IssueDuplicateHeader)
			result.Repaired = StripDuplicateDocumentHeaders(candidate.Content)
		}
		issues = append(issues, missingAssetIssues(content)...)
	}

	result.Issues = issues
	result.IsValid = !hasFatal(issues)
	return result
}

func hasFatal(issues []string) bool {
	for _, issue := range issues {
		if fatalIssues[issue] {
			return true
		}
	}
	return false
}

// looksTruncated detects a trailing ellipsis, an unterminated fence and an
// unclosed HTML document.
func looksTruncated(kind Kind, content string) bool {
	if content == "" {
		return false
	}
	if strings.HasSuffix(content, "...") || strings.HasSuffix(content, "…") {
		return true
	}
	if strings.Count(content, "```")%2 == 1 {
		return true
	}
	if kind == KindHTML && reHTMLOpen.MatchString(content) && !reHTMLClose.MatchString(content) {
		return true
	}
	return false
}

// missingAssetIssues reports HTML that does not reference styles.css or script.js.
// These are repaired by EnsureAssetLinks before emission.
func missingAssetIssues(content string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var issues []string
	hasCSS := false
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok && strings.HasSuffix(href, KindCSS.Filename()) {
			hasCSS = true
		}
	})
	if !hasCSS {
		issues = append(issues, IssueMissingStylesheet)
	}

	hasJS := false
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok && strings.HasSuffix(src, KindJS.Filename()) {
			hasJS = true
		}
	})
	if !hasJS {
		issues = append(issues, IssueMissingScript)
	}
	return issues
}
