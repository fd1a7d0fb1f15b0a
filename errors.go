package main

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptyResponse is returned when the backend answered with no text
var ErrEmptyResponse = errors.New("empty response from generation backend")

// GenerationError wraps any failure of the generation backend: transport,
// non-success response, empty text or a recovered panic. It is always
// recoverable at stage level.
type GenerationError struct {
	Role    string
	Attempt int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed (role=%s, attempt=%d): %v", e.Role, e.Attempt, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// ExtractionAmbiguity reports that more than one candidate matched a
// strategy. The first candidate is used.
type ExtractionAmbiguity struct {
	Kind       Kind
	Strategy   string
	Candidates int
}

func (e *ExtractionAmbiguity) Error() string {
	return fmt.Sprintf("ambiguous %s extraction: %d candidates for strategy %s", e.Kind, e.Candidates, e.Strategy)
}

// ExtractionMiss reports that no strategy produced content for a kind and
// the fallback text was used. PartialMatch names the first strategy that
// matched only empty candidates, if any.
type ExtractionMiss struct {
	Kind         Kind
	PartialMatch string
	ResponseLen  int
}

func (e *ExtractionMiss) Error() string {
	msg := fmt.Sprintf("no usable %s in response (%d bytes), using fallback", e.Kind, e.ResponseLen)
	if e.PartialMatch != "" {
		msg += "; partial match: " + e.PartialMatch
	}
	return msg
}

// ValidationFailure means a candidate artifact was rejected and replaced
type ValidationFailure struct {
	Kind   Kind
	Stage  Stage
	Issues []string
}

func (e *ValidationFailure) Error() string {
	return fmt.Sprintf("%s artifact rejected at stage %s: %s", e.Kind, e.Stage, strings.Join(e.Issues, ", "))
}

// WorkflowInvariantError is the only fatal error; it moves the pipeline to Failed.
type WorkflowInvariantError struct {
	Op    string
	Phase Phase
	Msg   string
}

func (e *WorkflowInvariantError) Error() string {
	return fmt.Sprintf("%s not allowed in phase %s: %s", e.Op, e.Phase, e.Msg)
}

// ErrorCategory classifies diagnostics
type ErrorCategory string

const (
	CategoryGeneration ErrorCategory = "generation"
	CategoryExtraction ErrorCategory = "extraction"
	CategoryValidation ErrorCategory = "validation"
	CategoryInvariant  ErrorCategory = "invariant"
	CategoryCancelled  ErrorCategory = "cancelled"
)

// Diagnostic is the structured form of lastError reported to subscribers
type Diagnostic struct {
	Category ErrorCategory `json:"category" yaml:"category"`
	Stage    string        `json:"stage,omitempty" yaml:"stage,omitempty"`
	Kind     Kind          `json:"kind,omitempty" yaml:"kind,omitempty"`
	Message  string        `json:"message" yaml:"message"`
	Issues   []string      `json:"issues,omitempty" yaml:"issues,omitempty"`
	Fatal    bool          `json:"fatal" yaml:"fatal"`
	At       time.Time     `json:"at" yaml:"at"`
}

// newDiagnostic maps a typed error onto a Diagnostic
func newDiagnostic(stage string, err error) Diagnostic {
	d := Diagnostic{Stage: stage, Message: err.Error(), At: time.Now()}

	var genErr *GenerationError
	var ambErr *ExtractionAmbiguity
	var missErr *ExtractionMiss
	var valErr *ValidationFailure
	var invErr *WorkflowInvariantError
	switch {
	case errors.As(err, &invErr):
		d.Category = CategoryInvariant
		d.Fatal = true
	case errors.As(err, &valErr):
		d.Category = CategoryValidation
		d.Kind = valErr.Kind
		d.Issues = append([]string(nil), valErr.Issues...)
	case errors.As(err, &ambErr):
		d.Category = CategoryExtraction
		d.Kind = ambErr.Kind
	case errors.As(err, &missErr):
		d.Category = CategoryExtraction
		d.Kind = missErr.Kind
	case errors.As(err, &genErr):
		d.Category = CategoryGeneration
	default:
		d.Category = CategoryGeneration
	}
	return d
}
