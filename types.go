package main

import "time"

// Kind identifies one generated file
type Kind string

const (
	KindHTML Kind = "html"
	KindCSS  Kind = "css"
	KindJS   Kind = "js"
	// KindJSON is only used when extracting the plan from the planner's response.
	KindJSON Kind = "json"
)

// ArtifactKinds lists the kinds every completed run must produce, in emission order.
var ArtifactKinds = []Kind{KindHTML, KindCSS, KindJS}

// Filename returns the output file name for an artifact kind
func (k Kind) Filename() string {
	switch k {
	case KindHTML:
		return "index.html"
	case KindCSS:
		return "styles.css"
	case KindJS:
		return "script.js"
	default:
		return "plan.json"
	}
}

// MIMEType returns the content type used for emitted files
func (k Kind) MIMEType() string {
	switch k {
	case KindHTML:
		return "text/html"
	case KindCSS:
		return "text/css"
	case KindJS:
		return "application/javascript"
	default:
		return "application/json"
	}
}

// Complexity is the planner's estimate of the page size
type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Section is one top-to-bottom block of the page
type Section struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name" validate:"required"`
	Description  string   `json:"description" yaml:"description"`
	ContentItems []string `json:"contentItems" yaml:"content_items"`
}

// Design holds free-text design hints
type Design struct {
	ColorScheme string `json:"colorScheme" yaml:"color_scheme" validate:"required"`
	Typography  string `json:"typography" yaml:"typography" validate:"required"`
	Layout      string `json:"layout" yaml:"layout" validate:"required"`
	Style       string `json:"style" yaml:"style" validate:"required"`
}

// PagePlan is the approved description of the page that drives generation. It is treated
// as read-only once a run has been approved.
type PagePlan struct {
	ID                  string     `json:"id" yaml:"id" validate:"required"`
	Title               string     `json:"title" yaml:"title" validate:"required"`
	Description         string     `json:"description" yaml:"description"`
	Structure           []Section  `json:"structure" yaml:"structure" validate:"required,min=1,dive"`
	Design              Design     `json:"design" yaml:"design"`
	Functionality       []string   `json:"functionality" yaml:"functionality"`
	EstimatedComplexity Complexity `json:"estimatedComplexity" yaml:"estimated_complexity" validate:"oneof=low medium high"`
}

// Clone returns a deep copy so subscribers never share slices with the pipeline.
func (p *PagePlan) Clone() *PagePlan {
	if p == nil {
		return nil
	}
	c := *p
	c.Structure = make([]Section, len(p.Structure))
	for i, s := range p.Structure {
		s.ContentItems = append([]string(nil), s.ContentItems...)
		c.Structure[i] = s
	}
	c.Functionality = append([]string(nil), p.Functionality...)
	return &c
}

// Origin records where an artifact's content came from
type Origin string

const (
	OriginModelExtracted Origin = "model_extracted"
	OriginFallback       Origin = "fallback"
)

// Artifact is one generated file's worth of content. Values are never
// mutated after creation; a later stage supersedes them with a new value.
type Artifact struct {
	Kind     Kind   `json:"kind" yaml:"kind"`
	Content  string `json:"content" yaml:"-"`
	Origin   Origin `json:"origin" yaml:"origin"`
	Stage    Stage  `json:"stage" yaml:"stage"`
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty"`
}

// SizeBytes is derived from the content
func (a Artifact) SizeBytes() int { return len(a.Content) }

// Phase is the workflow position of a pipeline
type Phase string

const (
	PhaseInput        Phase = "input"
	PhaseEnhancement  Phase = "enhancement"
	PhasePlanning     Phase = "planning"
	PhaseApproval     Phase = "approval"
	PhaseCoordination Phase = "coordination"
	PhaseGeneration   Phase = "generation"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
)

// WorkflowState is owned by a single Pipeline. Subscribers only ever see
// copies produced by Snapshot.
type WorkflowState struct {
	RunID             string
	Phase             Phase
	Plan              *PagePlan
	Artifacts         map[Kind]Artifact
	IsProcessing      bool
	LastError         *Diagnostic
	Diagnostics       []Diagnostic
	RejectionFeedback string
	UpdatedAt         time.Time
}

// Snapshot returns a deep copy of the state
func (s *WorkflowState) Snapshot() WorkflowState {
	c := *s
	c.Plan = s.Plan.Clone()
	c.Artifacts = make(map[Kind]Artifact, len(s.Artifacts))
	for k, v := range s.Artifacts {
		c.Artifacts[k] = v
	}
	c.Diagnostics = append([]Diagnostic(nil), s.Diagnostics...)
	if s.LastError != nil {
		d := *s.LastError
		c.LastError = &d
	}
	return c
}

// ValidationResult is produced and consumed within a single stage
type ValidationResult struct {
	IsValid bool
	Issues  []string
	// Repaired holds auto-repaired content when a non-fatal issue was fixed.
	Repaired string
}

// File is one emitted output file
type File struct {
	Name    string `json:"name" yaml:"name"`
	Content string `json:"content" yaml:"-"`
	Type    string `json:"type" yaml:"type"`
}

// PageRequest is the user's natural-language input
type PageRequest struct {
	Description string
	// Reference is optional source material (already converted to text)
	// the enhancer may draw on.
	Reference string
}

// ProcessingStatus represents the outcome status of processing a plan
type ProcessingStatus string

const (
	StatusSuccess ProcessingStatus = "success"
	StatusSkipped ProcessingStatus = "skipped"
	StatusError   ProcessingStatus = "error"
)

// ProcessingResult tracks the outcome of processing each plan
type ProcessingResult struct {
	PlanID    string
	Status    ProcessingStatus
	Directory string
	Fallbacks int
	Error     error
}
