package main

import (
	"bufio"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// maxRejections bounds interactive re-planning
const maxRejections = 3

// ErrPlanDeclined is returned when the user ends the approval dialogue
// without approving a plan.
var ErrPlanDeclined = errors.New("plan declined")

var (
	reSlugChars  = regexp.MustCompile(`[^a-z0-9]+`)
	reSlugDashes = regexp.MustCompile(`-+`)
)

// Processor turns plans and prompts into site directories on disk
type Processor struct {
	client    GenerationClient
	settings  *Settings
	fetcher   *ContentFetcher
	logger    *zap.Logger
	metrics   *Metrics
	overwrite bool

	in  *bufio.Reader
	out io.Writer
}

// NewProcessor creates a processor sharing one generation client across runs
func NewProcessor(client GenerationClient, settings *Settings, logger *zap.Logger, metrics *Metrics) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		client:   client,
		settings: settings,
		fetcher:  NewContentFetcher(logger),
		logger:   logger,
		metrics:  metrics,
		in:       bufio.NewReader(os.Stdin),
		out:      os.Stdout,
	}
}

// SetOverwrite sets the overwrite flag
func (p *Processor) SetOverwrite(overwrite bool) {
	p.overwrite = overwrite
}

// SetIO replaces the terminal used for plan approval
func (p *Processor) SetIO(in io.Reader, out io.Writer) {
	p.in = bufio.NewReader(in)
	p.out = out
}

func (p *Processor) newPipeline() *Pipeline {
	pipe := NewPipeline(p.client, p.settings, p.logger, p.metrics)
	pipe.OnProgress(func(ev ProgressEvent) {
		if ev.Stage != "" {
			fmt.Fprintf(p.out, "  → [%3d%%] %s\n", ev.Percent, ev.Label)
		}
	})
	return pipe
}

// ProcessPlans runs every plan in its own pipeline, at most
// settings.Concurrency at a time. A failing plan does not stop the others.
func (p *Processor) ProcessPlans(ctx context.Context, plans []*PagePlan) ([]ProcessingResult, error) {
	results := make([]ProcessingResult, len(plans))

	p.logger.Info("Processing plans", zap.Int("count", len(plans)), zap.Int("concurrency", p.settings.Concurrency))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.settings.Concurrency)
	for i, plan := range plans {
		g.Go(func() error {
			results[i] = p.ProcessPlan(gctx, plan)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	for i, r := range results {
		switch r.Status {
		case StatusSuccess:
			p.logger.Info("Generated site", zap.Int("index", i+1), zap.String("dir", r.Directory), zap.Int("fallbacks", r.Fallbacks))
		case StatusSkipped:
			p.logger.Info("Skipped site", zap.Int("index", i+1), zap.String("dir", r.Directory))
		default:
			p.logger.Error("Failed plan", zap.Int("index", i+1), zap.String("plan_id", r.PlanID), zap.Error(r.Error))
		}
	}
	return results, ctx.Err()
}

// ProcessPlan generates one pre-approved plan
func (p *Processor) ProcessPlan(ctx context.Context, plan *PagePlan) ProcessingResult {
	dir := p.siteDir(plan)
	if !p.overwrite && dirExists(dir) {
		p.logger.Info("Skipping existing site", zap.String("dir", dir))
		return ProcessingResult{PlanID: plan.ID, Status: StatusSkipped, Directory: dir}
	}

	pipe := p.newPipeline()
	if err := pipe.StartWithPlan(plan); err != nil {
		return ProcessingResult{PlanID: plan.ID, Status: StatusError, Error: err}
	}
	files, err := pipe.ApprovePlan(ctx, "")
	if err != nil {
		return ProcessingResult{PlanID: plan.ID, Status: StatusError, Error: err}
	}
	return p.save(dir, pipe, files)
}

// ProcessPrompt runs the full workflow for a description. Unless
// autoApprove is set the plan is shown and the user may approve, decline
// or reject it with feedback.
func (p *Processor) ProcessPrompt(ctx context.Context, description, referenceURL string, autoApprove bool) ProcessingResult {
	req := PageRequest{Description: description}
	if referenceURL != "" {
		ref, err := p.fetcher.FetchReference(ctx, referenceURL, p.settings.ReferenceMaxTokens)
		if err != nil {
			p.logger.Warn("Reference unavailable, continuing without it", zap.String("url", referenceURL), zap.Error(err))
		} else {
			req.Reference = ref
		}
	}

	pipe := p.newPipeline()
	var approvalNotes string
	for rejections := 0; ; {
		plan, err := pipe.Start(ctx, req)
		if err != nil {
			return ProcessingResult{Status: StatusError, Error: err}
		}
		if autoApprove {
			break
		}

		p.printPlan(plan)
		decision, feedback, err := p.askApproval()
		if err != nil {
			return ProcessingResult{PlanID: plan.ID, Status: StatusError, Error: err}
		}
		if decision == decisionApprove {
			approvalNotes = feedback
			break
		}
		if decision == decisionDecline {
			return ProcessingResult{PlanID: plan.ID, Status: StatusSkipped, Error: ErrPlanDeclined}
		}

		rejections++
		if rejections >= maxRejections {
			return ProcessingResult{PlanID: plan.ID, Status: StatusSkipped,
				Error: fmt.Errorf("%w after %d rejections", ErrPlanDeclined, rejections)}
		}
		if err := pipe.RejectPlan(feedback); err != nil {
			return ProcessingResult{PlanID: plan.ID, Status: StatusError, Error: err}
		}
	}

	plan := pipe.State().Plan
	dir := p.siteDir(plan)
	if !p.overwrite && dirExists(dir) {
		return ProcessingResult{PlanID: plan.ID, Status: StatusSkipped, Directory: dir}
	}
	files, err := pipe.ApprovePlan(ctx, approvalNotes)
	if err != nil {
		return ProcessingResult{PlanID: plan.ID, Status: StatusError, Error: err}
	}
	return p.save(dir, pipe, files)
}

type approvalDecision int

const (
	decisionDecline approvalDecision = iota
	decisionApprove
	decisionReject
)

// askApproval reads one answer: "y" approves, "y: notes" approves with
// notes for the generation stages, "n" or empty declines, anything else
// rejects the plan with that text as feedback.
func (p *Processor) askApproval() (approvalDecision, string, error) {
	fmt.Fprint(p.out, "Approve plan? [y/N/feedback]: ")
	input, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return decisionDecline, "", fmt.Errorf("reading approval: %w", err)
	}
	answer := strings.TrimSpace(input)
	lower := strings.ToLower(answer)

	switch {
	case lower == "y" || lower == "yes":
		return decisionApprove, "", nil
	case strings.HasPrefix(lower, "y:"):
		return decisionApprove, strings.TrimSpace(answer[2:]), nil
	case lower == "" || lower == "n" || lower == "no":
		return decisionDecline, "", nil
	default:
		return decisionReject, answer, nil
	}
}

func (p *Processor) printPlan(plan *PagePlan) {
	fmt.Fprintf(p.out, "\nPlan: %s (%s complexity)\n", plan.Title, plan.EstimatedComplexity)
	if plan.Description != "" {
		fmt.Fprintf(p.out, "  %s\n", plan.Description)
	}
	for i, s := range plan.Structure {
		fmt.Fprintf(p.out, "  %d. %s", i+1, s.Name)
		if s.Description != "" {
			fmt.Fprintf(p.out, ": %s", s.Description)
		}
		fmt.Fprintln(p.out)
	}
	fmt.Fprintf(p.out, "  Design: %s / %s / %s / %s\n",
		plan.Design.ColorScheme, plan.Design.Typography, plan.Design.Layout, plan.Design.Style)
	if len(plan.Functionality) > 0 {
		fmt.Fprintf(p.out, "  Functionality: %s\n", strings.Join(plan.Functionality, ", "))
	}
}

// runReport is written next to the site as diagnostics.yaml
type runReport struct {
	RunID       string            `yaml:"run_id"`
	Phase       Phase             `yaml:"phase"`
	GeneratedAt time.Time         `yaml:"generated_at"`
	Artifacts   map[Kind]Artifact `yaml:"artifacts"`
	Diagnostics []Diagnostic      `yaml:"diagnostics,omitempty"`
}

func (p *Processor) save(dir string, pipe *Pipeline, files []File) ProcessingResult {
	state := pipe.State()
	result := ProcessingResult{PlanID: state.Plan.ID, Directory: dir, Fallbacks: pipe.FallbackCount()}

	if err := writeSite(dir, state, files); err != nil {
		result.Status = StatusError
		result.Error = fmt.Errorf("saving site: %w", err)
		return result
	}
	result.Status = StatusSuccess
	p.logger.Info("Saved site", zap.String("dir", dir), zap.Int("files", len(files)), zap.Int("fallbacks", result.Fallbacks))
	return result
}

func writeSite(dir string, state WorkflowState, files []File) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, f := range files {
		if err := os.WriteFile(filepath.Join(dir, f.Name), []byte(f.Content), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", f.Name, err)
		}
	}

	planYAML, err := yaml.Marshal(state.Plan)
	if err != nil {
		return fmt.Errorf("marshaling plan: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "plan.yaml"), planYAML, 0644); err != nil {
		return fmt.Errorf("writing plan.yaml: %w", err)
	}

	report, err := yaml.Marshal(runReport{
		RunID:       state.RunID,
		Phase:       state.Phase,
		GeneratedAt: state.UpdatedAt,
		Artifacts:   state.Artifacts,
		Diagnostics: state.Diagnostics,
	})
	if err != nil {
		return fmt.Errorf("marshaling diagnostics: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "diagnostics.yaml"), report, 0644)
}

// siteDir is <output>/<slug>-<hash8>; the hash keeps plans with equal titles apart
func (p *Processor) siteDir(plan *PagePlan) string {
	name := fmt.Sprintf("%s-%s", generateSlugFromTitle(plan.Title), generatePlanHash(plan.ID))
	return filepath.Join(p.settings.OutputDirectory, name)
}

// generateSlugFromTitle creates a directory slug from a page title
func generateSlugFromTitle(title string) string {
	slug := strings.ToLower(title)
	slug = reSlugChars.ReplaceAllString(slug, "-")
	slug = reSlugDashes.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	// Limit length to avoid filesystem issues
	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}
	if slug == "" {
		return "page"
	}
	return slug
}

func generatePlanHash(id string) string {
	h := sha256.Sum256([]byte(id))
	return fmt.Sprintf("%x", h)[:8]
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
