package main

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// transitions lists the forward edges of the workflow. Failed is reachable
// from the pre-generation phases only and, like Completed, is terminal.
var transitions = map[Phase][]Phase{
	PhaseInput:        {PhaseEnhancement, PhaseFailed},
	PhaseEnhancement:  {PhasePlanning, PhaseFailed},
	PhasePlanning:     {PhaseApproval, PhaseFailed},
	PhaseApproval:     {PhaseCoordination, PhaseInput, PhaseFailed},
	PhaseCoordination: {PhaseGeneration},
	PhaseGeneration:   {PhaseCompleted},
}

func canTransition(from, to Phase) bool {
	for _, p := range transitions[from] {
		if p == to {
			return true
		}
	}
	return false
}

// stageStep is the per-stage state machine: Attempt -> Retry -> Fallback -> Done
type stageStep int

const (
	stepAttempt stageStep = iota
	stepRetry
	stepExtract
	stepFallback
	stepDone
)

// Pipeline owns one WorkflowState and drives it from a request to three files.
// Start, StartWithPlan, ApprovePlan and RejectPlan are serialized; Cancel and
// State may be called from any goroutine. Listeners run synchronously on the
// calling goroutine and must not call those four methods.
type Pipeline struct {
	Events

	client      GenerationClient
	prompts     *PromptBuilder
	extractor   *Extractor
	validator   *ArtifactValidator
	settings    *Settings
	retryBudget int
	logger      *zap.Logger
	metrics     *Metrics

	opMu      sync.Mutex
	mu        sync.Mutex
	state     WorkflowState
	feedback  string
	cancelled atomic.Bool
}

// NewPipeline creates an isolated pipeline. A nil settings uses the embedded
// defaults; nil logger and metrics are allowed.
func NewPipeline(client GenerationClient, settings *Settings, logger *zap.Logger, metrics *Metrics) *Pipeline {
	if settings == nil {
		settings = DefaultSettings()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	return &Pipeline{
		client:      client,
		prompts:     NewPromptBuilder(),
		extractor:   NewExtractor(logger),
		validator:   NewArtifactValidator(settings.ValidatorConfig()),
		settings:    settings,
		retryBudget: settings.RetryBudget,
		logger:      logger,
		metrics:     metrics,
		state: WorkflowState{
			RunID:     runID,
			Phase:     PhaseInput,
			Artifacts: make(map[Kind]Artifact),
			UpdatedAt: time.Now(),
		},
	}
}

// State returns a snapshot of the current workflow state
func (p *Pipeline) State() WorkflowState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Snapshot()
}

// Cancel asks the pipeline to stop before the next stage. An in-flight
// generation call completes and its result is discarded.
func (p *Pipeline) Cancel() {
	p.cancelled.Store(true)
	p.logger.Info("Cancellation requested")
}

func (p *Pipeline) isCancelled(ctx context.Context) bool {
	return p.cancelled.Load() || ctx.Err() != nil
}

// Start runs Enhancement and Planning for a natural-language request and
// leaves the pipeline in Approval with a plan. Generation failures fall back
// to the original description and a deterministic plan.
func (p *Pipeline) Start(ctx context.Context, req PageRequest) (*PagePlan, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if err := p.require("start", PhaseInput); err != nil {
		return nil, err
	}
	if req.Description == "" {
		return nil, p.fail(&WorkflowInvariantError{Op: "start", Phase: PhaseInput, Msg: "description is empty"})
	}

	p.mu.Lock()
	rejection := p.state.RejectionFeedback
	p.mu.Unlock()

	p.transition(PhaseEnhancement, true)
	p.progress(PhaseEnhancement, StageEnhancement, "Enhancing request", 0)
	brief := req.Description
	enhancePrompt := p.prompts.BuildEnhancementPrompt(req, rejection)
	if text, ok := p.generateWithRetry(ctx, StageEnhancement, enhancePrompt); ok {
		brief = text
	} else {
		p.logger.Info("Using original description as brief")
	}

	p.transition(PhasePlanning, true)
	p.progress(PhasePlanning, StagePlanning, "Planning page", 0)
	var plan *PagePlan
	planPrompt := p.prompts.BuildPlanningPrompt(brief, rejection)
	if text, ok := p.generateWithRetry(ctx, StagePlanning, planPrompt); ok {
		parsed, err := ParsePlanResponse(p.extractor, text)
		if err != nil {
			p.report(Diagnostic{
				Category: CategoryExtraction,
				Stage:    string(StagePlanning),
				Kind:     KindJSON,
				Message:  err.Error(),
				At:       time.Now(),
			})
		} else {
			plan = parsed
		}
	}
	if plan == nil {
		plan = FallbackPlan(req.Description)
		p.logger.Info("Using fallback plan", zap.String("title", plan.Title))
	}

	p.mu.Lock()
	p.state.Plan = plan
	p.mu.Unlock()
	p.transition(PhaseApproval, false)
	return plan.Clone(), nil
}

// StartWithPlan skips Enhancement and Planning for an already written plan
// and leaves the pipeline in Approval.
func (p *Pipeline) StartWithPlan(plan *PagePlan) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if err := p.require("start", PhaseInput); err != nil {
		return err
	}
	normalized := NormalizePlan(plan)
	if plan == nil || len(plan.Structure) == 0 {
		return p.fail(&WorkflowInvariantError{Op: "start", Phase: PhaseInput, Msg: "plan has no sections"})
	}
	if err := ValidatePlan(normalized); err != nil {
		return p.fail(&WorkflowInvariantError{Op: "start", Phase: PhaseInput, Msg: err.Error()})
	}

	p.transition(PhaseEnhancement, false)
	p.transition(PhasePlanning, false)
	p.mu.Lock()
	p.state.Plan = normalized
	p.mu.Unlock()
	p.transition(PhaseApproval, false)
	return nil
}

// RejectPlan returns to Input, clears the plan and keeps the feedback for
// the next Start.
func (p *Pipeline) RejectPlan(feedback string) error {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if err := p.require("reject", PhaseApproval); err != nil {
		return err
	}

	p.mu.Lock()
	p.state.Plan = nil
	p.state.Artifacts = make(map[Kind]Artifact)
	p.state.RejectionFeedback = feedback
	p.mu.Unlock()

	p.logger.Info("Plan rejected", zap.String("feedback", feedback))
	p.transition(PhaseInput, false)
	return nil
}

// ApprovePlan runs Coordination and every generation stage, then returns
// index.html, styles.css and script.js. Once generation has begun it always
// completes; degraded stages are reported as diagnostics.
func (p *Pipeline) ApprovePlan(ctx context.Context, feedback string) ([]File, error) {
	p.opMu.Lock()
	defer p.opMu.Unlock()

	if err := p.require("approve", PhaseApproval); err != nil {
		return nil, err
	}
	p.mu.Lock()
	plan := p.state.Plan
	p.mu.Unlock()
	if plan == nil {
		return nil, p.fail(&WorkflowInvariantError{Op: "approve", Phase: PhaseApproval, Msg: "no plan present"})
	}
	if err := ValidatePlan(plan); err != nil {
		return nil, p.fail(&WorkflowInvariantError{Op: "approve", Phase: PhaseApproval, Msg: err.Error()})
	}
	p.feedback = feedback

	p.transition(PhaseCoordination, true)
	p.progress(PhaseCoordination, "", "Coordinating generation stages", 0)
	p.mu.Lock()
	p.state.Artifacts = make(map[Kind]Artifact)
	p.mu.Unlock()

	p.transition(PhaseGeneration, true)
	for _, def := range GenerationStages {
		if p.isCancelled(ctx) {
			p.report(Diagnostic{
				Category: CategoryCancelled,
				Stage:    string(def.Stage),
				Message:  "run cancelled, remaining stages skipped",
				At:       time.Now(),
			})
			break
		}
		p.runStage(ctx, plan, def)
	}

	p.finalize(plan)
	p.transition(PhaseCompleted, false)
	p.metrics.runFinished(PhaseCompleted)

	files := p.Files()
	p.complete.Emit(files)
	p.logger.Info("Run completed", zap.String("title", plan.Title), zap.Int("diagnostics", len(p.State().Diagnostics)))
	return files, nil
}

// Files returns the emitted files in contract order
func (p *Pipeline) Files() []File {
	p.mu.Lock()
	defer p.mu.Unlock()
	files := make([]File, 0, len(ArtifactKinds))
	for _, k := range ArtifactKinds {
		if a, ok := p.state.Artifacts[k]; ok {
			files = append(files, File{Name: k.Filename(), Content: a.Content, Type: k.MIMEType()})
		}
	}
	return files
}

// runStage drives one stage through Attempt -> Retry -> Fallback -> Done.
func (p *Pipeline) runStage(ctx context.Context, plan *PagePlan, def StageDef) {
	log := p.logger.With(zap.String("stage", string(def.Stage)))
	p.progress(PhaseGeneration, def.Stage, def.Label, def.Percent)

	p.mu.Lock()
	prior := make(map[Kind]Artifact, len(p.state.Artifacts))
	for k, v := range p.state.Artifacts {
		prior[k] = v
	}
	p.mu.Unlock()

	prompt := p.prompts.BuildPrompt(def, plan, prior, p.feedback)
	cfg := p.generationConfig(def.Role())

	var raw string
	failures := 0
	step := stepAttempt
	for step != stepDone {
		switch step {
		case stepAttempt, stepRetry:
			text, err := generate(ctx, p.client, prompt, cfg, failures+1)
			if p.cancelled.Load() {
				log.Info("Discarding result of cancelled run")
				return
			}
			if err != nil {
				failures++
				p.metrics.generationError(cfg.Role)
				p.report(newDiagnostic(string(def.Stage), err))
				log.Warn("Stage attempt failed", zap.Int("attempt", failures), zap.Error(err))
				if failures <= p.retryBudget && ctx.Err() == nil {
					step = stepRetry
				} else {
					step = stepFallback
				}
				continue
			}
			raw = text
			step = stepExtract

		case stepExtract:
			for _, kind := range def.Produces {
				p.accept(plan, def, kind, raw)
			}
			step = stepDone

		case stepFallback:
			for _, kind := range def.Produces {
				p.fallbackOrRetain(plan, def, kind)
			}
			step = stepDone
		}
	}

	p.mu.Lock()
	p.state.IsProcessing = false
	p.state.UpdatedAt = time.Now()
	p.mu.Unlock()
	p.emitState()
}

// accept extracts and validates one kind from a response and stores it, or
// keeps the previous artifact (or the fallback) when the candidate is unusable.
func (p *Pipeline) accept(plan *PagePlan, def StageDef, kind Kind, raw string) {
	p.mu.Lock()
	prev, hasPrev := p.state.Artifacts[kind]
	p.mu.Unlock()

	candidate, report := p.extractor.ExtractDetailed(raw, kind, GenerateFallback(kind, plan))
	if report != nil {
		p.report(newDiagnostic(string(def.Stage), report))
	}
	if candidate.Origin == OriginFallback {
		p.fallbackOrRetain(plan, def, kind)
		return
	}

	var original *Artifact
	if hasPrev {
		original = &prev
	}
	result := p.validator.Validate(candidate, original)
	if !result.IsValid {
		p.report(newDiagnostic(string(def.Stage), &ValidationFailure{Kind: kind, Stage: def.Stage, Issues: result.Issues}))
		p.fallbackOrRetain(plan, def, kind)
		return
	}
	if result.Repaired != "" {
		candidate.Content = result.Repaired
	}
	if len(result.Issues) > 0 {
		p.logger.Debug("Accepted with advisory issues",
			zap.String("stage", string(def.Stage)),
			zap.String("kind", string(kind)),
			zap.Strings("issues", result.Issues))
	}

	candidate.Stage = def.Stage
	p.store(candidate)
	p.metrics.stageOutcome(def.Stage, kind, OutcomeModel)
}

// fallbackOrRetain keeps a previously accepted artifact of the same kind,
// whatever its size, otherwise stores the deterministic fallback.
func (p *Pipeline) fallbackOrRetain(plan *PagePlan, def StageDef, kind Kind) {
	p.mu.Lock()
	_, hasPrev := p.state.Artifacts[kind]
	p.mu.Unlock()

	if hasPrev {
		p.metrics.stageOutcome(def.Stage, kind, OutcomeRetained)
		return
	}
	p.store(Artifact{
		Kind:     kind,
		Content:  GenerateFallback(kind, plan),
		Origin:   OriginFallback,
		Stage:    def.Stage,
		Strategy: StrategyFallback,
	})
	p.metrics.stageOutcome(def.Stage, kind, OutcomeFallback)
}

// finalize fills kinds a cancelled run never produced and repairs the HTML.
func (p *Pipeline) finalize(plan *PagePlan) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, k := range ArtifactKinds {
		if a, ok := p.state.Artifacts[k]; ok && a.Content != "" {
			continue
		}
		p.state.Artifacts[k] = Artifact{
			Kind:     k,
			Content:  GenerateFallback(k, plan),
			Origin:   OriginFallback,
			Strategy: StrategyFallback,
		}
	}

	html := p.state.Artifacts[KindHTML]
	repaired := EnsureAssetLinks(StripDuplicateDocumentHeaders(html.Content))
	if repaired != html.Content {
		html.Content = repaired
		p.state.Artifacts[KindHTML] = html
	}
}

func (p *Pipeline) store(a Artifact) {
	p.mu.Lock()
	p.state.Artifacts[a.Kind] = a
	p.state.UpdatedAt = time.Now()
	p.mu.Unlock()
}

// generateWithRetry is used by the front phases, where a failure simply
// means "keep the input".
func (p *Pipeline) generateWithRetry(ctx context.Context, stage Stage, prompt string) (string, bool) {
	cfg := p.generationConfig(string(stage))
	for attempt := 1; attempt <= p.retryBudget+1; attempt++ {
		if p.isCancelled(ctx) {
			return "", false
		}
		text, err := generate(ctx, p.client, prompt, cfg, attempt)
		if p.cancelled.Load() {
			return "", false
		}
		if err == nil {
			return text, true
		}
		p.metrics.generationError(cfg.Role)
		p.report(newDiagnostic(string(stage), err))
	}
	return "", false
}

func (p *Pipeline) generationConfig(role string) GenerationConfig {
	agent := p.settings.Agent(roleSettingsKey(role))
	return GenerationConfig{MaxTokens: agent.MaxTokens, Temperature: agent.Temperature, Role: role}
}

// roleSettingsKey maps stage names onto the agent names used in settings.yaml
func roleSettingsKey(role string) string {
	switch Stage(role) {
	case StageEnhancement:
		return "enhancer"
	case StagePlanning:
		return "planner"
	default:
		return role
	}
}

// require checks the current phase and turns a mismatch into an invariant error.
func (p *Pipeline) require(op string, phase Phase) error {
	p.mu.Lock()
	current := p.state.Phase
	p.mu.Unlock()
	if current == phase {
		return nil
	}
	return p.fail(&WorkflowInvariantError{Op: op, Phase: current, Msg: "expected phase " + string(phase)})
}

// fail records a fatal invariant error. Runs that have started generating
// or already finished keep their phase.
func (p *Pipeline) fail(err error) error {
	d := newDiagnostic("", err)
	d.Fatal = true

	p.mu.Lock()
	phase := p.state.Phase
	p.mu.Unlock()

	p.report(d)
	if canTransition(phase, PhaseFailed) {
		p.transition(PhaseFailed, false)
		p.metrics.runFinished(PhaseFailed)
	}
	p.logger.Error("Workflow invariant violated", zap.Error(err))
	return err
}

// transition moves to next if the edge exists. Invalid edges are a
// programming error and are logged, never applied.
func (p *Pipeline) transition(next Phase, processing bool) {
	p.mu.Lock()
	from := p.state.Phase
	if !canTransition(from, next) {
		p.mu.Unlock()
		p.logger.Error("Illegal phase transition ignored", zap.String("from", string(from)), zap.String("to", string(next)))
		return
	}
	p.state.Phase = next
	p.state.IsProcessing = processing
	p.state.UpdatedAt = time.Now()
	p.mu.Unlock()

	p.logger.Debug("Phase changed", zap.String("from", string(from)), zap.String("to", string(next)))
	p.emitState()
}

func (p *Pipeline) emitState() {
	p.stateChange.Emit(p.State())
}

func (p *Pipeline) progress(phase Phase, stage Stage, label string, percent int) {
	p.mu.Lock()
	p.state.IsProcessing = true
	runID := p.state.RunID
	p.mu.Unlock()

	p.logger.Info(label, zap.String("phase", string(phase)), zap.Int("percent", percent))
	p.Events.progress.Emit(ProgressEvent{RunID: runID, Phase: phase, Stage: stage, Label: label, Percent: percent})
}

// report stores d as lastError and publishes it
func (p *Pipeline) report(d Diagnostic) {
	if d.At.IsZero() {
		d.At = time.Now()
	}
	p.mu.Lock()
	p.state.LastError = &d
	p.state.Diagnostics = append(p.state.Diagnostics, d)
	p.mu.Unlock()
	p.errors.Emit(d)
}

// FallbackCount returns how many emitted artifacts are fallbacks
func (p *Pipeline) FallbackCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, a := range p.state.Artifacts {
		if a.Origin == OriginFallback {
			n++
		}
	}
	return n
}

// errIsInvariant reports whether err halted the workflow
func errIsInvariant(err error) bool {
	var inv *WorkflowInvariantError
	return errors.As(err, &inv)
}
