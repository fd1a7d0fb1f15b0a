package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func stageDef(t *testing.T, stage Stage) StageDef {
	t.Helper()
	for _, d := range GenerationStages {
		if d.Stage == stage {
			return d
		}
	}
	t.Fatalf("unknown stage %s", stage)
	return StageDef{}
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	b := NewPromptBuilder()
	prior := map[Kind]Artifact{KindHTML: {Kind: KindHTML, Content: "<main>x</main>"}}
	for _, def := range GenerationStages {
		assert.Equal(t,
			b.BuildPrompt(def, bakeryPlan(), prior, "note"),
			b.BuildPrompt(def, bakeryPlan(), prior, "note"),
			string(def.Stage))
	}
}

func TestBuildPromptEmbedsPlan(t *testing.T) {
	plan := bakeryPlan()
	got := NewPromptBuilder().BuildPrompt(stageDef(t, StageStructure), plan, nil, "")

	assert.Contains(t, got, "Acme Bakery")
	for i, s := range plan.Structure {
		assert.Contains(t, got, s.Name)
		assert.Contains(t, got, `id="`+SectionAnchors(plan)[i]+`"`)
	}
	assert.Contains(t, got, "warm orange")
	assert.Contains(t, got, "smooth scrolling")
	assert.Contains(t, got, "tagged html")
	assert.Contains(t, got, "Do not truncate")
	assert.NotContains(t, got, "Reviewer notes")
}

func TestBuildPromptStageFormats(t *testing.T) {
	b := NewPromptBuilder()
	prior := map[Kind]Artifact{
		KindHTML: {Kind: KindHTML, Content: "<main>PRIOR-HTML</main>"},
		KindCSS:  {Kind: KindCSS, Content: "body { /* PRIOR-CSS */ }"},
		KindJS:   {Kind: KindJS, Content: "// PRIOR-JS"},
	}

	tests := []struct {
		stage      Stage
		contains   []string
		notContain []string
	}{
		{StageStructure, []string{"tagged html"}, []string{"PRIOR-HTML", "PRIOR-CSS"}},
		{StageStyling, []string{"tagged css", "```html\n<main>PRIOR-HTML</main>\n```"}, []string{"PRIOR-CSS", "PRIOR-JS"}},
		{StageInteractivity, []string{"tagged javascript", "PRIOR-HTML"}, []string{"PRIOR-CSS", "PRIOR-JS"}},
		{StageEnrichment, []string{"HTML_ENRICHED:", "CSS_ENRICHED:", "PRIOR-HTML", "PRIOR-CSS", "PRIOR-JS"}, nil},
		{StageQuality, []string{"HTML_OPTIMIZED:", "CSS_OPTIMIZED:", "JS_OPTIMIZED:", "PRIOR-HTML", "PRIOR-CSS", "PRIOR-JS"}, nil},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			got := b.BuildPrompt(stageDef(t, tt.stage), bakeryPlan(), prior, "")
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.notContain {
				assert.NotContains(t, got, s)
			}
			assert.Contains(t, got, "Do not truncate")
		})
	}
}

func TestBuildPromptIncludesApprovalFeedback(t *testing.T) {
	got := NewPromptBuilder().BuildPrompt(stageDef(t, StageStyling), bakeryPlan(), nil, "  use a darker palette ")
	assert.Contains(t, got, "Reviewer notes")
	assert.Contains(t, got, "use a darker palette")
}

func TestBuildPromptToleratesSparsePlan(t *testing.T) {
	got := NewPromptBuilder().BuildPrompt(stageDef(t, StageStructure), &PagePlan{ID: "x"}, nil, "")
	assert.Contains(t, got, defaultTitle)
	assert.Contains(t, got, `id="home"`)
}

func TestBuildEnhancementPrompt(t *testing.T) {
	b := NewPromptBuilder()

	plain := b.BuildEnhancementPrompt(PageRequest{Description: "a bakery page"}, "")
	assert.Contains(t, plain, "a bakery page")
	assert.NotContains(t, plain, "<reference>")
	assert.NotContains(t, plain, "rejected")

	full := b.BuildEnhancementPrompt(PageRequest{Description: "a bakery page", Reference: "# Acme\nbread"}, "too plain")
	assert.Contains(t, full, "<reference>\n# Acme\nbread\n</reference>")
	assert.Contains(t, full, "too plain")
}

func TestBuildPlanningPrompt(t *testing.T) {
	got := NewPromptBuilder().BuildPlanningPrompt("A detailed brief", "more sections")
	assert.Contains(t, got, "A detailed brief")
	assert.Contains(t, got, "more sections")
	assert.True(t, strings.Contains(got, "```json"), got)
	assert.Contains(t, got, "estimatedComplexity")
}
