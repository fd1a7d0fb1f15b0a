package main

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed config/prompts/*.tmpl
var promptFS embed.FS

var promptTemplates = template.Must(
	template.New("prompts").
		Funcs(template.FuncMap{"inc": func(i int) int { return i + 1 }}).
		ParseFS(promptFS, "config/prompts/*.tmpl"),
)

// promptData is the view every template renders
type promptData struct {
	Plan        *PagePlan
	Anchors     []string
	Feedback    string
	Suffix      string
	PriorHTML   string
	PriorCSS    string
	PriorJS     string
	Description string
	Reference   string
	Rejection   string
}

// PromptBuilder renders stage instructions. It holds no mutable state and
// the same inputs always produce the same prompt.
type PromptBuilder struct {
	tmpl *template.Template
}

// NewPromptBuilder returns a builder over the embedded templates
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{tmpl: promptTemplates}
}

// BuildPrompt renders the instruction for a generation stage. Revision
// stages embed the full prior artifacts of the kinds they rewrite, and
// every stage after structure embeds the current HTML.
func (b *PromptBuilder) BuildPrompt(def StageDef, plan *PagePlan, prior map[Kind]Artifact, feedback string) string {
	p := planDefaults(plan)
	data := promptData{
		Plan:     p,
		Anchors:  SectionAnchors(p),
		Feedback: strings.TrimSpace(feedback),
		Suffix:   def.HeaderSuffix,
	}

	// Revision stages see all three files; enrichment must keep the classes
	// the script relies on even though it does not rewrite it.
	var embedded []Kind
	switch {
	case def.Revises:
		embedded = ArtifactKinds
	case def.Stage != StageStructure:
		embedded = []Kind{KindHTML}
	}
	for _, k := range embedded {
		switch k {
		case KindHTML:
			data.PriorHTML = prior[k].Content
		case KindCSS:
			data.PriorCSS = prior[k].Content
		case KindJS:
			data.PriorJS = prior[k].Content
		}
	}

	return b.render(string(def.Stage)+".tmpl", data, func() string {
		return basicPrompt(def, p)
	})
}

// BuildEnhancementPrompt renders the brief-writing instruction
func (b *PromptBuilder) BuildEnhancementPrompt(req PageRequest, rejection string) string {
	data := promptData{
		Description: strings.TrimSpace(req.Description),
		Reference:   strings.TrimSpace(req.Reference),
		Rejection:   strings.TrimSpace(rejection),
	}
	return b.render("enhancement.tmpl", data, func() string {
		return "Rewrite this web page request into a detailed brief:\n" + data.Description
	})
}

// BuildPlanningPrompt renders the plan-producing instruction
func (b *PromptBuilder) BuildPlanningPrompt(brief, rejection string) string {
	data := promptData{
		Description: strings.TrimSpace(brief),
		Rejection:   strings.TrimSpace(rejection),
	}
	return b.render("planning.tmpl", data, func() string {
		return "Respond only with a fenced json block describing a page plan for:\n" + data.Description
	})
}

func (b *PromptBuilder) render(name string, data promptData, fallback func() string) string {
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return fallback()
	}
	return buf.String()
}

// basicPrompt is only used if a template fails to execute
func basicPrompt(def StageDef, p *PagePlan) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write %s for a static web page titled %q.\n%s\n", kindList(def.Produces), p.Title, p.Description)
	for i, s := range p.Structure {
		fmt.Fprintf(&sb, "%d. %s: %s\n", i+1, s.Name, s.Description)
	}
	sb.WriteString("Respond only with one fenced code block per file, tagged with its language. Do not truncate; return complete content.\n")
	return sb.String()
}

func kindList(kinds []Kind) string {
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.Filename()
	}
	return strings.Join(names, ", ")
}
