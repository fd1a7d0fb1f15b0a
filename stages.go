package main

// Stage identifies one generation round trip
type Stage string

const (
	StageEnhancement   Stage = "enhancement"
	StagePlanning      Stage = "planning"
	StageStructure     Stage = "structure"
	StageStyling       Stage = "styling"
	StageInteractivity Stage = "interactivity"
	StageEnrichment    Stage = "enrichment"
	StageQuality       Stage = "quality"
)

// StageDef describes what a generation stage produces and how its response is framed
type StageDef struct {
	Stage   Stage
	Label   string
	Percent int
	// Produces lists the kinds extracted from the response, in order.
	Produces []Kind
	// Revises is set when the stage rewrites earlier artifacts; their content
	// is embedded in the prompt and used as the validator's original.
	Revises bool
	// HeaderSuffix names the section header the prompt asks for, e.g.
	// "OPTIMIZED" for "HTML_OPTIMIZED:". Empty means a single plain fence.
	HeaderSuffix string
}

// Role is the logical name passed to the generation client
func (d StageDef) Role() string { return string(d.Stage) }

// GenerationStages is the fixed, strictly sequential order of the Generation phase.
var GenerationStages = []StageDef{
	{Stage: StageStructure, Label: "Building page structure", Percent: 20, Produces: []Kind{KindHTML}},
	{Stage: StageStyling, Label: "Styling the page", Percent: 40, Produces: []Kind{KindCSS}},
	{Stage: StageInteractivity, Label: "Adding interactivity", Percent: 60, Produces: []Kind{KindJS}},
	{Stage: StageEnrichment, Label: "Enriching visuals", Percent: 80, Produces: []Kind{KindHTML, KindCSS}, Revises: true, HeaderSuffix: "ENRICHED"},
	{Stage: StageQuality, Label: "Quality control", Percent: 100, Produces: []Kind{KindHTML, KindCSS, KindJS}, Revises: true, HeaderSuffix: "OPTIMIZED"},
}
