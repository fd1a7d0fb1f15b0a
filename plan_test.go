package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePlan(t *testing.T) {
	in := &PagePlan{
		Title:               "Portfolio",
		Structure:           []Section{{Name: "About Me"}, {ID: "work", Name: "Projects"}},
		EstimatedComplexity: " HIGH ",
	}
	p := NormalizePlan(in)

	assert.NotEmpty(t, p.ID)
	assert.Equal(t, ComplexityHigh, p.EstimatedComplexity)
	assert.Equal(t, "about-me", p.Structure[0].ID)
	assert.Equal(t, "work", p.Structure[1].ID)
	assert.Equal(t, defaultColorScheme, p.Design.ColorScheme)
	assert.NoError(t, ValidatePlan(p))

	assert.Empty(t, in.ID, "input must not be mutated")
	assert.Empty(t, in.Structure[0].ID)
}

func TestNormalizePlanUnknownComplexity(t *testing.T) {
	p := NormalizePlan(&PagePlan{ID: "x", EstimatedComplexity: "enormous"})
	assert.Equal(t, ComplexityMedium, p.EstimatedComplexity)
	assert.Equal(t, "x", p.ID)
}

func TestValidatePlan(t *testing.T) {
	assert.Error(t, ValidatePlan(nil))

	noSections := NormalizePlan(bakeryPlan())
	noSections.Structure = nil
	assert.ErrorContains(t, ValidatePlan(noSections), "Structure")

	unnamed := NormalizePlan(bakeryPlan())
	unnamed.Structure[1].Name = ""
	assert.ErrorContains(t, ValidatePlan(unnamed), "Name(required)")

	badComplexity := NormalizePlan(bakeryPlan())
	badComplexity.EstimatedComplexity = "huge"
	assert.ErrorContains(t, ValidatePlan(badComplexity), "oneof")
}

func TestParsePlanResponse(t *testing.T) {
	extractor := NewExtractor(nil)

	tests := []struct {
		name    string
		raw     string
		wantErr string
		title   string
	}{
		{
			name:  "fenced json",
			raw:   "Here is the plan:\n```json\n{\"title\":\"Yoga Studio\",\"structure\":[{\"name\":\"Classes\"}]}\n```",
			title: "Yoga Studio",
		},
		{
			name:  "bare json",
			raw:   `{"title":"Bare","structure":[{"name":"Hero"}],"estimatedComplexity":"low"}`,
			title: "Bare",
		},
		{name: "prose only", raw: "I could not come up with a plan.", wantErr: "no JSON plan"},
		{name: "invalid json", raw: "```json\n{\"title\": \n```", wantErr: "parsing plan JSON"},
		{name: "no sections", raw: "```json\n{\"title\":\"Empty\",\"structure\":[]}\n```", wantErr: "without sections"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlanResponse(extractor, tt.raw)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				assert.Nil(t, plan)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.title, plan.Title)
			assert.NotEmpty(t, plan.ID)
			assert.NotEmpty(t, plan.Design.Layout)
		})
	}
}

func writePlanFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadPlanFileSingle(t *testing.T) {
	path := writePlanFile(t, `
id: cafe
title: Corner Cafe
structure:
  - name: Hero
    content_items: [Coffee, Cake]
  - name: Opening Hours
design:
  color_scheme: earthy
functionality: [dark mode toggle]
`)
	plans, err := LoadPlanFile(path)
	require.NoError(t, err)
	require.Len(t, plans, 1)

	p := plans[0]
	assert.Equal(t, "cafe", p.ID)
	assert.Equal(t, []string{"Coffee", "Cake"}, p.Structure[0].ContentItems)
	assert.Equal(t, "opening-hours", p.Structure[1].ID)
	assert.Equal(t, "earthy", p.Design.ColorScheme)
	assert.Equal(t, defaultTypography, p.Design.Typography)
	assert.Equal(t, ComplexityMedium, p.EstimatedComplexity)
}

func TestLoadPlanFileList(t *testing.T) {
	path := writePlanFile(t, `
plans:
  - title: One
    structure: [{name: Hero}]
  - title: Two
    structure: [{name: Hero}, {name: Footer}]
`)
	plans, err := LoadPlanFile(path)
	require.NoError(t, err)
	require.Len(t, plans, 2)
	assert.Equal(t, "Two", plans[1].Title)
	assert.NotEqual(t, plans[0].ID, plans[1].ID)
}

func TestLoadPlanFileErrors(t *testing.T) {
	_, err := LoadPlanFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading plan file")

	_, err = LoadPlanFile(writePlanFile(t, "title: No Sections\n"))
	assert.ErrorContains(t, err, "at least one section")

	_, err = LoadPlanFile(writePlanFile(t, "plans: [oops"))
	assert.ErrorContains(t, err, "parsing plan file")
}

func TestLoadPlanFileIsStableAcrossRuns(t *testing.T) {
	path := writePlanFile(t, `
title: Bakery
structure: [{name: Hero}, {name: Menu}]
`)
	first, err := LoadPlanFile(path)
	require.NoError(t, err)
	second, err := LoadPlanFile(path)
	require.NoError(t, err)

	assert.Equal(t, first[0].ID, second[0].ID)

	p := &Processor{settings: DefaultSettings()}
	assert.Equal(t, p.siteDir(first[0]), p.siteDir(second[0]))

	changed := NormalizePlan(&PagePlan{Title: "Bakery", Structure: []Section{{Name: "Hero"}, {Name: "Prices"}}})
	assert.NotEqual(t, first[0].ID, changed.ID)
}
