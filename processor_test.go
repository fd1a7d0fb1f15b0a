package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"
)

func testSettings(t *testing.T) *Settings {
	t.Helper()
	s := DefaultSettings()
	s.OutputDirectory = t.TempDir()
	return s
}

func newTestProcessor(t *testing.T, client GenerationClient, input string) (*Processor, *bytes.Buffer) {
	t.Helper()
	p := NewProcessor(client, testSettings(t), nil, NewMetrics())
	out := &bytes.Buffer{}
	p.SetIO(strings.NewReader(input), out)
	return p, out
}

func TestGenerateSlugFromTitle(t *testing.T) {
	tests := []struct {
		name     string
		title    string
		expected string
	}{
		{"basic", "Hello World", "hello-world"},
		{"special chars", "Title: With & Special!", "title-with-special"},
		{"unicode", "Café & Naïve", "caf-na-ve"},
		{"numbers", "React 18.2 Guide", "react-18-2-guide"},
		{"empty", "", "page"},
		{"long title", strings.Repeat("word ", 20), strings.Trim(strings.Repeat("word-", 10)[:50], "-")},
		{"hyphen trimming", "---start---", "start"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := generateSlugFromTitle(tt.title)
			assert.Equal(t, tt.expected, result)
			assert.LessOrEqual(t, len(result), 50)
		})
	}
}

func TestGeneratePlanHash(t *testing.T) {
	hash1 := generatePlanHash("plan-1")
	hash2 := generatePlanHash("plan-2")

	assert.Len(t, hash1, 8)
	assert.NotEqual(t, hash1, hash2)
	assert.Equal(t, hash1, generatePlanHash("plan-1"))
}

func TestProcessPlanWritesSite(t *testing.T) {
	p, _ := newTestProcessor(t, OfflineClient{}, "")
	plan := NormalizePlan(bakeryPlan())

	result := p.ProcessPlan(context.Background(), plan)
	require.NoError(t, result.Error)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 3, result.Fallbacks)
	assert.Equal(t, filepath.Join(p.settings.OutputDirectory, "acme-bakery-"+generatePlanHash(plan.ID)), result.Directory)

	for _, name := range []string{"index.html", "styles.css", "script.js", "plan.yaml", "diagnostics.yaml"} {
		assert.FileExists(t, filepath.Join(result.Directory, name))
	}

	data, err := os.ReadFile(filepath.Join(result.Directory, "plan.yaml"))
	require.NoError(t, err)
	var saved PagePlan
	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.Equal(t, plan.ID, saved.ID)
	assert.Equal(t, plan.Structure[1].Name, saved.Structure[1].Name)

	report, err := os.ReadFile(filepath.Join(result.Directory, "diagnostics.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(report), "phase: completed")
	assert.Contains(t, string(report), "origin: fallback")
	assert.NotContains(t, string(report), "<!DOCTYPE", "artifact content belongs in the site files")
}

func TestProcessPlanSkipsExistingSite(t *testing.T) {
	p, _ := newTestProcessor(t, OfflineClient{}, "")
	plan := NormalizePlan(bakeryPlan())
	require.NoError(t, os.MkdirAll(p.siteDir(plan), 0755))

	result := p.ProcessPlan(context.Background(), plan)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.NoFileExists(t, filepath.Join(result.Directory, "index.html"))

	p.SetOverwrite(true)
	result = p.ProcessPlan(context.Background(), plan)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.FileExists(t, filepath.Join(result.Directory, "index.html"))
}

func TestProcessPlansRunsConcurrently(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p, _ := newTestProcessor(t, OfflineClient{}, "")
	p.settings.Concurrency = 3

	var plans []*PagePlan
	for _, title := range []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon"} {
		plan := bakeryPlan()
		plan.ID = "id-" + title
		plan.Title = title
		plans = append(plans, NormalizePlan(plan))
	}

	results, err := p.ProcessPlans(context.Background(), plans)
	require.NoError(t, err)
	require.Len(t, results, len(plans))

	for i, r := range results {
		assert.Equal(t, StatusSuccess, r.Status, plans[i].Title)
		assert.Equal(t, plans[i].ID, r.PlanID)
		assert.DirExists(t, r.Directory)
	}
}

func TestProcessPlansReportsCancellation(t *testing.T) {
	p, _ := newTestProcessor(t, OfflineClient{}, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.ProcessPlans(ctx, []*PagePlan{NormalizePlan(bakeryPlan())})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
}

func TestProcessPromptAutoApprove(t *testing.T) {
	client := newScriptedClient().
		respond(StageEnhancement, "Brief.").
		respond(StagePlanning, fenced("json", `{"id":"fixed","title":"Pottery Studio","structure":[{"name":"Hero"}]}`)).
		respond(StageStructure, fenced("html", validPage))

	p, out := newTestProcessor(t, client, "")
	result := p.ProcessPrompt(context.Background(), "a pottery studio", "", true)

	require.NoError(t, result.Error)
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "fixed", result.PlanID)
	assert.Equal(t, 2, result.Fallbacks)
	assert.NotContains(t, out.String(), "Approve plan?")

	html, err := os.ReadFile(filepath.Join(result.Directory, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, validPage, string(html))
}

func TestProcessPromptRejectThenApprove(t *testing.T) {
	client := newScriptedClient().
		respond(StageEnhancement, "Brief one.", "Brief two.").
		respond(StagePlanning,
			fenced("json", `{"id":"p1","title":"First","structure":[{"name":"Hero"}]}`),
			fenced("json", `{"id":"p2","title":"Second","structure":[{"name":"Hero"},{"name":"Gallery"}]}`))

	p, out := newTestProcessor(t, client, "add a gallery\ny: keep it light\n")
	result := p.ProcessPrompt(context.Background(), "a gallery page", "", false)

	require.NoError(t, result.Error)
	assert.Equal(t, "p2", result.PlanID)
	assert.Contains(t, out.String(), "Plan: First")
	assert.Contains(t, out.String(), "2. Gallery")
	assert.Contains(t, client.prompts[string(StageEnhancement)][1], "add a gallery")
	assert.Contains(t, client.prompts[string(StageStructure)][0], "keep it light")
}

func TestProcessPromptDecline(t *testing.T) {
	client := newScriptedClient()
	p, _ := newTestProcessor(t, client, "n\n")

	result := p.ProcessPrompt(context.Background(), "anything", "", false)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.True(t, errors.Is(result.Error, ErrPlanDeclined))
	assert.Equal(t, 0, client.callCount(StageStructure))
}

func TestProcessPromptStopsAfterMaxRejections(t *testing.T) {
	p, _ := newTestProcessor(t, OfflineClient{}, "more\nmore\nmore\nmore\n")

	result := p.ProcessPrompt(context.Background(), "anything", "", false)
	assert.Equal(t, StatusSkipped, result.Status)
	assert.ErrorIs(t, result.Error, ErrPlanDeclined)
	assert.Contains(t, result.Error.Error(), "3 rejections")
}

func TestAskApproval(t *testing.T) {
	tests := []struct {
		input    string
		decision approvalDecision
		feedback string
	}{
		{"y\n", decisionApprove, ""},
		{"YES\n", decisionApprove, ""},
		{"y: bigger fonts\n", decisionApprove, "bigger fonts"},
		{"\n", decisionDecline, ""},
		{"no\n", decisionDecline, ""},
		{"needs a pricing table\n", decisionReject, "needs a pricing table"},
		{"needs a map", decisionReject, "needs a map"},
	}

	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			p, _ := newTestProcessor(t, OfflineClient{}, tt.input)
			decision, feedback, err := p.askApproval()
			require.NoError(t, err)
			assert.Equal(t, tt.decision, decision)
			assert.Equal(t, tt.feedback, feedback)
		})
	}
}

func TestAskApprovalEOF(t *testing.T) {
	p, _ := newTestProcessor(t, OfflineClient{}, "")
	_, _, err := p.askApproval()
	assert.Error(t, err)
}
