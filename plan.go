package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

var planValidator = validator.New(validator.WithRequiredStructEnabled())

// NormalizePlan substitutes documented defaults and assigns a missing id.
// The id is derived from the plan's content, so the same plan file maps to
// the same output directory on every run.
func NormalizePlan(plan *PagePlan) *PagePlan {
	p := planDefaults(plan)
	if strings.TrimSpace(p.ID) == "" {
		p.ID = contentID(p)
	}
	complexity := Complexity(strings.ToLower(strings.TrimSpace(string(p.EstimatedComplexity))))
	switch complexity {
	case ComplexityLow, ComplexityMedium, ComplexityHigh:
		p.EstimatedComplexity = complexity
	default:
		p.EstimatedComplexity = ComplexityMedium
	}
	return p
}

func contentID(p *PagePlan) string {
	parts := []string{"page-writer", p.Title, p.Description}
	for _, s := range p.Structure {
		parts = append(parts, s.Name)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.Join(parts, "\x00"))).String()
}

// ValidatePlan reports plans that cannot drive generation
func ValidatePlan(plan *PagePlan) error {
	if plan == nil {
		return errors.New("plan is missing")
	}
	if err := planValidator.Struct(plan); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid plan: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid plan: %w", err)
	}
	return nil
}

// ParsePlanResponse extracts the planner's JSON and decodes it into a normalized plan.
func ParsePlanResponse(extractor *Extractor, raw string) (*PagePlan, error) {
	art := extractor.Extract(raw, KindJSON, "")
	if art.Origin == OriginFallback || art.Content == "" {
		return nil, errors.New("no JSON plan in planner response")
	}

	var plan PagePlan
	if err := json.Unmarshal([]byte(art.Content), &plan); err != nil {
		return nil, fmt.Errorf("parsing plan JSON: %w", err)
	}
	if len(plan.Structure) == 0 {
		return nil, errors.New("planner returned a plan without sections")
	}
	p := NormalizePlan(&plan)
	if err := ValidatePlan(p); err != nil {
		return nil, err
	}
	return p, nil
}

// planFile accepts either a single plan document or a "plans:" list
type planFile struct {
	Plans    []PagePlan `yaml:"plans"`
	PagePlan `yaml:",inline"`
}

// LoadPlanFile reads one or more plans from a YAML file
func LoadPlanFile(path string) ([]*PagePlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan file: %w", err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parsing plan file %s: %w", path, err)
	}

	raw := pf.Plans
	if len(raw) == 0 {
		raw = []PagePlan{pf.PagePlan}
	}

	plans := make([]*PagePlan, 0, len(raw))
	for i := range raw {
		if len(raw[i].Structure) == 0 {
			return nil, fmt.Errorf("plan %d in %s: structure must list at least one section", i+1, path)
		}
		p := NormalizePlan(&raw[i])
		if err := ValidatePlan(p); err != nil {
			return nil, fmt.Errorf("plan %d in %s: %w", i+1, path, err)
		}
		plans = append(plans, p)
	}
	return plans, nil
}
