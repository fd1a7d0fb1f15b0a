package main

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".page-writer"

const (
	minReferenceMaxTokens = 500
	defaultMaxTokens      = 8000
	defaultRetryBudget    = 1
)

//go:embed config/settings.yaml
var defaultSettings string

// ConfigOverrides holds file path overrides for the embedded configuration
type ConfigOverrides struct {
	SettingsPath *string
	OutputDir    *string
}

// AgentSettings configures one generation role
type AgentSettings struct {
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// ValidationSettings holds the artifact validator thresholds. They are
// heuristics and meant to be tuned.
type ValidationSettings struct {
	MinLength   map[Kind]int `yaml:"min_length"`
	ShrinkRatio float64      `yaml:"shrink_ratio" validate:"gte=0,lte=1"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	OutputDirectory    string                   `yaml:"output_directory" validate:"required"`
	Provider           string                   `yaml:"provider" validate:"oneof=anthropic gemini offline"`
	Model              string                   `yaml:"model"`
	Concurrency        int                      `yaml:"concurrency" validate:"gte=1,lte=32"`
	CacheSize          int                      `yaml:"cache_size" validate:"gte=0"`
	RetryBudget        int                      `yaml:"retry_budget" validate:"gte=0,lte=5"`
	ReferenceMaxTokens int                      `yaml:"reference_max_tokens"`
	Agents             map[string]AgentSettings `yaml:"agents" validate:"dive"`
	Validation         ValidationSettings       `yaml:"validation"`
}

// Agent returns the settings for a role, falling back to sane defaults
func (s *Settings) Agent(role string) AgentSettings {
	if a, ok := s.Agents[role]; ok && a.MaxTokens > 0 {
		return a
	}
	return AgentSettings{MaxTokens: defaultMaxTokens, Temperature: 0.3}
}

// Validate checks the struct tags
func (s *Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

// applyDefaults fills values a partial settings file left out
func (s *Settings) applyDefaults() {
	if s.OutputDirectory == "" {
		s.OutputDirectory = "sites"
	}
	if s.Provider == "" {
		s.Provider = "anthropic"
	}
	if s.Concurrency < 1 {
		s.Concurrency = 1
	}
	if s.ReferenceMaxTokens < minReferenceMaxTokens {
		s.ReferenceMaxTokens = minReferenceMaxTokens
	}
	if s.Agents == nil {
		s.Agents = map[string]AgentSettings{}
	}
	defaults := DefaultValidatorConfig()
	if s.Validation.MinLength == nil {
		s.Validation.MinLength = map[Kind]int{}
	}
	for k, v := range defaults.MinLength {
		if _, ok := s.Validation.MinLength[k]; !ok {
			s.Validation.MinLength[k] = v
		}
	}
	if s.Validation.ShrinkRatio == 0 {
		s.Validation.ShrinkRatio = defaults.ShrinkRatio
	}
}

// ValidatorConfig converts the YAML block into the validator's parameters
func (s *Settings) ValidatorConfig() ValidatorConfig {
	cfg := DefaultValidatorConfig()
	for k, v := range s.Validation.MinLength {
		cfg.MinLength[k] = v
	}
	if s.Validation.ShrinkRatio > 0 {
		cfg.ShrinkRatio = s.Validation.ShrinkRatio
	}
	return cfg
}

// parseSettings decodes YAML and applies defaults. Keys missing from the
// document keep the pre-populated values.
func parseSettings(data []byte) (*Settings, error) {
	settings := Settings{RetryBudget: defaultRetryBudget}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	settings.applyDefaults()
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

// DefaultSettings returns the embedded settings
func DefaultSettings() *Settings {
	s, err := parseSettings([]byte(defaultSettings))
	if err != nil {
		panic(fmt.Sprintf("embedded settings are invalid: %v", err))
	}
	return s
}

// loadSettings loads settings from a YAML file with fallback to the embedded defaults
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return parseSettings([]byte(defaultSettings))
		}
		return nil, fmt.Errorf("reading settings file %s: %w", settingsPath, err)
	}
	return parseSettings(data)
}

// loadSettingsRequired loads settings from a YAML file, failing if it doesn't exist
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, fmt.Errorf("reading settings file %s: %w", settingsPath, err)
	}
	return parseSettings(data)
}

// LoadSettings resolves settings from overrides or the default config directory
func LoadSettings(overrides *ConfigOverrides) (*Settings, error) {
	var (
		settings *Settings
		err      error
	)
	if overrides != nil && overrides.SettingsPath != nil {
		settings, err = loadSettingsRequired(*overrides.SettingsPath)
	} else {
		if err := ensureConfigExists(); err != nil {
			return nil, fmt.Errorf("ensuring config files exist: %w", err)
		}
		settings, err = loadSettings(getConfigPath("settings.yaml"))
	}
	if err != nil {
		return nil, err
	}
	if overrides != nil && overrides.OutputDir != nil && *overrides.OutputDir != "" {
		settings.OutputDirectory = *overrides.OutputDir
	}
	return settings, nil
}

// getConfigPath returns the path to a config file in the config directory
func getConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ensureConfigExists creates the config directory and writes settings.yaml if needed
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	settingsFile := getConfigPath("settings.yaml")
	if _, err := os.Stat(settingsFile); os.IsNotExist(err) {
		if err := os.WriteFile(settingsFile, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing settings.yaml: %w", err)
		}
	}
	return nil
}
