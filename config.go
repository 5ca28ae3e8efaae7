package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultConfigDir = ".references"

	minPDFPages = 3
	maxPDFPages = 5
)

//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/extraction-system-prompt.md
var defaultExtractionSystemPrompt string

//go:embed config/pdf-prompt.md
var defaultPDFPrompt string

//go:embed config/website-prompt.md
var defaultWebsitePrompt string

//go:embed config/normalize-system-prompt.md
var defaultNormalizeSystemPrompt string

// ConfigOverrides allows overriding embedded defaults with file paths
type ConfigOverrides struct {
	SettingsPath         *string
	ExtractionPromptPath *string
	PDFPromptPath        *string
	WebsitePromptPath    *string
	NormalizePromptPath  *string
}

// OutputSettings names the artifact files of a run. Empty paths disable the
// optional artifacts (xlsx, prompt_log, log_file).
type OutputSettings struct {
	CSV          string `yaml:"csv"`
	Bibliography string `yaml:"bibliography"`
	XLSX         string `yaml:"xlsx"`
	PromptLog    string `yaml:"prompt_log"`
	LogFile      string `yaml:"log_file"`
}

type HTTPSettings struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	MaxBodyMB int64         `yaml:"max_body_mb"`
}

type YouTubeSettings struct {
	APIURL            string `yaml:"api_url"`
	RequestsPerMinute int    `yaml:"requests_per_minute"`
}

type CrossrefSettings struct {
	APIURL string `yaml:"api_url"`
	Mailto string `yaml:"mailto"`
}

type PDFSettings struct {
	MaxPages int `yaml:"max_pages"`
}

type WebsiteSettings struct {
	ContentFormat    string `yaml:"content_format"`
	ContentMaxTokens int    `yaml:"content_max_tokens"`
}

// LLMSettings configures the generative-text service
type LLMSettings struct {
	Provider             string        `yaml:"provider"`
	BaseURL              string        `yaml:"base_url"`
	ExtractionModel      string        `yaml:"extraction_model"`
	NormalizationModel   string        `yaml:"normalization_model"`
	MaxTokens            int           `yaml:"max_tokens"`
	Temperature          float64       `yaml:"temperature"`
	Timeout              time.Duration `yaml:"timeout"`
	RequestsPerMinute    int           `yaml:"requests_per_minute"`
	CostPerMillionTokens float64       `yaml:"cost_per_million_tokens"`
}

type NormalizeSettings struct {
	Mode string `yaml:"mode"`
}

// Settings represents the YAML configuration structure
type Settings struct {
	ShortURLDomain string            `yaml:"short_url_domain"`
	Concurrency    int               `yaml:"concurrency"`
	Output         OutputSettings    `yaml:"output"`
	HTTP           HTTPSettings      `yaml:"http"`
	YouTube        YouTubeSettings   `yaml:"youtube"`
	Crossref       CrossrefSettings  `yaml:"crossref"`
	PDF            PDFSettings       `yaml:"pdf"`
	Website        WebsiteSettings   `yaml:"website"`
	LLM            LLMSettings       `yaml:"llm"`
	Normalize      NormalizeSettings `yaml:"normalize"`
}

// Config holds configuration and overrides
type Config struct {
	Settings  *Settings
	Overrides *ConfigOverrides
}

// NewConfig seeds the config directory on first run and loads settings.
// An explicit settings path must exist.
func NewConfig(overrides *ConfigOverrides, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := ensureConfigExists(); err != nil {
		logger.Warn("config.seed_failed", "error", err)
	}

	var (
		settings *Settings
		err      error
	)
	if overrides != nil && overrides.SettingsPath != nil {
		settings, err = loadSettingsRequired(*overrides.SettingsPath)
	} else {
		settings, err = loadSettings(GetConfigPath("settings.yaml"))
	}
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}

	cfg := &Config{Settings: settings, Overrides: overrides}
	if err := cfg.validate(logger); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetConfigPath returns the full path to a config file
func GetConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ExtractionSystemPrompt returns the system prompt for structured extraction
func (c *Config) ExtractionSystemPrompt() (string, error) {
	return c.prompt(c.override(func(o *ConfigOverrides) *string { return o.ExtractionPromptPath }), defaultExtractionSystemPrompt, false)
}

// PDFPrompt returns the PDF extraction template
func (c *Config) PDFPrompt() (string, error) {
	return c.prompt(c.override(func(o *ConfigOverrides) *string { return o.PDFPromptPath }), defaultPDFPrompt, true)
}

// WebsitePrompt returns the website extraction template
func (c *Config) WebsitePrompt() (string, error) {
	return c.prompt(c.override(func(o *ConfigOverrides) *string { return o.WebsitePromptPath }), defaultWebsitePrompt, true)
}

// NormalizeSystemPrompt returns the rule set sent with every normalization request
func (c *Config) NormalizeSystemPrompt() (string, error) {
	return c.prompt(c.override(func(o *ConfigOverrides) *string { return o.NormalizePromptPath }), defaultNormalizeSystemPrompt, false)
}

func (c *Config) override(field func(*ConfigOverrides) *string) *string {
	if c.Overrides == nil {
		return nil
	}
	return field(c.Overrides)
}

// prompt reads an override file (which must exist) or falls back to the
// embedded default. Templates must carry the source content placeholder.
func (c *Config) prompt(path *string, embedded string, template bool) (string, error) {
	text := embedded
	if path != nil {
		data, err := os.ReadFile(*path)
		if err != nil {
			return "", fmt.Errorf("prompt file missing: %s: %w", *path, err)
		}
		text = string(data)
	}
	text = strings.TrimSpace(text)
	if template && !strings.Contains(text, sourceContentVar) {
		name := "embedded template"
		if path != nil {
			name = *path
		}
		return "", fmt.Errorf("%s must contain %s variable", name, sourceContentVar)
	}
	return text, nil
}

// validate clamps out-of-range values and rejects unknown modes
func (c *Config) validate(logger *slog.Logger) error {
	s := c.Settings

	if s.Concurrency < 1 {
		logger.Warn("config.concurrency_clamped", "value", s.Concurrency, "using", 1)
		s.Concurrency = 1
	}
	if s.PDF.MaxPages < minPDFPages || s.PDF.MaxPages > maxPDFPages {
		clamped := min(max(s.PDF.MaxPages, minPDFPages), maxPDFPages)
		logger.Warn("config.pdf_pages_clamped", "value", s.PDF.MaxPages, "using", clamped)
		s.PDF.MaxPages = clamped
	}

	switch s.Website.ContentFormat {
	case ContentFormatText, ContentFormatMarkdown:
	default:
		return fmt.Errorf("unsupported website.content_format: %s", s.Website.ContentFormat)
	}
	switch s.Normalize.Mode {
	case NormalizeLLM, NormalizeLocal, NormalizeOff:
	default:
		return fmt.Errorf("unsupported normalize.mode: %s", s.Normalize.Mode)
	}
	switch s.LLM.Provider {
	case ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("unsupported llm.provider: %s", s.LLM.Provider)
	}
	return nil
}

// APIKeyEnv returns the environment variable holding the key for provider
func APIKeyEnv(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return "OPENAI_API_KEY"
	case ProviderAnthropic:
		return "ANTHROPIC_API_KEY"
	default:
		return "OPENROUTER_API_KEY"
	}
}

// parseDefaultSettings decodes the embedded settings.yaml
func parseDefaultSettings() (*Settings, error) {
	var settings Settings
	if err := yaml.Unmarshal([]byte(defaultSettings), &settings); err != nil {
		return nil, fmt.Errorf("parsing embedded settings: %w", err)
	}
	return &settings, nil
}

// decodeSettings layers a user document over the embedded defaults, so keys
// missing from the file keep their default value
func decodeSettings(data []byte) (*Settings, error) {
	settings, err := parseDefaultSettings()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	return settings, nil
}

// loadSettings loads settings from YAML file with fallback to defaults
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return parseDefaultSettings()
		}
		return nil, err
	}
	return decodeSettings(data)
}

// loadSettingsRequired loads settings from YAML file, failing if file doesn't exist
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, err
	}
	return decodeSettings(data)
}

// ensureConfigExists creates config directory and writes settings.yaml if needed
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Write settings.yaml - this should be customized by users
	settingsFile := GetConfigPath("settings.yaml")
	if _, err := os.Stat(settingsFile); os.IsNotExist(err) {
		if err := os.WriteFile(settingsFile, []byte(defaultSettings), 0644); err != nil {
			return fmt.Errorf("writing settings.yaml: %w", err)
		}
	}
	return nil
}
