// Package config handles tella settings: loading, atomic saving and the
// interactive setup flow.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sonemaro/tella/internal/types"
)

// Provider names understood by the LLM client.
const (
	ProviderOpenAI   = "openai"
	ProviderCerebras = "cerebras"
	ProviderOllama   = "ollama"
	ProviderGeneric  = "generic"
)

// Auto-confirmation thresholds. Only SAFE commands may ever run unconfirmed.
const (
	AutoConfirmNone = "none"
	AutoConfirmSafe = "safe"
)

// EnvAPIKey overrides the stored API key for scripting.
const EnvAPIKey = "TELLA_API_KEY"

// CerebrasModels lists the models offered during setup for Cerebras.
var CerebrasModels = []string{
	"llama3.3-70b",
	"llama3.1-8b",
	"gpt-oss-120b",
	"qwen-3-235b-a22b-instruct-2507",
	"qwen-3-235b-a22b-thinking-2507",
	"qwen-3-coder-480b",
}

// Settings represents the complete persisted configuration
type Settings struct {
	// Version for config migration
	Version int `yaml:"version" mapstructure:"version"`

	Provider ProviderConfig `yaml:"provider" mapstructure:"provider"`
	Model    ModelConfig    `yaml:"model" mapstructure:"model"`
	Safety   SafetyConfig   `yaml:"safety" mapstructure:"safety"`
	History  HistoryConfig  `yaml:"history" mapstructure:"history"`
	UI       UIConfig       `yaml:"ui" mapstructure:"ui"`
}

// ProviderConfig holds AI provider settings
type ProviderConfig struct {
	Name     string `yaml:"name" mapstructure:"name"` // openai, cerebras, ollama, generic
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`

	// Prefer api_key_env over api_key
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	APIKeyEnv string `yaml:"api_key_env" mapstructure:"api_key_env"`
}

// ModelConfig holds model-specific parameters
type ModelConfig struct {
	Name           string  `yaml:"name" mapstructure:"name"`
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64 `yaml:"temperature" mapstructure:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
}

// SafetyConfig holds safety-related settings
type SafetyConfig struct {
	AutoConfirm     string   `yaml:"auto_confirm" mapstructure:"auto_confirm"` // none, safe
	BlockedCommands []string `yaml:"blocked_commands" mapstructure:"blocked_commands"`
	CustomRulesPath string   `yaml:"custom_rules_path" mapstructure:"custom_rules_path"`
}

// HistoryConfig holds history settings
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled" mapstructure:"enabled"`
	DBPath        string `yaml:"db_path" mapstructure:"db_path"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days"`
}

// UIConfig controls which parts of a suggestion are rendered
type UIConfig struct {
	ColorEnabled    bool `yaml:"color_enabled" mapstructure:"color_enabled"`
	ShowSummary     bool `yaml:"show_summary" mapstructure:"show_summary"`
	ShowExplanation bool `yaml:"show_explanation" mapstructure:"show_explanation"`
	ShowRisk        bool `yaml:"show_risk" mapstructure:"show_risk"`
}

// DefaultSettings returns the default configuration
func DefaultSettings() Settings {
	configDir := defaultConfigDir()

	return Settings{
		Version: 1,

		Provider: ProviderConfig{
			Name:      ProviderCerebras,
			Endpoint:  DefaultEndpoint(ProviderCerebras),
			APIKeyEnv: "CEREBRAS_API_KEY",
		},

		Model: ModelConfig{
			Name:           CerebrasModels[0],
			MaxTokens:      1024,
			Temperature:    0.1,
			TimeoutSeconds: 30,
			MaxRetries:     2,
		},

		Safety: SafetyConfig{
			AutoConfirm:     AutoConfirmNone,
			BlockedCommands: []string{},
			CustomRulesPath: filepath.Join(configDir, "safety_rules.yaml"),
		},

		History: HistoryConfig{
			Enabled:       true,
			DBPath:        filepath.Join(defaultDataDir(), "history.db"),
			RetentionDays: 30,
		},

		UI: UIConfig{
			ColorEnabled:    true,
			ShowSummary:     true,
			ShowExplanation: true,
			ShowRisk:        true,
		},
	}
}

// DefaultEndpoint returns the endpoint used when none is configured
func DefaultEndpoint(provider string) string {
	switch provider {
	case ProviderCerebras:
		return "https://api.cerebras.ai/v1"
	case ProviderOllama:
		return "http://localhost:11434"
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	default:
		return ""
	}
}

// NeedsAPIKey reports whether the provider authenticates with a key
func NeedsAPIKey(provider string) bool {
	switch provider {
	case ProviderOpenAI, ProviderCerebras:
		return true
	default:
		return false
	}
}

// AutoRunSafe reports whether SAFE commands run without a prompt
func (s Settings) AutoRunSafe() bool {
	return strings.EqualFold(s.Safety.AutoConfirm, AutoConfirmSafe)
}

// ResolveAPIKey returns the key to authenticate with. The environment wins
// over the file so scripts can inject a key without touching settings.
func (s Settings) ResolveAPIKey() string {
	if key := os.Getenv(EnvAPIKey); key != "" {
		return key
	}
	if s.Provider.APIKeyEnv != "" {
		if key := os.Getenv(s.Provider.APIKeyEnv); key != "" {
			return key
		}
	}
	return s.Provider.APIKey
}

// Endpoint returns the configured endpoint or the provider default
func (s Settings) Endpoint() string {
	if s.Provider.Endpoint != "" {
		return s.Provider.Endpoint
	}
	return DefaultEndpoint(s.Provider.Name)
}

// WithEnvOverrides returns a copy with TELLA_PROVIDER, TELLA_MODEL and
// TELLA_ENDPOINT applied. The result is for this run only and is never saved.
func (s Settings) WithEnvOverrides() Settings {
	v := viper.New()
	v.SetEnvPrefix("TELLA")
	v.AutomaticEnv()

	if v.IsSet("PROVIDER") {
		s.Provider.Name = strings.ToLower(v.GetString("PROVIDER"))
		if !v.IsSet("ENDPOINT") {
			s.Provider.Endpoint = DefaultEndpoint(s.Provider.Name)
		}
	}
	if v.IsSet("MODEL") {
		s.Model.Name = v.GetString("MODEL")
	}
	if v.IsSet("ENDPOINT") {
		s.Provider.Endpoint = v.GetString("ENDPOINT")
	}
	return s
}

// CheckConfigured returns ErrNotConfigured when a query cannot be sent
func (s Settings) CheckConfigured() error {
	if NeedsAPIKey(s.Provider.Name) && s.ResolveAPIKey() == "" {
		return fmt.Errorf("%w: no API key for provider %s", types.ErrNotConfigured, s.Provider.Name)
	}
	if s.Provider.Name == ProviderGeneric && s.Endpoint() == "" {
		return fmt.Errorf("%w: generic provider has no endpoint", types.ErrNotConfigured)
	}
	if s.Model.Name == "" {
		return fmt.Errorf("%w: no model selected", types.ErrNotConfigured)
	}
	return nil
}

// Store reads and writes settings at a fixed path
type Store struct {
	path string
}

// NewStore returns a store for path, or for DefaultPath when path is empty
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// Path returns the settings file location
func (s *Store) Path() string {
	return s.path
}

// Exists reports whether a settings file has been written
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads settings from disk over the defaults. It fails with
// types.ErrNotConfigured when the effective settings cannot make a request;
// the returned Settings are still populated in that case so the setup flow
// can start from them.
func (s *Store) Load() (Settings, error) {
	settings, err := s.read()
	if err != nil {
		return settings, err
	}
	if err := settings.WithEnvOverrides().CheckConfigured(); err != nil {
		return settings, err
	}
	return settings, nil
}

// LoadOrDefault reads settings without checking that they are usable
func (s *Store) LoadOrDefault() (Settings, error) {
	return s.read()
}

func (s *Store) read() (Settings, error) {
	settings := DefaultSettings()

	if _, err := os.Stat(s.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return settings, nil
		}
		return settings, fmt.Errorf("failed to stat settings: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return settings, fmt.Errorf("failed to read settings %s: %w", s.path, err)
	}

	// Lists in the file replace the defaults instead of merging into them.
	zeroFields := func(c *mapstructure.DecoderConfig) { c.ZeroFields = true }
	if err := v.Unmarshal(&settings, zeroFields); err != nil {
		return DefaultSettings(), fmt.Errorf("failed to parse settings %s: %w", s.path, err)
	}
	return settings, nil
}

// Save validates settings and atomically replaces the file
func (s *Store) Save(settings Settings) error {
	if result := Validate(settings); !result.IsValid() {
		return fmt.Errorf("invalid settings:\n%s", result.String())
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}

	// The file may hold an API key.
	if err := writeFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// DefaultPath returns $TELLA_CONFIG or <user config dir>/tella/config.yaml
func DefaultPath() string {
	if p := os.Getenv("TELLA_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(defaultConfigDir(), "config.yaml")
}

func defaultConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "tella")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".config", "tella")
}

func defaultDataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "tella")
	}
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".local", "share", "tella")
}
