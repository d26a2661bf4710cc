// Package config tests
package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/sonemaro/tella/internal/types"
)

// clearEnv isolates a test from keys and overrides in the developer's shell.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		EnvAPIKey, "CEREBRAS_API_KEY", "OPENAI_API_KEY",
		"TELLA_PROVIDER", "TELLA_MODEL", "TELLA_ENDPOINT", "TELLA_CONFIG",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	if s.Provider.Name != ProviderCerebras {
		t.Errorf("Expected default Provider.Name to be 'cerebras', got '%s'", s.Provider.Name)
	}
	if s.Provider.Endpoint != "https://api.cerebras.ai/v1" {
		t.Errorf("Expected cerebras endpoint, got '%s'", s.Provider.Endpoint)
	}
	if s.Model.Name != "llama3.3-70b" {
		t.Errorf("Expected default Model.Name to be 'llama3.3-70b', got '%s'", s.Model.Name)
	}
	if s.Model.TimeoutSeconds != 30 {
		t.Errorf("Expected default Model.TimeoutSeconds to be 30, got %d", s.Model.TimeoutSeconds)
	}
	if s.Model.MaxRetries != 2 {
		t.Errorf("Expected default Model.MaxRetries to be 2, got %d", s.Model.MaxRetries)
	}
	if s.AutoRunSafe() {
		t.Error("Expected auto-run to be off by default")
	}
	if !s.UI.ShowSummary || !s.UI.ShowExplanation || !s.UI.ShowRisk {
		t.Error("Expected all output fields to be shown by default")
	}
	if result := Validate(s); !result.IsValid() {
		t.Errorf("Expected defaults to validate, got: %s", result.String())
	}
}

func TestStore_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	store := NewStore(path)

	cases := map[string]Settings{}

	s := DefaultSettings()
	s.Provider.APIKey = "sk-test"
	cases["defaults with key"] = s

	s = DefaultSettings()
	s.Provider = ProviderConfig{Name: ProviderOllama, Endpoint: "http://10.0.0.2:11434"}
	s.Model = ModelConfig{Name: "llama3.2", MaxTokens: 0, Temperature: 0.7, TimeoutSeconds: 5, MaxRetries: 0}
	s.Safety = SafetyConfig{AutoConfirm: AutoConfirmSafe, BlockedCommands: []string{"terraform destroy", "kubectl delete"}}
	s.History = HistoryConfig{Enabled: false}
	s.UI = UIConfig{ColorEnabled: false, ShowSummary: false, ShowExplanation: true, ShowRisk: false}
	cases["ollama customised"] = s

	s = DefaultSettings()
	s.Provider = ProviderConfig{Name: ProviderGeneric, Endpoint: "https://llm.internal/v1", APIKeyEnv: "INTERNAL_KEY", APIKey: "k: with 'quotes'"}
	s.Model.Name = "qwen"
	cases["generic with odd key"] = s

	for name, want := range cases {
		t.Run(name, func(t *testing.T) {
			if err := store.Save(want); err != nil {
				t.Fatalf("Save() error: %v", err)
			}
			got, err := store.Load()
			if err != nil {
				t.Fatalf("Load() error: %v", err)
			}
			if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("settings changed across save/load (-want +got):\n%s", diff)
			}
		})
	}
}

func TestStore_SaveIsPrivate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	s := DefaultSettings()
	s.Provider.APIKey = "sk-test"

	if err := NewStore(path).Save(s); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("Expected mode 0600, got %o", perm)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("Expected only the settings file in the directory, got %d entries", len(entries))
	}
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	s := DefaultSettings()
	s.Safety.AutoConfirm = "dangerous"

	if err := NewStore(path).Save(s); err == nil {
		t.Fatal("Expected Save() to reject auto_confirm=dangerous")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Expected no file to be written for invalid settings")
	}
}

func TestStore_LoadNotConfigured(t *testing.T) {
	clearEnv(t)
	store := NewStore(filepath.Join(t.TempDir(), "missing.yaml"))

	s, err := store.Load()
	if !errors.Is(err, types.ErrNotConfigured) {
		t.Fatalf("Expected ErrNotConfigured, got %v", err)
	}
	if diff := cmp.Diff(DefaultSettings(), s, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Expected defaults alongside ErrNotConfigured (-want +got):\n%s", diff)
	}
}

func TestStore_LoadEnvKey(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvAPIKey, "from-env")
	store := NewStore(filepath.Join(t.TempDir(), "missing.yaml"))

	s, err := store.Load()
	if err != nil {
		t.Fatalf("Expected env key to satisfy Load(), got %v", err)
	}
	if s.Provider.APIKey != "" {
		t.Error("Expected env key not to be copied into settings")
	}
	if got := s.ResolveAPIKey(); got != "from-env" {
		t.Errorf("Expected resolved key 'from-env', got %q", got)
	}
}

func TestStore_LoadOllamaNeedsNoKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "provider:\n  name: ollama\nmodel:\n  name: llama3.2\n"
	if err := os.WriteFile(path, []byte(yaml), 0600); err != nil {
		t.Fatal(err)
	}

	s, err := NewStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.Provider.Name != ProviderOllama || s.Model.Name != "llama3.2" {
		t.Errorf("Unexpected provider/model: %s/%s", s.Provider.Name, s.Model.Name)
	}
	// Keys missing from the file keep their defaults.
	if s.Model.TimeoutSeconds != 30 {
		t.Errorf("Expected default timeout to survive partial file, got %d", s.Model.TimeoutSeconds)
	}
}

func TestStore_LoadBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("provider: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewStore(path).Load()
	if err == nil {
		t.Fatal("Expected error for malformed YAML")
	}
	if errors.Is(err, types.ErrNotConfigured) {
		t.Error("Malformed file should not be reported as not configured")
	}
}

func TestResolveAPIKey_Precedence(t *testing.T) {
	clearEnv(t)
	s := DefaultSettings()
	s.Provider.APIKey = "file"
	s.Provider.APIKeyEnv = "MY_KEY"

	if got := s.ResolveAPIKey(); got != "file" {
		t.Errorf("Expected file key, got %q", got)
	}

	t.Setenv("MY_KEY", "named-env")
	if got := s.ResolveAPIKey(); got != "named-env" {
		t.Errorf("Expected named env key, got %q", got)
	}

	t.Setenv(EnvAPIKey, "tella-env")
	if got := s.ResolveAPIKey(); got != "tella-env" {
		t.Errorf("Expected TELLA_API_KEY to win, got %q", got)
	}
}

func TestWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	base := DefaultSettings()

	t.Setenv("TELLA_PROVIDER", "ollama")
	t.Setenv("TELLA_MODEL", "codellama")

	got := base.WithEnvOverrides()
	if got.Provider.Name != ProviderOllama {
		t.Errorf("Expected provider override, got %s", got.Provider.Name)
	}
	if got.Provider.Endpoint != "http://localhost:11434" {
		t.Errorf("Expected provider default endpoint, got %s", got.Provider.Endpoint)
	}
	if got.Model.Name != "codellama" {
		t.Errorf("Expected model override, got %s", got.Model.Name)
	}
	if base.Provider.Name != ProviderCerebras {
		t.Error("WithEnvOverrides must not modify the receiver")
	}

	t.Setenv("TELLA_ENDPOINT", "http://gpu-box:11434")
	if got := base.WithEnvOverrides(); got.Provider.Endpoint != "http://gpu-box:11434" {
		t.Errorf("Expected endpoint override, got %s", got.Provider.Endpoint)
	}
}

func TestDefaultPath_EnvOverride(t *testing.T) {
	t.Setenv("TELLA_CONFIG", "/tmp/tella-test.yaml")
	if got := DefaultPath(); got != "/tmp/tella-test.yaml" {
		t.Errorf("Expected TELLA_CONFIG to win, got %s", got)
	}
	if got := NewStore("").Path(); got != "/tmp/tella-test.yaml" {
		t.Errorf("Expected NewStore(\"\") to use DefaultPath, got %s", got)
	}
}
