package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

func TestLoader_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "auto" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "auto")
	}
	if cfg.LLM.Provider != "openai" {
		t.Errorf("LLM.Provider = %q, want openai", cfg.LLM.Provider)
	}
	if cfg.LLM.MaxTokens != 2048 {
		t.Errorf("LLM.MaxTokens = %d, want 2048", cfg.LLM.MaxTokens)
	}
	if cfg.LLM.TimeoutDuration() != 60*time.Second {
		t.Errorf("LLM.TimeoutDuration() = %v", cfg.LLM.TimeoutDuration())
	}
	if !cfg.LLM.CircuitBreaker.Enabled || cfg.LLM.CircuitBreaker.MaxFailures != 5 {
		t.Errorf("CircuitBreaker = %+v", cfg.LLM.CircuitBreaker)
	}
	if cfg.Generation.PolicyRetries != 1 {
		t.Errorf("Generation.PolicyRetries = %d, want 1", cfg.Generation.PolicyRetries)
	}
	if cfg.Generation.AgentTimeoutDuration() != 90*time.Second {
		t.Errorf("AgentTimeoutDuration() = %v", cfg.Generation.AgentTimeoutDuration())
	}
	if tr := cfg.Generation.Transcript; tr.Mode != "off" || !tr.Redact || tr.MaxFiles != 500 {
		t.Errorf("Generation.Transcript = %+v", tr)
	}
	if cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled = true, want false")
	}

	if err := ValidateConfig(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoader_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  provider: bedrock
  model: anthropic.claude-3-haiku-20240307-v1:0
  region: eu-west-1
generation:
  continuity: true
  content_type: ad.yaml
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	loader := NewLoader().WithConfigFile(path)
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Provider != "bedrock" || cfg.LLM.Region != "eu-west-1" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if !cfg.Generation.Continuity || cfg.Generation.ContentType != "ad.yaml" {
		t.Errorf("Generation = %+v", cfg.Generation)
	}
	if cfg.LLM.MaxTokens != 2048 {
		t.Errorf("unset keys should keep defaults, MaxTokens = %d", cfg.LLM.MaxTokens)
	}
	if loader.ConfigFile() != path {
		t.Errorf("ConfigFile() = %q, want %q", loader.ConfigFile(), path)
	}
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SCENEBRIEF_LLM_MODEL", "gpt-4o")
	t.Setenv("SCENEBRIEF_GENERATION_POLICY_RETRIES", "2")
	t.Setenv("OPENAI_API_KEY", "from-openai-env")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("LLM.Model = %q, want gpt-4o", cfg.LLM.Model)
	}
	if cfg.Generation.PolicyRetries != 2 {
		t.Errorf("PolicyRetries = %d, want 2", cfg.Generation.PolicyRetries)
	}
	if cfg.LLM.APIKey != "from-openai-env" {
		t.Errorf("APIKey = %q, want fallback env value", cfg.LLM.APIKey)
	}
}

func TestLoader_PrefixedKeyWins(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SCENEBRIEF_LLM_API_KEY", "prefixed")
	t.Setenv("OPENAI_API_KEY", "fallback")

	cfg, err := NewLoader().Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.APIKey != "prefixed" {
		t.Errorf("APIKey = %q, want prefixed", cfg.LLM.APIKey)
	}
}

func TestLoader_FlagBinding(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("HOME", t.TempDir())

	v := viper.New()
	v.Set("llm.provider", "scripted")
	cfg, err := NewLoaderWithViper(v).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LLM.Provider != "scripted" {
		t.Errorf("Provider = %q, want scripted", cfg.LLM.Provider)
	}
}

func TestLoader_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("llm: [unclosed"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewLoader().WithConfigFile(path).Load(); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestDefaultConfigYAML_MatchesDefaults(t *testing.T) {
	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(DefaultConfigYAML), &parsed); err != nil {
		t.Fatalf("DefaultConfigYAML is not valid YAML: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(DefaultConfigYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := NewLoader().WithConfigFile(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := ValidateConfig(cfg); err != nil {
		t.Fatalf("default YAML should validate: %v", err)
	}
}
