package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the environment variable prefix for every setting.
const EnvPrefix = "SCENEBRIEF"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	v          *viper.Viper
	configFile string
	envPrefix  string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return NewLoaderWithViper(viper.New())
}

// NewLoaderWithViper creates a loader using an existing viper instance.
// This allows integration with CLI flag bindings.
func NewLoaderWithViper(v *viper.Viper) *Loader {
	return &Loader{
		v:         v,
		envPrefix: EnvPrefix,
	}
}

// WithConfigFile sets an explicit config file path.
func (l *Loader) WithConfigFile(path string) *Loader {
	l.configFile = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Viper returns the underlying viper instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from all sources.
// Precedence (highest to lowest):
// 1. CLI flags (set via viper.BindPFlag)
// 2. Environment variables (SCENEBRIEF_*)
// 3. Project config (.scenebrief.yaml in current directory)
// 4. User config (~/.config/scenebrief/config.yaml)
// 5. Defaults
func (l *Loader) Load() (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(l.envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// Provider-native variables are accepted as a fallback for the key.
	prefixed := l.envPrefix + "_LLM_API_KEY"
	if err := l.v.BindEnv("llm.api_key", prefixed, "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("binding env: %w", err)
	}

	if l.configFile != "" {
		l.v.SetConfigFile(l.configFile)
	} else {
		l.v.SetConfigName(".scenebrief")
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "scenebrief"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// setDefaults configures default values.
func (l *Loader) setDefaults() {
	l.v.SetDefault("log.level", "info")
	l.v.SetDefault("log.format", "auto")

	l.v.SetDefault("llm.provider", "openai")
	l.v.SetDefault("llm.model", "gpt-4o-mini")
	l.v.SetDefault("llm.region", "us-east-1")
	l.v.SetDefault("llm.max_tokens", 2048)
	l.v.SetDefault("llm.timeout", "60s")
	l.v.SetDefault("llm.rate_limit_rpm", 60)
	l.v.SetDefault("llm.burst", 5)
	l.v.SetDefault("llm.circuit_breaker.enabled", true)
	l.v.SetDefault("llm.circuit_breaker.max_failures", 5)
	l.v.SetDefault("llm.circuit_breaker.interval", "60s")
	l.v.SetDefault("llm.circuit_breaker.timeout", "30s")

	l.v.SetDefault("generation.agent_timeout", "90s")
	l.v.SetDefault("generation.continuity", false)
	l.v.SetDefault("generation.policy_retries", 1)
	l.v.SetDefault("generation.transcript.mode", "off")
	l.v.SetDefault("generation.transcript.dir", ".scenebrief/transcripts")
	l.v.SetDefault("generation.transcript.redact", true)
	l.v.SetDefault("generation.transcript.max_bytes", 262144)
	l.v.SetDefault("generation.transcript.max_files", 500)

	l.v.SetDefault("crash_dump.enabled", true)
	l.v.SetDefault("crash_dump.dir", ".scenebrief/crashdumps")
	l.v.SetDefault("crash_dump.max_files", 10)
	l.v.SetDefault("crash_dump.include_stack", true)

	l.v.SetDefault("tracing.enabled", false)
	l.v.SetDefault("tracing.exporter", "noop")
}

// ConfigFile returns the config file path if one was used.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Get returns a configuration value by key.
func (l *Loader) Get(key string) any {
	return l.v.Get(key)
}

// Set sets a configuration value.
func (l *Loader) Set(key string, value any) {
	l.v.Set(key, value)
}
