package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation: %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{errors: make(ValidationErrors, 0)}
}

// Validate validates the entire configuration.
func (v *Validator) Validate(cfg *Config) error {
	v.validateLog(&cfg.Log)
	v.validateLLM(&cfg.LLM)
	v.validateGeneration(&cfg.Generation)
	v.validateTracing(&cfg.Tracing)
	v.validateCrashDump(&cfg.CrashDump)

	if len(v.errors) > 0 {
		return core.ErrConfiguration(core.CodeInvalidConfig, "invalid configuration").WithCause(v.errors)
	}
	return nil
}

// Errors returns the collected validation errors.
func (v *Validator) Errors() ValidationErrors {
	return v.errors
}

func (v *Validator) addError(field string, value any, msg string) {
	v.errors = append(v.errors, ValidationError{Field: field, Value: value, Message: msg})
}

func (v *Validator) validateLog(cfg *LogConfig) {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Level] {
		v.addError("log.level", cfg.Level, "must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"auto": true, "text": true, "json": true}
	if !validFormats[cfg.Format] {
		v.addError("log.format", cfg.Format, "must be one of: auto, text, json")
	}
}

func (v *Validator) validateLLM(cfg *LLMConfig) {
	switch cfg.Provider {
	case "openai":
		if cfg.Model == "" {
			v.addError("llm.model", cfg.Model, "model required for openai")
		}
	case "bedrock":
		if cfg.Model == "" {
			v.addError("llm.model", cfg.Model, "model id required for bedrock")
		}
		if cfg.Region == "" {
			v.addError("llm.region", cfg.Region, "region required for bedrock")
		}
	case "command":
		if len(cfg.Command) == 0 || cfg.Command[0] == "" {
			v.addError("llm.command", cfg.Command, "command required for the command provider")
		}
	case "scripted":
	default:
		v.addError("llm.provider", cfg.Provider, "must be one of: openai, bedrock, command, scripted")
	}

	if cfg.MaxTokens <= 0 {
		v.addError("llm.max_tokens", cfg.MaxTokens, "must be positive")
	}
	v.validateDuration("llm.timeout", cfg.Timeout, true)

	if cfg.RateLimitRPM < 0 {
		v.addError("llm.rate_limit_rpm", cfg.RateLimitRPM, "must be non-negative")
	}
	if cfg.Burst < 0 {
		v.addError("llm.burst", cfg.Burst, "must be non-negative")
	}

	cb := cfg.CircuitBreaker
	if cb.Enabled {
		if cb.MaxFailures <= 0 {
			v.addError("llm.circuit_breaker.max_failures", cb.MaxFailures, "must be positive")
		}
		v.validateDuration("llm.circuit_breaker.interval", cb.Interval, true)
		v.validateDuration("llm.circuit_breaker.timeout", cb.Timeout, false)
	}
}

func (v *Validator) validateGeneration(cfg *GenerationConfig) {
	v.validateDuration("generation.agent_timeout", cfg.AgentTimeout, true)

	if cfg.PolicyRetries < 0 || cfg.PolicyRetries > 5 {
		v.addError("generation.policy_retries", cfg.PolicyRetries, "must be between 0 and 5")
	}
	if cfg.Output != "" && !isValidPath(cfg.Output) {
		v.addError("generation.output", cfg.Output, "invalid file path")
	}

	t := cfg.Transcript
	switch t.Mode {
	case "", "off", "summary", "full":
	default:
		v.addError("generation.transcript.mode", t.Mode, "must be one of: off, summary, full")
	}
	if t.Dir != "" && !isValidPath(t.Dir) {
		v.addError("generation.transcript.dir", t.Dir, "invalid directory path")
	}
	if t.MaxBytes < 0 {
		v.addError("generation.transcript.max_bytes", t.MaxBytes, "must be non-negative")
	}
	if t.MaxFiles < 0 {
		v.addError("generation.transcript.max_files", t.MaxFiles, "must be non-negative")
	}
}

func (v *Validator) validateCrashDump(cfg *CrashDumpConfig) {
	if cfg.Dir != "" && !isValidPath(cfg.Dir) {
		v.addError("crash_dump.dir", cfg.Dir, "invalid directory path")
	}
	if cfg.MaxFiles < 0 {
		v.addError("crash_dump.max_files", cfg.MaxFiles, "must be non-negative")
	}
}

func (v *Validator) validateTracing(cfg *TracingConfig) {
	switch cfg.Exporter {
	case "", "noop", "stdout":
	default:
		v.addError("tracing.exporter", cfg.Exporter, "must be one of: noop, stdout")
	}
}

// validateDuration checks a duration string. Empty values are accepted
// when optional.
func (v *Validator) validateDuration(field, value string, optional bool) {
	if value == "" {
		if !optional {
			v.addError(field, value, "duration required")
		}
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, value, "invalid duration format")
		return
	}
	if d < 0 {
		v.addError(field, value, "must be non-negative")
	}
}

func isValidPath(path string) bool {
	dir := filepath.Dir(path)
	_, err := os.Stat(dir)
	return err == nil || os.IsNotExist(err)
}

// ValidateConfig is a convenience function that creates a validator and validates config.
func ValidateConfig(cfg *Config) error {
	return NewValidator().Validate(cfg)
}
