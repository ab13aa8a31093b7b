package config

import "time"

// Config holds all application configuration.
type Config struct {
	Log        LogConfig        `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Generation GenerationConfig `mapstructure:"generation"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
	CrashDump  CrashDumpConfig  `mapstructure:"crash_dump"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LLMConfig configures the completion provider shared by every agent.
type LLMConfig struct {
	Provider       string               `mapstructure:"provider"` // openai, bedrock, command, scripted
	Model          string               `mapstructure:"model"`
	Command        []string             `mapstructure:"command"`
	APIKey         string               `mapstructure:"api_key"`
	BaseURL        string               `mapstructure:"base_url"`
	Region         string               `mapstructure:"region"`
	MaxTokens      int                  `mapstructure:"max_tokens"`
	Timeout        string               `mapstructure:"timeout"`
	RateLimitRPM   int                  `mapstructure:"rate_limit_rpm"`
	Burst          int                  `mapstructure:"burst"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// TimeoutDuration returns the parsed request timeout, or zero if unset or
// invalid.
func (c LLMConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout)
}

// CircuitBreakerConfig configures the provider circuit breaker.
type CircuitBreakerConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MaxFailures int    `mapstructure:"max_failures"`
	Interval    string `mapstructure:"interval"`
	Timeout     string `mapstructure:"timeout"`
}

// IntervalDuration returns the parsed counting interval.
func (c CircuitBreakerConfig) IntervalDuration() time.Duration {
	return parseDuration(c.Interval)
}

// TimeoutDuration returns the parsed open-state timeout.
func (c CircuitBreakerConfig) TimeoutDuration() time.Duration {
	return parseDuration(c.Timeout)
}

// GenerationConfig configures a generation run.
type GenerationConfig struct {
	ContentType   string           `mapstructure:"content_type"`
	AgentTimeout  string           `mapstructure:"agent_timeout"`
	Continuity    bool             `mapstructure:"continuity"`
	Output        string           `mapstructure:"output"`
	PolicyRetries int              `mapstructure:"policy_retries"`
	Transcript    TranscriptConfig `mapstructure:"transcript"`
}

// TranscriptConfig configures the on-disk record of model prompts and
// responses.
type TranscriptConfig struct {
	Mode     string `mapstructure:"mode"` // off, summary, full
	Dir      string `mapstructure:"dir"`
	Redact   bool   `mapstructure:"redact"`
	MaxBytes int64  `mapstructure:"max_bytes"`
	MaxFiles int    `mapstructure:"max_files"`
}

// AgentTimeoutDuration returns the parsed per-agent timeout, or zero when
// calls should only be bounded by the caller's context.
func (c GenerationConfig) AgentTimeoutDuration() time.Duration {
	return parseDuration(c.AgentTimeout)
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Exporter string `mapstructure:"exporter"` // noop, stdout
}

// CrashDumpConfig configures the panic dumps written by generate.
type CrashDumpConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Dir          string `mapstructure:"dir"`
	MaxFiles     int    `mapstructure:"max_files"`
	IncludeStack bool   `mapstructure:"include_stack"`
	IncludeEnv   bool   `mapstructure:"include_env"`
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
