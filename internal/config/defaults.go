package config

// DefaultConfigYAML is written by `scenebrief init`. It mirrors the loader
// defaults so an initialized project behaves like an unconfigured one.
const DefaultConfigYAML = `# scenebrief configuration
#
# Values not specified here use built-in defaults. Every key can be
# overridden with a SCENEBRIEF_ environment variable, e.g.
# SCENEBRIEF_LLM_MODEL=gpt-4o.

log:
  level: info
  format: auto

llm:
  # openai, bedrock, command or scripted (offline, deterministic)
  provider: openai
  model: gpt-4o-mini
  # command runs a local CLI with the prompt on stdin, e.g.
  # command: ["ollama", "run", "llama3"]
  # api_key is read from SCENEBRIEF_LLM_API_KEY or OPENAI_API_KEY
  # base_url: https://api.openai.com/v1
  region: us-east-1
  max_tokens: 2048
  timeout: 60s
  rate_limit_rpm: 60
  burst: 5
  circuit_breaker:
    enabled: true
    max_failures: 5
    interval: 60s
    timeout: 30s

generation:
  # content_type: content-types/product-ad.yaml
  agent_timeout: 90s
  continuity: false
  # Regenerations of the final agent when a scene uses banned vocabulary
  policy_retries: 1
  # output: brief.json
  # Record model prompts and responses: off, summary (JSONL index) or
  # full (index plus one file per prompt and response)
  transcript:
    mode: "off"
    dir: .scenebrief/transcripts
    redact: true

tracing:
  enabled: false
  exporter: noop

# Panics during generate leave a JSON dump with the scene in progress
crash_dump:
  enabled: true
  dir: .scenebrief/crashdumps
  max_files: 10
  include_stack: true
  include_env: false
`
