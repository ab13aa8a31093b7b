package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/fsutil"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
)

// Transcript modes.
const (
	TranscriptModeOff     = "off"
	TranscriptModeSummary = "summary"
	TranscriptModeFull    = "full"
)

// Transcript event types.
const (
	TranscriptPrompt   = "prompt"
	TranscriptResponse = "response"
	TranscriptError    = "error"
)

const truncationMarker = "\n[transcript truncated]\n"

// TranscriptConfig configures the per-session record of model traffic.
type TranscriptConfig struct {
	Mode           string   `json:"mode"`
	Dir            string   `json:"dir"`
	Redact         bool     `json:"redact"`
	RedactPatterns []string `json:"redact_patterns,omitempty"`
	MaxBytes       int64    `json:"max_bytes"`
	TotalMaxBytes  int64    `json:"total_max_bytes"`
	MaxFiles       int      `json:"max_files"`
}

// TranscriptSession describes the generation a transcript belongs to.
type TranscriptSession struct {
	SessionID   string    `json:"session_id"`
	ContentType string    `json:"content_type"`
	Strategy    string    `json:"strategy"`
	Model       string    `json:"model,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// TranscriptSummary is written to the manifest when the session ends.
type TranscriptSummary struct {
	EndedAt        time.Time `json:"ended_at"`
	Events         int       `json:"events"`
	Prompts        int       `json:"prompts"`
	Errors         int       `json:"errors"`
	TotalTokensIn  int       `json:"total_tokens_in"`
	TotalTokensOut int       `json:"total_tokens_out"`
	Files          int       `json:"files"`
	Bytes          int64     `json:"bytes"`
	Dir            string    `json:"dir"`
}

// TranscriptEvent is one prompt, response or failure of an agent call.
type TranscriptEvent struct {
	Type      string
	Scene     int
	Purpose   string
	Agent     string
	Role      string
	Attempt   int
	Model     string
	Content   string
	TokensIn  int
	TokensOut int
}

// TranscriptWriter records model traffic for one session at a time.
type TranscriptWriter interface {
	Enabled() bool
	StartSession(info TranscriptSession) error
	Record(event TranscriptEvent)
	EndSession() TranscriptSummary
	Dir() string
}

// NewTranscriptWriter returns a file-backed writer, or a no-op writer when
// the mode is off.
func NewTranscriptWriter(cfg TranscriptConfig, logger *logging.Logger) (TranscriptWriter, error) {
	cfg = normalizeTranscriptConfig(cfg)
	switch cfg.Mode {
	case TranscriptModeOff:
		return NopTranscript{}, nil
	case TranscriptModeSummary, TranscriptModeFull:
	default:
		return nil, fmt.Errorf("unknown transcript mode %q", cfg.Mode)
	}

	patterns := make([]*regexp.Regexp, 0, len(cfg.RedactPatterns))
	if cfg.Redact {
		for _, p := range cfg.RedactPatterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("invalid redact pattern %q: %w", p, err)
			}
			patterns = append(patterns, re)
		}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &fileTranscript{cfg: cfg, logger: logger, redactors: patterns}, nil
}

// NopTranscript discards every event.
type NopTranscript struct{}

func (NopTranscript) Enabled() bool                        { return false }
func (NopTranscript) StartSession(TranscriptSession) error { return nil }
func (NopTranscript) Record(TranscriptEvent)               {}
func (NopTranscript) EndSession() TranscriptSummary        { return TranscriptSummary{} }
func (NopTranscript) Dir() string                          { return "" }

type fileTranscript struct {
	cfg       TranscriptConfig
	logger    *logging.Logger
	redactors []*regexp.Regexp

	mu      sync.Mutex
	active  bool
	info    TranscriptSession
	dir     string
	seq     int
	summary TranscriptSummary
}

func (w *fileTranscript) Enabled() bool { return true }

func (w *fileTranscript) Dir() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dir
}

// StartSession creates <dir>/<session id> and writes the initial manifest.
// A failure disables recording for the session; generation is unaffected.
func (w *fileTranscript) StartSession(info TranscriptSession) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := sanitizeComponent(info.SessionID)
	if id == "" {
		id = fmt.Sprintf("session-%d", info.StartedAt.Unix())
	}
	w.info = info
	w.dir = filepath.Join(w.cfg.Dir, id)
	w.seq = 0
	w.summary = TranscriptSummary{Dir: w.dir}

	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		w.disable(fmt.Errorf("creating transcript dir: %w", err))
		return err
	}
	w.active = true
	if err := w.writeManifest(nil); err != nil {
		w.disable(fmt.Errorf("writing transcript manifest: %w", err))
		return err
	}
	return nil
}

func (w *fileTranscript) Record(event TranscriptEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return
	}

	w.seq++
	w.summary.Events++
	w.summary.TotalTokensIn += event.TokensIn
	w.summary.TotalTokensOut += event.TokensOut
	switch event.Type {
	case TranscriptPrompt:
		w.summary.Prompts++
	case TranscriptError:
		w.summary.Errors++
	}

	rec := transcriptRecord{
		Seq:       w.seq,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Type:      event.Type,
		Scene:     event.Scene,
		Purpose:   event.Purpose,
		Agent:     event.Agent,
		Role:      event.Role,
		Attempt:   event.Attempt,
		Model:     event.Model,
		TokensIn:  event.TokensIn,
		TokensOut: event.TokensOut,
	}

	if event.Content != "" {
		raw := []byte(event.Content)
		rec.HashRaw = hashContent(raw)
		stored, redacted := w.redact(raw)
		stored, truncated := w.truncate(stored)
		rec.HashStored = hashContent(stored)
		rec.Redacted = redacted
		rec.Truncated = truncated
		rec.Chars = len(event.Content)

		if w.cfg.Mode == TranscriptModeFull {
			name := w.filename(event)
			if w.canStore(int64(len(stored))) {
				if err := os.WriteFile(filepath.Join(w.dir, name), stored, 0o600); err != nil {
					w.disable(fmt.Errorf("writing transcript file: %w", err))
					return
				}
				rec.File = name
				w.summary.Files++
				w.summary.Bytes += int64(len(stored))
			} else {
				rec.Dropped = true
			}
		}
	}

	if err := w.append(rec); err != nil {
		w.disable(fmt.Errorf("writing transcript record: %w", err))
	}
}

// EndSession finalizes the manifest and returns the session totals.
func (w *fileTranscript) EndSession() TranscriptSummary {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.active {
		return w.summary
	}
	w.summary.EndedAt = time.Now().UTC()
	summary := w.summary
	if err := w.writeManifest(&summary); err != nil {
		w.disable(fmt.Errorf("updating transcript manifest: %w", err))
	}
	w.active = false
	return summary
}

func (w *fileTranscript) append(rec transcriptRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(w.dir, "transcript.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (w *fileTranscript) writeManifest(summary *TranscriptSummary) error {
	data, err := json.MarshalIndent(transcriptManifest{
		Session: w.info,
		Config:  w.cfg,
		Summary: summary,
	}, "", "  ")
	if err != nil {
		return err
	}
	return fsutil.AtomicWrite(filepath.Join(w.dir, "session.json"), data)
}

// filename builds "0007-s02-copywriter-a1-response.txt".
func (w *fileTranscript) filename(event TranscriptEvent) string {
	base := sanitizeComponent(fmt.Sprintf("s%02d-%s-a%d-%s", event.Scene, event.Agent, event.Attempt, event.Type))
	return fmt.Sprintf("%04d-%s.txt", w.seq, base)
}

func (w *fileTranscript) redact(content []byte) ([]byte, bool) {
	if len(w.redactors) == 0 {
		return content, false
	}
	redacted := false
	for _, re := range w.redactors {
		if re.Match(content) {
			redacted = true
			content = re.ReplaceAll(content, []byte("[REDACTED]"))
		}
	}
	return content, redacted
}

func (w *fileTranscript) truncate(content []byte) ([]byte, bool) {
	limit := w.cfg.MaxBytes
	if limit <= 0 || int64(len(content)) <= limit {
		return content, false
	}
	keep := limit - int64(len(truncationMarker))
	if keep <= 0 {
		return content[:limit], true
	}
	out := append([]byte(nil), content[:keep]...)
	return append(out, truncationMarker...), true
}

func (w *fileTranscript) canStore(size int64) bool {
	if w.summary.Files+1 > w.cfg.MaxFiles {
		return false
	}
	return w.summary.Bytes+size <= w.cfg.TotalMaxBytes
}

// disable stops recording for the rest of the session. Transcript failures
// never fail a generation.
func (w *fileTranscript) disable(err error) {
	if !w.active {
		return
	}
	w.active = false
	w.logger.Warn("transcript disabled", "dir", w.dir, "error", err)
}

func normalizeTranscriptConfig(cfg TranscriptConfig) TranscriptConfig {
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	if cfg.Mode == "" {
		cfg.Mode = TranscriptModeOff
	}
	if cfg.Dir == "" {
		cfg.Dir = ".scenebrief/transcripts"
	}
	if cfg.Redact && len(cfg.RedactPatterns) == 0 {
		cfg.RedactPatterns = DefaultRedactPatterns()
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 256 << 10
	}
	if cfg.TotalMaxBytes <= 0 {
		cfg.TotalMaxBytes = 10 << 20
	}
	if cfg.TotalMaxBytes < cfg.MaxBytes {
		cfg.TotalMaxBytes = cfg.MaxBytes
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = 500
	}
	return cfg
}

// DefaultRedactPatterns matches common credential shapes.
func DefaultRedactPatterns() []string {
	return []string{
		`(?i)authorization\s*:\s*bearer\s+[A-Za-z0-9._\-]+`,
		`(?i)\b(api[_-]?key|access[_-]?token|secret)\b\s*[:=]\s*[^\s"']+`,
		`\bsk-[A-Za-z0-9]{16,}\b`,
		`\bAKIA[0-9A-Z]{16}\b`,
	}
}

func sanitizeComponent(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "-_")
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

type transcriptRecord struct {
	Seq        int    `json:"seq"`
	Timestamp  string `json:"ts"`
	Type       string `json:"type"`
	Scene      int    `json:"scene"`
	Purpose    string `json:"purpose,omitempty"`
	Agent      string `json:"agent"`
	Role       string `json:"role,omitempty"`
	Attempt    int    `json:"attempt"`
	Model      string `json:"model,omitempty"`
	TokensIn   int    `json:"tokens_in,omitempty"`
	TokensOut  int    `json:"tokens_out,omitempty"`
	Chars      int    `json:"chars,omitempty"`
	File       string `json:"file,omitempty"`
	HashRaw    string `json:"hash_raw,omitempty"`
	HashStored string `json:"hash_stored,omitempty"`
	Redacted   bool   `json:"redacted,omitempty"`
	Truncated  bool   `json:"truncated,omitempty"`
	Dropped    bool   `json:"dropped,omitempty"`
}

type transcriptManifest struct {
	Session TranscriptSession  `json:"session"`
	Config  TranscriptConfig   `json:"config"`
	Summary *TranscriptSummary `json:"summary,omitempty"`
}
