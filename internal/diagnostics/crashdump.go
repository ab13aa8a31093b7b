package diagnostics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/fsutil"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service/workflow"
)

const (
	defaultDumpDir      = ".scenebrief/crashdumps"
	defaultDumpMaxFiles = 10
	dumpPrefix          = "crash-"
	dumpSuffix          = ".json"
)

// CrashDump is the JSON document written when a generation panics.
type CrashDump struct {
	Timestamp time.Time `json:"timestamp"`
	ProcessID int       `json:"process_id"`
	GoVersion string    `json:"go_version"`
	GOOS      string    `json:"goos"`
	GOARCH    string    `json:"goarch"`

	PanicValue string `json:"panic_value"`
	StackTrace string `json:"stack_trace,omitempty"`

	ContentType string            `json:"content_type,omitempty"`
	Scene       *core.SceneInfo   `json:"scene,omitempty"`
	LastAgent   string            `json:"last_agent,omitempty"`
	ScenesDone  int               `json:"scenes_done"`
	CommandArgs []string          `json:"command_args,omitempty"`
	WorkDir     string            `json:"work_dir,omitempty"`
	Host        HostSnapshot      `json:"host"`
	RedactedEnv map[string]string `json:"redacted_env,omitempty"`
}

// CrashDumpWriter records the generation in progress and writes a dump when
// a panic is recovered. It implements workflow.Observer.
type CrashDumpWriter struct {
	workflow.NopObserver

	dir          string
	maxFiles     int
	includeStack bool
	includeEnv   bool
	logger       *logging.Logger

	mu          sync.Mutex
	contentType string
	scene       *core.SceneInfo
	lastAgent   string
	scenesDone  int
}

// NewCrashDumpWriter creates a crash dump writer.
func NewCrashDumpWriter(cfg config.CrashDumpConfig, logger *logging.Logger) *CrashDumpWriter {
	if cfg.Dir == "" {
		cfg.Dir = defaultDumpDir
	}
	if cfg.MaxFiles <= 0 {
		cfg.MaxFiles = defaultDumpMaxFiles
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CrashDumpWriter{
		dir:          cfg.Dir,
		maxFiles:     cfg.MaxFiles,
		includeStack: cfg.IncludeStack,
		includeEnv:   cfg.IncludeEnv,
		logger:       logger,
	}
}

// Dir returns the dump directory.
func (w *CrashDumpWriter) Dir() string { return w.dir }

// SetContentType names the content type being generated.
func (w *CrashDumpWriter) SetContentType(id string) {
	w.mu.Lock()
	w.contentType = id
	w.mu.Unlock()
}

func (w *CrashDumpWriter) SceneStarted(scene core.SceneInfo) {
	w.mu.Lock()
	w.scene = &scene
	w.lastAgent = ""
	w.mu.Unlock()
}

func (w *CrashDumpWriter) AgentCompleted(event workflow.AgentEvent) {
	w.mu.Lock()
	w.lastAgent = event.AgentID
	w.mu.Unlock()
}

func (w *CrashDumpWriter) SceneCompleted(_ core.SceneInfo, _ *core.GeneratedScene, err error) {
	if err != nil {
		return
	}
	w.mu.Lock()
	w.scenesDone++
	w.mu.Unlock()
}

// WriteCrashDump writes a dump for panicValue and returns its path.
func (w *CrashDumpWriter) WriteCrashDump(panicValue any) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dump := CrashDump{
		Timestamp:   time.Now().UTC(),
		ProcessID:   os.Getpid(),
		GoVersion:   runtime.Version(),
		GOOS:        runtime.GOOS,
		GOARCH:      runtime.GOARCH,
		PanicValue:  fmt.Sprintf("%v", panicValue),
		ContentType: w.contentType,
		LastAgent:   w.lastAgent,
		ScenesDone:  w.scenesDone,
		CommandArgs: os.Args,
		Host:        TakeHostSnapshot(),
	}
	if w.scene != nil {
		scene := *w.scene
		dump.Scene = &scene
	}
	if wd, err := os.Getwd(); err == nil {
		dump.WorkDir = wd
	}
	if w.includeStack {
		dump.StackTrace = string(debug.Stack())
	}
	if w.includeEnv {
		dump.RedactedEnv = redactEnvironment(os.Environ())
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling crash dump: %w", err)
	}

	name := fmt.Sprintf("%s%s-%d%s", dumpPrefix,
		dump.Timestamp.Format("20060102T150405.000"), dump.ProcessID, dumpSuffix)
	path := filepath.Join(w.dir, name)
	if err := fsutil.AtomicWrite(path, data); err != nil {
		return "", fmt.Errorf("writing crash dump: %w", err)
	}

	w.pruneLocked()
	return path, nil
}

// RecoverAndReturn converts a panic into an error after writing a dump.
// Usage: defer writer.RecoverAndReturn(&err)
//
//nolint:gocritic // ptrToRefParam: errPtr must point at the caller's named result
func (w *CrashDumpWriter) RecoverAndReturn(errPtr *error) {
	r := recover()
	if r == nil {
		return
	}
	path, dumpErr := w.WriteCrashDump(r)
	if dumpErr != nil {
		w.logger.Error("failed to write crash dump", "error", dumpErr, "panic", r)
		*errPtr = fmt.Errorf("generation panicked: %v", r)
		return
	}
	w.logger.Error("crash dump written", "path", path, "panic", r)
	*errPtr = fmt.Errorf("generation panicked: %v (dump: %s)", r, path)
}

// pruneLocked keeps only the newest maxFiles dumps.
func (w *CrashDumpWriter) pruneLocked() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}

	var dumps []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), dumpPrefix) && strings.HasSuffix(e.Name(), dumpSuffix) {
			dumps = append(dumps, e.Name())
		}
	}
	if len(dumps) <= w.maxFiles {
		return
	}

	// Names embed a sortable timestamp.
	sort.Strings(dumps)
	for _, name := range dumps[:len(dumps)-w.maxFiles] {
		path := filepath.Join(w.dir, name)
		if err := os.Remove(path); err != nil {
			w.logger.Warn("failed to remove old crash dump", "path", path, "error", err)
		}
	}
}

var sensitiveEnvMarkers = []string{
	"TOKEN", "KEY", "SECRET", "PASSWORD", "CREDENTIAL", "AUTH", "PRIVATE", "SESSION",
}

func redactEnvironment(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		upper := strings.ToUpper(key)
		for _, marker := range sensitiveEnvMarkers {
			if strings.Contains(upper, marker) {
				value = "[REDACTED]"
				break
			}
		}
		out[key] = value
	}
	return out
}
