package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/adapters/llm"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/contenttype"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/tracing"
)

// runtimeDeps holds what every generating command needs.
type runtimeDeps struct {
	Config   *config.Config
	Logger   *logging.Logger
	Model    core.Model
	shutdown func(context.Context) error
}

// Close flushes tracing.
func (d *runtimeDeps) Close(ctx context.Context) {
	if d.shutdown == nil {
		return
	}
	if err := d.shutdown(ctx); err != nil {
		d.Logger.Warn("tracing shutdown failed", "error", err)
	}
}

// loadConfig loads configuration using the global viper (includes flag
// bindings). dryRun swaps the provider for the offline scripted model
// before validation, so no credentials are needed.
func loadConfig(dryRun bool) (*config.Config, error) {
	loader := config.NewLoaderWithViper(viper.GetViper())
	if cfgFile != "" {
		loader.WithConfigFile(cfgFile)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if dryRun {
		cfg.LLM.Provider = "scripted"
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// initRuntime loads configuration, then sets up logging, tracing and the
// model.
func initRuntime(ctx context.Context, dryRun bool) (*runtimeDeps, error) {
	cfg, err := loadConfig(dryRun)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})

	shutdown, err := tracing.Setup(ctx, cfg.Tracing, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}

	model, err := llm.New(ctx, cfg.LLM, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	return &runtimeDeps{Config: cfg, Logger: logger, Model: model, shutdown: shutdown}, nil
}

// loadContentType loads a content type file or built-in id, suggesting
// close built-in names when nothing matches.
func loadContentType(ref string) (*core.ContentTypeDefinition, error) {
	if ref == "" {
		return nil, core.ErrConfiguration(core.CodeInvalidConfig,
			"content type required: use --content-type or set generation.content_type")
	}
	ct, err := contenttype.Load(ref)
	if err == nil {
		return ct, nil
	}

	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		return nil, err
	}
	if hint := suggest(ref, contenttype.BuiltinIDs()); hint != "" {
		return nil, fmt.Errorf("%w (did you mean %s?)", err, hint)
	}
	return nil, err
}

// suggest returns the closest candidates to name, comma-separated.
func suggest(name string, candidates []string) string {
	matches := fuzzy.Find(name, candidates)
	if len(matches) == 0 {
		return ""
	}
	names := make([]string, 0, min(len(matches), 3))
	for _, m := range matches[:min(len(matches), 3)] {
		names = append(names, m.Str)
	}
	return strings.Join(names, ", ")
}
