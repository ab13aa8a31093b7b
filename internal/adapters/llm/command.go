package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/logging"
)

// modelPlaceholder in a command argument is replaced by the model name.
const modelPlaceholder = "{model}"

// waitDelay bounds how long a killed command may hold its output pipes.
const waitDelay = 5 * time.Second

// CommandModel completes prompts by running a local command with the
// prompt on stdin and reading the completion from stdout.
type CommandModel struct {
	args    []string
	model   string
	timeout time.Duration
	logger  *logging.Logger
}

// NewCommandModel creates a command model from cfg.Command.
func NewCommandModel(cfg config.LLMConfig, logger *logging.Logger) (*CommandModel, error) {
	args := cfg.Command
	if len(args) == 1 {
		args = strings.Fields(args[0])
	}
	if len(args) == 0 || args[0] == "" {
		return nil, core.ErrConfiguration(core.CodeInvalidConfig, "llm.command is empty")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &CommandModel{
		args:    args,
		model:   cfg.Model,
		timeout: cfg.TimeoutDuration(),
		logger:  logger,
	}, nil
}

// Name implements core.Model.
func (m *CommandModel) Name() string { return "command" }

// Complete implements core.Model.
func (m *CommandModel) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResult, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	model := req.Model
	if model == "" {
		model = m.model
	}
	args := make([]string, len(m.args))
	for i, a := range m.args {
		args[i] = strings.ReplaceAll(a, modelPlaceholder, model)
	}

	// #nosec G204 -- command and args come from validated config
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	configureProcAttr(cmd)
	cmd.Cancel = func() error { return killProcess(cmd) }
	cmd.WaitDelay = waitDelay

	prompt := req.Prompt()
	cmd.Stdin = strings.NewReader(prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"SCENEBRIEF_MANAGED=true",
		"SCENEBRIEF_MODEL="+model,
		fmt.Sprintf("SCENEBRIEF_TEMPERATURE=%g", req.Temperature),
		fmt.Sprintf("SCENEBRIEF_MAX_TOKENS=%d", req.MaxTokens),
	)

	m.logger.Debug("command: executing", "path", args[0], "args", args[1:], "stdin_length", len(prompt))

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, m.classify(err, stdout.String(), stderr.String())
	}

	text := strings.TrimSpace(stdout.String())
	if text == "" {
		return nil, core.ErrProvider(core.CodeProviderRequest, "command: produced no output")
	}

	m.logger.Debug("command: completed", "path", args[0], "duration", duration, "stdout_length", len(text))
	return &core.CompletionResult{
		Text:         text,
		TokensIn:     estimateTokens(prompt),
		TokensOut:    estimateTokens(text),
		Model:        model,
		Duration:     duration,
		FinishReason: "stop",
	}, nil
}

func (m *CommandModel) classify(err error, stdout, stderr string) error {
	if errors.Is(err, exec.ErrNotFound) {
		return core.ErrProvider(core.CodeProviderRequest,
			fmt.Sprintf("command: %s not found", m.args[0])).WithCause(err)
	}

	msg := strings.TrimSpace(stderr)
	if msg == "" {
		msg = lastLine(stdout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if msg == "" {
			msg = "(no error message captured)"
		}
		msg = fmt.Sprintf("exit code %d: %s", exitErr.ExitCode(), msg)
	} else if msg == "" {
		msg = err.Error()
	}
	return classifyMessage("command", msg)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
