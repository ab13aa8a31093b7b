package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/diagnostics"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/fsutil"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service/workflow"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a multi-scene creative brief",
	Long: `Plan the scenes of a brief and generate each one with the content
type's agent workflow. The content type is a YAML or JSON file, or the id
of a built-in content type (see 'scenebrief types').

The brief is printed to stdout as JSON, or written to --out.`,
	Example: `  scenebrief generate -t product-ad --product "Oat milk" --platform tiktok
  scenebrief generate -t content-types/launch.yaml -i inputs.yaml -o brief.json
  scenebrief generate -t quick-ad --product "Oat milk" --dry-run`,
	Args: cobra.NoArgs,
	RunE: runGenerate,
}

var (
	genInputs     inputFlags
	genDryRun     bool
	genJSON       bool
	genReport     bool
	genReportJSON bool
)

func init() {
	rootCmd.AddCommand(generateCmd)

	fl := generateCmd.Flags()
	fl.StringP("content-type", "t", "", "content type file or built-in id")
	fl.StringP("out", "o", "", "write the brief to a file instead of stdout")
	fl.Bool("continuity", false, "feed earlier scenes into later prompts")
	fl.String("transcript", "", "record prompts and responses (off, summary, full)")
	fl.BoolVar(&genDryRun, "dry-run", false, "use the offline scripted model")
	fl.BoolVar(&genJSON, "json", false, "print the brief to stdout even when --out is set")
	fl.BoolVar(&genReport, "report", false, "print a per-agent and per-scene report to stderr")
	fl.BoolVar(&genReportJSON, "report-json", false, "print the report as JSON to stderr")
	genInputs.register(generateCmd)

	_ = viper.BindPFlag("generation.content_type", fl.Lookup("content-type"))
	_ = viper.BindPFlag("generation.output", fl.Lookup("out"))
	_ = viper.BindPFlag("generation.continuity", fl.Lookup("continuity"))
	_ = viper.BindPFlag("generation.transcript.mode", fl.Lookup("transcript"))
}

func runGenerate(cmd *cobra.Command, _ []string) (err error) {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, err := genInputs.inputs()
	if err != nil {
		return err
	}

	deps, err := initRuntime(ctx, genDryRun)
	if err != nil {
		return err
	}
	defer deps.Close(context.WithoutCancel(ctx))

	gen := deps.Config.Generation
	ct, err := loadContentType(gen.ContentType)
	if err != nil {
		return err
	}

	transcript, err := service.NewTranscriptWriter(transcriptConfig(gen.Transcript), deps.Logger)
	if err != nil {
		return err
	}

	metrics := service.NewMetricsCollector()
	observers := workflow.MultiObserver{workflow.NewMetricsObserver(metrics)}
	if deps.Config.CrashDump.Enabled {
		crash := diagnostics.NewCrashDumpWriter(deps.Config.CrashDump, deps.Logger)
		crash.SetContentType(ct.ID)
		observers = append(observers, crash)
		defer crash.RecoverAndReturn(&err)
	}
	if !quiet {
		observers = append(observers, newProgressObserver(cmd.ErrOrStderr()))
	}

	session, err := workflow.NewGenerationSession(deps.Model,
		workflow.WithLogger(deps.Logger),
		workflow.WithObserver(observers),
		workflow.WithAgentTimeout(gen.AgentTimeoutDuration()),
		workflow.WithMaxTokens(deps.Config.LLM.MaxTokens),
		workflow.WithPolicyRetries(gen.PolicyRetries),
		workflow.WithRetryDelay(250*time.Millisecond),
		workflow.WithTranscript(transcript),
	)
	if err != nil {
		return err
	}

	metrics.StartSession("")
	res, err := session.Generate(ctx, workflow.GenerationRequest{
		ContentType: ct,
		Inputs:      inputs,
		Continuity:  gen.Continuity,
	})
	metrics.EndSession()
	if err != nil {
		return err
	}
	metrics.SetSessionID(res.SessionID)

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding brief: %w", err)
	}
	data = append(data, '\n')

	if gen.Output != "" {
		if err := fsutil.AtomicWrite(gen.Output, data); err != nil {
			return fmt.Errorf("writing brief: %w", err)
		}
	}
	if gen.Output == "" || genJSON {
		if _, err := cmd.OutOrStdout().Write(data); err != nil {
			return err
		}
	}

	report := service.NewReportGenerator(metrics)
	if !quiet {
		printSummary(cmd.ErrOrStderr(), res, report.GenerateSummary(), gen.Output)
		if transcript.Enabled() {
			fmt.Fprintf(cmd.ErrOrStderr(), "transcript: %s\n", transcript.Dir())
		}
	}
	return writeReport(cmd.ErrOrStderr(), report)
}

func writeReport(w io.Writer, report *service.ReportGenerator) error {
	switch {
	case genReportJSON:
		return report.GenerateJSONReport(w)
	case genReport:
		return report.GenerateTextReport(w)
	}
	return nil
}

func transcriptConfig(c config.TranscriptConfig) service.TranscriptConfig {
	return service.TranscriptConfig{
		Mode:     c.Mode,
		Dir:      c.Dir,
		Redact:   c.Redact,
		MaxBytes: c.MaxBytes,
		MaxFiles: c.MaxFiles,
	}
}
