package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service/workflow"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan the scenes of a brief without generating them",
	Long: `Run only the scene planner: one model call that decides how many
scenes the brief has and what each one is for.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

var (
	planInputs      inputFlags
	planContentType string
	planDryRun      bool
	planJSON        bool
)

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&planContentType, "content-type", "t", "", "content type file or built-in id")
	planCmd.Flags().BoolVar(&planDryRun, "dry-run", false, "use the offline scripted model")
	planCmd.Flags().BoolVar(&planJSON, "json", false, "print the plan as JSON")
	planInputs.register(planCmd)
}

func runPlan(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inputs, err := planInputs.inputs()
	if err != nil {
		return err
	}
	inputs = inputs.Normalize()
	if err := inputs.Validate(); err != nil {
		return err
	}

	deps, err := initRuntime(ctx, planDryRun)
	if err != nil {
		return err
	}
	defer deps.Close(context.WithoutCancel(ctx))

	ref := planContentType
	if ref == "" {
		ref = deps.Config.Generation.ContentType
	}
	ct, err := loadContentType(ref)
	if err != nil {
		return err
	}

	renderer, err := service.NewPromptRenderer()
	if err != nil {
		return err
	}
	executor := workflow.NewAgentExecutor(deps.Model, workflow.ExecutorConfig{
		Timeout:   deps.Config.Generation.AgentTimeoutDuration(),
		MaxTokens: deps.Config.LLM.MaxTokens,
		Logger:    deps.Logger,
	})

	policy := ct.Policy
	policy.ApplyDefaults()
	plan, err := workflow.NewScenePlanner(executor, renderer, deps.Logger).Plan(ctx, inputs, policy)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if planJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
	for _, s := range plan {
		fmt.Fprintf(out, "%d. %s\n", s.Index, s.Purpose)
	}
	return nil
}
