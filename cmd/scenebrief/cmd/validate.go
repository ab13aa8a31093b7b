package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/contenttype"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/core"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
)

var validateCmd = &cobra.Command{
	Use:   "validate FILE...",
	Short: "Check content type files",
	Long: `Load and validate content type files: strategy, scene bounds, banned
terms, the agent workflow and its output schemas. Custom-order workflows
also show their dependency levels.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	st := newStyles(out)

	failed := 0
	for _, path := range args {
		ct, err := contenttype.Load(path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s %s: %v\n", st.fail.Render("✗"), path, err)
			continue
		}
		fmt.Fprintf(out, "%s %s: %s\n", st.ok.Render("✓"), path, describe(ct))
		if ct.Workflow.ExecutionOrder == core.ExecutionCustom {
			if levels, err := dependencyLevels(ct); err == nil {
				for i, level := range levels {
					fmt.Fprintf(out, "    level %d: %s\n", i+1, strings.Join(level, ", "))
				}
			}
		}
	}
	if failed > 0 {
		return errors.New(plural(failed, "content type") + " invalid")
	}
	return nil
}

func describe(ct *core.ContentTypeDefinition) string {
	p := ct.Policy
	p.ApplyDefaults()
	s := fmt.Sprintf("%s (%s, %d-%d scenes", ct.ID, ct.Strategy, p.MinScenes, p.MaxScenes)
	if n := len(ct.Workflow.Agents); n > 0 {
		s += fmt.Sprintf(", %s %s, final %s", plural(n, "agent"), ct.Workflow.ExecutionOrder, ct.Workflow.FinalAgentID)
	}
	return s + ")"
}

func dependencyLevels(ct *core.ContentTypeDefinition) ([][]string, error) {
	g, err := service.BuildAgentGraph(&ct.Workflow)
	if err != nil {
		return nil, err
	}
	plan, err := g.Build()
	if err != nil {
		return nil, err
	}
	return plan.Levels, nil
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
