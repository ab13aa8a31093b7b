package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/service"
)

var rolesCmd = &cobra.Command{
	Use:   "roles",
	Short: "List the built-in agent roles",
	Long: `List the roles with a built-in system prompt. An agent whose role
matches one of these ids or aliases uses that prompt unless it declares
its own system_prompt.`,
	Args: cobra.NoArgs,
	RunE: runRoles,
}

var rolesShowCmd = &cobra.Command{
	Use:   "show ROLE",
	Short: "Print the system prompt of a role",
	Args:  cobra.ExactArgs(1),
	RunE:  runRolesShow,
}

func init() {
	rootCmd.AddCommand(rolesCmd)
	rolesCmd.AddCommand(rolesShowCmd)
}

func runRoles(cmd *cobra.Command, _ []string) error {
	prompts, err := service.ListRolePrompts()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tALIASES\tFINAL")
	for _, p := range prompts {
		final := ""
		if p.Final {
			final = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Title, strings.Join(p.Aliases, ", "), final)
	}
	return tw.Flush()
}

func runRolesShow(cmd *cobra.Command, args []string) error {
	p, ok := service.LookupRolePrompt(args[0])
	if !ok {
		prompts, err := service.ListRolePrompts()
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(prompts))
		for _, rp := range prompts {
			ids = append(ids, rp.ID)
		}
		if hint := suggest(args[0], ids); hint != "" {
			return fmt.Errorf("unknown role %q (did you mean %s?)", args[0], hint)
		}
		return fmt.Errorf("unknown role %q", args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(p.Content))
	return nil
}
