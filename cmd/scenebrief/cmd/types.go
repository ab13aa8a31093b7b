package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/contenttype"
)

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the built-in content types",
	Args:  cobra.NoArgs,
	RunE:  runTypes,
}

var typesShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Print the source of a built-in content type",
	Args:  cobra.ExactArgs(1),
	RunE:  runTypesShow,
}

func init() {
	rootCmd.AddCommand(typesCmd)
	typesCmd.AddCommand(typesShowCmd)
}

func runTypes(cmd *cobra.Command, _ []string) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTRATEGY\tSCENES\tAGENTS")
	for _, id := range contenttype.BuiltinIDs() {
		ct, err := contenttype.Builtin(id)
		if err != nil {
			return err
		}
		p := ct.Policy
		p.ApplyDefaults()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d-%d\t%d\n", ct.ID, ct.Name, ct.Strategy, p.MinScenes, p.MaxScenes, len(ct.Workflow.Agents))
	}
	return tw.Flush()
}

func runTypesShow(cmd *cobra.Command, args []string) error {
	src, err := contenttype.BuiltinSource(args[0])
	if err != nil {
		if hint := suggest(args[0], contenttype.BuiltinIDs()); hint != "" {
			return fmt.Errorf("%w (did you mean %s?)", err, hint)
		}
		return err
	}
	_, err = cmd.OutOrStdout().Write(src)
	return err
}
