package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/scenebrief/internal/config"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/contenttype"
	"github.com/hugo-lorenzo-mato/scenebrief/internal/fsutil"
)

const contentTypesDir = "content-types"

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a scenebrief project",
	Long: `Initialize a scenebrief project in the current directory.
Writes .scenebrief.yaml and a starting content type under content-types/.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

var (
	initForce       bool
	initContentType string
)

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing files")
	initCmd.Flags().StringVar(&initContentType, "content-type", "product-ad", "built-in content type to copy")
}

func runInit(cmd *cobra.Command, _ []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("getting current directory: %w", err)
	}

	src, err := contenttype.BuiltinSource(initContentType)
	if err != nil {
		return err
	}

	files := []struct {
		path string
		data []byte
	}{
		{filepath.Join(cwd, ".scenebrief.yaml"), []byte(config.DefaultConfigYAML)},
		{filepath.Join(cwd, contentTypesDir, initContentType+".yaml"), src},
	}
	if !initForce {
		for _, f := range files {
			if _, err := os.Stat(f.path); err == nil {
				return fmt.Errorf("%s already exists, use --force to overwrite", f.path)
			}
		}
	}

	for _, f := range files {
		if err := fsutil.AtomicWrite(f.path, f.data); err != nil {
			return fmt.Errorf("writing %s: %w", f.path, err)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Initialized scenebrief project:")
	for _, f := range files {
		rel, _ := filepath.Rel(cwd, f.path)
		fmt.Fprintf(out, "  %s\n", rel)
	}
	fmt.Fprintf(out, "\nTry: scenebrief generate -t %s/%s.yaml --product \"Oat milk\" --dry-run\n",
		contentTypesDir, initContentType)
	return nil
}
