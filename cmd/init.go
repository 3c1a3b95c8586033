package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/conneroisu/assetline/internal/config"
	"github.com/conneroisu/assetline/internal/glob"
	"github.com/spf13/cobra"
)

const configFileName = ".assetline.yml"

const starterMeta = `{
  // Available to every template as .meta_json and through {{ meta "site.title" }}.
  "site": {
    "title": "My Site",
    "description": ""
  }
}
`

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Write a default configuration and source layout",
	Long: `Write .assetline.yml with every default spelled out, create the source
directories it names and a starter metadata file.

An existing configuration is left alone unless --force is given. Existing
source files are never touched.

Examples:
  assetline init
  assetline init my-site
  assetline init --force`,
	Aliases: []string{"i"},
	Args:    cobra.MaximumNArgs(1),
	RunE:    runInit,
}

var initForce bool

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) > 0 {
		projectDir = args[0]
	}
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initializing assetline project in %s\n", projectDir)

	if err := createConfigFile(projectDir, initForce); err != nil {
		return err
	}
	if err := createSourceLayout(projectDir, config.Default()); err != nil {
		return fmt.Errorf("failed to create source layout: %w", err)
	}

	fmt.Fprintln(out, "Project initialized.")
	fmt.Fprintln(out, "\nNext steps:")
	fmt.Fprintln(out, "  1. cd "+projectDir)
	fmt.Fprintln(out, "  2. assetline")
	fmt.Fprintln(out, "  3. Open http://localhost:8080 in your browser")
	return nil
}

func createConfigFile(projectDir string, force bool) error {
	path := filepath.Join(projectDir, configFileName)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	content, err := config.MarshalDefaults()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	}
	return nil
}

func createSourceLayout(projectDir string, cfg *config.Config) error {
	dirs := []string{
		glob.Base(cfg.Paths.SrcTemplates),
		glob.Base(cfg.Paths.SrcStyles),
		glob.Base(cfg.Paths.SrcScripts),
		glob.Base(cfg.Paths.SrcImages),
		filepath.Dir(cfg.Data.MetaJSON),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(filepath.Join(projectDir, filepath.FromSlash(dir)), 0o755); err != nil {
			return err
		}
	}

	metaPath := filepath.Join(projectDir, filepath.FromSlash(cfg.Data.MetaJSON))
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return os.WriteFile(metaPath, []byte(starterMeta), 0o644)
	}
	return nil
}
