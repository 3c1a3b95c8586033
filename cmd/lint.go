package cmd

import (
	"github.com/conneroisu/assetline/internal/task"
	"github.com/spf13/cobra"
)

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Lint the generated HTML, CSS and JS",
	Long: `Lint the output tree in order: HTML, then CSS, then JS. Each linter
prints its issues followed by a summary line.

The command fails when the HTML linter reports any issue or the JS linter
reports an error. CSS findings are informational.

Rules can be switched off by code or name under lint.disable, e.g.
  lint:
    disable: [E005, css-important]`,
	Aliases: []string{"l"},
	RunE:    runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	return task.Lint(cmd.Context(), cfg, logger, cmd.OutOrStdout())
}
