package cmd

import (
	"github.com/conneroisu/assetline/internal/task"
	"github.com/spf13/cobra"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run every pipeline once without serving",
	Long: `Run the template, style, script and image pipelines once and exit.
The exit status is non-zero if any file failed, which makes the command
suitable for CI.

Examples:
  assetline build
  assetline build --config ci.yml`,
	Aliases: []string{"b"},
	RunE:    runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	return task.Build(cmd.Context(), env)
}
