package cmd

import "github.com/spf13/cobra"

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Build, serve and watch (same as running assetline alone)",
	Long: `Start the dev server and a watch binding per pipeline, then run every
pipeline once. A change to a source glob reruns only the pipeline bound to
it; written files are pushed to connected browsers.

Examples:
  assetline dev
  ASSETLINE_SERVER_PORT=3000 assetline dev`,
	Aliases: []string{"d", "serve"},
	RunE:    runDev,
}

func init() {
	rootCmd.AddCommand(devCmd)
}
