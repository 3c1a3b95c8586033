// Package cmd provides the command-line interface for assetline.
//
// Configuration System:
//
//	Configuration is read from several sources with clear precedence:
//	1. Command-line flags (--config, --log-level) - highest priority
//	2. ASSETLINE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (ASSETLINE_SERVER_PORT, etc.)
//	4. Configuration file (.assetline.yml) - lowest priority
//
// Environment Variables:
//
//	ASSETLINE_CONFIG_FILE: Path to custom configuration file
//	ASSETLINE_SERVER_PORT: Override server port
//	ASSETLINE_IMAGES_CONCURRENT: Override image codec concurrency
//	And every other key following the ASSETLINE_<SECTION>_<OPTION> pattern
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/conneroisu/assetline/internal/build"
	"github.com/conneroisu/assetline/internal/config"
	"github.com/conneroisu/assetline/internal/logging"
	"github.com/conneroisu/assetline/internal/task"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd runs the dev task when called without a subcommand.
var rootCmd = &cobra.Command{
	Use:   "assetline",
	Short: "Front-end asset pipeline with a live-reloading dev server",
	Long: `assetline renders templates to HTML, compiles SCSS to CSS, bundles
JavaScript and compresses images, each from its own source glob into its own
output directory.

Run without a subcommand it starts the dev server, watches every source glob
and rebuilds only the pipeline whose sources changed.

Quick Start:
  assetline init      Write a default .assetline.yml
  assetline           Build, serve and watch
  assetline build     Build everything once
  assetline lint      Lint the generated HTML, CSS and JS`,
	SilenceUsage: true,
	RunE:         runDev,
}

// Execute runs the root command until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .assetline.yml, can also use ASSETLINE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig points viper at the config file and enables ASSETLINE_
// environment overrides for every known key.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv("ASSETLINE_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".assetline")
	}

	viper.SetEnvPrefix("ASSETLINE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := config.RegisterDefaults(viper.GetViper()); err != nil {
		fmt.Fprintln(os.Stderr, "Registering defaults:", err)
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig reads the configuration and builds the logger it asks for.
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Format,
		Output: os.Stderr,
	}), nil
}

// loadEnv loads configuration and metadata. Either failing stops the
// command before any pipeline starts.
func loadEnv() (*build.Env, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return task.NewEnv(cfg, logger)
}

func runDev(cmd *cobra.Command, _ []string) error {
	env, err := loadEnv()
	if err != nil {
		return err
	}
	return task.Dev(cmd.Context(), env)
}
