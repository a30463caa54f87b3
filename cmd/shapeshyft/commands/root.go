// Package commands implements the CLI commands for the shapeshyft server.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/johnqh/shapeshyft-api/internal/config"
	"github.com/johnqh/shapeshyft-api/internal/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "shapeshyft",
	Short: "Multi-tenant endpoint service for schema-validated LLM transformations",
	Long: `ShapeShyft serves user-defined endpoints: named transformations that
turn input data into schema-validated structured output, optionally through
an LLM provider (OpenAI, Anthropic, Gemini, or a self-hosted server).

Examples:
  # Run the HTTP server
  shapeshyft serve --config config.yaml

  # Apply database migrations
  shapeshyft migrate --config config.yaml`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
}

// loadConfig reads configuration and initializes logging.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	logger.Init(logger.Options{
		Debug: debug || cfg.Log.Debug,
		JSON:  cfg.Log.JSON,
	})
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
