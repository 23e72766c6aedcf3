package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/grahame/gubinge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as resolved from file, environment, and defaults",
	Long: `config loads configuration the same way serve does -- file, then
GUBINGE_ environment overrides, then defaults -- and prints the result as
YAML, without starting the proxy. Useful for confirming what a deployment
will actually run with before it runs.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if path := config.ConfigFileUsed(); path != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", path)
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
