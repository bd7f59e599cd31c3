package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nukevideo/nukevideo/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing nukevideo configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

Redirect this output to a file to create a configuration template:

  nukevideo config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml in ., ./configs, or /etc/nukevideo)
  - Environment variables (NUKEVIDEO_SERVER_PORT, NUKEVIDEO_DATABASE_DSN, ...)
  - Command-line flags (for some options)

Environment variables use the NUKEVIDEO_ prefix and underscores for
nesting. Example: server.port -> NUKEVIDEO_SERVER_PORT`,
	RunE: runConfigDump,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long:  "Load and validate the configuration, reporting the first problem found.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(cfgFile); err != nil {
			return err
		}
		fmt.Println("configuration is valid")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# nukevideo configuration")
	fmt.Println("# All values reflect the currently effective configuration.")
	fmt.Println("")
	fmt.Print(string(yamlData))
	return nil
}
