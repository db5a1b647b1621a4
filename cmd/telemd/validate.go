package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/helios-aero/telemd/config"
)

// validateCmd validates a config file without starting the service.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a telemd configuration file without starting the service.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  telemd validate -c config.yaml
  telemd validate --config /etc/telemd/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:              %d\n", cfg.Port)
	fmt.Printf("  Backend:           %s\n", cfg.Backend)
	fmt.Printf("  Source:            %s\n", cfg.SourceAddress())
	fmt.Printf("  Telemetry rate:    %g Hz\n", cfg.TelemetryRateHz)
	fmt.Printf("  Stream push rate:  %g Hz\n", cfg.PushRateHz)
	if cfg.Backend == config.BackendSim {
		fmt.Printf("  Connect timeout:   %s\n", cfg.ConnectTimeout.Duration())
	} else {
		fmt.Printf("  Reconnect backoff: %s\n", cfg.ReconnectBackoff.Duration())
	}

	return nil
}
