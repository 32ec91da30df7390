package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/dispatch/pkg/cli"
	"mercator-hq/dispatch/pkg/config"
)

var validateFlags struct {
	output string
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Load the configuration file and DISPATCH_* environment overrides, apply
defaults and report every invalid field.

Examples:
  # Validate a file
  dispatch validate --config /etc/dispatch/config.yaml

  # Print the effective configuration as JSON, secrets masked
  dispatch validate --config config.yaml --output json`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVarP(&validateFlags.output, "output", "o", "text", "output format: text, json")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(validateFlags.output)
	if err != nil {
		return cli.NewConfigError("--output", err.Error())
	}

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.WrapConfigError(cfgFile, err)
	}

	out := cmd.OutOrStdout()
	if format == cli.FormatJSON {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(out, maskSecrets(cfg))
	}

	fmt.Fprintln(out, "✓ Configuration valid")
	fmt.Fprintf(out, "  app group:    %s\n", cfg.Handler.AppGroupName)
	fmt.Fprintf(out, "  concurrency:  %d\n", cfg.Handler.Concurrency)
	fmt.Fprintf(out, "  unix sockets: %t\n", cfg.Handler.UnixSockets())
	fmt.Fprintf(out, "  linger time:  %s\n", cfg.Handler.SoftTerminationLingerTime)
	fmt.Fprintf(out, "  pool detach:  %t\n", detachConfigured(cfg))
	return nil
}

// maskSecrets returns a copy of cfg safe to print.
func maskSecrets(cfg *config.Config) config.Config {
	masked := *cfg
	for _, s := range []*string{
		&masked.Handler.ConnectPassword,
		&masked.Handler.DetachKey,
		&masked.Pool.AccountPasswordBase64,
	} {
		if *s != "" {
			*s = "***"
		}
	}
	return masked
}

func detachConfigured(cfg *config.Config) bool {
	return cfg.Handler.DetachKey != "" &&
		cfg.Pool.AccountUsername != "" &&
		cfg.Pool.AccountPasswordBase64 != ""
}
