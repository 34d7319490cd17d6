package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/alexwday/report-designer/internal/config"
	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/server/ratelimit"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate configuration",
	Long: `Load the configuration the other commands would use (config file, flags, environment and
defaults), validate it and check that the registry file parses.`,
	RunE: runValidateConfig,
}

func init() {
	rootCmd.AddCommand(validateConfigCmd)
}

func runValidateConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	catalog, err := schema.LoadFile(cfg.RegistryPath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintln(out, "Configuration is valid")
	_, _ = fmt.Fprintf(out, "  registry:          %s (%d sources)\n", cfg.RegistryPath, len(catalog.SourceIDs()))
	_, _ = fmt.Fprintf(out, "  port:              %d\n", cfg.Port)
	_, _ = fmt.Fprintf(out, "  log level:         %s\n", cfg.LogLevel)
	_, _ = fmt.Fprintf(out, "  retrieval timeout: %s\n", cfg.RetrievalTimeout())
	_, _ = fmt.Fprintf(out, "  status poll:       %s\n", cfg.StatusPollInterval())
	_, _ = fmt.Fprintf(out, "  database:          %s\n", setOrMissing(cfg.DatabaseURL != ""))
	_, _ = fmt.Fprintf(out, "  api key:           %s\n", setOrMissing(cfg.APIKey != ""))
	_, _ = fmt.Fprintf(out, "  rate limit:        %s\n", describeRateLimit(cfg.RateLimit))

	if len(cfg.VariableAliases) > 0 {
		names := make([]string, 0, len(cfg.VariableAliases))
		for name := range cfg.VariableAliases {
			names = append(names, name)
		}
		sort.Strings(names)
		_, _ = fmt.Fprintln(out, "  variable aliases:")
		for _, name := range names {
			_, _ = fmt.Fprintf(out, "    %s -> %s\n", name, cfg.VariableAliases[name])
		}
	}
	return nil
}

func describeRateLimit(rl config.RateLimit) string {
	if rl.Disabled {
		return "disabled"
	}
	perMinute, runs := rl.RequestsPerMinute, rl.RunsPerHour
	if perMinute == 0 {
		perMinute = ratelimit.DefaultRequestsPerMinute
	}
	if runs == 0 {
		runs = ratelimit.DefaultRunsPerHour
	}
	return fmt.Sprintf("%d requests/min, %d runs/hour", perMinute, runs)
}

func setOrMissing(set bool) string {
	if set {
		return "set"
	}
	return "not set"
}
