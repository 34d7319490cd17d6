package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/alexwday/report-designer/internal/observability"
	"github.com/alexwday/report-designer/internal/schema"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the data sources in the registry",
	RunE:  runSources,
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func runSources(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	catalog, err := schema.LoadFile(cfg.RegistryPath)
	if err != nil {
		return err
	}
	sources, err := catalog.ListSources(context.Background())
	if err != nil {
		return err
	}
	observability.NewPrinter(cmd.OutOrStdout()).PrintSources(sources)
	return nil
}
