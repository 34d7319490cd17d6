package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexwday/report-designer/internal/observability"
)

var (
	generateSubsection    string
	generateInputs        []string
	generateFiscalYear    int
	generateFiscalQuarter string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a single subsection",
	Long: `Generate one subsection outside a document run and store the result as its new current version.
Run inputs saved by the last document run are used for anything --input does not supply.`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateSubsection, "subsection", "s", "", "Subsection ID")
	generateCmd.Flags().StringArrayVarP(&generateInputs, "input", "i", nil, "Run input as name=value (repeatable)")
	generateCmd.Flags().IntVar(&generateFiscalYear, "fiscal-year", 0, "Fiscal year of the report period")
	generateCmd.Flags().StringVar(&generateFiscalQuarter, "fiscal-quarter", "", "Fiscal quarter of the report period (Q1-Q4)")
	_ = generateCmd.MarkFlagRequired("subsection")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, _ []string) error {
	ids, err := parseIDs("subsection", []string{generateSubsection})
	if err != nil {
		return err
	}
	id := ids[0]
	sr, err := startRequest(generateInputs, generateFiscalYear, generateFiscalQuarter)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg, appOptions{generation: true})
	if err != nil {
		return err
	}
	defer a.Close()

	tmpl, err := a.db.GetTemplateForSubsection(ctx, id)
	if err != nil {
		return err
	}
	if tmpl == nil {
		return fmt.Errorf("subsection %s not found", id)
	}
	sec, sub, _ := tmpl.Subsection(id)

	version, err := a.manager.RunSingle(ctx, id, sr)
	if err != nil {
		return fmt.Errorf("generation failed for %q: %w", sub.Title, err)
	}

	observability.NewPrinter(cmd.OutOrStdout()).PrintVersion(fmt.Sprintf("%s / %s", sec.Title, sub.Title), version)
	return nil
}
