package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexwday/report-designer/internal/observability"
)

var (
	checkTemplates []string
	checkInputs    []string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Show what a document run needs",
	Long: `Print the blocking errors, required run inputs and warnings for one or more templates.
Inputs given with --input are checked as if they were supplied to a run.`,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringSliceVarP(&checkTemplates, "template", "t", nil, "Template ID (repeatable)")
	checkCmd.Flags().StringArrayVarP(&checkInputs, "input", "i", nil, "Run input as name=value (repeatable)")
	_ = checkCmd.MarkFlagRequired("template")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	ids, err := parseIDs("template", checkTemplates)
	if err != nil {
		return err
	}
	inputs, err := parseInputs(checkInputs)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	printer := observability.NewPrinter(cmd.OutOrStdout())
	blocked := 0
	for _, id := range ids {
		tmpl, err := a.db.GetTemplate(ctx, id)
		if err != nil {
			return err
		}
		if tmpl == nil {
			return fmt.Errorf("template %s not found", id)
		}
		reqs, err := a.manager.CheckRequirements(ctx, id, inputs)
		if err != nil {
			return err
		}
		printer.PrintRequirements(tmpl.Name, reqs)
		if reqs.Err() != nil {
			blocked++
		}
	}

	if blocked > 0 {
		return fmt.Errorf("%d of %d template(s) cannot run yet", blocked, len(ids))
	}
	return nil
}
