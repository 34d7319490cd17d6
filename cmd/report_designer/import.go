package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexwday/report-designer/internal/schema"
	"github.com/alexwday/report-designer/internal/templatefile"
	"github.com/alexwday/report-designer/internal/types"
)

var (
	importFile   string
	importDryRun bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Validate and store a template file",
	Long: `Validate a template JSON file against the template schema and the data source registry, then
store it. A template whose file sets "id" replaces the stored template with that ID.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVarP(&importFile, "file", "f", "", "Path to template JSON file")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Validate only; do not write to the database")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(importFile)
	if err != nil {
		return fmt.Errorf("failed to read template file: %w", err)
	}
	catalog, err := schema.LoadFile(cfg.RegistryPath)
	if err != nil {
		return err
	}
	tmpl, err := templatefile.Parse(data, catalog)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if importDryRun {
		_, _ = fmt.Fprintf(out, "Template %q is valid: %s\n", tmpl.Name, describe(tmpl))
		return nil
	}

	ctx := context.Background()
	a, err := openApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.db.ImportTemplate(ctx, tmpl); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Imported template %q (%s): %s\n", tmpl.Name, tmpl.ID, describe(tmpl))
	return nil
}

func describe(tmpl *types.Template) string {
	return fmt.Sprintf("%d section(s), %d subsection(s)", len(tmpl.Sections), len(tmpl.Ordered()))
}
