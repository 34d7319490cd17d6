package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List stored templates",
	RunE:  runListTemplates,
}

func init() {
	rootCmd.AddCommand(templatesCmd)
}

func runListTemplates(cmd *cobra.Command, _ []string) error {
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

	summaries, err := a.db.ListTemplates(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(summaries) == 0 {
		_, _ = fmt.Fprintln(out, "No templates. Use 'import --file' to add one.")
		return nil
	}
	for _, t := range summaries {
		_, _ = fmt.Fprintf(out, "%s  %-40s %2d section(s)  updated %s\n", t.ID, t.Name, t.Sections, t.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
