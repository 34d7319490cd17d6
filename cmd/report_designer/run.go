package main

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alexwday/report-designer/internal/generation"
	"github.com/alexwday/report-designer/internal/observability"
	"github.com/alexwday/report-designer/internal/types"
)

var (
	runTemplates     []string
	runInputs        []string
	runFiscalYear    int
	runFiscalQuarter string
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Generate every subsection of one or more templates",
	Long: `Start a document run for each template and wait for all of them to finish. Templates run
concurrently; the subsections of one template are generated in document order.

The report period comes from --fiscal-year/--fiscal-quarter, then from the period_fiscal_year
and period_fiscal_quarter run inputs, then from the current calendar quarter.`,
	RunE: runDocuments,
}

func init() {
	runCommand.Flags().StringSliceVarP(&runTemplates, "template", "t", nil, "Template ID (repeatable)")
	runCommand.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "Run input as name=value (repeatable)")
	runCommand.Flags().IntVar(&runFiscalYear, "fiscal-year", 0, "Fiscal year of the report period")
	runCommand.Flags().StringVar(&runFiscalQuarter, "fiscal-quarter", "", "Fiscal quarter of the report period (Q1-Q4)")
	_ = runCommand.MarkFlagRequired("template")
	rootCmd.AddCommand(runCommand)
}

func runDocuments(cmd *cobra.Command, _ []string) error {
	ids, err := parseIDs("template", runTemplates)
	if err != nil {
		return err
	}
	sr, err := startRequest(runInputs, runFiscalYear, runFiscalQuarter)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	var mu sync.Mutex
	a, err := openApp(ctx, cfg, appOptions{
		generation: true,
		onProgress: func(ev generation.ProgressEvent) {
			if !cfg.Verbose {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			_, _ = fmt.Fprintf(out, "  [%s] %s %s %s\n", shortID(ev.JobID), shortID(ev.SubsectionID), ev.Status, ev.Message)
		},
	})
	if err != nil {
		return err
	}
	defer a.Close()

	views := make([]*types.JobView, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			view, err := a.manager.Start(gctx, id, sr)
			if err != nil {
				return fmt.Errorf("template %s: %w", id, err)
			}
			mu.Lock()
			_, _ = fmt.Fprintf(out, "Started job %s for template %s (%d subsections)\n", view.ID, id, view.Total)
			mu.Unlock()

			final, err := waitForJob(ctx, a.manager, id, view.ID, cfg.StatusPollInterval())
			if err != nil {
				return fmt.Errorf("template %s: %w", id, err)
			}
			views[i] = final
			return nil
		})
	}
	runErr := g.Wait()

	printer := observability.NewPrinter(out)
	failed := 0
	for _, view := range views {
		if view == nil {
			continue
		}
		printer.PrintJob(view)
		if view.Status == types.JobFailed {
			failed++
		}
	}

	if runErr != nil {
		return runErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) had failed subsections", failed, len(ids))
	}
	return nil
}

// jobStatuser reads job snapshots
type jobStatuser interface {
	Status(ctx context.Context, templateID, jobID uuid.UUID) (*types.JobView, error)
}

// waitForJob polls until the job is terminal. Cancelling ctx stops polling;
// the manager then fails the job's remaining subsections on shutdown.
func waitForJob(ctx context.Context, jobs jobStatuser, templateID, jobID uuid.UUID, every time.Duration) (*types.JobView, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		view, err := jobs.Status(ctx, templateID, jobID)
		if err != nil {
			return nil, err
		}
		if view.Status.Terminal() {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
