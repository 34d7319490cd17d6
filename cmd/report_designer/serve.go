package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexwday/report-designer/internal/server"
	"github.com/alexwday/report-designer/internal/server/ratelimit"
)

var (
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for configuring subsections and running report generation.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}

	a, err := openApp(context.Background(), cfg, appOptions{generation: true})
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		Port:         cfg.Port,
		PollInterval: cfg.StatusPollInterval(),
		Logger:       a.logger,
		RateLimit: ratelimit.NewConfig(ratelimit.Settings{
			Disabled:          cfg.RateLimit.Disabled,
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			RunsPerHour:       cfg.RateLimit.RunsPerHour,
			Allow:             cfg.RateLimit.Allow,
			Deny:              cfg.RateLimit.Deny,
		}),
	}, a.manager, a.db, a.catalog)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
