package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/timeline/internal/nightly"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the nightly schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				ctx := cmd.Context()
				log := app.Log

				log.Info("Starting timeline service",
					logger.String("version", app.Config.Service.Version),
					logger.Int("port", app.Config.Server.Port),
				)

				app.WatchRubric(ctx)

				if app.Config.Cron.Enabled {
					n, err := nightly.New(app.Pipeline, app.Config.Cron.Schedule, log)
					if err != nil {
						return fmt.Errorf("failed to create nightly schedule: %w", err)
					}
					if err = n.Start(ctx); err != nil {
						return fmt.Errorf("failed to start nightly schedule: %w", err)
					}
					defer n.Stop()
				}

				if err := bootstrap.SetupHTTPServer(app).Run(ctx); err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				log.Info("Timeline service stopped")
				return nil
			})
		},
	}
}
