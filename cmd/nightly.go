package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/timeline/internal/nightly"
)

func newNightlyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "nightly",
		Short: "Run the nightly job once for yesterday",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				n, err := nightly.New(app.Pipeline, app.Config.Cron.Schedule, app.Log)
				if err != nil {
					return fmt.Errorf("failed to create nightly schedule: %w", err)
				}
				app.Log.Info("Running nightly job", logger.String("date", n.Target()))
				return n.RunOnce(cmd.Context())
			})
		},
	}
}
