package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/timeline/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/export"
	"github.com/jonesrussell/north-cloud/timeline/internal/scheduler"
)

type batchFunc func(ctx context.Context, app *bootstrap.App, dates []string) (domain.BatchResult, error)

func newCurateCommand() *cobra.Command {
	return newBatchCommand(scheduler.JobCurate, "Retrieve, select and describe every date in a range",
		func(ctx context.Context, app *bootstrap.App, dates []string) (domain.BatchResult, error) {
			return app.Pipeline.CurateRange(ctx, dates)
		})
}

func newDedupeCommand() *cobra.Command {
	return newBatchCommand(scheduler.JobDedupe, "Re-detect duplicates around every date in a range",
		func(ctx context.Context, app *bootstrap.App, dates []string) (domain.BatchResult, error) {
			return app.Pipeline.DedupeRange(ctx, dates)
		})
}

func newBatchCommand(job, short string, run batchFunc) *cobra.Command {
	var r dateRange
	cmd := &cobra.Command{
		Use:   job,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dates, err := r.dates()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				app.WatchRubric(cmd.Context())

				res, runErr := run(cmd.Context(), app, dates)
				if runErr != nil {
					return fmt.Errorf("%s failed: %w", job, runErr)
				}
				export.BatchTable(cmd.OutOrStdout(), job, res)
				if !res.Success {
					return fmt.Errorf("%w: %d of %d dates failed", ErrBatchFailed, res.Failed, res.Total)
				}
				return nil
			})
		},
	}
	r.register(cmd)
	return cmd
}
