package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/timeline/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/timeline/internal/export"
)

// Export formats.
const (
	formatXLSX = "xlsx"
	formatDOCX = "docx"
)

func newRecordsCommand() *cobra.Command {
	var r dateRange
	cmd := &cobra.Command{
		Use:   "records",
		Short: "List stored records in a range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end := r.bounds()
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				recs, err := app.Pipeline.Records(cmd.Context(), start, end)
				if err != nil {
					return err
				}
				export.RecordTable(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}
	r.register(cmd)
	return cmd
}

func newClustersCommand() *cobra.Command {
	var r dateRange
	cmd := &cobra.Command{
		Use:   "clusters",
		Short: "List duplicate clusters touching a range",
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, end := r.bounds()
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				clusters, err := app.Duplicates.Clusters(cmd.Context(), start, end)
				if err != nil {
					return err
				}
				export.ClusterTable(cmd.OutOrStdout(), clusters)
				return nil
			})
		},
	}
	r.register(cmd)
	return cmd
}

func newExportCommand() *cobra.Command {
	var (
		r      dateRange
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a range as a timeline workbook or a review report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != formatXLSX && format != formatDOCX {
				return fmt.Errorf("unknown format %q: use %s or %s", format, formatXLSX, formatDOCX)
			}
			if out == "" {
				out = "timeline." + format
			}
			start, end := r.bounds()

			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				ctx := cmd.Context()
				recs, err := app.Pipeline.Records(ctx, start, end)
				if err != nil {
					return err
				}

				if format == formatDOCX {
					items, reportErr := export.ReviewReport(out, recs, time.Now())
					if reportErr != nil {
						return reportErr
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d of %d days need review\n", out, len(items), len(recs))
					return nil
				}

				clusters, err := app.Duplicates.Clusters(ctx, start, end)
				if err != nil {
					return err
				}
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", out, err)
				}
				if err = export.Timeline(f, recs, clusters); err != nil {
					_ = f.Close()
					return err
				}
				if err = f.Close(); err != nil {
					return fmt.Errorf("failed to close %s: %w", out, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s: %d records, %d clusters\n", out, len(recs), len(clusters))
				return nil
			})
		},
	}
	r.register(cmd)
	cmd.Flags().StringVar(&format, "format", formatXLSX, "xlsx or docx")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (defaults to timeline.<format>)")
	return cmd
}
