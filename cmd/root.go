// Package cmd implements the timeline command-line interface.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	infraconfig "github.com/jonesrussell/north-cloud/timeline/infrastructure/config"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/bootstrap"
	"github.com/jonesrussell/north-cloud/timeline/internal/config"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

const defaultConfigPath = "config.yml"

// ErrBatchFailed is returned when a batch finished with failed dates.
var ErrBatchFailed = errors.New("batch finished with failures")

var configPath string

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "timeline",
		Short:         "Curate a dated timeline of historical events",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", infraconfig.GetConfigPath(defaultConfigPath), "config file")

	root.AddCommand(
		newServeCommand(),
		newCurateCommand(),
		newDedupeCommand(),
		newRecordsCommand(),
		newClustersCommand(),
		newExportCommand(),
		newNightlyCommand(),
		newStatusCommand(),
	)
	return root
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return NewRootCommand().ExecuteContext(ctx)
}

// withApp loads configuration, wires the application and runs fn with it.
func withApp(ctx context.Context, fn func(*bootstrap.App) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer app.Close()

	return fn(app)
}

func loadConfig() (*config.Config, logger.Logger, error) {
	cfg, err := bootstrap.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := bootstrap.CreateLogger(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

// dateRange holds the --start and --end flags shared by batch commands.
type dateRange struct {
	start string
	end   string
}

func (r *dateRange) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.start, "start", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&r.end, "end", "", "last date, inclusive (defaults to --start)")
	_ = cmd.MarkFlagRequired("start")
}

func (r *dateRange) bounds() (string, string) {
	if r.end == "" {
		return r.start, r.start
	}
	return r.start, r.end
}

func (r *dateRange) dates() ([]string, error) {
	start, end := r.bounds()
	return domain.DateRange(start, end)
}
