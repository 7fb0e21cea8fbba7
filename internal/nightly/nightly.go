// Package nightly runs the nightly curation of the previous day.
package nightly

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/pipeline"
)

// Runner is the batch surface the nightly job drives.
type Runner interface {
	CurateRange(ctx context.Context, dates []string) (domain.BatchResult, error)
	DedupeRange(ctx context.Context, dates []string) (domain.BatchResult, error)
}

// Nightly curates yesterday and then re-analyzes its duplicate window on a
// cron schedule. Schedules use the standard five fields and run in UTC.
type Nightly struct {
	runner   Runner
	schedule cron.Schedule
	expr     string
	cron     *cron.Cron
	log      logger.Logger
	now      func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
}

// New parses the cron expression and returns a stopped Nightly.
func New(runner Runner, expr string, log logger.Logger) (*Nightly, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron expression %q: %w", expr, err)
	}

	return &Nightly{
		runner:   runner,
		schedule: schedule,
		expr:     expr,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cron.DefaultLogger)),
		),
		log: logger.Component(log, "cron"),
		now: time.Now,
	}, nil
}

// Start registers the job and starts the cron loop. Runs triggered by the
// schedule use a context derived from ctx.
func (n *Nightly) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := n.cron.AddFunc(n.expr, func() {
		if err := n.RunOnce(runCtx); err != nil {
			n.log.Error("Nightly run failed", logger.Error(err))
		}
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to schedule nightly run: %w", err)
	}

	n.cancel = cancel
	n.started = true
	n.cron.Start()
	n.log.Info("Nightly run scheduled",
		logger.String("schedule", n.expr),
		logger.Time("next_run", n.Next()),
	)
	return nil
}

// Stop cancels an in-progress run and waits for it to return.
func (n *Nightly) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return
	}
	n.cancel()
	<-n.cron.Stop().Done()
	n.started = false
	n.log.Info("Nightly run stopped")
}

// Next returns the next scheduled run time.
func (n *Nightly) Next() time.Time {
	return n.schedule.Next(n.now().UTC())
}

// Target is the date a run started now would curate.
func (n *Nightly) Target() string {
	return n.now().UTC().AddDate(0, 0, -1).Format(domain.DateLayout)
}

// RunOnce curates yesterday and then dedupes it. Dedupe is skipped when the
// curation did not succeed or duplicate detection is not configured.
func (n *Nightly) RunOnce(ctx context.Context) error {
	date := n.Target()
	start := time.Now()
	n.log.Info("Nightly run started", logger.String("date", date))

	curated, err := n.runner.CurateRange(ctx, []string{date})
	if err != nil {
		return fmt.Errorf("failed to curate %s: %w", date, err)
	}
	if !curated.Success {
		n.log.Warn("Nightly curation did not complete",
			logger.String("date", date),
			logger.Int("failed", curated.Failed),
			logger.Bool("stopped_early", curated.StoppedEarly),
		)
		return nil
	}

	deduped, err := n.runner.DedupeRange(ctx, []string{date})
	switch {
	case errors.Is(err, pipeline.ErrDuplicatesDisabled):
		n.log.Debug("Duplicate detection disabled, skipping dedupe", logger.String("date", date))
	case err != nil:
		return fmt.Errorf("failed to dedupe %s: %w", date, err)
	case !deduped.Success:
		n.log.Warn("Nightly dedupe did not complete", logger.String("date", date), logger.Int("failed", deduped.Failed))
	}

	n.log.Info("Nightly run finished",
		logger.String("date", date),
		logger.Duration("duration", time.Since(start)),
	)
	return nil
}
