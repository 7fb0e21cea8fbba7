package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/scheduler"
)

// Run is a batch started in the background. Done receives the summary once
// and is then closed.
type Run struct {
	ID   string
	Job  string
	Done <-chan domain.BatchResult
}

// JobStatus combines live progress with the summary of the last finished run.
type JobStatus struct {
	Job      string              `json:"job"`
	Progress domain.JobProgress  `json:"progress"`
	RunID    string              `json:"run_id,omitempty"`
	Last     *domain.BatchResult `json:"last_result,omitempty"`
}

type runHistory struct {
	mu      sync.RWMutex
	current map[string]string
	last    map[string]domain.BatchResult
}

func newRunHistory() *runHistory {
	return &runHistory{current: map[string]string{}, last: map[string]domain.BatchResult{}}
}

func (h *runHistory) start(job, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current[job] = id
}

func (h *runHistory) finish(job string, res domain.BatchResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.last[job] = res
}

func (h *runHistory) get(job string) (string, *domain.BatchResult) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	id := h.current[job]
	if res, ok := h.last[job]; ok {
		return id, &res
	}
	return id, nil
}

// StartCurate curates dates in the background. It returns
// scheduler.ErrConflict when a curate run is already in progress.
func (s *Service) StartCurate(ctx context.Context, dates []string) (*Run, error) {
	return s.start(ctx, scheduler.JobCurate, dates, s.cfg.CurateConcurrency, func(ctx context.Context, date string) error {
		_, err := s.CurateDate(ctx, date)
		return err
	})
}

// StartDedupe analyzes the duplicate window of each date in the background.
func (s *Service) StartDedupe(ctx context.Context, dates []string) (*Run, error) {
	if s.deps.Duplicates == nil {
		return nil, ErrDuplicatesDisabled
	}
	return s.start(ctx, scheduler.JobDedupe, dates, s.cfg.DedupeConcurrency, func(ctx context.Context, date string) error {
		_, err := s.deps.Duplicates.AnalyzeWindow(ctx, date)
		return err
	})
}

// CurateRange curates dates and waits for the summary.
func (s *Service) CurateRange(ctx context.Context, dates []string) (domain.BatchResult, error) {
	run, err := s.StartCurate(ctx, dates)
	if err != nil {
		return domain.BatchResult{}, err
	}
	return <-run.Done, nil
}

// DedupeRange analyzes the windows of dates and waits for the summary.
func (s *Service) DedupeRange(ctx context.Context, dates []string) (domain.BatchResult, error) {
	run, err := s.StartDedupe(ctx, dates)
	if err != nil {
		return domain.BatchResult{}, err
	}
	return <-run.Done, nil
}

func (s *Service) start(ctx context.Context, job string, dates []string, concurrency int, worker scheduler.Worker) (*Run, error) {
	if err := domain.ValidateDates(dates); err != nil {
		return nil, err
	}
	sorted := append([]string(nil), dates...)
	domain.SortDates(sorted)

	results, err := s.deps.Schedulers.Get(job).Run(ctx, sorted, concurrency, worker)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	s.runs.start(job, id)
	s.deps.Notifier.BatchStarted(job, id, len(sorted))
	s.log.Info("Batch run started",
		logger.String("job", job),
		logger.String("run_id", id),
		logger.Int("dates", len(sorted)),
	)

	done := make(chan domain.BatchResult, 1)
	go func() {
		defer close(done)
		items := make([]scheduler.ItemResult, 0, len(sorted))
		for item := range results {
			items = append(items, item)
			s.deps.Notifier.ItemFinished(job, id, item)
		}
		res := scheduler.Summarize(items)
		res.RunID = id
		s.runs.finish(job, res)
		s.deps.Notifier.BatchFinished(job, res)
		s.log.Info("Batch run finished",
			logger.String("job", job),
			logger.String("run_id", id),
			logger.Int("succeeded", res.Succeeded),
			logger.Int("failed", res.Failed),
			logger.Bool("stopped_early", res.StoppedEarly),
		)
		done <- res
	}()

	return &Run{ID: id, Job: job, Done: done}, nil
}

// Stop requests the running batch of job to stop. It reports whether a run
// was active.
func (s *Service) Stop(job string) bool {
	return s.deps.Schedulers.Get(job).RequestStop()
}

// Status reports progress for job.
func (s *Service) Status(job string) JobStatus {
	id, last := s.runs.get(job)
	return JobStatus{
		Job:      job,
		Progress: s.deps.Schedulers.Get(job).Status(),
		RunID:    id,
		Last:     last,
	}
}
