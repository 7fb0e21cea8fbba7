// Package scheduler runs batch work over dates with bounded concurrency,
// cooperative stop and lock-free progress reporting.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// ErrConflict is returned when a run is requested for a job class that is
// already running. The existing run is unaffected.
var ErrConflict = errors.New("a run of this job class is already in progress")

// Worker processes one item.
type Worker func(ctx context.Context, item string) error

// ItemResult is emitted once per item of a run. Skipped items were never
// started because the run stopped first.
type ItemResult struct {
	Item     string
	Err      error
	Skipped  bool
	Duration time.Duration
}

// Recorder observes scheduler activity.
type Recorder interface {
	InFlight(job string, n int)
	ItemFinished(job string, err error, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) InFlight(string, int) {}
func (nopRecorder) ItemFinished(string, error, time.Duration) {}

// Scheduler runs one batch at a time for a job class.
type Scheduler struct {
	job string
	rec Recorder
	log logger.Logger

	running       atomic.Bool
	stopRequested atomic.Bool
	total         atomic.Int64
	processed     atomic.Int64

	mu       sync.Mutex
	inFlight map[string]time.Time
}

// New creates a Scheduler for job. rec may be nil.
func New(job string, rec Recorder, log logger.Logger) *Scheduler {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Scheduler{
		job:      job,
		rec:      rec,
		log:      logger.Component(log, "scheduler").With(logger.String("job", job)),
		inFlight: make(map[string]time.Time),
	}
}

// Run starts processing items with at most maxConcurrency workers and
// returns a channel that receives one result per distinct item and is closed
// when the run ends. Duplicate items are processed once.
func (s *Scheduler) Run(ctx context.Context, items []string, maxConcurrency int, worker Worker) (<-chan ItemResult, error) {
	if worker == nil {
		return nil, errors.New("worker cannot be nil")
	}
	items = unique(items)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no items to schedule", domain.ErrEmptyInput)
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrConflict
	}

	s.stopRequested.Store(false)
	s.processed.Store(0)
	s.total.Store(int64(len(items)))

	results := make(chan ItemResult, len(items))
	go s.dispatch(ctx, items, maxConcurrency, worker, results)

	s.log.Info("Batch started",
		logger.Int("items", len(items)),
		logger.Int("max_concurrency", maxConcurrency),
	)
	return results, nil
}

func (s *Scheduler) dispatch(ctx context.Context, items []string, maxConcurrency int, worker Worker, results chan<- ItemResult) {
	defer func() {
		s.running.Store(false)
		close(results)
	}()

	slots := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	next := 0

	for ; next < len(items); next++ {
		if s.shouldStop(ctx) {
			break
		}
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		if s.shouldStop(ctx) {
			<-slots
			break
		}

		item := s.enter(items[next])
		wg.Add(1)
		go func() {
			defer func() {
				<-slots
				wg.Done()
			}()

			start := time.Now()
			err := safeRun(ctx, worker, item)
			d := time.Since(start)

			s.leave(item)
			s.processed.Add(1)
			s.rec.ItemFinished(s.job, err, d)
			if err != nil {
				s.log.Warn("Batch item failed", logger.String("item", item), logger.Error(err))
			}
			results <- ItemResult{Item: item, Err: err, Duration: d}
		}()
	}

	wg.Wait()

	for _, item := range items[next:] {
		results <- ItemResult{Item: item, Skipped: true}
	}

	s.log.Info("Batch finished",
		logger.Int64("processed", s.processed.Load()),
		logger.Int("skipped", len(items)-next),
		logger.Bool("stop_requested", s.stopRequested.Load()),
	)
}

func (s *Scheduler) shouldStop(ctx context.Context) bool {
	return s.stopRequested.Load() || ctx.Err() != nil
}

func (s *Scheduler) enter(item string) string {
	s.mu.Lock()
	s.inFlight[item] = time.Now()
	n := len(s.inFlight)
	s.mu.Unlock()

	s.rec.InFlight(s.job, n)
	return item
}

func (s *Scheduler) leave(item string) {
	s.mu.Lock()
	delete(s.inFlight, item)
	n := len(s.inFlight)
	s.mu.Unlock()

	s.rec.InFlight(s.job, n)
}

func safeRun(ctx context.Context, worker Worker, item string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panicked on %s: %v", item, r)
		}
	}()
	return worker(ctx, item)
}

// RequestStop asks the current run to stop at its next scheduling point.
// In-flight items finish. It reports whether a run was active.
func (s *Scheduler) RequestStop() bool {
	if !s.running.Load() {
		return false
	}
	s.stopRequested.Store(true)
	s.log.Info("Stop requested")
	return true
}

// Status returns the current progress without blocking.
func (s *Scheduler) Status() domain.JobProgress {
	total := s.total.Load()
	processed := s.processed.Load()
	// Counters are read independently; a read racing a new run can pair the
	// old total with the new count.
	if processed > total {
		processed = total
	}
	return domain.JobProgress{
		Total:         total,
		Processed:     processed,
		IsRunning:     s.running.Load(),
		StopRequested: s.stopRequested.Load(),
	}
}

// InFlight returns the number of items currently being processed.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

func unique(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
