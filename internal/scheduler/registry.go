package scheduler

import (
	"sync"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// Job classes.
const (
	JobCurate = "curate"
	JobDedupe = "dedupe"
)

// Registry holds one Scheduler per job class so runs of different classes
// proceed independently.
type Registry struct {
	mu         sync.Mutex
	schedulers map[string]*Scheduler
	rec        Recorder
	log        logger.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(rec Recorder, log logger.Logger) *Registry {
	return &Registry{schedulers: make(map[string]*Scheduler), rec: rec, log: log}
}

// Get returns the scheduler for job, creating it on first use.
func (r *Registry) Get(job string) *Scheduler {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.schedulers[job]
	if !ok {
		s = New(job, r.rec, r.log)
		r.schedulers[job] = s
	}
	return s
}

// Collect drains results into a slice.
func Collect(results <-chan ItemResult) []ItemResult {
	out := make([]ItemResult, 0, cap(results))
	for r := range results {
		out = append(out, r)
	}
	return out
}

// Summarize aggregates a run. Success means every item ran and none failed.
func Summarize(results []ItemResult) domain.BatchResult {
	res := domain.BatchResult{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Skipped:
			res.Remaining = append(res.Remaining, r.Item)
		case r.Err != nil:
			res.Processed++
			res.Failed++
		default:
			res.Processed++
			res.Succeeded++
		}
	}
	res.StoppedEarly = len(res.Remaining) > 0
	domain.SortDates(res.Remaining)
	res.Success = !res.StoppedEarly && res.Failed == 0
	return res
}
