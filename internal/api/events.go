package api

import (
	"context"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/scheduler"
)

// EventStream publishes batch progress to SSE subscribers. It satisfies
// pipeline.Notifier.
type EventStream struct {
	pub sse.Publisher
	log logger.Logger
}

// NewEventStream creates an EventStream over pub.
func NewEventStream(pub sse.Publisher, log logger.Logger) *EventStream {
	return &EventStream{pub: pub, log: logger.Component(log, "events")}
}

// BatchStarted implements pipeline.Notifier.
func (s *EventStream) BatchStarted(job, runID string, total int) {
	s.publish(sse.NewBatchStartedEvent(job, runID, total))
}

// ItemFinished implements pipeline.Notifier.
func (s *EventStream) ItemFinished(job, runID string, item scheduler.ItemResult) {
	s.publish(sse.NewBatchItemEvent(job, runID, item.Item, item.Err, item.Skipped, item.Duration))
}

// BatchFinished implements pipeline.Notifier.
func (s *EventStream) BatchFinished(job string, res domain.BatchResult) {
	s.publish(sse.NewBatchFinishedEvent(job, sse.BatchFinishedData{
		RunID:        res.RunID,
		Success:      res.Success,
		Succeeded:    res.Succeeded,
		Failed:       res.Failed,
		StoppedEarly: res.StoppedEarly,
		Remaining:    len(res.Remaining),
	}))
}

func (s *EventStream) publish(e sse.Event) {
	if err := s.pub.Publish(context.Background(), e); err != nil {
		s.log.Debug("Dropped progress event", logger.String("type", e.Type), logger.Error(err))
	}
}
