package duplicates

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/judge"
)

// DefaultWindowDays is how far either side of a date candidates are drawn from.
const DefaultWindowDays = 30

// RecordReader loads timeline records for an inclusive date range.
type RecordReader interface {
	RecordsInRange(ctx context.Context, start, end string) ([]domain.DailyRecord, error)
}

// Detector asks the duplicate judge which nearby entries repeat a date's event.
type Detector struct {
	records    RecordReader
	judge      judge.DuplicateJudge
	windowDays int
	log        logger.Logger
}

// NewDetector creates a Detector. windowDays <= 0 uses DefaultWindowDays.
func NewDetector(records RecordReader, j judge.DuplicateJudge, windowDays int, log logger.Logger) *Detector {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	return &Detector{records: records, judge: j, windowDays: windowDays, log: logger.Component(log, "duplicates")}
}

// WindowDays returns the configured window.
func (d *Detector) WindowDays() int {
	return d.windowDays
}

// DetectDuplicates returns canonical edges between date and every record in
// its window the judge considers the same event. A date with no description
// has nothing to compare and yields no edges.
func (d *Detector) DetectDuplicates(ctx context.Context, date string) ([]domain.DuplicateEdge, error) {
	start, err := domain.ShiftDate(date, -d.windowDays)
	if err != nil {
		return nil, err
	}
	end, err := domain.ShiftDate(date, d.windowDays)
	if err != nil {
		return nil, err
	}

	records, err := d.records.RecordsInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load records around %s: %w", date, err)
	}

	var source string
	candidates := make([]domain.DailyRecord, 0, len(records))
	texts := make([]string, 0, len(records))
	for i := range records {
		text := Description(&records[i])
		switch {
		case records[i].Date == date:
			source = text
		case text != "":
			candidates = append(candidates, records[i])
			texts = append(texts, text)
		}
	}
	if source == "" || len(candidates) == 0 {
		return nil, nil
	}

	indices, err := d.judge.JudgeDuplicates(ctx, source, texts)
	if err != nil {
		return nil, fmt.Errorf("duplicate judgment for %s: %w", date, err)
	}

	seen := make(map[string]bool, len(indices))
	edges := make([]domain.DuplicateEdge, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(candidates) {
			d.log.Debug("Dropped out-of-range duplicate index",
				logger.String("date", date),
				logger.Int("index", idx),
				logger.Int("candidates", len(candidates)),
			)
			continue
		}
		edge, edgeErr := domain.NewEdge(date, candidates[idx].Date)
		if edgeErr != nil || seen[edge.ID()] {
			continue
		}
		seen[edge.ID()] = true
		edges = append(edges, edge)
	}
	return edges, nil
}

// Description is the text compared for duplicates: the generated entry, or
// the selected document's title when no entry was written.
func Description(r *domain.DailyRecord) string {
	if r.GeneratedText != "" {
		return r.GeneratedText
	}
	if doc, ok := r.SelectedDocument(); ok {
		return doc.Title
	}
	return ""
}
