// Package pipeline drives curation for a date: retrieval, coalesced
// consensus selection and description generation, persisting the record
// after each stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/coalescer"
	"github.com/jonesrussell/north-cloud/timeline/internal/database"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/generator"
	"github.com/jonesrussell/north-cloud/timeline/internal/scheduler"
)

// ErrUnknownDocument is returned when confirming a document that is not a
// candidate of the date.
var ErrUnknownDocument = errors.New("document is not a candidate for this date")

// ErrDuplicatesDisabled is returned by dedupe runs when no analyzer is set.
var ErrDuplicatesDisabled = errors.New("duplicate detection is not configured")

// Retriever fetches the candidate tiers for a date.
type Retriever interface {
	RetrieveTiers(ctx context.Context, date string) (domain.TieredCandidates, error)
}

// Selector runs consensus selection.
type Selector interface {
	Select(ctx context.Context, date string, tiers domain.TieredCandidates) (domain.Resolution, error)
}

// Describer writes the description of a selected document.
type Describer interface {
	Generate(ctx context.Context, doc domain.CandidateDocument, date string) (generator.Outcome, error)
}

// RecordStore persists daily records. Get returns database.ErrRecordNotFound
// for unknown dates.
type RecordStore interface {
	Get(ctx context.Context, date string) (*domain.DailyRecord, error)
	Put(ctx context.Context, rec *domain.DailyRecord) error
	RecordsInRange(ctx context.Context, start, end string) ([]domain.DailyRecord, error)
	SetFlag(ctx context.Context, date string, flag domain.Flag) error
}

// WindowAnalyzer re-detects duplicates around a date.
type WindowAnalyzer interface {
	AnalyzeWindow(ctx context.Context, date string) ([]domain.DuplicateEdge, error)
}

// Notifier observes batch runs as they progress.
type Notifier interface {
	BatchStarted(job, runID string, total int)
	ItemFinished(job, runID string, item scheduler.ItemResult)
	BatchFinished(job string, res domain.BatchResult)
}

type nopNotifier struct{}

func (nopNotifier) BatchStarted(string, string, int)                  {}
func (nopNotifier) ItemFinished(string, string, scheduler.ItemResult) {}
func (nopNotifier) BatchFinished(string, domain.BatchResult)          {}

// Selection is the coalesced unit of work for a date: the candidates that
// were retrieved and the consensus reached over them.
type Selection struct {
	Tiers      domain.TieredCandidates `json:"tiers"`
	Resolution domain.Resolution       `json:"resolution"`
}

// Config tunes the pipeline.
type Config struct {
	CurateConcurrency int           `yaml:"curate_concurrency"`
	DedupeConcurrency int           `yaml:"dedupe_concurrency"`
	SelectionTTL      time.Duration `yaml:"selection_ttl"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.CurateConcurrency == 0 {
		c.CurateConcurrency = 4
	}
	if c.DedupeConcurrency == 0 {
		c.DedupeConcurrency = 1
	}
	if c.SelectionTTL == 0 {
		c.SelectionTTL = 15 * time.Minute
	}
}

// Deps are the collaborators of a Service.
type Deps struct {
	Retriever  Retriever
	Selector   Selector
	Describer  Describer
	Records    RecordStore
	Duplicates WindowAnalyzer
	Coalescer  *coalescer.Coalescer[Selection]
	Schedulers *scheduler.Registry
	Notifier   Notifier
	Tracer     trace.Tracer
	Logger     logger.Logger
}

// Service orchestrates curation and dedupe runs.
type Service struct {
	deps Deps
	cfg  Config
	log  logger.Logger
	runs *runHistory
}

// New creates a Service. A nil Coalescer gets an in-memory one; a nil
// Schedulers gets a fresh registry. Notifier is optional.
func New(deps Deps, cfg Config) *Service {
	cfg.SetDefaults()
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Coalescer == nil {
		deps.Coalescer = coalescer.New[Selection](coalescer.NewMemoryCache[Selection](), nil, deps.Logger)
	}
	if deps.Schedulers == nil {
		deps.Schedulers = scheduler.NewRegistry(nil, deps.Logger)
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("timeline")
	}
	return &Service{deps: deps, cfg: cfg, log: logger.Component(deps.Logger, "pipeline"), runs: newRunHistory()}
}

func selectionKey(date string) string {
	return "selection:" + date
}

// CurateDate retrieves, selects and describes date. Stage failures are
// recorded on the returned record; only an invalid date or a storage failure
// is an error.
func (s *Service) CurateDate(ctx context.Context, date string) (*domain.DailyRecord, error) {
	return s.curate(ctx, date, false)
}

// Reanalyze drops any cached selection for date and curates it again,
// regenerating the description.
func (s *Service) Reanalyze(ctx context.Context, date string) (*domain.DailyRecord, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	if err := s.deps.Coalescer.Invalidate(ctx, selectionKey(date)); err != nil {
		s.log.Warn("Failed to invalidate cached selection", logger.String("date", date), logger.Error(err))
	}
	return s.curate(ctx, date, true)
}

func (s *Service) curate(ctx context.Context, date string, regenerate bool) (*domain.DailyRecord, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	ctx, span := s.deps.Tracer.Start(ctx, "pipeline.curate", trace.WithAttributes(attribute.String("date", date)))
	defer span.End()
	start := time.Now()

	sel, err := s.deps.Coalescer.Do(ctx, selectionKey(date), s.cfg.SelectionTTL, func(pctx context.Context) (Selection, error) {
		return s.retrieveAndSelect(pctx, date)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rec, err := s.load(ctx, date)
	if err != nil {
		return nil, err
	}
	previousDoc, previousText := rec.SelectedDocumentID, rec.GeneratedText

	rec.TieredCandidates = sel.Tiers
	rec.ApplyResolution(sel.Resolution)
	if rec.ResolutionMode == domain.ModeResolved && !regenerate && rec.SelectedDocumentID == previousDoc && previousText != "" {
		rec.GeneratedText = previousText
	} else {
		rec.GeneratedText = ""
		rec.GenerationViolation = false
	}
	if err = s.deps.Records.Put(ctx, rec); err != nil {
		return nil, err
	}

	if rec.ResolutionMode == domain.ModeResolved && rec.GeneratedText == "" {
		if err = s.describe(ctx, rec); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.String("resolution_mode", string(rec.ResolutionMode)))
	s.log.Info("Date curated",
		logger.String("date", date),
		logger.String("mode", string(rec.ResolutionMode)),
		logger.String("selected", rec.SelectedDocumentID),
		logger.Bool("generation_violation", rec.GenerationViolation),
		logger.Duration("duration", time.Since(start)),
	)
	return rec, nil
}

// retrieveAndSelect persists the candidates before selection so they survive
// a failure further down.
func (s *Service) retrieveAndSelect(ctx context.Context, date string) (Selection, error) {
	ctx, span := s.deps.Tracer.Start(ctx, "pipeline.select")
	defer span.End()

	tiers, err := s.deps.Retriever.RetrieveTiers(ctx, date)
	if err != nil {
		return Selection{}, err
	}

	rec, err := s.load(ctx, date)
	if err != nil {
		return Selection{}, err
	}
	rec.TieredCandidates = tiers
	if err = s.deps.Records.Put(ctx, rec); err != nil {
		return Selection{}, err
	}

	res, err := s.deps.Selector.Select(ctx, date, tiers)
	if err != nil {
		return Selection{}, err
	}
	span.SetAttributes(attribute.Int("candidates", tiers.Len()), attribute.String("mode", string(res.Mode)))
	return Selection{Tiers: tiers, Resolution: res}, nil
}

// describe generates and stores the description of rec's selected document.
// A failed generation leaves the text empty and flags the record.
func (s *Service) describe(ctx context.Context, rec *domain.DailyRecord) error {
	doc, ok := rec.SelectedDocument()
	if !ok {
		return nil
	}
	ctx, span := s.deps.Tracer.Start(ctx, "pipeline.generate")
	defer span.End()

	out, err := s.deps.Describer.Generate(ctx, doc, rec.Date)
	if err != nil {
		s.log.Warn("Description generation failed",
			logger.String("date", rec.Date),
			logger.String("document_id", doc.ID),
			logger.Error(err),
		)
		rec.GenerationViolation = true
	} else {
		rec.GeneratedText = out.Text
		rec.GenerationViolation = out.SoftViolation
	}
	return s.deps.Records.Put(ctx, rec)
}

// ConfirmSelection resolves date to documentID, typically after a human
// reviewed a tie-break proposal, and generates its description.
func (s *Service) ConfirmSelection(ctx context.Context, date, documentID string) (*domain.DailyRecord, error) {
	rec, err := s.deps.Records.Get(ctx, date)
	if err != nil {
		return nil, err
	}
	doc, ok := rec.TieredCandidates.Find(documentID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDocument, documentID)
	}

	rec.ApplyResolution(domain.Resolution{
		Mode:               domain.ModeResolved,
		SelectedDocumentID: doc.ID,
		SelectedTier:       doc.Tier,
		Verdicts:           rec.JudgeVerdicts,
		JudgeError:         rec.JudgeError,
		TieBreak:           rec.TieBreak,
	})
	rec.GeneratedText = ""
	rec.GenerationViolation = false
	if err = s.deps.Records.Put(ctx, rec); err != nil {
		return nil, err
	}
	if err = s.describe(ctx, rec); err != nil {
		return nil, err
	}
	if err = s.deps.Coalescer.Invalidate(ctx, selectionKey(date)); err != nil {
		s.log.Warn("Failed to invalidate cached selection", logger.String("date", date), logger.Error(err))
	}
	return rec, nil
}

// Flag marks or clears the reviewer flag of date and returns the record.
func (s *Service) Flag(ctx context.Context, date string, flag domain.Flag) (*domain.DailyRecord, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	if !flag.IsFlagged {
		flag.Reason = ""
	}
	if err := s.deps.Records.SetFlag(ctx, date, flag); err != nil {
		return nil, err
	}
	return s.deps.Records.Get(ctx, date)
}

// Record returns the stored record for date.
func (s *Service) Record(ctx context.Context, date string) (*domain.DailyRecord, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return nil, err
	}
	return s.deps.Records.Get(ctx, date)
}

// Records returns the stored records in [start, end].
func (s *Service) Records(ctx context.Context, start, end string) ([]domain.DailyRecord, error) {
	if err := domain.ValidateDates([]string{start, end}); err != nil {
		return nil, err
	}
	return s.deps.Records.RecordsInRange(ctx, start, end)
}

func (s *Service) load(ctx context.Context, date string) (*domain.DailyRecord, error) {
	rec, err := s.deps.Records.Get(ctx, date)
	if errors.Is(err, database.ErrRecordNotFound) {
		return &domain.DailyRecord{Date: date}, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}
