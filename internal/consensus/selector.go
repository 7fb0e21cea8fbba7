// Package consensus reconciles two independent relevance judges into a
// resolution for a date.
package consensus

import (
	"context"
	"fmt"
	"sync"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/judge"
	"github.com/jonesrussell/north-cloud/timeline/internal/normalizer"
)

// Fallback decides what happens when the tie-break answer cannot be
// attributed to an agreed candidate.
type Fallback string

const (
	// FallbackFirst proposes the first agreed candidate in pool order.
	FallbackFirst Fallback = "first"
	// FallbackNone leaves the date without a proposal.
	FallbackNone Fallback = "none"
)

// Rubric supplies the ordered topic priorities given to the tie-break judge.
type Rubric interface {
	Priorities() []string
}

// StaticRubric is a fixed priority list.
type StaticRubric []string

// Priorities implements Rubric.
func (r StaticRubric) Priorities() []string { return r }

// Recorder observes selection outcomes.
type Recorder interface {
	JudgeVerdict(judgeName string, status domain.VerdictStatus)
	Selection(mode domain.ResolutionMode, fallbackUsed bool)
}

type nopRecorder struct{}

func (nopRecorder) JudgeVerdict(string, domain.VerdictStatus) {}
func (nopRecorder) Selection(domain.ResolutionMode, bool) {}

// Config configures a Selector.
type Config struct {
	JudgeA     judge.RelevanceJudge
	JudgeB     judge.RelevanceJudge
	TieBreaker judge.TieBreaker
	Rubric     Rubric
	Fallback   Fallback
	Recorder   Recorder
	Logger     logger.Logger
}

// Selector runs the two-judge consensus.
type Selector struct {
	judgeA     judge.RelevanceJudge
	judgeB     judge.RelevanceJudge
	tieBreaker judge.TieBreaker
	rubric     Rubric
	fallback   Fallback
	recorder   Recorder
	log        logger.Logger
}

// TieBreakerName keys the tie-break judge in logs and metrics.
const TieBreakerName = "tiebreak"

// New creates a Selector. Both relevance judges are required.
func New(cfg Config) (*Selector, error) {
	if cfg.JudgeA == nil || cfg.JudgeB == nil {
		return nil, fmt.Errorf("%w: two relevance judges are required", domain.ErrEmptyInput)
	}
	if cfg.JudgeA.Name() == cfg.JudgeB.Name() {
		return nil, fmt.Errorf("%w: judges must have distinct names, both are %q", domain.ErrEmptyInput, cfg.JudgeA.Name())
	}
	if cfg.Fallback == "" {
		cfg.Fallback = FallbackFirst
	}
	if cfg.Fallback != FallbackFirst && cfg.Fallback != FallbackNone {
		return nil, fmt.Errorf("unknown tie-break fallback %q", cfg.Fallback)
	}
	if cfg.Rubric == nil {
		cfg.Rubric = StaticRubric(nil)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}

	return &Selector{
		judgeA:     cfg.JudgeA,
		judgeB:     cfg.JudgeB,
		tieBreaker: cfg.TieBreaker,
		rubric:     cfg.Rubric,
		fallback:   cfg.Fallback,
		recorder:   cfg.Recorder,
		log:        logger.Component(cfg.Logger, "consensus"),
	}, nil
}

// Select asks both judges concurrently, intersects their attributed votes and
// resolves the date. Judge failures degrade to empty votes; the only error
// returned is an invalid date.
func (s *Selector) Select(ctx context.Context, date string, tiers domain.TieredCandidates) (domain.Resolution, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return domain.Resolution{}, err
	}

	pool := tiers.Pool()
	judges := []judge.RelevanceJudge{s.judgeA, s.judgeB}
	verdicts := make([]domain.JudgeVerdict, len(judges))

	var wg sync.WaitGroup
	for i, j := range judges {
		wg.Add(1)
		go func() {
			defer wg.Done()
			verdicts[i] = s.vote(ctx, j, date, pool)
		}()
	}
	wg.Wait()

	res := domain.Resolution{Verdicts: make(map[string]domain.JudgeVerdict, len(judges))}
	for i, j := range judges {
		res.Verdicts[j.Name()] = verdicts[i]
		s.recorder.JudgeVerdict(j.Name(), verdicts[i].Status)
	}
	res.Agreed = intersect(pool, verdicts[0].SelectedIDs, verdicts[1].SelectedIDs)

	switch len(res.Agreed) {
	case 0:
		res.Mode = domain.ModeNoAgreement
		res.JudgeError = verdicts[0].Status == domain.VerdictError && verdicts[1].Status == domain.VerdictError
	case 1:
		res.Mode = domain.ModeResolved
		res.SelectedDocumentID = res.Agreed[0]
		res.SelectedTier = tierOf(pool, res.Agreed[0])
	default:
		res.Mode = domain.ModeMultipleAgreement
		s.breakTie(ctx, date, pool, &res)
	}

	s.recorder.Selection(res.Mode, res.TieBreak.FallbackUsed)
	s.log.Info("Consensus selection finished",
		logger.String("date", date),
		logger.String("mode", string(res.Mode)),
		logger.Int("pool_size", len(pool)),
		logger.Strings("agreed", res.Agreed),
		logger.Bool("judge_error", res.JudgeError),
	)
	return res, nil
}

func (s *Selector) vote(ctx context.Context, j judge.RelevanceJudge, date string, pool []domain.CandidateDocument) (out domain.JudgeVerdict) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Judge panicked", logger.String("judge", j.Name()), logger.Any("panic", r))
			out = domain.JudgeVerdict{Status: domain.VerdictError, Reason: fmt.Sprintf("panic: %v", r), SelectedIDs: []string{}}
		}
	}()

	v := j.JudgeRelevance(ctx, date, pool)
	ids, misses := normalizer.ResolveAll(v.IDs, pool)
	if misses > 0 {
		s.log.Debug("Dropped unattributable judge votes",
			logger.String("judge", j.Name()),
			logger.String("date", date),
			logger.Int("dropped", misses),
		)
	}
	return domain.JudgeVerdict{
		SelectedIDs:  ids,
		Status:       v.Status(),
		Reason:       v.Reason,
		Unattributed: misses,
	}
}

func (s *Selector) breakTie(ctx context.Context, date string, pool []domain.CandidateDocument, res *domain.Resolution) {
	agreedDocs := subset(pool, res.Agreed)
	res.TieBreak.Used = true

	if s.tieBreaker != nil {
		v := s.tieBreaker.BreakTie(ctx, date, agreedDocs, s.rubric.Priorities())
		res.TieBreak.Status = v.Status()
		s.recorder.JudgeVerdict(TieBreakerName, v.Status())

		for _, raw := range v.IDs {
			if id, ok := normalizer.Resolve(raw, agreedDocs); ok {
				res.TieBreak.ChosenID = id
				res.ProposedDocumentID = id
				return
			}
		}
		s.log.Warn("Tie-break answer could not be attributed",
			logger.String("date", date),
			logger.Strings("raw", v.IDs),
			logger.String("reason", v.Reason),
		)
	}

	if s.fallback == FallbackFirst {
		res.TieBreak.FallbackUsed = true
		res.TieBreak.ChosenID = res.Agreed[0]
		res.ProposedDocumentID = res.Agreed[0]
	}
}

// intersect returns ids present in both a and b, in pool order.
func intersect(pool []domain.CandidateDocument, a, b []string) []string {
	inA := make(map[string]bool, len(a))
	for _, id := range a {
		inA[id] = true
	}
	inB := make(map[string]bool, len(b))
	for _, id := range b {
		inB[id] = true
	}

	out := []string{}
	for _, doc := range pool {
		if inA[doc.ID] && inB[doc.ID] {
			out = append(out, doc.ID)
			delete(inA, doc.ID)
		}
	}
	return out
}

func subset(pool []domain.CandidateDocument, ids []string) []domain.CandidateDocument {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make([]domain.CandidateDocument, 0, len(ids))
	for _, doc := range pool {
		if want[doc.ID] {
			out = append(out, doc)
			delete(want, doc.ID)
		}
	}
	return out
}

func tierOf(pool []domain.CandidateDocument, id string) domain.Tier {
	for _, doc := range pool {
		if doc.ID == id {
			return doc.Tier
		}
	}
	return ""
}
