// Package judge holds the judgment and generation collaborators: the strict
// verdict type the selector consumes, the completion transports, and the
// lenient parsing that turns model output into verdicts.
package judge

import (
	"context"

	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// Outcome tags a Verdict.
type Outcome int

const (
	// OutcomeError means the judge could not be reached or its answer could
	// not be parsed.
	OutcomeError Outcome = iota
	OutcomeSuccess
	OutcomeNoMatches
)

// Verdict is the validated result of one judge call. IDs are raw values as
// returned by the judge; attribution to candidates happens in the selector.
type Verdict struct {
	Outcome Outcome
	IDs     []string
	Reason  string
}

// Success builds a verdict with at least one id. An empty list yields
// NoMatches.
func Success(ids []string) Verdict {
	if len(ids) == 0 {
		return NoMatches()
	}
	return Verdict{Outcome: OutcomeSuccess, IDs: ids}
}

// NoMatches is a judge's explicit "nothing relevant" answer.
func NoMatches() Verdict {
	return Verdict{Outcome: OutcomeNoMatches}
}

// Failed is a degraded vote carrying the failure reason.
func Failed(reason string) Verdict {
	return Verdict{Outcome: OutcomeError, Reason: reason}
}

// Status maps the outcome onto the persisted verdict status.
func (v Verdict) Status() domain.VerdictStatus {
	switch v.Outcome {
	case OutcomeSuccess:
		return domain.VerdictSuccess
	case OutcomeNoMatches:
		return domain.VerdictNoMatches
	default:
		return domain.VerdictError
	}
}

// RelevanceJudge selects the candidates describing an event that happened on
// date. Implementations never return a Go error; failures become Failed.
type RelevanceJudge interface {
	Name() string
	JudgeRelevance(ctx context.Context, date string, docs []domain.CandidateDocument) Verdict
}

// TieBreaker picks one document among agreed candidates using a priority
// rubric.
type TieBreaker interface {
	BreakTie(ctx context.Context, date string, docs []domain.CandidateDocument, rubric []string) Verdict
}

// DuplicateJudge returns the indices of candidateTexts describing the same
// specific event as sourceText.
type DuplicateJudge interface {
	JudgeDuplicates(ctx context.Context, sourceText string, candidateTexts []string) ([]int, error)
}

// Constraints are passed to the generation collaborator alongside the prompt.
type Constraints struct {
	MinLength int
	MaxLength int
}

// TextGenerator produces text for a prompt.
type TextGenerator interface {
	GenerateText(ctx context.Context, prompt string, c Constraints) (string, error)
}

// Completer is the raw model transport shared by every collaborator.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
