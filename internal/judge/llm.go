package judge

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
)

// LLMJudge implements RelevanceJudge and TieBreaker over a Completer.
type LLMJudge struct {
	name      string
	completer Completer
	log       logger.Logger
}

// NewLLMJudge creates a judge identified by name in persisted verdicts.
func NewLLMJudge(name string, completer Completer, log logger.Logger) *LLMJudge {
	return &LLMJudge{
		name:      name,
		completer: completer,
		log:       logger.Component(log, "judge").With(logger.String("judge", name)),
	}
}

// Name implements RelevanceJudge.
func (j *LLMJudge) Name() string {
	return j.name
}

// JudgeRelevance implements RelevanceJudge.
func (j *LLMJudge) JudgeRelevance(ctx context.Context, date string, docs []domain.CandidateDocument) Verdict {
	if len(docs) == 0 {
		return NoMatches()
	}
	return j.ask(ctx, relevanceSystem, relevancePrompt(date, docs), date)
}

// BreakTie implements TieBreaker.
func (j *LLMJudge) BreakTie(ctx context.Context, date string, docs []domain.CandidateDocument, rubric []string) Verdict {
	return j.ask(ctx, tieBreakSystem, tieBreakPrompt(date, docs, rubric), date)
}

func (j *LLMJudge) ask(ctx context.Context, system, prompt, date string) Verdict {
	out, err := j.completer.Complete(ctx, system, prompt)
	if err != nil {
		j.log.Warn("Judge call failed", logger.String("date", date), logger.Error(err))
		return Failed(err.Error())
	}

	v := ParseSelection(out)
	if v.Outcome == OutcomeError {
		j.log.Warn("Judge returned malformed output",
			logger.String("date", date),
			logger.String("reason", v.Reason),
		)
	}
	return v
}

// LLMDuplicateJudge implements DuplicateJudge over a Completer.
type LLMDuplicateJudge struct {
	completer Completer
}

// NewLLMDuplicateJudge creates a duplicate judge.
func NewLLMDuplicateJudge(completer Completer) *LLMDuplicateJudge {
	return &LLMDuplicateJudge{completer: completer}
}

// JudgeDuplicates implements DuplicateJudge.
func (d *LLMDuplicateJudge) JudgeDuplicates(ctx context.Context, sourceText string, candidateTexts []string) ([]int, error) {
	if len(candidateTexts) == 0 {
		return nil, nil
	}
	out, err := d.completer.Complete(ctx, duplicateSystem, duplicatePrompt(sourceText, candidateTexts))
	if err != nil {
		return nil, fmt.Errorf("duplicate judge: %w", err)
	}
	return ParseIndices(out)
}

// LLMTextGenerator implements TextGenerator over a Completer.
type LLMTextGenerator struct {
	completer Completer
}

// NewLLMTextGenerator creates a text generator.
func NewLLMTextGenerator(completer Completer) *LLMTextGenerator {
	return &LLMTextGenerator{completer: completer}
}

// GenerateText implements TextGenerator. The constraints are already stated
// in prompt; they are repeated in the system turn.
func (g *LLMTextGenerator) GenerateText(ctx context.Context, prompt string, c Constraints) (string, error) {
	system := fmt.Sprintf("%s Every entry is between %d and %d characters long.", generatorSystem, c.MinLength, c.MaxLength)
	out, err := g.completer.Complete(ctx, system, prompt)
	if err != nil {
		return "", fmt.Errorf("generate text: %w", err)
	}
	return CleanGenerated(out), nil
}
