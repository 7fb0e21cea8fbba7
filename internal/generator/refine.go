// Package generator produces timeline descriptions that satisfy hard format
// constraints, correcting the model until the text passes or the round budget
// is spent.
package generator

import (
	"context"
)

// Direction tells the model which way to move the length.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionExpand
	DirectionShrink
)

func (d Direction) String() string {
	switch d {
	case DirectionExpand:
		return "expand"
	case DirectionShrink:
		return "shrink"
	default:
		return "keep"
	}
}

// Check is the result of evaluating one candidate text.
type Check struct {
	Length    int
	Direction Direction
	// Distance is how many characters the text sits outside the length bound.
	Distance int
	// Problems lists every violated rule other than length.
	Problems []string
}

// OK reports whether the text satisfies every constraint.
func (c Check) OK() bool {
	return c.Distance == 0 && len(c.Problems) == 0
}

// better reports whether c is at least as close to passing as other.
func (c Check) better(other Check) bool {
	if len(c.Problems) != len(other.Problems) {
		return len(c.Problems) < len(other.Problems)
	}
	return c.Distance <= other.Distance
}

// CheckFunc evaluates a candidate text.
type CheckFunc func(text string) Check

// PromptFunc builds the corrective prompt for a failing text.
type PromptFunc func(text string, c Check) string

// ProduceFunc asks the model for a new text.
type ProduceFunc func(ctx context.Context, prompt string) (string, error)

// Outcome is the final text of a refinement.
type Outcome struct {
	Text  string
	Check Check
	// Rounds counts corrective requests issued, not including the initial
	// generation.
	Rounds int
	// SoftViolation marks a best-effort text that still breaks a constraint.
	SoftViolation bool
	// LastErr is the error that ended refinement early, if any.
	LastErr error
}

// Refine runs up to maxRounds corrective requests starting from initial. It
// stops at the first text that passes check. When the budget is spent, or a
// request fails, the closest candidate seen is returned with SoftViolation
// set; on equal closeness the later candidate wins.
func Refine(ctx context.Context, initial string, check CheckFunc, prompt PromptFunc, produce ProduceFunc, maxRounds int) Outcome {
	best := Outcome{Text: initial, Check: check(initial)}
	current, currentCheck := best.Text, best.Check

	for round := 1; round <= maxRounds && !currentCheck.OK(); round++ {
		if err := ctx.Err(); err != nil {
			best.LastErr = err
			break
		}

		next, err := produce(ctx, prompt(current, currentCheck))
		best.Rounds = round
		if err != nil {
			best.LastErr = err
			break
		}

		current, currentCheck = next, check(next)
		if currentCheck.better(best.Check) {
			best.Text, best.Check = current, currentCheck
		}
	}

	best.SoftViolation = !best.Check.OK()
	return best
}
