package generator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/judge"
)

const defaultMaxSourceChars = 2000

// Config bounds generated descriptions.
type Config struct {
	MinLength      int `yaml:"min_length"`
	MaxLength      int `yaml:"max_length"`
	MaxRounds      int `yaml:"max_rounds"`
	MaxSourceChars int `yaml:"max_source_chars"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MinLength == 0 {
		c.MinLength = DefaultMinLength
	}
	if c.MaxLength == 0 {
		c.MaxLength = DefaultMaxLength
	}
	if c.MaxRounds == 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.MaxSourceChars == 0 {
		c.MaxSourceChars = defaultMaxSourceChars
	}
}

// Recorder observes finished generations.
type Recorder interface {
	Generation(rounds int, softViolation bool, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Generation(int, bool, time.Duration) {}

// Generator writes the one-line description for a selected document.
type Generator struct {
	text    judge.TextGenerator
	cfg     Config
	checker *Checker
	rec     Recorder
	log     logger.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRecorder sets the generation recorder.
func WithRecorder(r Recorder) Option {
	return func(g *Generator) {
		if r != nil {
			g.rec = r
		}
	}
}

// New creates a Generator.
func New(text judge.TextGenerator, cfg Config, log logger.Logger, opts ...Option) *Generator {
	cfg.SetDefaults()
	g := &Generator{
		text:    text,
		cfg:     cfg,
		checker: NewChecker(cfg.MinLength, cfg.MaxLength),
		rec:     nopRecorder{},
		log:     logger.Component(log, "generator"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Checker returns the constraint checker in use.
func (g *Generator) Checker() *Checker {
	return g.checker
}

// Generate produces the description of doc for date. An error is returned
// only when the initial generation fails; later failures keep the best text
// so far and mark it as a soft violation.
func (g *Generator) Generate(ctx context.Context, doc domain.CandidateDocument, date string) (Outcome, error) {
	if _, err := domain.ParseDate(date); err != nil {
		return Outcome{}, err
	}
	start := time.Now()

	initial, err := g.produce(ctx, g.initialPrompt(doc, date))
	if err != nil {
		return Outcome{}, fmt.Errorf("generate description for %s: %w", date, err)
	}

	out := Refine(ctx, initial, g.checker.Check, g.correctivePrompt, g.produce, g.cfg.MaxRounds)
	g.rec.Generation(out.Rounds, out.SoftViolation, time.Since(start))

	fields := []logger.Field{
		logger.String("date", date),
		logger.String("document_id", doc.ID),
		logger.Int("rounds", out.Rounds),
		logger.Int("length", out.Check.Length),
	}
	if out.SoftViolation {
		fields = append(fields, logger.Strings("problems", out.Check.Problems))
		if out.LastErr != nil {
			fields = append(fields, logger.Error(out.LastErr))
		}
		g.log.Warn("Description kept with constraint violation", fields...)
	} else {
		g.log.Debug("Description generated", fields...)
	}
	return out, nil
}

func (g *Generator) produce(ctx context.Context, prompt string) (string, error) {
	text, err := g.text.GenerateText(ctx, prompt, judge.Constraints{MinLength: g.cfg.MinLength, MaxLength: g.cfg.MaxLength})
	if err != nil {
		return "", err
	}
	return tidy(text), nil
}

// tidy trims whitespace and a trailing full stop, which models add out of habit.
func tidy(text string) string {
	text = strings.TrimSpace(text)
	return strings.TrimSpace(strings.TrimRight(text, "."))
}

func (g *Generator) initialPrompt(doc domain.CandidateDocument, date string) string {
	source := doc.SummaryText
	if source == "" {
		source = doc.BodyText
	}
	source = truncateRunes(source, g.cfg.MaxSourceChars)

	var b strings.Builder
	fmt.Fprintf(&b, "Write one timeline entry for the event of %s described by this article.\n\n", date)
	fmt.Fprintf(&b, "Title: %s\n", doc.Title)
	if doc.URL != "" {
		fmt.Fprintf(&b, "URL: %s\n", doc.URL)
	}
	fmt.Fprintf(&b, "Article:\n%s\n\n", source)
	b.WriteString(g.rules())
	return b.String()
}

func (g *Generator) correctivePrompt(text string, c Check) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current entry (%d characters):\n%s\n\n", c.Length, text)
	switch c.Direction {
	case DirectionExpand:
		fmt.Fprintf(&b, "It is %d characters too short. Expand it with a concrete detail from the article.\n", c.Distance)
	case DirectionShrink:
		fmt.Fprintf(&b, "It is %d characters too long. Shorten it without losing the main fact.\n", c.Distance)
	}
	for _, p := range c.Problems {
		fmt.Fprintf(&b, "Fix: %s.\n", p)
	}
	b.WriteString("\n")
	b.WriteString(g.rules())
	return b.String()
}

func (g *Generator) rules() string {
	return fmt.Sprintf(
		"Rules:\n- The entry MUST be between %d and %d characters long, spaces included.\n"+
			"- Do not mention any date, year, month, weekday or ordinal day.\n"+
			"- Use the present tense and the active voice.\n"+
			"- Do not end with punctuation.\n"+
			"Reply with the entry only.",
		g.cfg.MinLength, g.cfg.MaxLength,
	)
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
