package bootstrap

import (
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/internal/config"
	"github.com/jonesrussell/north-cloud/timeline/internal/judge"
	"github.com/jonesrussell/north-cloud/timeline/internal/telemetry"
)

// Judges are the model-backed collaborators of the pipeline.
type Judges struct {
	JudgeA     *judge.LLMJudge
	JudgeB     *judge.LLMJudge
	TieBreaker *judge.LLMJudge
	Duplicate  *judge.LLMDuplicateJudge
	Text       *judge.LLMTextGenerator
	// Sidecar is set for the sidecar provider, for health checks.
	Sidecar *judge.SidecarCompleter
}

// newJudges builds one guarded completer per role so every role has its own
// rate limit and circuit breaker.
func newJudges(cfg *config.Config, tel *telemetry.Provider, log logger.Logger) *Judges {
	cc := cfg.Completion
	guard := judge.GuardConfig{
		RequestsPerSecond: cc.RequestsPerSecond,
		Burst:             cc.Burst,
		Timeout:           cc.Timeout,
		Retry:             cc.Retry,
		Breaker:           cc.Breaker,
	}

	var sidecar *judge.SidecarCompleter
	if cc.Provider == config.ProviderSidecar {
		sidecar = judge.NewSidecarCompleter(cc.SidecarURL, cc.Timeout)
	}

	completer := func(name, model string, temperature float64) judge.Completer {
		var inner judge.Completer
		if sidecar != nil {
			inner = sidecar
		} else {
			inner = judge.NewAnthropicCompleter(judge.AnthropicConfig{
				APIKey:      cc.APIKey,
				BaseURL:     cc.BaseURL,
				Model:       model,
				Temperature: temperature,
			})
		}
		return judge.NewGuarded(name, inner, guard, log, tel.ObserveJudgeCall)
	}

	cons := cfg.Consensus
	return &Judges{
		JudgeA:     judge.NewLLMJudge(cons.JudgeA.Name, completer(cons.JudgeA.Name, cons.JudgeA.Model, cons.JudgeA.Temperature), log),
		JudgeB:     judge.NewLLMJudge(cons.JudgeB.Name, completer(cons.JudgeB.Name, cons.JudgeB.Model, cons.JudgeB.Temperature), log),
		TieBreaker: judge.NewLLMJudge(cons.TieBreaker.Name, completer(cons.TieBreaker.Name, cons.TieBreaker.Model, cons.TieBreaker.Temperature), log),
		Duplicate:  judge.NewLLMDuplicateJudge(completer("duplicates", cfg.Duplicates.Model, 0)),
		Text:       judge.NewLLMTextGenerator(completer("generator", cons.GeneratorModel, generatorTemperature)),
		Sidecar:    sidecar,
	}
}

const generatorTemperature = 0.7
