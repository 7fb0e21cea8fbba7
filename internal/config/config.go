// Package config holds the timeline service configuration.
package config

import (
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/circuitbreaker"
	infraconfig "github.com/jonesrussell/north-cloud/timeline/infrastructure/config"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/profiling"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/timeline/internal/consensus"
	"github.com/jonesrussell/north-cloud/timeline/internal/domain"
	"github.com/jonesrussell/north-cloud/timeline/internal/duplicates"
	"github.com/jonesrussell/north-cloud/timeline/internal/generator"
	"github.com/jonesrussell/north-cloud/timeline/internal/pipeline"
	"github.com/jonesrussell/north-cloud/timeline/internal/retriever"
)

// Completion providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderSidecar   = "sidecar"
)

const (
	defaultServiceName      = "timeline"
	defaultServiceVersion   = "1.0.0"
	defaultModel            = "claude-sonnet-4-5"
	defaultJudgeAName       = "judgeA"
	defaultJudgeBName       = "judgeB"
	defaultCompletionTO     = 60 * time.Second
	defaultRequestsPerSec   = 2.0
	defaultBurst            = 2
	defaultNewsTimeout      = 20 * time.Second
	defaultCronSchedule     = "0 3 * * *"
	defaultRubricPath       = "rubric.yml"
	defaultBreakerFailures  = 5
	defaultBreakerSuccesses = 2
	defaultBreakerTimeout   = 30 * time.Second
)

// Config holds all configuration for the timeline service.
type Config struct {
	Service       ServiceConfig                   `yaml:"service"`
	Server        infraconfig.ServerConfig        `yaml:"server"`
	Database      infraconfig.DatabaseConfig      `yaml:"database"`
	Elasticsearch infraconfig.ElasticsearchConfig `yaml:"elasticsearch"`
	Redis         infraconfig.RedisConfig         `yaml:"redis"`
	Logging       logger.Config                   `yaml:"logging"`
	Profiling     profiling.Config                `yaml:"profiling"`
	Auth          AuthConfig                      `yaml:"auth"`
	Retriever     RetrieverConfig                 `yaml:"retriever"`
	Completion    CompletionConfig                `yaml:"completion"`
	Consensus     ConsensusConfig                 `yaml:"consensus"`
	Generator     generator.Config                `yaml:"generator"`
	Duplicates    DuplicatesConfig                `yaml:"duplicates"`
	Pipeline      pipeline.Config                 `yaml:"pipeline"`
	Cron          CronConfig                      `yaml:"cron"`
}

// ServiceConfig identifies the service.
type ServiceConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// AuthConfig holds authentication configuration. An empty secret leaves the
// API unauthenticated.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET" yaml:"jwt_secret"`
}

// RetrieverConfig selects the search collaborators and the per-tier queries.
type RetrieverConfig struct {
	Archive ArchiveConfig                       `yaml:"archive"`
	News    NewsConfig                          `yaml:"news"`
	Tiers   map[domain.Tier]retriever.TierQuery `yaml:"tiers"`
}

// ArchiveConfig enables the Elasticsearch archive searcher.
type ArchiveConfig struct {
	Enabled bool `env:"ARCHIVE_ENABLED" yaml:"enabled"`
}

// NewsConfig enables the RSS news searcher.
type NewsConfig struct {
	Enabled     bool          `env:"NEWS_ENABLED" yaml:"enabled"`
	URLTemplate string        `yaml:"url_template"`
	Timeout     time.Duration `yaml:"timeout"`
}

// CompletionConfig configures the model transport shared by the judges and
// the generator.
type CompletionConfig struct {
	Provider          string                `env:"COMPLETION_PROVIDER" yaml:"provider"`
	APIKey            string                `env:"ANTHROPIC_API_KEY"   yaml:"api_key"`
	BaseURL           string                `env:"ANTHROPIC_BASE_URL"  yaml:"base_url"`
	SidecarURL        string                `env:"SIDECAR_URL"         yaml:"sidecar_url"`
	Timeout           time.Duration         `yaml:"timeout"`
	RequestsPerSecond float64               `yaml:"requests_per_second"`
	Burst             int                   `yaml:"burst"`
	Retry             retry.Config          `yaml:"retry"`
	Breaker           circuitbreaker.Config `yaml:"breaker"`
}

// JudgeConfig names one judge and the model it runs on.
type JudgeConfig struct {
	Name        string  `yaml:"name"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
}

// ConsensusConfig configures selection.
type ConsensusConfig struct {
	JudgeA           JudgeConfig        `yaml:"judge_a"`
	JudgeB           JudgeConfig        `yaml:"judge_b"`
	TieBreaker       JudgeConfig        `yaml:"tie_breaker"`
	TieBreakFallback consensus.Fallback `env:"TIE_BREAK_FALLBACK" yaml:"tie_break_fallback"`
	RubricPath       string             `env:"RUBRIC_PATH"        yaml:"rubric_path"`
	GeneratorModel   string             `yaml:"generator_model"`
}

// DuplicatesConfig configures duplicate detection.
type DuplicatesConfig struct {
	WindowDays int    `yaml:"window_days"`
	Model      string `yaml:"model"`
}

// CronConfig schedules the nightly run.
type CronConfig struct {
	Enabled  bool   `env:"CRON_ENABLED"  yaml:"enabled"`
	Schedule string `env:"CRON_SCHEDULE" yaml:"schedule"`
}

// Load loads configuration from path. A missing file yields defaults.
func Load(path string) (*Config, error) {
	return infraconfig.LoadWithDefaults[Config](path, setDefaults)
}

func setDefaults(cfg *Config) {
	if cfg.Service.Name == "" {
		cfg.Service.Name = defaultServiceName
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = defaultServiceVersion
	}
	cfg.Server.SetDefaults()
	cfg.Database.SetDefaults()
	cfg.Elasticsearch.SetDefaults()
	cfg.Redis.SetDefaults()
	cfg.Logging.SetDefaults()
	cfg.Generator.SetDefaults()
	cfg.Pipeline.SetDefaults()
	setRetrieverDefaults(&cfg.Retriever)
	setCompletionDefaults(&cfg.Completion)
	setConsensusDefaults(&cfg.Consensus)

	if cfg.Duplicates.WindowDays == 0 {
		cfg.Duplicates.WindowDays = duplicates.DefaultWindowDays
	}
	if cfg.Duplicates.Model == "" {
		cfg.Duplicates.Model = defaultModel
	}
	if cfg.Cron.Schedule == "" {
		cfg.Cron.Schedule = defaultCronSchedule
	}
}

func setRetrieverDefaults(r *RetrieverConfig) {
	if r.News.URLTemplate == "" {
		r.News.URLTemplate = retriever.DefaultNewsSearchURL
	}
	if r.News.Timeout == 0 {
		r.News.Timeout = defaultNewsTimeout
	}
	if len(r.Tiers) == 0 {
		r.Tiers = map[domain.Tier]retriever.TierQuery{
			domain.TierA: {Query: "bitcoin", Limit: retriever.DefaultTierLimit},
			domain.TierB: {Query: "cryptocurrency", Limit: retriever.DefaultTierLimit},
			domain.TierC: {Query: "blockchain OR crypto exchange", Limit: retriever.DefaultTierLimit},
		}
	}
}

func setCompletionDefaults(c *CompletionConfig) {
	if c.Provider == "" {
		c.Provider = ProviderAnthropic
	}
	if c.Timeout == 0 {
		c.Timeout = defaultCompletionTO
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = defaultRequestsPerSec
	}
	if c.Burst == 0 {
		c.Burst = defaultBurst
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultConfig()
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = defaultBreakerFailures
	}
	if c.Breaker.SuccessThreshold == 0 {
		c.Breaker.SuccessThreshold = defaultBreakerSuccesses
	}
	if c.Breaker.Timeout == 0 {
		c.Breaker.Timeout = defaultBreakerTimeout
	}
}

func setConsensusDefaults(c *ConsensusConfig) {
	setJudgeDefaults(&c.JudgeA, defaultJudgeAName)
	setJudgeDefaults(&c.JudgeB, defaultJudgeBName)
	setJudgeDefaults(&c.TieBreaker, consensus.TieBreakerName)
	if c.TieBreakFallback == "" {
		c.TieBreakFallback = consensus.FallbackFirst
	}
	if c.RubricPath == "" {
		c.RubricPath = defaultRubricPath
	}
	if c.GeneratorModel == "" {
		c.GeneratorModel = defaultModel
	}
}

func setJudgeDefaults(j *JudgeConfig, name string) {
	if j.Name == "" {
		j.Name = name
	}
	if j.Model == "" {
		j.Model = defaultModel
	}
}

// Validate checks the configuration for values the service cannot start
// with.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := infraconfig.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}

	switch c.Completion.Provider {
	case ProviderAnthropic:
		if c.Completion.APIKey == "" {
			return &infraconfig.ValidationError{Field: "completion.api_key", Message: "is required for the anthropic provider"}
		}
	case ProviderSidecar:
		if c.Completion.SidecarURL == "" {
			return &infraconfig.ValidationError{Field: "completion.sidecar_url", Message: "is required for the sidecar provider"}
		}
	default:
		return &infraconfig.ValidationError{Field: "completion.provider", Message: "must be anthropic or sidecar"}
	}

	if c.Consensus.JudgeA.Name == c.Consensus.JudgeB.Name {
		return &infraconfig.ValidationError{Field: "consensus.judge_b.name", Message: "must differ from judge_a.name"}
	}
	if c.Consensus.TieBreakFallback != consensus.FallbackFirst && c.Consensus.TieBreakFallback != consensus.FallbackNone {
		return &infraconfig.ValidationError{Field: "consensus.tie_break_fallback", Message: "must be first or none"}
	}

	if c.Generator.MinLength <= 0 || c.Generator.MinLength > c.Generator.MaxLength {
		return &infraconfig.ValidationError{
			Field:   "generator.min_length",
			Message: fmt.Sprintf("must be positive and at most max_length (%d)", c.Generator.MaxLength),
		}
	}
	if c.Generator.MaxRounds < 0 {
		return &infraconfig.ValidationError{Field: "generator.max_rounds", Message: "must not be negative"}
	}

	if c.Pipeline.CurateConcurrency < 1 || c.Pipeline.DedupeConcurrency < 1 {
		return &infraconfig.ValidationError{Field: "pipeline", Message: "concurrency must be at least 1"}
	}
	if c.Duplicates.WindowDays < 1 {
		return &infraconfig.ValidationError{Field: "duplicates.window_days", Message: "must be at least 1"}
	}
	if !c.Retriever.Archive.Enabled && !c.Retriever.News.Enabled {
		return &infraconfig.ValidationError{Field: "retriever", Message: "enable at least one of archive or news"}
	}
	for tier := range c.Retriever.Tiers {
		if tier != domain.TierA && tier != domain.TierB && tier != domain.TierC {
			return &infraconfig.ValidationError{Field: "retriever.tiers", Message: fmt.Sprintf("unknown tier %q", tier)}
		}
	}
	return nil
}
