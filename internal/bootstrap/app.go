// Package bootstrap wires configuration, storage, model transports and the
// curation pipeline into a runnable application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/profiling"
	infraredis "github.com/jonesrussell/north-cloud/timeline/infrastructure/redis"
	"github.com/jonesrussell/north-cloud/timeline/infrastructure/sse"
	"github.com/jonesrussell/north-cloud/timeline/internal/api"
	"github.com/jonesrussell/north-cloud/timeline/internal/coalescer"
	"github.com/jonesrussell/north-cloud/timeline/internal/config"
	"github.com/jonesrussell/north-cloud/timeline/internal/consensus"
	"github.com/jonesrussell/north-cloud/timeline/internal/database"
	"github.com/jonesrussell/north-cloud/timeline/internal/duplicates"
	"github.com/jonesrussell/north-cloud/timeline/internal/generator"
	"github.com/jonesrussell/north-cloud/timeline/internal/pipeline"
	"github.com/jonesrussell/north-cloud/timeline/internal/rubric"
	"github.com/jonesrussell/north-cloud/timeline/internal/scheduler"
	"github.com/jonesrussell/north-cloud/timeline/internal/telemetry"
)

// App holds the wired application.
type App struct {
	Config     *config.Config
	Log        logger.Logger
	DB         *sqlx.DB
	Redis      *redis.Client
	ES         *es.Client
	Telemetry  *telemetry.Provider
	Judges     *Judges
	Rubric     *rubric.Rubric
	Records    *database.RecordRepository
	Edges      *database.EdgeRepository
	Duplicates *duplicates.Service
	Pipeline   *pipeline.Service
	Events     sse.Broker

	profiler *profiling.Profiler
}

// New wires the application. On error, whatever was opened is closed.
func New(ctx context.Context, cfg *config.Config, log logger.Logger) (app *App, err error) {
	app = &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			app.Close()
			app = nil
		}
	}()

	// Phase 0: profiling
	app.profiler, err = profiling.Start(cfg.Service.Name, cfg.Service.Version, cfg.Profiling)
	if err != nil {
		return app, fmt.Errorf("failed to start profiler: %w", err)
	}

	// Phase 1: storage
	app.DB, err = database.Open(ctx, cfg.Database)
	if err != nil {
		return app, err
	}
	if err = database.EnsureSchema(ctx, app.DB); err != nil {
		return app, err
	}
	app.Records = database.NewRecordRepository(app.DB)
	app.Edges = database.NewEdgeRepository(app.DB, app.Records)
	log.Info("Database connection established", logger.String("driver", cfg.Database.Driver))

	if cfg.Redis.Enabled {
		app.Redis, err = infraredis.NewClient(ctx, infraredis.Config{
			Address:         cfg.Redis.Address,
			Password:        cfg.Redis.Password,
			DB:              cfg.Redis.DB,
			PoolSize:        cfg.Redis.PoolSize,
			ConnectAttempts: cfg.Redis.ConnectAttempts,
		})
		if err != nil {
			return app, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("Redis connection established", logger.String("address", cfg.Redis.Address))
	}

	// Phase 2: collaborators
	app.Telemetry = telemetry.NewProvider()

	retr, esClient, err := setupRetriever(ctx, cfg, app.Telemetry, log)
	if err != nil {
		return app, err
	}
	app.ES = esClient

	app.Judges = newJudges(cfg, app.Telemetry, log)

	app.Rubric, err = rubric.New(cfg.Consensus.RubricPath, log)
	if err != nil {
		return app, fmt.Errorf("failed to load rubric: %w", err)
	}

	selector, err := consensus.New(consensus.Config{
		JudgeA:     app.Judges.JudgeA,
		JudgeB:     app.Judges.JudgeB,
		TieBreaker: app.Judges.TieBreaker,
		Rubric:     app.Rubric,
		Fallback:   cfg.Consensus.TieBreakFallback,
		Recorder:   app.Telemetry,
		Logger:     log,
	})
	if err != nil {
		return app, fmt.Errorf("failed to create selector: %w", err)
	}

	gen := generator.New(app.Judges.Text, cfg.Generator, log, generator.WithRecorder(app.Telemetry))

	detector := duplicates.NewDetector(app.Records, app.Judges.Duplicate, cfg.Duplicates.WindowDays, log)
	app.Duplicates = duplicates.NewService(detector, app.Edges, app.Telemetry, log)

	// Phase 3: pipeline
	app.Events = sse.NewBroker(log)
	if err = app.Events.Start(ctx); err != nil {
		return app, fmt.Errorf("failed to start event broker: %w", err)
	}

	app.Pipeline = pipeline.New(pipeline.Deps{
		Retriever:  retr,
		Selector:   selector,
		Describer:  gen,
		Records:    app.Records,
		Duplicates: app.Duplicates,
		Coalescer:  coalescer.New[pipeline.Selection](app.selectionCache(), app.Telemetry, log),
		Schedulers: scheduler.NewRegistry(app.Telemetry, log),
		Notifier:   api.NewEventStream(app.Events, log),
		Tracer:     app.Telemetry.Tracer,
		Logger:     log,
	}, cfg.Pipeline)

	return app, nil
}

func (a *App) selectionCache() coalescer.Cache[pipeline.Selection] {
	if a.Redis != nil {
		return coalescer.NewRedisCache[pipeline.Selection](a.Redis, coalescer.DefaultKeyPrefix)
	}
	return coalescer.NewMemoryCache[pipeline.Selection]()
}

// WatchRubric reloads the rubric on file changes until ctx is done.
func (a *App) WatchRubric(ctx context.Context) {
	go func() {
		if err := a.Rubric.Watch(ctx); err != nil {
			a.Log.Warn("Rubric watch stopped", logger.Error(err))
		}
	}()
}

// Close releases every opened resource.
func (a *App) Close() {
	var errs []error
	if a.Events != nil {
		errs = append(errs, a.Events.Stop())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.profiler != nil {
		errs = append(errs, a.profiler.Stop())
	}
	if err := errors.Join(errs...); err != nil {
		a.Log.Error("Failed to close resources", logger.Error(err))
	}
}
