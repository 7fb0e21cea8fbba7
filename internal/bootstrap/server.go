package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	infragin "github.com/jonesrussell/north-cloud/timeline/infrastructure/gin"
	"github.com/jonesrussell/north-cloud/timeline/internal/api"
)

const healthCheckTimeout = 3 * time.Second

// SetupHTTPServer builds the HTTP server with health checks for every
// configured backend.
func SetupHTTPServer(a *App) *infragin.Server {
	cfg := a.Config
	handler := api.NewHandler(a.Pipeline, a.Duplicates, a.Log).WithEvents(a.Events)

	builder := infragin.NewServerBuilder(cfg.Service.Name, cfg.Server.Port).
		WithLogger(a.Log).
		WithHost(cfg.Server.Host).
		WithDebug(cfg.Server.Debug).
		WithVersion(cfg.Service.Version).
		WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout).
		WithMetrics().
		WithHealthCheck("database", withTimeout(a.DB.PingContext))

	if a.Redis != nil {
		builder = builder.WithHealthCheck("redis", withTimeout(func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		}))
	}
	if a.ES != nil {
		builder = builder.WithHealthCheck("elasticsearch", withTimeout(func(ctx context.Context) error {
			res, err := a.ES.Ping(a.ES.Ping.WithContext(ctx))
			if err != nil {
				return err
			}
			defer func() { _ = res.Body.Close() }()
			if res.IsError() {
				return fmt.Errorf("ping returned %s", res.Status())
			}
			return nil
		}))
	}
	if a.Judges.Sidecar != nil {
		builder = builder.WithHealthCheck("sidecar", withTimeout(a.Judges.Sidecar.Health))
	}

	return builder.
		WithRoutes(func(router *gin.Engine) {
			api.SetupRoutes(router, handler, cfg.Auth.JWTSecret)
		}).
		Build()
}

func withTimeout(ping func(context.Context) error) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
		defer cancel()
		return ping(ctx)
	}
}
