// Package redis opens verified go-redis clients.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/timeline/infrastructure/retry"
)

// Config holds Redis connection settings.
type Config struct {
	Address  string
	Password string
	DB       int
	// PoolSize of zero keeps the go-redis default.
	PoolSize int
	// ConnectAttempts bounds the startup ping. Values below one mean one.
	ConnectAttempts int
}

// ErrEmptyAddress is returned when Redis address is not configured.
var ErrEmptyAddress = errors.New("redis address is required")

const (
	pingTimeout      = 5 * time.Second
	connectBaseDelay = 200 * time.Millisecond
	connectMaxDelay  = 2 * time.Second
)

// NewClient connects to Redis and pings it, retrying with backoff up to
// ConnectAttempts times. The client is closed when every ping fails.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	if cfg.Address == "" {
		return nil, ErrEmptyAddress
	}
	attempts := max(cfg.ConnectAttempts, 1)

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	err := retry.Retry(ctx, retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: connectBaseDelay,
		MaxDelay:     connectMaxDelay,
		Multiplier:   2,
		IsRetryable:  func(error) bool { return true },
	}, func() error {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return client.Ping(pingCtx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}
