// Package profiling wires optional continuous profiling.
package profiling

import (
	"fmt"
	"os"
	"runtime"

	"github.com/grafana/pyroscope-go"
)

// Config controls continuous profiling.
type Config struct {
	Enabled     bool   `env:"ENABLE_CONTINUOUS_PROFILING" yaml:"enabled"`
	ServerURL   string `env:"PYROSCOPE_SERVER_URL" yaml:"server_url"`
	Environment string `env:"PYROSCOPE_ENVIRONMENT" yaml:"environment"`
}

// Profiler wraps a running pyroscope profiler.
type Profiler struct {
	profiler *pyroscope.Profiler
}

// Start begins profiling when cfg.Enabled is set. A disabled config returns
// a nil Profiler and no error; Stop is safe on nil.
func Start(serviceName, version string, cfg Config) (*Profiler, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = "http://pyroscope:4040"
	}
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "north-cloud." + serviceName,
		ServerAddress:   cfg.ServerURL,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
		Tags: map[string]string{
			"environment": cfg.Environment,
			"version":     version,
			"hostname":    hostname,
			"go_version":  runtime.Version(),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start pyroscope profiler: %w", err)
	}
	return &Profiler{profiler: p}, nil
}

// Stop flushes and stops the profiler.
func (p *Profiler) Stop() error {
	if p == nil || p.profiler == nil {
		return nil
	}
	return p.profiler.Stop()
}
