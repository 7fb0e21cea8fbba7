// Package http builds the pooled outbound HTTP clients used for model
// sidecars, news feeds and the control API.
package http

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
)

// ClientConfig configures an outbound client. Zero fields take defaults.
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
	// ResponseHeaderTimeout bounds the wait for headers. Zero means the
	// overall Timeout applies alone.
	ResponseHeaderTimeout time.Duration
}

// NewClient creates a client with a dedicated pooled transport.
func NewClient(cfg ClientConfig) *http.Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = DefaultMaxIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          DefaultMaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{Timeout: cfg.Timeout, Transport: transport}
}

// NewTimeoutClient is NewClient with only a timeout set.
func NewTimeoutClient(timeout time.Duration) *http.Client {
	return NewClient(ClientConfig{Timeout: timeout})
}
