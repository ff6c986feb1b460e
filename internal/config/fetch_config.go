package config

import (
	"time"
)

// FetchConfig defines how targets are downloaded
type FetchConfig struct {
	TimeoutSeconds       int               `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" validate:"omitempty,min=1"`
	TargetTimeoutSeconds int               `json:"target_timeout_seconds,omitempty" yaml:"target_timeout_seconds,omitempty" validate:"omitempty,min=1"`
	MaxConcurrency       int               `json:"max_concurrency,omitempty" yaml:"max_concurrency,omitempty" validate:"omitempty,min=1,max=64"`
	MaxContentSize       int64             `json:"max_content_size,omitempty" yaml:"max_content_size,omitempty" validate:"omitempty,min=1"`
	MaxRedirects         int               `json:"max_redirects,omitempty" yaml:"max_redirects,omitempty" validate:"omitempty,min=0"`
	UserAgent            string            `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	BypassCache          bool              `json:"bypass_cache" yaml:"bypass_cache"`
	EnableHTTP2          bool              `json:"enable_http2" yaml:"enable_http2"`
	CustomHeaders        map[string]string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`
	Proxy                string            `json:"proxy,omitempty" yaml:"proxy,omitempty" validate:"omitempty,url"`
}

// NewDefaultFetchConfig creates default fetch configuration
func NewDefaultFetchConfig() FetchConfig {
	return FetchConfig{
		TimeoutSeconds:       DefaultFetchTimeoutSeconds,
		TargetTimeoutSeconds: DefaultFetchTargetTimeoutSeconds,
		MaxConcurrency:       DefaultFetchMaxConcurrency,
		MaxContentSize:       DefaultFetchMaxContentSize,
		MaxRedirects:         DefaultFetchMaxRedirects,
		UserAgent:            DefaultFetchUserAgent,
		BypassCache:          false,
		EnableHTTP2:          true,
		CustomHeaders:        map[string]string{},
	}
}

// Timeout is the HTTP client timeout.
func (c FetchConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultFetchTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// TargetTimeout is the whole budget of one target: fetch, normalize, diff.
func (c FetchConfig) TargetTimeout() time.Duration {
	if c.TargetTimeoutSeconds <= 0 {
		return DefaultFetchTargetTimeoutSeconds * time.Second
	}
	return time.Duration(c.TargetTimeoutSeconds) * time.Second
}

// Concurrency returns the worker pool size.
func (c FetchConfig) Concurrency() int {
	if c.MaxConcurrency <= 0 {
		return DefaultFetchMaxConcurrency
	}
	return c.MaxConcurrency
}
