package httpclient

import (
	"time"
)

// HTTPClientConfig holds the transport and request settings of HTTPClient
type HTTPClientConfig struct {
	Timeout               time.Duration
	DialTimeout           time.Duration
	KeepAlive             time.Duration
	TLSHandshakeTimeout   time.Duration
	ExpectContinueTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConns          int
	MaxIdleConnsPerHost   int
	MaxConnsPerHost       int
	InsecureSkipVerify    bool
	FollowRedirects       bool
	MaxRedirects          int
	UserAgent             string
	CustomHeaders         map[string]string
	// MaxContentSize bounds response bodies in bytes; 0 disables the limit.
	MaxContentSize int64
	EnableHTTP2    bool
	Proxy          string
}

// DefaultHTTPClientConfig returns the settings used when the builder is
// not customized.
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		Timeout:               30 * time.Second,
		DialTimeout:           10 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		MaxConnsPerHost:       8,
		FollowRedirects:       true,
		MaxRedirects:          10,
		UserAgent:             "changewatch/1.0",
		CustomHeaders:         map[string]string{},
		MaxContentSize:        20 * 1024 * 1024,
		EnableHTTP2:           true,
	}
}
