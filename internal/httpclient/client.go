package httpclient

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
)

// ErrNotModified is returned when content has not been modified (HTTP 304).
var ErrNotModified = errors.New("content not modified")

// ErrContentTooLarge is returned when a body exceeds MaxContentSize.
var ErrContentTooLarge = fmt.Errorf("%w: content exceeds size limit", common.ErrMalformedResponse)

const errorSnippetSize = 1024

// HTTPRequest describes one outgoing request
type HTTPRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    io.Reader
}

// HTTPResponse is a fully read response
type HTTPResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// HTTPClient wraps net/http.Client with configured headers, redirect policy
// and a body size limit
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
	logger zerolog.Logger
}

// NewHTTPClient creates a new HTTP client with the given configuration using net/http
func NewHTTPClient(config HTTPClientConfig, logger zerolog.Logger) (*HTTPClient, error) {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       config.IdleConnTimeout,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ExpectContinueTimeout: config.ExpectContinueTimeout,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
	}

	if config.EnableHTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			logger.Warn().Err(err).Msg("Failed to configure HTTP/2, falling back to HTTP/1.1")
		} else {
			logger.Debug().Msg("HTTP/2 support enabled")
		}
	}

	if config.Proxy != "" {
		proxyURL, err := url.Parse(config.Proxy)
		if err != nil {
			return nil, common.WrapError(err, "failed to parse proxy URL")
		}
		transport.Proxy = http.ProxyURL(proxyURL)
		logger.Info().Str("proxy", config.Proxy).Msg("HTTP client configured with proxy")
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}

	if !config.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if config.MaxRedirects > 0 {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			if len(via) >= config.MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", config.MaxRedirects)
			}
			return nil
		}
	}

	logger.Debug().
		Dur("timeout", config.Timeout).
		Bool("follow_redirects", config.FollowRedirects).
		Int("max_redirects", config.MaxRedirects).
		Bool("http2_enabled", config.EnableHTTP2).
		Int64("max_content_size", config.MaxContentSize).
		Msg("HTTP client created")

	return &HTTPClient{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// Do performs a single request. Transport failures are returned as
// *common.NetworkError; bodies beyond MaxContentSize fail with
// ErrContentTooLarge. Non-2xx bodies are cut to a short snippet.
func (c *HTTPClient) Do(ctx context.Context, req *HTTPRequest) (*HTTPResponse, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, req.Body)
	if err != nil {
		return nil, common.WrapError(err, "failed to create HTTP request")
	}

	for key, value := range c.config.CustomHeaders {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}
	if c.config.UserAgent != "" && httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", c.config.UserAgent)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "*/*")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, common.NewNetworkError(req.URL, "HTTP request failed", err)
	}
	defer resp.Body.Close()

	if resp.ContentLength > 0 && c.config.MaxContentSize > 0 && resp.ContentLength > c.config.MaxContentSize &&
		resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil, fmt.Errorf("%w: %d bytes (max: %d bytes)", ErrContentTooLarge, resp.ContentLength, c.config.MaxContentSize)
	}

	body, err := c.readBody(resp)
	if err != nil {
		return nil, err
	}

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}, nil
}

func (c *HTTPClient) readBody(resp *http.Response) ([]byte, error) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetSize))
		return snippet, nil
	}

	var reader io.Reader = resp.Body
	if c.config.MaxContentSize > 0 {
		reader = io.LimitReader(resp.Body, c.config.MaxContentSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, common.NewNetworkError(resp.Request.URL.String(), "failed to read response body", err)
	}
	if c.config.MaxContentSize > 0 && int64(len(body)) > c.config.MaxContentSize {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrContentTooLarge, c.config.MaxContentSize)
	}
	return body, nil
}

// FetchContentInput holds parameters for FetchContent.
type FetchContentInput struct {
	URL                  string
	PreviousETag         string
	PreviousLastModified string
	// BypassCache skips conditional headers to force fresh content.
	BypassCache bool
}

// FetchContentResult holds results from FetchContent.
type FetchContentResult struct {
	Content        []byte
	ContentType    string
	ETag           string
	LastModified   string
	HTTPStatusCode int
}

// FetchContent fetches the content of a document with support for conditional GETs.
// A 304 returns the result together with ErrNotModified; other non-2xx
// statuses return *common.HTTPError.
func (c *HTTPClient) FetchContent(ctx context.Context, input FetchContentInput) (*FetchContentResult, error) {
	headers := make(map[string]string)

	if input.BypassCache {
		headers["Cache-Control"] = "no-cache, no-store, must-revalidate"
		headers["Pragma"] = "no-cache"
	} else {
		if input.PreviousETag != "" {
			headers["If-None-Match"] = input.PreviousETag
		}
		if input.PreviousLastModified != "" {
			headers["If-Modified-Since"] = input.PreviousLastModified
		}
	}

	resp, err := c.Do(ctx, &HTTPRequest{
		URL:     input.URL,
		Method:  http.MethodGet,
		Headers: headers,
	})
	if err != nil {
		c.logger.Debug().Err(err).Str("url", input.URL).Msg("Failed to execute HTTP request")
		return nil, err
	}

	result := &FetchContentResult{
		ETag:           resp.Headers.Get("ETag"),
		LastModified:   resp.Headers.Get("Last-Modified"),
		ContentType:    resp.Headers.Get("Content-Type"),
		HTTPStatusCode: resp.StatusCode,
	}

	if resp.StatusCode == http.StatusNotModified {
		c.logger.Debug().Str("url", input.URL).Msg("Content not modified (304)")
		return result, ErrNotModified
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn().Str("url", input.URL).Int("status_code", resp.StatusCode).Msg("Received non-OK HTTP status")
		result.Content = resp.Body
		return result, common.NewHTTPErrorWithURL(resp.StatusCode, string(resp.Body), input.URL)
	}

	result.Content = resp.Body

	c.logger.Debug().
		Str("url", input.URL).
		Int("content_size", len(result.Content)).
		Str("content_type", result.ContentType).
		Msg("Successfully fetched content")

	return result, nil
}
