package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/config"
	"github.com/h-sim/ai-change-watcher/internal/httpclient"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
)

// Failure reasons carried in common.FetchError.
const (
	ReasonTimeout   = "timeout"
	ReasonNetwork   = "network"
	ReasonHTTP      = "http-status"
	ReasonMalformed = "malformed-response"
)

// Fetcher downloads one target per call.
type Fetcher struct {
	client      *httpclient.HTTPClient
	logger      zerolog.Logger
	bypassCache bool
	now         func() time.Time
}

// NewFetcher creates a Fetcher around an existing client.
func NewFetcher(client *httpclient.HTTPClient, bypassCache bool, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		client:      client,
		logger:      logger.With().Str("component", "Fetcher").Logger(),
		bypassCache: bypassCache,
		now:         time.Now,
	}
}

// NewFetcherFromConfig builds the HTTP client from the fetch configuration.
func NewFetcherFromConfig(cfg config.FetchConfig, logger zerolog.Logger) (*Fetcher, error) {
	client, err := httpclient.NewHTTPClientBuilder(logger).
		WithTimeout(cfg.Timeout()).
		WithUserAgent(cfg.UserAgent).
		WithCustomHeaders(cfg.CustomHeaders).
		WithMaxContentSize(cfg.MaxContentSize).
		WithMaxRedirects(cfg.MaxRedirects).
		WithHTTP2(cfg.EnableHTTP2).
		WithProxy(cfg.Proxy).
		WithConnectionPooling(cfg.Concurrency()*2, 2, cfg.Concurrency()).
		Build()
	if err != nil {
		return nil, common.WrapError(err, "failed to build HTTP client")
	}
	return NewFetcher(client, cfg.BypassCache, logger), nil
}

// Fetch downloads the target. It never returns an error: failures are
// carried in FetchResult.Err as *common.FetchError.
func (f *Fetcher) Fetch(ctx context.Context, target models.Target, prior *models.StateRecord) models.FetchResult {
	started := f.now()
	result := models.FetchResult{
		TargetID:  target.Key(),
		FetchedAt: started.UTC(),
	}

	input := httpclient.FetchContentInput{
		URL:         target.URL,
		BypassCache: f.bypassCache,
	}
	if prior != nil {
		input.PreviousETag = prior.ETag
		input.PreviousLastModified = prior.LastModified
	}

	resp, err := f.client.FetchContent(ctx, input)
	result.Duration = f.now().Sub(started)
	if resp != nil {
		result.StatusCode = resp.HTTPStatusCode
		result.ContentType = resp.ContentType
		result.ETag = resp.ETag
		result.LastModified = resp.LastModified
	}

	switch {
	case errors.Is(err, httpclient.ErrNotModified):
		result.NotModified = true
		if prior != nil {
			// A 304 may omit validators; keep the ones we sent.
			if result.ETag == "" {
				result.ETag = prior.ETag
			}
			if result.LastModified == "" {
				result.LastModified = prior.LastModified
			}
		}
		f.logger.Debug().Str("target", result.TargetID).Msg("Target not modified")
		return result
	case err != nil:
		result.Err = f.classifyError(ctx, target, err)
		f.logger.Warn().Err(result.Err).Str("target", result.TargetID).Dur("duration", result.Duration).Msg("Fetch failed")
		return result
	}

	body, err := DecodeBody(resp.Content, resp.ContentType)
	if err != nil {
		result.Err = common.NewFetchError(target.Key(), target.URL, ReasonMalformed,
			fmt.Errorf("%w: %v", common.ErrMalformedResponse, err))
		return result
	}
	result.Body = body

	f.logger.Debug().
		Str("target", result.TargetID).
		Int("status_code", result.StatusCode).
		Int("size", len(body)).
		Dur("duration", result.Duration).
		Msg("Target fetched")
	return result
}

func (f *Fetcher) classifyError(ctx context.Context, target models.Target, err error) *common.FetchError {
	key := target.Key()
	var httpErr *common.HTTPError
	var netErr net.Error

	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return common.NewFetchError(key, target.URL, ReasonTimeout, fmt.Errorf("%w: %v", common.ErrTimeout, err))
	case errors.As(err, &netErr) && netErr.Timeout():
		return common.NewFetchError(key, target.URL, ReasonTimeout, fmt.Errorf("%w: %v", common.ErrTimeout, err))
	case errors.As(err, &httpErr):
		return common.NewFetchError(key, target.URL, ReasonHTTP, httpErr)
	case errors.Is(err, common.ErrMalformedResponse):
		return common.NewFetchError(key, target.URL, ReasonMalformed, err)
	default:
		return common.NewFetchError(key, target.URL, ReasonNetwork, err)
	}
}

// DecodeBody converts a response body to UTF-8. The declared charset of
// the Content-Type header wins; otherwise valid UTF-8 is kept as-is and
// anything else is sniffed.
func DecodeBody(body []byte, contentType string) ([]byte, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))

	label := declaredCharset(contentType)
	if label == "" || isUTF8Label(label) {
		if utf8.Valid(body) {
			return body, nil
		}
		_, label, _ = charset.DetermineEncoding(body, contentType)
		if isUTF8Label(label) {
			return bytes.ToValidUTF8(body, []byte("\uFFFD")), nil
		}
	}

	reader, err := charset.NewReaderLabel(label, bytes.NewReader(body))
	if err != nil {
		return nil, common.WrapError(err, "unsupported charset "+label)
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return nil, common.WrapError(err, "failed to decode "+label)
	}
	return decoded, nil
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

func isUTF8Label(label string) bool {
	switch label {
	case "utf-8", "utf8", "unicode-1-1-utf-8":
		return true
	}
	return false
}
