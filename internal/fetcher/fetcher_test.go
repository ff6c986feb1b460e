package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/h-sim/ai-change-watcher/internal/common"
	"github.com/h-sim/ai-change-watcher/internal/config"
	"github.com/h-sim/ai-change-watcher/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T, mutate func(cfg *config.FetchConfig)) *Fetcher {
	t.Helper()
	cfg := config.NewDefaultFetchConfig()
	cfg.EnableHTTP2 = false
	if mutate != nil {
		mutate(&cfg)
	}
	f, err := NewFetcherFromConfig(cfg, zerolog.Nop())
	require.NoError(t, err)
	return f
}

func TestFetcher_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("ETag", `"abc"`)
			_, _ = w.Write([]byte("hello"))
		case "/cached":
			if r.Header.Get("If-None-Match") == `"abc"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			_, _ = w.Write([]byte("fresh"))
		case "/missing":
			http.NotFound(w, r)
		case "/latin1":
			w.Header().Set("Content-Type", "text/plain; charset=ISO-8859-1")
			_, _ = w.Write([]byte{'c', 'a', 'f', 0xe9})
		case "/large":
			_, _ = w.Write(make([]byte, 64))
		}
	}))
	defer server.Close()

	prior := &models.StateRecord{TargetID: "t", ETag: `"abc"`, LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"}

	tests := []struct {
		name        string
		path        string
		prior       *models.StateRecord
		wantBody    string
		wantNotMod  bool
		wantReason  string
		wantErrIs   error
		wantETag    string
		maxBodySize int64
	}{
		{name: "success", path: "/ok", wantBody: "hello", wantETag: `"abc"`},
		{name: "not modified keeps validators", path: "/cached", prior: prior, wantNotMod: true, wantETag: `"abc"`},
		{name: "no prior fetches fresh", path: "/cached", wantBody: "fresh"},
		{name: "http error", path: "/missing", wantReason: ReasonHTTP},
		{name: "charset decoded", path: "/latin1", wantBody: "café"},
		{name: "too large", path: "/large", wantReason: ReasonMalformed, wantErrIs: common.ErrMalformedResponse, maxBodySize: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher(t, func(cfg *config.FetchConfig) {
				if tt.maxBodySize > 0 {
					cfg.MaxContentSize = tt.maxBodySize
				}
			})
			target := models.Target{ID: "t", Name: "T", URL: server.URL + tt.path}

			res := f.Fetch(context.Background(), target, tt.prior)

			assert.Equal(t, "t", res.TargetID)
			assert.False(t, res.FetchedAt.IsZero())
			if tt.wantReason != "" {
				var fetchErr *common.FetchError
				require.True(t, errors.As(res.Err, &fetchErr), "got %v", res.Err)
				assert.Equal(t, tt.wantReason, fetchErr.Reason)
				assert.Equal(t, target.URL, fetchErr.URL)
				if tt.wantErrIs != nil {
					assert.ErrorIs(t, res.Err, tt.wantErrIs)
				}
				assert.True(t, res.Failed())
				return
			}
			require.NoError(t, res.Err)
			assert.Equal(t, tt.wantNotMod, res.NotModified)
			assert.Equal(t, tt.wantBody, string(res.Body))
			if tt.wantETag != "" {
				assert.Equal(t, tt.wantETag, res.ETag)
			}
		})
	}
}

func TestFetcher_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	f := newTestFetcher(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := f.Fetch(ctx, models.Target{ID: "slow", URL: server.URL}, nil)

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, common.ErrTimeout)
	var fetchErr *common.FetchError
	require.True(t, errors.As(res.Err, &fetchErr))
	assert.Equal(t, ReasonTimeout, fetchErr.Reason)
}

func TestFetcher_BypassCacheIgnoresValidators(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("If-None-Match"))
		assert.Empty(t, r.Header.Get("If-Modified-Since"))
		_, _ = w.Write([]byte("body"))
	}))
	defer server.Close()

	f := newTestFetcher(t, func(cfg *config.FetchConfig) { cfg.BypassCache = true })
	prior := &models.StateRecord{ETag: `"x"`, LastModified: "Mon, 02 Jan 2006 15:04:05 GMT"}

	res := f.Fetch(context.Background(), models.Target{URL: server.URL}, prior)
	require.NoError(t, res.Err)
	assert.False(t, res.NotModified)
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		body        []byte
		contentType string
		want        string
	}{
		{name: "utf8 passthrough", body: []byte("naïve"), contentType: "text/html", want: "naïve"},
		{name: "bom stripped", body: []byte("\xef\xbb\xbfabc"), contentType: "", want: "abc"},
		{name: "declared latin1", body: []byte{0xfc, 'b', 'e', 'r'}, contentType: "text/plain; charset=latin1", want: "über"},
		{name: "invalid utf8 sniffed", body: []byte{'a', 0x92, 'b'}, contentType: "text/plain", want: "a’b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeBody(tt.body, tt.contentType)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}
