package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/huanfeng/corehub/internal/errors"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{
		MaxRetries:    n,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
		Timeout:       5 * time.Second,
	}
}

func TestFetchJSONRetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "test-agent", r.UserAgent())
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(WithRetry(fastRetry(3)), WithUserAgent("test-agent"), WithRateLimit(1000))
	data, err := tr.FetchJSON(context.Background(), srv.URL+"/catalog.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(data))
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestFetchJSONDoesNotRetryClientErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(WithRetry(fastRetry(3)))
	_, err := tr.FetchJSON(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransport))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestFetchJSONRejectsNonJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	_, err := NewHTTPTransport(WithRetry(fastRetry(0))).FetchJSON(context.Background(), srv.URL)
	require.Error(t, err)
	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, "NOT_JSON", e.Code)
}

func TestFetchJSONFileURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name":"local"}`), 0644))

	data, err := NewHTTPTransport().FetchJSON(context.Background(), "file://"+filepath.ToSlash(path))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"local"}`, string(data))
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "core-bytes")
	}))
	defer srv.Close()

	dir := t.TempDir()
	path, err := NewHTTPTransport(WithRetry(fastRetry(0))).Download(context.Background(), srv.URL+"/files/nes.rbf", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nes.rbf"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "core-bytes", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestDownloadFailsOnNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewHTTPTransport(WithRetry(fastRetry(2))).Download(context.Background(), srv.URL+"/x.bin", t.TempDir())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeTransport))
}

func TestDownloadRejectsURLWithoutName(t *testing.T) {
	_, err := NewHTTPTransport().Download(context.Background(), "https://example.com/", t.TempDir())
	assert.Error(t, err)
}

func TestCheckDistinctNames(t *testing.T) {
	require.NoError(t, CheckDistinctNames([]string{
		"https://example.com/a/core.rbf",
		"https://example.com/a/data.bin",
	}))

	err := CheckDistinctNames([]string{
		"https://example.com/a/data.bin",
		"https://example.com/b/data.bin?x=1",
	})
	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeIntegrity, e.Type)
	assert.Equal(t, "DUPLICATE_FILE_NAME", e.Code)
	assert.Equal(t, "data.bin", e.Context["name"])
}

func TestIsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
	}))
	defer srv.Close()

	assert.True(t, NewHTTPTransport(WithProbeURL(srv.URL)).IsOnline(context.Background()))
	srv.Close()
	assert.False(t, NewHTTPTransport(WithProbeURL(srv.URL)).IsOnline(context.Background()))
}
