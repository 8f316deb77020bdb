package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/utils"
)

// Transport is the network surface used by the catalog graph and the
// installers.
type Transport interface {
	// FetchJSON returns the body of a JSON document. Non-2xx responses and
	// bodies that are not JSON are errors.
	FetchJSON(ctx context.Context, rawURL string) ([]byte, error)
	// Download stores the resource under destDir and returns its path.
	Download(ctx context.Context, rawURL, destDir string) (string, error)
	IsOnline(ctx context.Context) bool
}

// RetryConfig defines retry behavior
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Timeout       time.Duration
}

// DefaultRetryConfig returns default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Timeout:       30 * time.Second,
	}
}

func (rc RetryConfig) delay(attempt int) time.Duration {
	d := time.Duration(float64(rc.InitialDelay) * math.Pow(rc.BackoffFactor, float64(attempt-1)))
	if d > rc.MaxDelay {
		d = rc.MaxDelay
	}
	return d
}

// DefaultProbeURL is requested by IsOnline.
const DefaultProbeURL = "https://catalog.1fpga.cloud/"

// HTTPTransport implements Transport over net/http. file:// URLs are read
// from the local filesystem.
type HTTPTransport struct {
	client    *http.Client
	retry     RetryConfig
	limiter   *rate.Limiter
	userAgent string
	probeURL  string
}

// HTTPOption configures an HTTPTransport.
type HTTPOption func(*HTTPTransport)

// WithRetry overrides the retry policy.
func WithRetry(rc RetryConfig) HTTPOption {
	return func(t *HTTPTransport) { t.retry = rc }
}

// WithRateLimit caps outbound requests per second. Zero disables the cap.
func WithRateLimit(perSecond float64) HTTPOption {
	return func(t *HTTPTransport) {
		if perSecond <= 0 {
			t.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		burst := int(math.Ceil(perSecond))
		t.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithUserAgent(ua string) HTTPOption {
	return func(t *HTTPTransport) { t.userAgent = ua }
}

func WithProbeURL(u string) HTTPOption {
	return func(t *HTTPTransport) { t.probeURL = u }
}

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// NewHTTPTransport creates a transport with the default retry policy and
// no rate limit.
func NewHTTPTransport(opts ...HTTPOption) *HTTPTransport {
	t := &HTTPTransport{
		client:    &http.Client{Timeout: 30 * time.Minute},
		retry:     DefaultRetryConfig(),
		limiter:   rate.NewLimiter(rate.Inf, 1),
		userAgent: "corehub/1.0",
		probeURL:  DefaultProbeURL,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *HTTPTransport) FetchJSON(ctx context.Context, rawURL string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if isFileURL(rawURL) {
		data, err = os.ReadFile(fileURLPath(rawURL))
		if err != nil {
			return nil, apperrors.WrapError(err, apperrors.ErrorTypeTransport, "READ_FAILED", "failed to read local document").
				WithContext("url", rawURL)
		}
	} else {
		data, err = t.getWithRetry(ctx, rawURL, "application/json")
		if err != nil {
			return nil, err
		}
	}

	if !json.Valid(data) {
		return nil, apperrors.NewTransportError("NOT_JSON", "response is not valid JSON").
			WithContext("url", rawURL).
			SetRetryable(false)
	}
	return data, nil
}

// getWithRetry performs a GET with exponential backoff. Client errors (4xx)
// are not retried.
func (t *HTTPTransport) getWithRetry(ctx context.Context, rawURL, accept string) ([]byte, error) {
	var lastErr *apperrors.Error

	for attempt := 0; attempt <= t.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := t.retry.delay(attempt)
			utils.Debug("retrying %s in %v (attempt %d/%d)", rawURL, delay, attempt+1, t.retry.MaxRetries+1)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		resp, err := t.do(ctx, rawURL, accept)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = apperrors.WrapError(err, apperrors.ErrorTypeTransport, "REQUEST_FAILED", "network error").
				WithContext("url", rawURL).SetRetryable(true)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			lastErr = apperrors.NewTransportError("HTTP_STATUS", fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))).
				WithContext("url", rawURL)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 {
				lastErr.SetRetryable(false)
				break
			}
			continue
		}

		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = apperrors.WrapError(err, apperrors.ErrorTypeTransport, "READ_FAILED", "failed to read response").
				WithContext("url", rawURL).SetRetryable(true)
			continue
		}
		return data, nil
	}

	if lastErr == nil {
		return nil, apperrors.NewTransportError("REQUEST_FAILED", "no request attempted").WithContext("url", rawURL)
	}
	return nil, lastErr
}

func (t *HTTPTransport) do(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqCtx := ctx
	if t.retry.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, t.retry.Timeout)
		// the body is read by the caller, so cancel once it is closed
		resp, err := t.send(reqCtx, rawURL, accept)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return t.send(reqCtx, rawURL, accept)
}

func (t *HTTPTransport) send(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return t.client.Do(req)
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// Download fetches rawURL into destDir, keeping the last path segment of
// the URL as file name. The file is written to a temporary name first and
// renamed once complete.
func (t *HTTPTransport) Download(ctx context.Context, rawURL, destDir string) (string, error) {
	name, err := FileName(rawURL)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "MKDIR_FAILED", "failed to create download directory").
			WithContext("dir", destDir)
	}
	target := filepath.Join(destDir, name)

	if isFileURL(rawURL) {
		if err := copyFile(fileURLPath(rawURL), target); err != nil {
			return "", apperrors.WrapError(err, apperrors.ErrorTypeTransport, "COPY_FAILED", "failed to copy local file").
				WithContext("url", rawURL)
		}
		return target, nil
	}

	var lastErr error
	for attempt := 0; attempt <= t.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := t.retry.delay(attempt)
			utils.Info("retrying download of %s in %v (attempt %d/%d)", name, delay, attempt+1, t.retry.MaxRetries+1)
			if err := sleep(ctx, delay); err != nil {
				return "", err
			}
		}

		retry, err := t.downloadOnce(ctx, rawURL, target)
		if err == nil {
			return target, nil
		}
		lastErr = err
		utils.Warn("download attempt %d of %s failed: %v", attempt+1, rawURL, err)
		if !retry || ctx.Err() != nil {
			break
		}
	}

	return "", apperrors.WrapError(lastErr, apperrors.ErrorTypeTransport, "DOWNLOAD_FAILED",
		fmt.Sprintf("download failed after %d attempt(s)", t.retry.MaxRetries+1)).
		WithContext("url", rawURL)
}

func (t *HTTPTransport) downloadOnce(ctx context.Context, rawURL, target string) (retry bool, err error) {
	resp, err := t.do(ctx, rawURL, "")
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode >= 500, fmt.Errorf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	tmp := fmt.Sprintf("%s.%s.tmp", target, uuid.NewString())
	out, err := os.Create(tmp)
	if err != nil {
		return false, err
	}

	written, err := io.Copy(out, resp.Body)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return true, err
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		os.Remove(tmp)
		return true, fmt.Errorf("incomplete download: expected %d bytes, got %d", resp.ContentLength, written)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return false, err
	}
	return false, nil
}

// IsOnline issues a HEAD request against the probe URL.
func (t *HTTPTransport) IsOnline(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, t.probeURL, nil)
	if err != nil {
		return false
	}
	req.Header.Set("User-Agent", t.userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode < 500
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func isFileURL(u string) bool {
	return strings.HasPrefix(u, "file://")
}

func fileURLPath(u string) string {
	if parsed, err := url.Parse(u); err == nil && parsed.Path != "" {
		return filepath.FromSlash(parsed.Path)
	}
	return strings.TrimPrefix(u, "file://")
}

// FileName is the name Download stores rawURL under.
func FileName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", apperrors.WrapError(err, apperrors.ErrorTypeTransport, "BAD_URL", "invalid download URL").
			WithContext("url", rawURL).SetRetryable(false)
	}
	name := path.Base(u.Path)
	if name == "" || name == "." || name == "/" {
		return "", apperrors.NewTransportError("BAD_URL", "download URL has no file name").
			WithContext("url", rawURL).SetRetryable(false)
	}
	return name, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("source is a directory, not a file: %s", src)
	}

	tmp := fmt.Sprintf("%s.%s.tmp", dst, uuid.NewString())
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// CheckDistinctNames fails when two of urls would be downloaded to the same
// file name.
func CheckDistinctNames(urls []string) error {
	seen := make(map[string]string, len(urls))
	for _, u := range urls {
		name, err := FileName(u)
		if err != nil {
			return err
		}
		if prev, ok := seen[name]; ok {
			return apperrors.NewIntegrityError("DUPLICATE_FILE_NAME", "two release files share a file name").
				WithContext("name", name).
				WithContext("first", prev).
				WithContext("second", u)
		}
		seen[name] = u
	}
	return nil
}
