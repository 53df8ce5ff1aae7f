package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/term"
)

const userAgent = "voxapi/1"

// ChecksumError reports a file whose SHA256 does not match the pinned value.
type ChecksumError struct {
	Path     string
	Expected string
	Actual   string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", filepath.Base(e.Path), e.Expected, e.Actual)
}

// StatusError is returned when the server answers with a non-200 status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.URL)
}

type Options struct {
	URL         string
	Destination string
	// ExpectedSHA256 is verified while streaming; empty skips the check.
	ExpectedSHA256 string
	Retries        int
	Backoff        time.Duration
	NoProgress     bool
	HTTPClient     *http.Client
	Logger         *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = 300 * time.Millisecond
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Minute}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

// Fetch downloads URL into Destination through a ".part" file that is only
// renamed into place once the body is complete and the checksum matches.
// Checksum mismatches and 4xx responses are not retried.
func Fetch(ctx context.Context, opts Options) error {
	if strings.TrimSpace(opts.URL) == "" {
		return errors.New("download URL is required")
	}
	if strings.TrimSpace(opts.Destination) == "" {
		return errors.New("destination path is required")
	}
	opts.applyDefaults()

	if err := os.MkdirAll(filepath.Dir(opts.Destination), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	expected := strings.ToLower(strings.TrimSpace(opts.ExpectedSHA256))

	var lastErr error
	for attempt := 1; attempt <= opts.Retries; attempt++ {
		if attempt > 1 {
			opts.Logger.Warn("retrying download",
				zap.Int("attempt", attempt),
				zap.Int("max", opts.Retries),
				zap.String("url", opts.URL),
				zap.Error(lastErr),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("download cancelled: %w", ctx.Err())
			case <-time.After(time.Duration(attempt-1) * opts.Backoff):
			}
		}

		lastErr = fetchOnce(ctx, opts, expected)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}

// VerifyFileChecksum hashes path and compares it to expectedSHA256. An empty
// expectation always passes.
func VerifyFileChecksum(path, expectedSHA256 string) error {
	expected := strings.ToLower(strings.TrimSpace(expectedSHA256))
	if expected == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash file: %w", err)
	}

	if actual := hex.EncodeToString(h.Sum(nil)); actual != expected {
		return &ChecksumError{Path: path, Expected: expected, Actual: actual}
	}
	return nil
}

func retryable(err error) bool {
	var checksumErr *ChecksumError
	if errors.As(err, &checksumErr) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500 || statusErr.Code == http.StatusTooManyRequests
	}
	return true
}

func fetchOnce(ctx context.Context, opts Options, expected string) (err error) {
	tempPath := opts.Destination + ".part"
	_ = os.Remove(tempPath)

	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = out.Close()
		if err != nil {
			_ = os.Remove(tempPath)
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opts.URL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := opts.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{URL: opts.URL, Code: resp.StatusCode}
	}

	hash := sha256.New()
	sinks := []io.Writer{out, hash}
	bar := newProgressBar(opts.NoProgress, resp.ContentLength, filepath.Base(opts.Destination))
	if bar != nil {
		sinks = append(sinks, bar)
	}

	written, err := io.Copy(io.MultiWriter(sinks...), resp.Body)
	if err != nil {
		return fmt.Errorf("download body: %w", err)
	}
	if bar != nil {
		_ = bar.Finish()
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("download truncated: got %d of %d bytes", written, resp.ContentLength)
	}

	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}

	if actual := hex.EncodeToString(hash.Sum(nil)); expected != "" && actual != expected {
		return &ChecksumError{Path: opts.Destination, Expected: expected, Actual: actual}
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tempPath, opts.Destination); err != nil {
		return fmt.Errorf("move temp file into destination: %w", err)
	}

	opts.Logger.Debug("download complete", zap.String("path", opts.Destination), zap.Int64("bytes", written))
	return nil
}

func newProgressBar(disabled bool, contentLength int64, name string) *progressbar.ProgressBar {
	if disabled || contentLength <= 0 || !term.IsTerminal(int(os.Stderr.Fd())) {
		return nil
	}
	return progressbar.NewOptions64(
		contentLength,
		progressbar.OptionSetDescription("downloading "+name),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
	)
}
