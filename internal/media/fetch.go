package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Fetcher writes the media behind locator to exactly dest.
type Fetcher interface {
	Fetch(ctx context.Context, locator, dest string) error
}

// ToolRunner runs an external binary and returns its stdout.
type ToolRunner interface {
	Output(ctx context.Context, bin string, args ...string) ([]byte, error)
}

// YtDlpFetcher downloads through yt-dlp with a pinned output path.
type YtDlpFetcher struct {
	Runner  ToolRunner
	Binary  string // empty = "yt-dlp"
	MaxSize int64  // bytes, 0 = unlimited
}

func (f *YtDlpFetcher) Fetch(ctx context.Context, locator, dest string) error {
	bin := f.Binary
	if bin == "" {
		bin = "yt-dlp"
	}

	args := []string{
		"--no-playlist",
		"--no-progress",
		"--force-overwrites",
		"-f", "bv*[ext=mp4][vcodec^=avc]+ba[ext=m4a]/b[ext=mp4]/bv*+ba/b",
		"--merge-output-format", "mp4",
		"-o", dest,
	}
	if f.MaxSize > 0 {
		args = append(args, "--max-filesize", fmt.Sprintf("%d", f.MaxSize))
	}
	args = append(args, locator)

	if _, err := f.Runner.Output(ctx, bin, args...); err != nil {
		return fmt.Errorf("yt-dlp download failed: %w", err)
	}
	return nil
}

// HTTPFetcher streams a direct media URL to disk.
type HTTPFetcher struct {
	Client  *http.Client
	MaxSize int64 // bytes, 0 = unlimited
	Retries int
	Backoff time.Duration
	Logger  zerolog.Logger
}

// errTooLarge marks a body that exceeded MaxSize.
var errTooLarge = errors.New("response exceeds size limit")

func (f *HTTPFetcher) Fetch(ctx context.Context, locator, dest string) error {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	var lastErr error
	for attempt := 0; attempt <= f.Retries; attempt++ {
		if attempt > 0 {
			f.Logger.Warn().Err(lastErr).
				Int("attempt", attempt+1).
				Str("locator", locator).
				Msg("retrying download")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * f.Backoff):
			}
		}

		retry, err := f.fetchOnce(ctx, client, locator, dest)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
	}
	return lastErr
}

// fetchOnce performs one GET. The bool reports whether a retry may help.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, client *http.Client, locator, dest string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return false, fmt.Errorf("invalid request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return retry, fmt.Errorf("unexpected status %s", resp.Status)
	}
	if f.MaxSize > 0 && resp.ContentLength > f.MaxSize {
		return false, errTooLarge
	}

	out, err := os.Create(dest)
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	var body io.Reader = resp.Body
	if f.MaxSize > 0 {
		body = io.LimitReader(resp.Body, f.MaxSize+1)
	}
	n, err := io.Copy(out, body)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("download interrupted: %w", err)
	}
	if f.MaxSize > 0 && n > f.MaxSize {
		return false, errTooLarge
	}
	return false, nil
}

// FileFetcher copies a local file (bare path or file:// URI) into staging.
type FileFetcher struct{}

func (FileFetcher) Fetch(ctx context.Context, locator, dest string) error {
	path := localPath(locator)

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("failed to copy %s: %w", path, err)
	}
	return ctx.Err()
}

func localPath(locator string) string {
	if strings.HasPrefix(locator, "file://") {
		if u, err := url.Parse(locator); err == nil {
			return filepath.FromSlash(u.Path)
		}
	}
	return locator
}

// Router picks a fetcher by locator scheme.
type Router struct {
	Remote Fetcher // http and https
	Local  Fetcher // file:// and bare paths
}

func (r *Router) Fetch(ctx context.Context, locator, dest string) error {
	f, err := r.route(locator)
	if err != nil {
		return err
	}
	return f.Fetch(ctx, locator, dest)
}

func (r *Router) route(locator string) (Fetcher, error) {
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// bare paths, including windows drive letters
		return r.Local, nil
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return r.Remote, nil
	case "file":
		return r.Local, nil
	}
	return nil, acquisitionError(locator, ReasonUnsupported, fmt.Errorf("unsupported scheme %q", u.Scheme))
}
