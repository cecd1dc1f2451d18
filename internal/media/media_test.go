package media

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kikiluvv/reelcut/internal/ffmpeg"
	"github.com/kikiluvv/reelcut/internal/workspace"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFetcher writes a fixed payload to dest.
type writeFetcher struct {
	payload []byte
	err     error
}

func (f writeFetcher) Fetch(ctx context.Context, locator, dest string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, f.payload, 0644)
}

type fakeTool struct {
	info      *ffmpeg.VideoInfo
	probeErr  error
	remuxErr  error
	verifyErr error
	remuxed   int
}

func (f *fakeTool) ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	return f.info, nil
}

func (f *fakeTool) Remux(ctx context.Context, input, output string) error {
	if f.remuxErr != nil {
		return f.remuxErr
	}
	f.remuxed++
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	return os.WriteFile(output, data, 0644)
}

func (f *fakeTool) VerifyDecode(ctx context.Context, input string) error { return f.verifyErr }

func goodInfo(seconds float64) *ffmpeg.VideoInfo {
	return &ffmpeg.VideoInfo{
		Duration: time.Duration(seconds * float64(time.Second)),
		HasVideo: true,
		HasAudio: true,
	}
}

func newTestAcquirer(t *testing.T, fetcher Fetcher, tool MediaTool, cfg Config) (*Acquirer, *workspace.Workspace) {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Cleanup() })
	return NewAcquirer(zerolog.Nop(), fetcher, tool, ws, cfg), ws
}

func TestAcquireValidSource(t *testing.T) {
	tool := &fakeTool{info: goodInfo(42)}
	a, ws := newTestAcquirer(t, writeFetcher{payload: []byte("video")}, tool, DefaultConfig())

	src, err := a.Acquire(context.Background(), "https://example.com/v")
	require.NoError(t, err)
	assert.True(t, src.Valid)
	assert.Equal(t, 42.0, src.Duration)
	assert.True(t, src.HasAudio)
	assert.FileExists(t, src.Path)
	assert.Equal(t, 1, tool.remuxed)
	assert.Equal(t, 1, ws.Tracked(), "original is released after a successful remux")
}

func TestAcquireEmptyDownload(t *testing.T) {
	a, ws := newTestAcquirer(t, writeFetcher{payload: nil}, &fakeTool{info: goodInfo(10)}, DefaultConfig())

	src, err := a.Acquire(context.Background(), "https://example.com/empty")
	assert.Nil(t, src)
	require.Error(t, err)
	assert.True(t, IsAcquisition(err))
	assert.Equal(t, ReasonEmpty, ReasonOf(err))
	assert.Zero(t, ws.Tracked(), "failed staging is released")
}

func TestAcquireRejections(t *testing.T) {
	cases := []struct {
		name    string
		fetcher Fetcher
		tool    *fakeTool
		cfg     func(*Config)
		reason  Reason
	}{
		{
			name:    "network",
			fetcher: writeFetcher{err: errors.New("connection reset")},
			tool:    &fakeTool{info: goodInfo(10)},
			reason:  ReasonNetwork,
		},
		{
			name:    "too large",
			fetcher: writeFetcher{payload: make([]byte, 64)},
			tool:    &fakeTool{info: goodInfo(10)},
			cfg:     func(c *Config) { c.MaxSize = 32 },
			reason:  ReasonTooLarge,
		},
		{
			name:    "too long",
			fetcher: writeFetcher{payload: []byte("v")},
			tool:    &fakeTool{info: goodInfo(1201)},
			reason:  ReasonTooLong,
		},
		{
			name:    "unreadable",
			fetcher: writeFetcher{payload: []byte("v")},
			tool:    &fakeTool{probeErr: errors.New("moov atom not found")},
			reason:  ReasonCorrupt,
		},
		{
			name:    "audio only",
			fetcher: writeFetcher{payload: []byte("v")},
			tool:    &fakeTool{info: &ffmpeg.VideoInfo{Duration: time.Second, HasAudio: true}},
			reason:  ReasonCorrupt,
		},
		{
			name:    "decode check",
			fetcher: writeFetcher{payload: []byte("v")},
			tool:    &fakeTool{info: goodInfo(10), verifyErr: errors.New("invalid NAL")},
			cfg:     func(c *Config) { c.VerifyDecode = true },
			reason:  ReasonCorrupt,
		},
		{
			name:    "timeout",
			fetcher: writeFetcher{err: fmt.Errorf("yt-dlp interrupted: %w", context.DeadlineExceeded)},
			tool:    &fakeTool{info: goodInfo(10)},
			reason:  ReasonTimeout,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			if tc.cfg != nil {
				tc.cfg(&cfg)
			}
			a, ws := newTestAcquirer(t, tc.fetcher, tc.tool, cfg)

			_, err := a.Acquire(context.Background(), "https://example.com/v")
			require.Error(t, err)

			var ae *AcquisitionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tc.reason, ae.Reason)
			assert.Equal(t, "https://example.com/v", ae.Locator)
			assert.Zero(t, ws.Tracked())
		})
	}
}

func TestAcquireKeepsOriginalWhenRemuxFails(t *testing.T) {
	tool := &fakeTool{info: goodInfo(30), remuxErr: errors.New("muxer error")}
	a, ws := newTestAcquirer(t, writeFetcher{payload: []byte("video")}, tool, DefaultConfig())

	src, err := a.Acquire(context.Background(), "clip.mp4")
	require.NoError(t, err)
	assert.FileExists(t, src.Path)
	assert.Equal(t, 1, ws.Tracked())
}

func TestFileFetcher(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.mp4")
	require.NoError(t, os.WriteFile(in, []byte("payload"), 0644))

	for _, locator := range []string{in, "file://" + filepath.ToSlash(in)} {
		dest := filepath.Join(dir, "out.mp4")
		require.NoError(t, FileFetcher{}.Fetch(context.Background(), locator, dest))
		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	}

	assert.Error(t, FileFetcher{}.Fetch(context.Background(), filepath.Join(dir, "missing.mp4"), filepath.Join(dir, "x")))
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("media bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "out.mp4")
	f := &HTTPFetcher{Client: srv.Client(), Retries: 2, Backoff: time.Millisecond, Logger: zerolog.Nop()}
	require.NoError(t, f.Fetch(context.Background(), srv.URL, dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "media bytes", string(data))
	assert.Equal(t, int32(2), calls.Load())
}

func TestHTTPFetcherDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := &HTTPFetcher{Client: srv.Client(), Retries: 3, Backoff: time.Millisecond, Logger: zerolog.Nop()}
	assert.Error(t, f.Fetch(context.Background(), srv.URL, filepath.Join(t.TempDir(), "out.mp4")))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherSizeCeiling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	tool := &fakeTool{info: goodInfo(10)}
	fetcher := &HTTPFetcher{Client: srv.Client(), MaxSize: 100, Logger: zerolog.Nop()}
	cfg := DefaultConfig()
	a, _ := newTestAcquirer(t, fetcher, tool, cfg)

	_, err := a.Acquire(context.Background(), srv.URL)
	assert.Equal(t, ReasonTooLarge, ReasonOf(err))
}

func TestRouter(t *testing.T) {
	local := writeFetcher{payload: []byte("local")}
	remote := writeFetcher{payload: []byte("remote")}
	r := &Router{Remote: remote, Local: local}

	for locator, want := range map[string]string{
		"https://youtube.com/watch?v=x": "remote",
		"http://cdn.example/v.mp4":      "remote",
		"/tmp/clip.mp4":                 "local",
		"file:///tmp/clip.mp4":          "local",
		`C:\videos\clip.mp4`:            "local",
	} {
		dest := filepath.Join(t.TempDir(), "out")
		require.NoError(t, r.Fetch(context.Background(), locator, dest), locator)
		data, err := os.ReadFile(dest)
		require.NoError(t, err)
		assert.Equal(t, want, string(data), locator)
	}

	err := r.Fetch(context.Background(), "rtsp://camera/stream", filepath.Join(t.TempDir(), "out"))
	assert.Equal(t, ReasonUnsupported, ReasonOf(err))
}

type recordingRunner struct {
	bin  string
	args []string
}

func (r *recordingRunner) Output(ctx context.Context, bin string, args ...string) ([]byte, error) {
	r.bin, r.args = bin, args
	return nil, nil
}

func TestYtDlpFetcherPinsOutputPath(t *testing.T) {
	runner := &recordingRunner{}
	f := &YtDlpFetcher{Runner: runner, MaxSize: 1000}

	require.NoError(t, f.Fetch(context.Background(), "https://youtu.be/abc", "/stage/source-1.mp4"))
	assert.Equal(t, "yt-dlp", runner.bin)
	assert.Subset(t, runner.args, []string{"-o", "/stage/source-1.mp4", "--no-playlist", "--max-filesize", "1000"})
	assert.Equal(t, "https://youtu.be/abc", runner.args[len(runner.args)-1])
}
