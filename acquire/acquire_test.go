package acquire

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	run   func(ctx context.Context, name string, args ...string) (CommandResult, error)
	calls [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.run == nil {
		return CommandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

// outputTemplate returns the -o argument yt-dlp was given.
func outputTemplate(t *testing.T, args []string) string {
	t.Helper()
	for i, arg := range args {
		if arg == "-o" && i+1 < len(args) {
			return args[i+1]
		}
	}
	t.Fatalf("no -o in %v", args)
	return ""
}

func TestClassify(t *testing.T) {
	tests := []struct {
		url     string
		want    Kind
		wantErr error
	}{
		{url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: KindPlatformURL},
		{url: "https://youtube.com/watch?v=abc&t=10", want: KindPlatformURL},
		{url: "https://m.youtube.com/shorts/abc123", want: KindPlatformURL},
		{url: "https://music.youtube.com/watch?v=abc", want: KindPlatformURL},
		{url: "https://www.youtube.com/embed/abc", want: KindPlatformURL},
		{url: "https://www.youtube.com/live/abc", want: KindPlatformURL},
		{url: "https://youtu.be/abc", want: KindPlatformURL},
		{url: "HTTPS://WWW.YOUTUBE.COM/watch?v=abc", want: KindPlatformURL},
		{url: "https://www.youtube.com/@somechannel", wantErr: ErrNotPlayable},
		{url: "https://www.youtube.com/", wantErr: ErrNotPlayable},
		{url: "https://www.youtube.com/playlist?list=PL123", wantErr: ErrNotPlayable},
		{url: "https://www.youtube.com/watch", wantErr: ErrNotPlayable},
		{url: "https://youtu.be/", wantErr: ErrNotPlayable},
		{url: "https://notyoutube.com/watch?v=abc", want: KindDirectURL},
		{url: "https://youtube.com.evil.example/watch?v=abc", want: KindDirectURL},
		{url: "https://cdn.example.com/audio/clip.mp3", want: KindDirectURL},
		{url: "ftp://example.com/clip.mp3", wantErr: ErrInvalidURL},
		{url: "/relative/clip.mp3", wantErr: ErrInvalidURL},
		{url: "https:///clip.mp3", wantErr: ErrInvalidURL},
		{url: "::not a url", wantErr: ErrInvalidURL},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := Classify(tt.url)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsInvalidInput(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectURL404(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "job-1.mp3")
	_, err := New(Config{}, nil).Acquire(context.Background(), Input{Kind: KindDirectURL, URL: srv.URL + "/missing.mp3"}, dest)

	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, ReasonFetch, acqErr.Reason)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "Not Found")
	assert.NoFileExists(t, dest)
}

func TestDirectURLSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ID3 fake mp3 bytes")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "job-2.mp3")
	path, err := New(Config{}, nil).Acquire(context.Background(), Input{Kind: KindDirectURL, URL: srv.URL + "/a.mp3"}, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, path)

	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "ID3 fake mp3 bytes", string(raw))
}

func TestDirectURLSizeCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "job-3.mp3")
	_, err := New(Config{MaxBytes: 16}, nil).Acquire(context.Background(), Input{Kind: KindDirectURL, URL: srv.URL}, dest)

	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, ReasonFetch, acqErr.Reason)
	assert.Contains(t, err.Error(), "limit")
}

func TestUploadAndLocal(t *testing.T) {
	dir := t.TempDir()
	a := New(Config{}, nil)

	dest := filepath.Join(dir, "job-up.wav")
	_, err := a.Acquire(context.Background(), Input{Kind: KindUpload, Name: "memo.wav", Body: strings.NewReader("RIFF")}, dest)
	require.NoError(t, err)
	raw, _ := os.ReadFile(dest)
	assert.Equal(t, "RIFF", string(raw))

	src := filepath.Join(dir, "inbox.flac")
	require.NoError(t, os.WriteFile(src, []byte("fLaC"), 0o644))
	dest = filepath.Join(dir, "job-local.flac")
	_, err = a.Acquire(context.Background(), Input{Kind: KindLocal, Path: src}, dest)
	require.NoError(t, err)
	raw, _ = os.ReadFile(dest)
	assert.Equal(t, "fLaC", string(raw))
	assert.FileExists(t, src)
}

func TestPlatformRenamesProducedFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "job-yt.mp3")
	runner := &fakeRunner{}
	runner.run = func(ctx context.Context, name string, args ...string) (CommandResult, error) {
		tmpl := outputTemplate(t, args)
		base := strings.TrimSuffix(tmpl, ".%(ext)s")
		require.NoError(t, os.WriteFile(base+".webm.part", []byte("p"), 0o644))
		require.NoError(t, os.WriteFile(base+".m4a", []byte("audio-data"), 0o644))
		require.NoError(t, os.WriteFile(base+".webm", []byte("a"), 0o644))
		return CommandResult{}, nil
	}

	a := New(Config{Runner: runner, DownloadTool: "/opt/yt-dlp", MaxDurationSeconds: 600}, nil)
	path, err := a.Acquire(context.Background(), Input{Kind: KindPlatformURL, URL: "https://youtu.be/abc"}, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, path)

	raw, _ := os.ReadFile(dest)
	assert.Equal(t, "audio-data", string(raw))

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "/opt/yt-dlp", call[0])
	assert.Contains(t, call, "--no-playlist")
	assert.Contains(t, call, "duration<=600")
	assert.Equal(t, "https://youtu.be/abc", call[len(call)-1])
}

func TestPlatformPrefersCanonicalName(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "job-c.mp3")
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
		require.NoError(t, os.WriteFile(dest, []byte("mp3"), 0o644))
		require.NoError(t, os.WriteFile(strings.TrimSuffix(dest, ".mp3")+".webm", []byte("much larger original"), 0o644))
		return CommandResult{}, nil
	}}

	_, err := New(Config{Runner: runner}, nil).Acquire(context.Background(), Input{Kind: KindPlatformURL, URL: "https://youtu.be/abc"}, dest)
	require.NoError(t, err)
	raw, _ := os.ReadFile(dest)
	assert.Equal(t, "mp3", string(raw))
}

func TestPlatformMissingOutput(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "job-m.mp3")
	a := New(Config{Runner: &fakeRunner{}}, nil)

	_, err := a.Acquire(context.Background(), Input{Kind: KindPlatformURL, URL: "https://youtu.be/abc"}, dest)
	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, ReasonMissingOutput, acqErr.Reason)
	assert.Contains(t, err.Error(), "no output file")
}

func TestPlatformTimeout(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
		<-ctx.Done()
		return CommandResult{ExitCode: -1}, ctx.Err()
	}}
	a := New(Config{Runner: runner, DownloadTimeout: 20 * time.Millisecond}, nil)

	_, err := a.Acquire(context.Background(), Input{Kind: KindPlatformURL, URL: "https://youtu.be/abc"}, filepath.Join(t.TempDir(), "job-t.mp3"))
	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, ReasonDownloadTimeout, acqErr.Reason)
	assert.Contains(t, err.Error(), "download exceeded time budget")
}

func TestPlatformUnavailable(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
		return CommandResult{
			Stderr:   "[youtube] abc: Downloading webpage\nERROR: [youtube] abc: Private video. Sign in if you've been granted access",
			ExitCode: 1,
		}, errors.New("exit status 1")
	}}

	_, err := New(Config{Runner: runner}, nil).Acquire(context.Background(), Input{Kind: KindPlatformURL, URL: "https://youtu.be/abc"}, filepath.Join(t.TempDir(), "job-u.mp3"))
	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, ReasonUnavailable, acqErr.Reason)
	assert.Contains(t, err.Error(), "video unavailable")
}

func TestPlatformToolFailure(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
		return CommandResult{Stderr: "ERROR: unable to extract player response", ExitCode: 2}, errors.New("exit status 2")
	}}

	_, err := New(Config{Runner: runner}, nil).Acquire(context.Background(), Input{Kind: KindPlatformURL, URL: "https://youtu.be/abc"}, filepath.Join(t.TempDir(), "job-f.mp3"))
	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, ReasonTool, acqErr.Reason)
	assert.Contains(t, err.Error(), "exited with code 2")
	assert.Contains(t, err.Error(), "unable to extract")
}

func TestExtFor(t *testing.T) {
	assert.Equal(t, ".mp3", ExtFor(Input{Kind: KindPlatformURL, URL: "https://youtu.be/x"}))
	assert.Equal(t, ".ogg", ExtFor(Input{Kind: KindDirectURL, URL: "https://a.example/b/c.ogg?sig=1"}))
	assert.Equal(t, ".wav", ExtFor(Input{Kind: KindUpload, Name: "memo.wav"}))
	assert.Equal(t, ".flac", ExtFor(Input{Kind: KindLocal, Path: "/in/x.flac"}))
}

func TestPlatformTimeoutStopsToolChildren(t *testing.T) {
	// The tool forks a child that inherits stderr, as yt-dlp does with ffmpeg.
	tool := filepath.Join(t.TempDir(), "yt-dlp")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\nsleep 5 &\nsleep 5\n"), 0o755))

	a := New(Config{
		DownloadTool:    tool,
		DownloadTimeout: 200 * time.Millisecond,
		Runner:          ExecRunner{KillGrace: 300 * time.Millisecond},
	}, nil)

	started := time.Now()
	_, err := a.Acquire(context.Background(), Input{Kind: KindPlatformURL, URL: "https://youtu.be/abc"}, filepath.Join(t.TempDir(), "job-k.mp3"))
	took := time.Since(started)

	var acqErr *Error
	require.ErrorAs(t, err, &acqErr)
	assert.Equal(t, ReasonDownloadTimeout, acqErr.Reason)
	assert.Less(t, took, 2*time.Second)
}

func TestExecRunnerCancelReturnsPromptly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	started := time.Now()
	res, err := ExecRunner{KillGrace: 300 * time.Millisecond}.Run(ctx, "/bin/sh", "-c", "sleep 5 & sleep 5")
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(started), 2*time.Second)
}
