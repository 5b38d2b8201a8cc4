// Package acquire turns a job's input (an uploaded body, a direct audio URL,
// a video platform link or an inbox file) into one local audio file.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	defaultDownloadTool    = "yt-dlp"
	defaultDownloadTimeout = 10 * time.Minute
	stderrTail             = 2048
)

// unavailableMarkers are yt-dlp stderr fragments that mean the video itself
// cannot be fetched, as opposed to a tool or network failure.
var unavailableMarkers = []string{
	"Video unavailable",
	"Private video",
	"This video is unavailable",
	"does not pass filter",
}

// Input is one job's audio source. Exactly one of Body, URL or Path is used,
// selected by Kind.
type Input struct {
	Kind Kind
	// Name is the client-side file name of an upload.
	Name string
	Body io.Reader
	URL  string
	Path string
}

// Source describes the input for logs and job listings.
func (in Input) Source() string {
	switch in.Kind {
	case KindUpload:
		return in.Name
	case KindLocal:
		return in.Path
	default:
		return in.URL
	}
}

// Config tunes the acquirer.
type Config struct {
	DownloadTool string
	// DownloadTimeout bounds one platform download.
	DownloadTimeout time.Duration
	// MaxDurationSeconds, when positive, makes the download tool skip longer videos.
	MaxDurationSeconds int
	// MaxBytes, when positive, caps a direct URL download.
	MaxBytes   int64
	HTTPClient *http.Client
	Runner     Runner
}

// Acquirer materializes inputs into artifact paths.
type Acquirer struct {
	tool        string
	timeout     time.Duration
	maxDuration int
	maxBytes    int64
	http        *http.Client
	runner      Runner
	logger      *slog.Logger
}

// New builds an Acquirer, filling unset fields with defaults.
func New(cfg Config, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Acquirer{
		tool:        strings.TrimSpace(cfg.DownloadTool),
		timeout:     cfg.DownloadTimeout,
		maxDuration: cfg.MaxDurationSeconds,
		maxBytes:    cfg.MaxBytes,
		http:        cfg.HTTPClient,
		runner:      cfg.Runner,
		logger:      logger.With("component", "acquire"),
	}
	if a.tool == "" {
		a.tool = defaultDownloadTool
	}
	if a.timeout <= 0 {
		a.timeout = defaultDownloadTimeout
	}
	if a.http == nil {
		a.http = &http.Client{}
	}
	if a.runner == nil {
		a.runner = ExecRunner{}
	}
	return a
}

// Acquire writes the audio for in to dest and returns dest. On failure any
// partial output at dest is left for the artifact release to remove.
func (a *Acquirer) Acquire(ctx context.Context, in Input, dest string) (string, error) {
	start := time.Now()
	var err error
	switch in.Kind {
	case KindUpload:
		err = a.fromUpload(in, dest)
	case KindLocal:
		err = a.fromLocal(in, dest)
	case KindDirectURL:
		err = a.fromDirectURL(ctx, in.URL, dest)
	case KindPlatformURL:
		err = a.fromPlatform(ctx, in.URL, dest)
	default:
		err = &Error{Reason: ReasonInvalidURL, Message: fmt.Sprintf("unknown input kind %q", in.Kind)}
	}
	if err != nil {
		return "", err
	}

	info, statErr := os.Stat(dest)
	if statErr != nil {
		return "", &Error{Reason: ReasonMissingOutput, Message: "acquired audio is missing", Err: statErr}
	}
	a.logger.Info("audio acquired",
		"kind", in.Kind,
		"source", in.Source(),
		"bytes", info.Size(),
		"took", time.Since(start).Round(time.Millisecond).String())
	return dest, nil
}

func (a *Acquirer) fromUpload(in Input, dest string) error {
	if in.Body == nil {
		return &Error{Reason: ReasonIO, Message: "upload has no body"}
	}
	if _, err := writeFile(dest, in.Body, 0); err != nil {
		return &Error{Reason: ReasonIO, Message: "store upload", Err: err}
	}
	return nil
}

func (a *Acquirer) fromLocal(in Input, dest string) error {
	src, err := os.Open(in.Path)
	if err != nil {
		return &Error{Reason: ReasonIO, Message: "open inbox file", Err: err}
	}
	defer src.Close()
	if _, err := writeFile(dest, src, 0); err != nil {
		return &Error{Reason: ReasonIO, Message: "copy inbox file", Err: err}
	}
	return nil
}

func (a *Acquirer) fromDirectURL(ctx context.Context, rawURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return &Error{Reason: ReasonInvalidURL, Message: "build request", Err: err}
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return &Error{Reason: ReasonFetch, Message: "fetch audio", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{
			Reason:  ReasonFetch,
			Message: fmt.Sprintf("fetch audio: unexpected status %s", statusLine(resp)),
		}
	}

	n, err := writeFile(dest, resp.Body, a.maxBytes)
	if err != nil {
		return &Error{Reason: ReasonFetch, Message: "download audio body", Err: err}
	}
	a.logger.Debug("direct download finished", "url", rawURL, "bytes", n)
	return nil
}

func (a *Acquirer) fromPlatform(ctx context.Context, rawURL, dest string) error {
	base := strings.TrimSuffix(dest, filepath.Ext(dest))
	args := []string{
		"--no-playlist",
		"-f", "bestaudio",
		"-x",
		"--audio-format", "mp3",
		"-o", base + ".%(ext)s",
	}
	if a.maxDuration > 0 {
		args = append(args, "--match-filter", "duration<="+strconv.Itoa(a.maxDuration))
	}
	args = append(args, rawURL)

	runCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	a.logger.Debug("running download tool", "tool", a.tool, "url", rawURL)
	res, err := a.runner.Run(runCtx, a.tool, args...)
	if err != nil {
		if ctx.Err() != nil {
			return &Error{Reason: ReasonFetch, Message: "download cancelled", Err: ctx.Err()}
		}
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return &Error{
				Reason:  ReasonDownloadTimeout,
				Message: fmt.Sprintf("download exceeded time budget of %s", a.timeout),
				Err:     context.DeadlineExceeded,
			}
		}
		if unavailable(res.Stderr) {
			return &Error{Reason: ReasonUnavailable, Message: "video unavailable", Err: errors.New(lastLine(res.Stderr))}
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return &Error{Reason: ReasonTool, Message: fmt.Sprintf("run %s", a.tool), Err: err}
		}
		return &Error{
			Reason:  ReasonTool,
			Message: fmt.Sprintf("%s exited with code %d: %s", a.tool, res.ExitCode, tail(strings.TrimSpace(res.Stderr), stderrTail)),
		}
	}

	produced, err := findOutput(base, dest)
	if err != nil {
		return &Error{Reason: ReasonIO, Message: "scan download output", Err: err}
	}
	if produced == "" {
		return &Error{Reason: ReasonMissingOutput, Message: "tool reported success but produced no output file"}
	}
	if err := replaceFile(produced, dest); err != nil {
		return &Error{Reason: ReasonIO, Message: "move download into place", Err: err}
	}
	return nil
}

// findOutput locates what the tool wrote for base. The canonical dest wins,
// otherwise the largest finished candidate.
func findOutput(base, dest string) (string, error) {
	dir := filepath.Dir(base)
	prefix := filepath.Base(base) + "."
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	best := ""
	var bestSize int64 = -1
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		if strings.HasSuffix(name, ".part") || strings.HasSuffix(name, ".ytdl") {
			continue
		}
		candidate := filepath.Join(dir, name)
		if candidate == dest {
			return dest, nil
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > bestSize {
			best, bestSize = candidate, info.Size()
		}
	}
	return best, nil
}

func replaceFile(src, dest string) error {
	if src == dest {
		return nil
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove existing target: %w", err)
	}
	if err := os.Rename(src, dest); err != nil {
		return fmt.Errorf("rename download output: %w", err)
	}
	return nil
}

type sizeLimitError struct {
	limit int64
}

func (e *sizeLimitError) Error() string {
	return fmt.Sprintf("body exceeds limit of %d bytes", e.limit)
}

// writeFile copies r into a new file at path. A positive limit fails the
// copy once more than limit bytes arrive.
func writeFile(path string, r io.Reader, limit int64) (int64, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, err
	}
	if limit > 0 && n > limit {
		return n, &sizeLimitError{limit: limit}
	}
	return n, nil
}

func statusLine(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

func unavailable(stderr string) bool {
	for _, marker := range unavailableMarkers {
		if strings.Contains(stderr, marker) {
			return true
		}
	}
	return false
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
