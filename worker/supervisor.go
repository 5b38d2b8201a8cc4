// Package worker supervises the external transcription process.
//
// The worker is invoked as `<command...> <artifact-path>`. Its stdout is
// reserved for one final JSON result; its stderr carries progress lines
// (see package progress) interleaved with free-form diagnostics. The two
// channels are never mixed: a corrupt diagnostic line cannot damage the
// result and log noise never needs structured parsing.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/bosley/relayscribe/progress"
	"github.com/bosley/relayscribe/transcript"
)

const defaultKillGrace = 5 * time.Second

// Config describes how to launch the worker.
type Config struct {
	// Command is the argv prefix; the artifact path is appended.
	Command []string
	// Env is appended to the server's environment.
	Env []string
	// Timeout bounds one run. Zero means no limit.
	Timeout time.Duration
	// KillGrace is how long a cancelled worker has to exit after SIGTERM.
	KillGrace time.Duration
}

// Supervisor runs one worker process per call to Run.
type Supervisor struct {
	command   []string
	env       []string
	timeout   time.Duration
	killGrace time.Duration
	logger    *slog.Logger
}

// New validates cfg and builds a Supervisor.
func New(cfg Config, logger *slog.Logger) (*Supervisor, error) {
	if len(cfg.Command) == 0 || strings.TrimSpace(cfg.Command[0]) == "" {
		return nil, errors.New("worker command is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	killGrace := cfg.KillGrace
	if killGrace <= 0 {
		killGrace = defaultKillGrace
	}
	return &Supervisor{
		command:   append([]string(nil), cfg.Command...),
		env:       append([]string(nil), cfg.Env...),
		timeout:   cfg.Timeout,
		killGrace: killGrace,
		logger:    logger.With("component", "worker"),
	}, nil
}

// Run transcribes artifactPath. onProgress is called for every progress line,
// in the order the worker wrote them, from a single goroutine. It must not
// block for long: the worker stalls on its diagnostic channel while it does.
//
// Cancelling ctx sends SIGTERM to the worker and kills it after the grace
// period; the returned error then wraps ctx.Err().
func (s *Supervisor) Run(ctx context.Context, artifactPath string, onProgress func(progress.Event)) (transcript.Result, error) {
	runCtx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), s.command[1:]...), artifactPath)
	cmd := exec.CommandContext(runCtx, s.command[0], args...) //nolint:gosec
	if len(s.env) > 0 {
		cmd.Env = append(os.Environ(), s.env...)
	}
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = s.killGrace

	var stdout bytes.Buffer
	var diagMu sync.Mutex
	var diagnostics strings.Builder
	events := 0

	stderr := newLineWriter(func(line string) {
		if ev, ok := progress.Decode(line); ok {
			events++
			if onProgress != nil {
				onProgress(ev)
			}
			return
		}
		if strings.Contains(line, progress.Marker) {
			s.logger.Warn("dropping malformed progress line", "line", line)
		} else if strings.TrimSpace(line) != "" {
			s.logger.Debug("worker output", "line", line)
		}
		diagMu.Lock()
		diagnostics.WriteString(line)
		diagnostics.WriteByte('\n')
		diagMu.Unlock()
	})
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	started := time.Now()
	s.logger.Debug("starting worker", "command", cmd.String())
	if err := cmd.Start(); err != nil {
		return transcript.Result{}, &SpawnError{Command: s.command[0], Err: err}
	}

	waitErr := cmd.Wait()
	stderr.Flush()

	diagMu.Lock()
	diag := diagnostics.String()
	diagMu.Unlock()

	s.logger.Info("worker finished",
		"pid", cmd.Process.Pid,
		"duration", time.Since(started).Round(time.Millisecond).String(),
		"progressEvents", events,
		"stdoutBytes", stdout.Len())

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if ctx.Err() == nil && errors.Is(ctxErr, context.DeadlineExceeded) {
			return transcript.Result{}, fmt.Errorf("worker exceeded time budget of %s: %w", s.timeout, ctxErr)
		}
		return transcript.Result{}, fmt.Errorf("worker cancelled: %w", ctxErr)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return transcript.Result{}, &ExitError{
				Code:        exitErr.ExitCode(),
				Message:     workerMessage(stdout.String()),
				Diagnostics: diag,
			}
		}
		return transcript.Result{}, fmt.Errorf("wait worker: %w", waitErr)
	}

	result, err := ParseResult(stdout.String())
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			exitErr.Diagnostics = diag
		}
		return transcript.Result{}, err
	}
	return result, nil
}
