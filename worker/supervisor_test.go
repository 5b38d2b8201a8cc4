package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/relayscribe/progress"
)

// writeScript writes an executable shell script that stands in for the worker.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newSupervisor(t *testing.T, script string) *Supervisor {
	t.Helper()
	s, err := New(Config{Command: []string{script}, KillGrace: 200 * time.Millisecond}, nil)
	require.NoError(t, err)
	return s
}

func collect(events *[]progress.Event) func(progress.Event) {
	return func(ev progress.Event) {
		*events = append(*events, ev)
	}
}

func TestRunSuccessWithProgress(t *testing.T) {
	script := writeScript(t, `
echo "Analyzing audio file..." >&2
echo 'PROGRESS:{"type":"progress","percentage":2,"stage":"analyzing_audio","elapsed_time":0.0,"estimated_total_time":null,"timestamp":"a"}' >&2
echo "Using CPU processing" >&2
echo 'PROGRESS:{"type":"progress","percentage":10,"stage":"model_ready","elapsed_time":1.5,"estimated_total_time":null,"timestamp":"b"}' >&2
echo 'PROGRESS:{"percentage": 55, "stage": "start' >&2
echo 'PROGRESS:{"type":"progress","percentage":95,"stage":"finalizing","elapsed_time":9.0,"estimated_total_time":9.5,"timestamp":"c"}' >&2
printf 'noise before payload\n{\n  "success": true,\n  "text": " hello {world} ",\n'
printf '  "processing_time": 9.12,\n  "model_used": "openai/whisper-small",\n  "audio_duration": 20.5,\n'
printf '  "chunks": [{"text": "hello", "start": 0.0, "end": 1.2}]\n}\ntrailing\n'
echo "input=$1" >&2
`)
	s := newSupervisor(t, script)

	var events []progress.Event
	res, err := s.Run(context.Background(), "/tmp/job-abc.mp3", collect(&events))
	require.NoError(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, progress.StageAnalyzingAudio, events[0].Stage)
	assert.Equal(t, progress.StageModelReady, events[1].Stage)
	assert.Equal(t, 95.0, events[2].Percentage)
	require.NotNil(t, events[2].EstimatedTotalTime)
	assert.Equal(t, 9.5, *events[2].EstimatedTotalTime)

	assert.True(t, res.Success)
	assert.Equal(t, "hello {world}", res.Text)
	assert.Equal(t, 9.12, res.ProcessingTime)
	assert.Equal(t, "openai/whisper-small", res.ModelUsed)
	assert.Equal(t, 20.5, res.AudioDuration)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, 1.2, res.Chunks[0].End)
}

func TestRunPassesArtifactPath(t *testing.T) {
	script := writeScript(t, `printf '{"success":true,"text":"%s","processing_time":0}' "$1"`)
	s := newSupervisor(t, script)

	res, err := s.Run(context.Background(), "/data/job-1.wav", nil)
	require.NoError(t, err)
	assert.Equal(t, "/data/job-1.wav", res.Text)
}

func TestRunNonZeroExitAfterProgress(t *testing.T) {
	script := writeScript(t, `
echo 'PROGRESS:{"percentage":5,"stage":"loading_model","elapsed_time":0.2}' >&2
echo 'PROGRESS:{"percentage":10,"stage":"model_ready","elapsed_time":0.4}' >&2
echo "Traceback: CUDA out of memory" >&2
echo '{"success": false, "error": "Transcription failed: CUDA out of memory", "processing_time": 0.5}'
exit 3
`)
	s := newSupervisor(t, script)

	var events []progress.Event
	_, err := s.Run(context.Background(), "a.wav", collect(&events))
	require.Error(t, err)
	assert.Len(t, events, 2)

	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, "Transcription failed: CUDA out of memory", exitErr.Message)
	assert.Contains(t, exitErr.Diagnostics, "Traceback: CUDA out of memory")
	assert.NotContains(t, exitErr.Diagnostics, "PROGRESS:")
	assert.Contains(t, err.Error(), "CUDA out of memory")
}

func TestRunDegradedPlainText(t *testing.T) {
	script := writeScript(t, `printf '  just some words\n\n'`)
	s := newSupervisor(t, script)

	res, err := s.Run(context.Background(), "a.wav", nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "just some words", res.Text)
}

func TestRunResultParseError(t *testing.T) {
	script := writeScript(t, `echo '{not json at all}'`)
	s := newSupervisor(t, script)

	_, err := s.Run(context.Background(), "a.wav", nil)
	var parseErr *ResultParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "{not json at all}", parseErr.Raw)
}

func TestRunReportedFailureWithCleanExit(t *testing.T) {
	script := writeScript(t, `echo '{"success": false, "error": "Audio file not found: x"}'`)
	s := newSupervisor(t, script)

	_, err := s.Run(context.Background(), "a.wav", nil)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 0, exitErr.Code)
	assert.Equal(t, "Audio file not found: x", exitErr.Message)
}

func TestRunSpawnError(t *testing.T) {
	s := newSupervisor(t, filepath.Join(t.TempDir(), "missing-worker"))

	_, err := s.Run(context.Background(), "a.wav", nil)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.True(t, errors.Is(err, os.ErrNotExist), "err = %v", err)
}

func TestRunCancelTerminatesWorker(t *testing.T) {
	script := writeScript(t, `
echo 'PROGRESS:{"percentage":10,"stage":"model_ready","elapsed_time":0.4}' >&2
exec sleep 30
`)
	s := newSupervisor(t, script)

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go func() {
		<-started
		cancel()
	}()

	begin := time.Now()
	_, err := s.Run(ctx, "a.wav", func(progress.Event) { close(started) })
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(begin), 10*time.Second)
}

func TestRunTimeout(t *testing.T) {
	script := writeScript(t, "exec sleep 30\n")
	s, err := New(Config{Command: []string{script}, Timeout: 100 * time.Millisecond, KillGrace: 100 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = s.Run(context.Background(), "a.wav", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "time budget")
}

func TestNewRequiresCommand(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
