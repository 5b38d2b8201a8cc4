package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/relayscribe/client"
	"github.com/bosley/relayscribe/progress"
	"github.com/bosley/relayscribe/transcript"
)

func TestIsRemoteURL(t *testing.T) {
	assert.True(t, isRemoteURL("https://example.com/a.mp3"))
	assert.True(t, isRemoteURL("http://youtu.be/abc"))
	assert.False(t, isRemoteURL("memo.wav"))
	assert.False(t, isRemoteURL("/tmp/https.wav"))
	assert.False(t, isRemoteURL("ftp://example.com/a.mp3"))
}

func TestPrintResultTable(t *testing.T) {
	var out, errOut bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)

	res := transcript.Result{
		Success:        true,
		Text:           " hello there ",
		ProcessingTime: 1.5,
		ModelUsed:      "whisper-base",
		Chunks: []transcript.Chunk{
			{Text: "hello", Start: 0, End: 0.5},
			{Text: "there", Start: 0.5, End: 1.25},
		},
	}
	require.NoError(t, printResult(cmd, res, false))

	lines := strings.Split(out.String(), "\n")
	assert.Equal(t, "hello there", lines[0])
	assert.Contains(t, out.String(), "Start")
	assert.Contains(t, out.String(), "1.25s")
	assert.Equal(t, "processed in 1.5s, model whisper-base\n", errOut.String())
}

func TestPrintResultJSON(t *testing.T) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	require.NoError(t, printResult(cmd, transcript.Result{Success: true, Text: "hi"}, true))
	assert.JSONEq(t, `{"success":true,"text":"hi","processing_time":0}`, out.String())
}

func TestProgressLine(t *testing.T) {
	var buf bytes.Buffer
	line := newProgressLine(&buf, true)
	line.update(client.Snapshot{State: client.StateStarting})
	line.update(client.Snapshot{State: client.StateRunning, Percentage: 42, Stage: progress.StageLoadingModel, ElapsedTime: 2, EstimatedTotalTime: progress.Float(10)})
	line.update(client.Snapshot{State: client.StateRunning, Percentage: 42, Stage: progress.StageLoadingModel, ElapsedTime: 2, EstimatedTotalTime: progress.Float(10)})
	line.finish()

	assert.Equal(t, 2, strings.Count(buf.String(), "\r"))
	assert.Contains(t, buf.String(), " 42.0%  loading_model")
	assert.Contains(t, buf.String(), "of ~10s")
	assert.True(t, strings.HasSuffix(buf.String(), "\n"))

	var quiet bytes.Buffer
	off := newProgressLine(&quiet, false)
	off.update(client.Snapshot{State: client.StateRunning, Percentage: 5})
	off.finish()
	assert.Empty(t, quiet.String())
}
