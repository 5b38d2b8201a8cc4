package progress

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	events := []Event{
		{Kind: KindProgress, Percentage: 2, Stage: StageAnalyzingAudio, ElapsedTime: 0.1, Timestamp: "2026-10-19T07:00:00.000001"},
		{Kind: KindProgress, Percentage: 47.5, Stage: StageStartingTranscription, ElapsedTime: 12.3, EstimatedTotalTime: Float(25.9), Timestamp: "2026-10-19T07:00:12.3"},
		{Kind: KindProgress, Percentage: 100, Stage: StageComplete, ElapsedTime: 30, EstimatedTotalTime: Float(30), Timestamp: "t"},
		{Kind: KindProgress, Percentage: 10, Stage: Stage("custom_stage"), ElapsedTime: 1},
	}

	for _, ev := range events {
		line, err := Encode(ev)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(line, Marker), "line %q", line)

		got, ok := Decode(line)
		require.True(t, ok, "decode %q", line)
		assert.Equal(t, ev, got)
	}
}

func TestEncodeDefaultsKind(t *testing.T) {
	line, err := Encode(Event{Percentage: 5, Stage: StageLoadingModel})
	require.NoError(t, err)
	assert.Contains(t, line, `"type":"progress"`)
	assert.Contains(t, line, `"estimated_total_time":null`)
}

func TestDecodeWorkerLine(t *testing.T) {
	line := `PROGRESS:{"type": "progress", "percentage": 8, "stage": "initializing_pipeline", "elapsed_time": 1.4, "estimated_total_time": null, "timestamp": "2026-10-19T07:00:01.4"}`

	ev, ok := Decode(line)
	require.True(t, ok)
	assert.Equal(t, 8.0, ev.Percentage)
	assert.Equal(t, StageInitializingPipeline, ev.Stage)
	assert.Nil(t, ev.EstimatedTotalTime)
}

func TestDecodeToleratesPrefix(t *testing.T) {
	ev, ok := Decode(`[worker] 07:00:01 PROGRESS:{"percentage":15,"stage":"model_ready","elapsed_time":2}` + "\r")
	require.True(t, ok)
	assert.Equal(t, 15.0, ev.Percentage)
	assert.Equal(t, KindProgress, ev.Kind)
}

func TestDecodeRejectsNonProgressLines(t *testing.T) {
	lines := []string{
		"",
		"Using CPU processing",
		"Loading Whisper model: openai/whisper-small",
		"PROGRESS:",
		`PROGRESS:{"percentage": 12, "stage": "loa`,
		"PROGRESS:not json",
		`PROGRESS:[1,2,3]`,
		`PROGRESS:{"percentage":"ten"}`,
	}
	for _, line := range lines {
		_, ok := Decode(line)
		assert.False(t, ok, "line %q", line)
	}
}

func TestDecodeClampsPercentage(t *testing.T) {
	ev, ok := Decode(`PROGRESS:{"percentage":140,"stage":"finalizing","elapsed_time":1}`)
	require.True(t, ok)
	assert.Equal(t, 100.0, ev.Percentage)

	ev, ok = Decode(`PROGRESS:{"percentage":-3,"stage":"initializing","elapsed_time":0}`)
	require.True(t, ok)
	assert.Equal(t, 0.0, ev.Percentage)
}
