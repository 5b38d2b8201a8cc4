// Package progress encodes and decodes the worker's progress lines.
//
// A progress line is the literal Marker followed by one JSON object. Lines
// share the worker's diagnostic channel with free-form log text, so Decode
// reports whether a line carried an event instead of returning an error.
package progress

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Marker prefixes every progress line emitted by the worker.
const Marker = "PROGRESS:"

// Kind classifies an event.
type Kind string

const (
	KindProgress Kind = "progress"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
)

// Stage is the symbolic label the worker reports for its current step.
type Stage string

const (
	StageInitializing          Stage = "initializing"
	StageAnalyzingAudio        Stage = "analyzing_audio"
	StageLoadingModel          Stage = "loading_model"
	StageInitializingPipeline  Stage = "initializing_pipeline"
	StageModelReady            Stage = "model_ready"
	StageStartingTranscription Stage = "starting_transcription"
	StageProcessingComplete    Stage = "processing_complete"
	StageFinalizing            Stage = "finalizing"
	StageComplete              Stage = "complete"
)

// Event is one progress update from the worker.
type Event struct {
	Kind               Kind     `json:"type,omitempty"`
	Percentage         float64  `json:"percentage"`
	Stage              Stage    `json:"stage"`
	ElapsedTime        float64  `json:"elapsed_time"`
	EstimatedTotalTime *float64 `json:"estimated_total_time"`
	Timestamp          string   `json:"timestamp,omitempty"`
}

// Encode renders ev as a single progress line without a trailing newline.
func Encode(ev Event) (string, error) {
	if ev.Kind == "" {
		ev.Kind = KindProgress
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("encode progress: %w", err)
	}
	return Marker + string(payload), nil
}

// Decode extracts an event from line. The marker does not have to sit at
// offset zero; anything before it is treated as a diagnostic prefix. ok is
// false for lines without the marker and for marker lines whose payload is
// not a JSON object.
func Decode(line string) (Event, bool) {
	idx := strings.Index(line, Marker)
	if idx < 0 {
		return Event{}, false
	}
	payload := strings.TrimSpace(line[idx+len(Marker):])
	if !strings.HasPrefix(payload, "{") {
		return Event{}, false
	}

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, false
	}
	if ev.Kind == "" {
		ev.Kind = KindProgress
	}
	ev.Percentage = Clamp(ev.Percentage)
	return ev, true
}

// Clamp bounds a percentage to [0, 100].
func Clamp(pct float64) float64 {
	switch {
	case pct < 0:
		return 0
	case pct > 100:
		return 100
	default:
		return pct
	}
}

// Float returns a pointer to v, for optional estimates.
func Float(v float64) *float64 {
	return &v
}
