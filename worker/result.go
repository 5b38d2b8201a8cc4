package worker

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/bosley/relayscribe/transcript"
)

// resultPayload mirrors transcript.Result but keeps success optional so a
// payload without the field is not mistaken for a failure.
type resultPayload struct {
	Success        *bool              `json:"success"`
	Text           string             `json:"text"`
	ProcessingTime float64            `json:"processing_time"`
	Chunks         []transcript.Chunk `json:"chunks"`
	AudioDuration  float64            `json:"audio_duration"`
	ModelUsed      string             `json:"model_used"`
	Error          string             `json:"error"`
}

// ParseResult interprets the worker's primary output after a clean exit.
//
// The first balanced JSON object anywhere in output is the payload. Output
// without any object is a plain-text transcript. A balanced object that is
// not valid JSON yields a *ResultParseError; a payload reporting
// success=false yields an *ExitError with code 0.
func ParseResult(output string) (transcript.Result, error) {
	raw, found := ExtractJSONObject(output)
	if !found {
		return transcript.Result{Success: true, Text: strings.TrimSpace(output)}, nil
	}

	var payload resultPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return transcript.Result{}, &ResultParseError{Raw: raw, Err: err}
	}

	if payload.Success != nil && !*payload.Success {
		msg := payload.Error
		if msg == "" {
			msg = "worker reported failure"
		}
		return transcript.Result{}, &ExitError{Code: 0, Message: msg}
	}

	return transcript.Result{
		Success:        true,
		Text:           strings.TrimSpace(payload.Text),
		ProcessingTime: payload.ProcessingTime,
		Chunks:         payload.Chunks,
		AudioDuration:  payload.AudioDuration,
		ModelUsed:      payload.ModelUsed,
	}, nil
}

// workerMessage pulls the error message out of a failure payload, if any.
func workerMessage(output string) string {
	raw, found := ExtractJSONObject(output)
	if !found {
		return ""
	}
	var payload resultPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return ""
	}
	return payload.Error
}

// ExtractJSONObject returns the first balanced-brace object in s. A later
// top-level span that parses as JSON wins over earlier ones that do not, so
// stray braces in log text ahead of the payload are skipped; when no span
// parses the first balanced one is returned. Spans nested inside a balanced
// span are never considered on their own.
func ExtractJSONObject(s string) (string, bool) {
	var first string
	found := false
	pos := 0
	for pos < len(s) {
		idx := strings.IndexByte(s[pos:], '{')
		if idx < 0 {
			break
		}
		start := pos + idx
		end, err := matchBrace(s, start)
		if err != nil {
			pos = start + 1
			continue
		}
		candidate := s[start : end+1]
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
		if !found {
			first, found = candidate, true
		}
		pos = end + 1
	}
	return first, found
}

var errUnbalanced = errors.New("unbalanced braces")

// matchBrace returns the index of the brace closing the one at start,
// ignoring braces inside JSON strings.
func matchBrace(s string, start int) (int, error) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return -1, errUnbalanced
}
