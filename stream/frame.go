// Package stream relays a job's progress to a remote client as a one-way
// sequence of frames: zero or more progress frames followed by exactly one
// terminal frame (complete or error).
package stream

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bosley/relayscribe/progress"
	"github.com/bosley/relayscribe/transcript"
)

// Type tags a frame on the wire.
type Type string

const (
	TypeProgress Type = "progress"
	TypeComplete Type = "complete"
	TypeError    Type = "error"
)

// KeepAlive is the SSE comment record sent as a heartbeat. Consumers ignore it.
const KeepAlive = ": keepalive\n\n"

// Frame is one relayed event. Exactly one of Progress, Result or Error is
// meaningful, selected by Type.
type Frame struct {
	Type     Type
	Progress progress.Event
	Result   *transcript.Result
	Error    string
}

// ProgressFrame wraps a worker progress event.
func ProgressFrame(ev progress.Event) Frame {
	return Frame{Type: TypeProgress, Progress: ev}
}

// CompleteFrame wraps the final transcript.
func CompleteFrame(res transcript.Result) Frame {
	return Frame{Type: TypeComplete, Result: &res}
}

// ErrorFrame carries a human-readable failure message.
func ErrorFrame(msg string) Frame {
	return Frame{Type: TypeError, Error: msg}
}

// Terminal reports whether the frame ends the stream.
func (f Frame) Terminal() bool {
	return f.Type == TypeComplete || f.Type == TypeError
}

type completeWire struct {
	Type   Type               `json:"type"`
	Result *transcript.Result `json:"result"`
}

type errorWire struct {
	Type  Type   `json:"type"`
	Error string `json:"error"`
}

// MarshalJSON renders the type-specific wire shape.
func (f Frame) MarshalJSON() ([]byte, error) {
	switch f.Type {
	case TypeProgress:
		ev := f.Progress
		ev.Kind = progress.KindProgress
		ev.Percentage = progress.Clamp(ev.Percentage)
		return json.Marshal(ev)
	case TypeComplete:
		if f.Result == nil {
			return nil, errors.New("complete frame without result")
		}
		return json.Marshal(completeWire{Type: TypeComplete, Result: f.Result})
	case TypeError:
		return json.Marshal(errorWire{Type: TypeError, Error: f.Error})
	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}
}

// UnmarshalJSON accepts any of the three wire shapes.
func (f *Frame) UnmarshalJSON(data []byte) error {
	var head struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Type {
	case TypeProgress:
		var ev progress.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			return err
		}
		ev.Percentage = progress.Clamp(ev.Percentage)
		*f = Frame{Type: TypeProgress, Progress: ev}
	case TypeComplete:
		var wire completeWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		if wire.Result == nil {
			return errors.New("complete frame without result")
		}
		*f = Frame{Type: TypeComplete, Result: wire.Result}
	case TypeError:
		var wire errorWire
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		*f = Frame{Type: TypeError, Error: wire.Error}
	case "":
		return errors.New("frame has no type")
	default:
		return fmt.Errorf("unknown frame type %q", head.Type)
	}
	return nil
}

// EncodeSSE renders f as a single SSE data record.
func EncodeSSE(f Frame) ([]byte, error) {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(payload) + 8)
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}
