// Package client consumes a transcription event stream and submits jobs to
// a relayscribe server.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/bosley/relayscribe/progress"
	"github.com/bosley/relayscribe/stream"
	"github.com/bosley/relayscribe/transcript"
)

// State is the consumer's position in idle → starting → <stage>* → complete|error.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateComplete State = "complete"
	StateError    State = "error"
)

// Snapshot is what a UI renders.
type Snapshot struct {
	State              State
	Percentage         float64
	Stage              progress.Stage
	ElapsedTime        float64
	EstimatedTotalTime *float64
	Result             *transcript.Result
	Error              string
}

// Consumer is an incremental decoder for an SSE frame stream. Feed it bytes
// in whatever pieces the transport delivers; records split across reads are
// reassembled and several records in one read are all processed.
type Consumer struct {
	buf      []byte
	snap     Snapshot
	onUpdate func(Snapshot)
}

// NewConsumer returns an idle consumer. onUpdate, when non-nil, is called
// after every state change.
func NewConsumer(onUpdate func(Snapshot)) *Consumer {
	return &Consumer{
		snap:     Snapshot{State: StateIdle},
		onUpdate: onUpdate,
	}
}

// Start marks the request as sent.
func (c *Consumer) Start() {
	if c.snap.State != StateIdle {
		return
	}
	c.snap.State = StateStarting
	c.notify()
}

// Snapshot returns the current state.
func (c *Consumer) Snapshot() Snapshot {
	return c.snap
}

// Done reports whether a terminal frame has been seen.
func (c *Consumer) Done() bool {
	return c.snap.State == StateComplete || c.snap.State == StateError
}

// Feed processes one chunk of the stream. It returns a *StreamProtocolError
// for a record whose JSON does not decode; the consumer stays usable.
// Bytes after the terminal frame are ignored.
func (c *Consumer) Feed(chunk []byte) error {
	if c.Done() {
		return nil
	}
	if c.snap.State == StateIdle {
		c.Start()
	}
	chunk = bytes.ReplaceAll(chunk, []byte("\r"), nil)
	c.buf = append(c.buf, chunk...)

	for !c.Done() {
		idx := bytes.Index(c.buf, []byte("\n\n"))
		if idx < 0 {
			break
		}
		record := string(c.buf[:idx])
		c.buf = c.buf[idx+2:]
		if err := c.handleRecord(record); err != nil {
			return err
		}
	}
	if c.Done() {
		c.buf = nil
	}
	return nil
}

// Consume reads r until a terminal frame arrives. Running out of input
// first is an error.
func (c *Consumer) Consume(r io.Reader) error {
	c.Start()
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := c.Feed(buf[:n]); ferr != nil {
				return ferr
			}
			if c.Done() {
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			if len(bytes.TrimSpace(c.buf)) > 0 {
				if ferr := c.Feed([]byte("\n\n")); ferr != nil {
					return ferr
				}
				if c.Done() {
					return nil
				}
			}
			return &StreamProtocolError{Reason: "stream ended before a terminal frame"}
		}
		if err != nil {
			return fmt.Errorf("read event stream: %w", err)
		}
	}
}

func (c *Consumer) handleRecord(record string) error {
	var data []string
	for _, line := range strings.Split(record, "\n") {
		switch {
		case line == "" || strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if len(data) == 0 {
		return nil
	}

	payload := strings.Join(data, "\n")
	var frame stream.Frame
	if err := json.Unmarshal([]byte(payload), &frame); err != nil {
		return &StreamProtocolError{Reason: "malformed frame", Payload: payload, Err: err}
	}
	c.apply(frame)
	return nil
}

func (c *Consumer) apply(f stream.Frame) {
	switch f.Type {
	case stream.TypeProgress:
		ev := f.Progress
		c.snap.State = StateRunning
		if ev.Percentage > c.snap.Percentage {
			c.snap.Percentage = ev.Percentage
		}
		if ev.Stage != "" {
			c.snap.Stage = ev.Stage
		}
		c.snap.ElapsedTime = ev.ElapsedTime
		c.snap.EstimatedTotalTime = ev.EstimatedTotalTime
	case stream.TypeComplete:
		c.snap.State = StateComplete
		c.snap.Percentage = 100
		c.snap.Stage = progress.StageComplete
		c.snap.Result = f.Result
	case stream.TypeError:
		c.snap.State = StateError
		c.snap.Error = f.Error
	}
	c.notify()
}

func (c *Consumer) notify() {
	if c.onUpdate != nil {
		c.onUpdate(c.snap)
	}
}
