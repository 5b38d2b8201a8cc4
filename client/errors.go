package client

import "fmt"

// StreamProtocolError reports a stream that violates the frame protocol:
// undecodable frame JSON, or input ending before the terminal frame.
type StreamProtocolError struct {
	Reason  string
	Payload string
	Err     error
}

func (e *StreamProtocolError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("stream protocol: %s: %v", e.Reason, e.Err)
	}
	return "stream protocol: " + e.Reason
}

func (e *StreamProtocolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// JobError is the failure the server reported for a job, either as an
// error frame or as a JSON error body.
type JobError struct {
	StatusCode int
	Message    string
}

func (e *JobError) Error() string {
	if e == nil {
		return ""
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcription failed (%d): %s", e.StatusCode, e.Message)
	}
	return "transcription failed: " + e.Message
}
