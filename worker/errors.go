package worker

import (
	"fmt"
	"strings"
)

// diagnosticTail bounds how much diagnostic text Error() repeats.
const diagnosticTail = 4096

// SpawnError reports that the worker process could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("start worker %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ExitError reports a worker that ran and failed. Code is the process exit
// status; it is zero when the worker exited cleanly but reported failure in
// its result payload. Diagnostics holds every non-progress line the worker
// wrote to its diagnostic channel.
type ExitError struct {
	Code        int
	Message     string
	Diagnostics string
}

func (e *ExitError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "worker exited with code %d", e.Code)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if diag := tail(strings.TrimSpace(e.Diagnostics), diagnosticTail); diag != "" {
		b.WriteString(": ")
		b.WriteString(diag)
	}
	return b.String()
}

// ResultParseError reports a clean exit whose result payload is not valid JSON.
type ResultParseError struct {
	Raw string
	Err error
}

func (e *ResultParseError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("parse worker result: %v", e.Err)
}

func (e *ResultParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
