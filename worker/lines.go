package worker

import (
	"bytes"
	"sync"
)

// maxLineBytes caps how much of an unterminated line is buffered before it
// is handed on as-is.
const maxLineBytes = 1 << 20

// lineWriter splits a byte stream into lines and hands each complete line to
// onLine, in order. The trailing partial line is held until more bytes
// arrive or Flush is called.
type lineWriter struct {
	mu      sync.Mutex
	pending []byte
	onLine  func(string)
}

func newLineWriter(onLine func(string)) *lineWriter {
	return &lineWriter{onLine: onLine}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, p...)
	for {
		idx := bytes.IndexByte(w.pending, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimRight(w.pending[:idx], "\r"))
		w.pending = w.pending[idx+1:]
		w.onLine(line)
	}
	if len(w.pending) > maxLineBytes {
		line := string(w.pending)
		w.pending = nil
		w.onLine(line)
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.pending) == 0 {
		return
	}
	line := string(bytes.TrimRight(w.pending, "\r"))
	w.pending = nil
	w.onLine(line)
}
