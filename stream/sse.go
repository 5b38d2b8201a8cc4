package stream

import (
	"errors"
	"net/http"
	"sync"
	"time"
)

const sseWriteWait = 10 * time.Second

// SSESink writes frames as server-sent events, flushing after each record.
//
// The response is committed by Open or by the first Send. Heartbeats before
// that are skipped, so a handler can keep reading its request body until it
// decides to start the stream.
type SSESink struct {
	mu   sync.Mutex
	w    http.ResponseWriter
	rc   *http.ResponseController
	open bool
}

func NewSSESink(w http.ResponseWriter) *SSESink {
	return &SSESink{w: w, rc: http.NewResponseController(w)}
}

// Open sets the event-stream headers and commits the response. It is safe
// to call more than once.
func (s *SSESink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked()
}

func (s *SSESink) openLocked() error {
	if s.open {
		return nil
	}
	h := s.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	s.w.WriteHeader(http.StatusOK)
	s.open = true
	return s.rc.Flush()
}

// Opened reports whether the response has been committed.
func (s *SSESink) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *SSESink) Send(f Frame) error {
	record, err := EncodeSSE(f)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openLocked(); err != nil {
		return err
	}
	return s.emit(record)
}

func (s *SSESink) Heartbeat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	return s.emit([]byte(KeepAlive))
}

func (s *SSESink) emit(record []byte) error {
	err := s.rc.SetWriteDeadline(time.Now().Add(sseWriteWait))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := s.w.Write(record); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Finish clears the write deadline left by the last frame, so a kept-alive
// connection is not cut during a later response.
func (s *SSESink) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open {
		_ = s.rc.SetWriteDeadline(time.Time{})
	}
}
