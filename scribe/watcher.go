package scribe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// audioExtensions are the inbox files picked up for transcription. Partial
// downloads (.part) and temporaries (.tmp) never match.
var audioExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".m4a":  true,
	".flac": true,
	".ogg":  true,
	".webm": true,
	".mp4":  true,
	".aac":  true,
}

// inboxJob is a file waiting for an inbox worker.
type inboxJob struct {
	Path   string
	Queued time.Time
}

func (s *Scribe) watchInbox(ctx context.Context) error {
	defer s.stopSettling()

	if err := s.watcher.Add(s.config.InboxDir); err != nil {
		return fmt.Errorf("watch inbox %s: %w", s.config.InboxDir, err)
	}
	s.logger.Info("watching inbox", "path", s.config.InboxDir)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-s.watcher.Events:
			if !ok {
				return nil
			}
			s.handleFSEvent(event)

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("inbox watcher error", "error", err)
		}
	}
}

// handleFSEvent debounces writes: a file is queued once it has gone
// InboxSettle without another create or write event.
func (s *Scribe) handleFSEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !isInboxAudio(event.Name) {
		return
	}

	s.settleMu.Lock()
	defer s.settleMu.Unlock()
	if t, ok := s.settling[event.Name]; ok {
		t.Reset(s.config.InboxSettle)
		return
	}
	path := event.Name
	s.settling[path] = time.AfterFunc(s.config.InboxSettle, func() {
		s.settleMu.Lock()
		delete(s.settling, path)
		s.settleMu.Unlock()

		if err := s.enqueue(path); err != nil {
			s.logger.Error("failed to queue inbox file", "error", err, "file", path)
		}
	})
}

func (s *Scribe) stopSettling() {
	s.settleMu.Lock()
	defer s.settleMu.Unlock()
	for path, t := range s.settling {
		t.Stop()
		delete(s.settling, path)
	}
}

func isInboxAudio(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return audioExtensions[strings.ToLower(filepath.Ext(base))]
}

func (s *Scribe) enqueue(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		// Moved away or deleted before it settled.
		return nil
	}

	select {
	case s.queue <- inboxJob{Path: path, Queued: time.Now()}:
		s.logger.Info("queued inbox file", "file", filepath.Base(path), "bytes", info.Size())
	default:
		return fmt.Errorf("inbox queue is full")
	}
	return nil
}
