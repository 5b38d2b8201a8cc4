// Package scribe is the transcription HTTP service: job submission with
// live progress streams, the job registry and the inbox watcher.
package scribe

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/bosley/relayscribe/acquire"
	"github.com/bosley/relayscribe/artifact"
)

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultInboxWorkers    = 2
	defaultInboxQueueSize  = 100
	defaultInboxSettle     = 500 * time.Millisecond
)

// Configuration for the Scribe service
type Config struct {
	// HTTP server address
	Addr string

	// Certificate files for TLS. Both or neither.
	CertFile string
	KeyFile  string

	// Keepalive interval on live streams. Zero disables it.
	Heartbeat time.Duration

	// Upload body limit. Zero means no limit.
	MaxUploadBytes int64

	ShutdownTimeout time.Duration

	// Directory watched for audio files. Empty disables the inbox.
	InboxDir       string
	InboxWorkers   int
	InboxQueueSize int
	// How long an inbox file must be quiet before it is queued.
	InboxSettle time.Duration
}

// Scribe manages the transcription service
type Scribe struct {
	config Config
	logger *slog.Logger

	artifacts   *artifact.Store
	acquirer    *acquire.Acquirer
	transcriber Transcriber
	jobs        *JobList

	// Inbox
	watcher  *fsnotify.Watcher
	queue    chan inboxJob
	settleMu sync.Mutex
	settling map[string]*time.Timer

	// HTTP/Websocket
	server   *http.Server
	upgrader websocket.Upgrader
}

// New creates a new Scribe instance
func New(cfg Config, artifacts *artifact.Store, acquirer *acquire.Acquirer, transcriber Transcriber, logger *slog.Logger) (*Scribe, error) {
	if artifacts == nil || acquirer == nil || transcriber == nil {
		return nil, errors.New("scribe: artifact store, acquirer and transcriber are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.InboxWorkers <= 0 {
		cfg.InboxWorkers = defaultInboxWorkers
	}
	if cfg.InboxQueueSize <= 0 {
		cfg.InboxQueueSize = defaultInboxQueueSize
	}
	if cfg.InboxSettle <= 0 {
		cfg.InboxSettle = defaultInboxSettle
	}

	s := &Scribe{
		config:      cfg,
		logger:      logger.With("component", "scribe"),
		artifacts:   artifacts,
		acquirer:    acquirer,
		transcriber: transcriber,
		jobs:        NewJobList(),
		queue:       make(chan inboxJob, cfg.InboxQueueSize),
		settling:    make(map[string]*time.Timer),
	}

	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS certificates: %w", err)
		}
		s.server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	if cfg.InboxDir != "" {
		if err := os.MkdirAll(cfg.InboxDir, 0o755); err != nil {
			return nil, fmt.Errorf("create inbox: %w", err)
		}
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		s.watcher = watcher
	}

	return s, nil
}

// Handler is the service's HTTP handler.
func (s *Scribe) Handler() http.Handler {
	return s.server.Handler
}

// Jobs is the registry of running jobs.
func (s *Scribe) Jobs() *JobList {
	return s.jobs
}

// Start listens on the configured address and serves until ctx is done.
func (s *Scribe) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the HTTP server, the inbox watcher and the inbox workers on ln
// until ctx is done or one of them fails, then shuts everything down.
func (s *Scribe) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening",
			"addr", ln.Addr().String(),
			"tls", s.server.TLSConfig != nil,
			"inbox", s.config.InboxDir)
		var err error
		if s.server.TLSConfig != nil {
			err = s.server.ServeTLS(ln, "", "")
		} else {
			err = s.server.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	if s.watcher != nil {
		g.Go(func() error {
			return s.watchInbox(gctx)
		})
		for i := range s.config.InboxWorkers {
			g.Go(func() error {
				return s.inboxWorker(gctx, i)
			})
		}
	}

	return g.Wait()
}

// shutdown cancels running jobs, then stops the HTTP server and the watcher.
func (s *Scribe) shutdown() error {
	cancelled := s.jobs.CancelAll(errShuttingDown)
	s.logger.Info("shutting down", "cancelledJobs", cancelled)

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close file watcher: %w", err))
		}
	}
	return errors.Join(errs...)
}

func roundedSince(t time.Time) string {
	return time.Since(t).Round(time.Millisecond).String()
}
