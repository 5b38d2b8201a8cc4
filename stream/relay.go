package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bosley/relayscribe/progress"
	"github.com/bosley/relayscribe/transcript"
)

// Sink is a client-facing transport. Implementations need not be safe for
// concurrent use; the Relay serializes every call.
type Sink interface {
	Send(Frame) error
	Heartbeat() error
}

// Options tunes a Relay.
type Options struct {
	// Heartbeat is the keepalive interval while the job runs. Zero disables it.
	Heartbeat time.Duration
	// OnDisconnect runs once, on the first failed write.
	OnDisconnect func(error)
	Logger       *slog.Logger
}

// Relay forwards one job's frames to a Sink. Progress frames go out in the
// order they arrive; exactly one terminal frame is written and anything
// after it is dropped.
type Relay struct {
	mu       sync.Mutex
	sink     Sink
	terminal bool
	gone     bool
	sent     int

	onDisconnect func(error)
	logger       *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRelay wraps sink and starts the heartbeat loop.
func NewRelay(sink Sink, opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Relay{
		sink:         sink,
		onDisconnect: opts.OnDisconnect,
		logger:       logger,
		stop:         make(chan struct{}),
	}
	if opts.Heartbeat > 0 {
		r.wg.Add(1)
		go r.heartbeatLoop(opts.Heartbeat)
	}
	return r
}

// Progress forwards ev unless the stream already ended.
func (r *Relay) Progress(ev progress.Event) {
	r.write(ProgressFrame(ev))
}

// Complete writes the result frame. It reports false when a terminal frame
// was already written.
func (r *Relay) Complete(res transcript.Result) bool {
	return r.write(CompleteFrame(res))
}

// Fail writes an error frame carrying msg. It reports false when a terminal
// frame was already written.
func (r *Relay) Fail(msg string) bool {
	return r.write(ErrorFrame(msg))
}

// Terminated reports whether the terminal frame has been accepted.
func (r *Relay) Terminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminal
}

// Disconnected reports whether a write to the client has failed.
func (r *Relay) Disconnected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gone
}

// Close stops the heartbeat loop and waits for it to exit. It does not write
// a terminal frame.
func (r *Relay) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.wg.Wait()
}

func (r *Relay) write(f Frame) bool {
	r.mu.Lock()
	if r.terminal {
		r.mu.Unlock()
		if f.Terminal() {
			r.logger.Debug("dropping second terminal frame", "type", f.Type)
		}
		return false
	}
	if f.Terminal() {
		r.terminal = true
	}
	var err error
	if !r.gone {
		if err = r.sink.Send(f); err != nil {
			r.gone = true
		} else {
			r.sent++
		}
	}
	r.mu.Unlock()

	if f.Terminal() {
		r.stopOnce.Do(func() { close(r.stop) })
	}
	if err != nil {
		r.disconnected(err)
	}
	return true
}

func (r *Relay) heartbeatLoop(interval time.Duration) {
	defer r.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.mu.Lock()
			if r.terminal || r.gone {
				r.mu.Unlock()
				return
			}
			err := r.sink.Heartbeat()
			if err != nil {
				r.gone = true
			}
			r.mu.Unlock()
			if err != nil {
				r.disconnected(err)
				return
			}
		}
	}
}

func (r *Relay) disconnected(err error) {
	r.logger.Info("client disconnected", "error", err, "framesSent", r.framesSent())
	if r.onDisconnect != nil {
		r.onDisconnect(err)
	}
}

func (r *Relay) framesSent() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}
