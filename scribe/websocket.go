package scribe

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bosley/relayscribe/acquire"
	"github.com/bosley/relayscribe/stream"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	sendBuffer = 256
)

var (
	errConnectionClosed = errors.New("websocket connection closed")
	errSlowConsumer     = errors.New("websocket peer stopped reading")
)

// wsConnection is a stream.Sink over a websocket. Frames are queued to
// writePump, which also owns the ping schedule; readPump only watches for
// the peer going away. A full queue blocks Send for up to sendWait.
type wsConnection struct {
	conn     *websocket.Conn
	jobID    string
	send     chan []byte
	done     chan struct{}
	sendWait time.Duration
	onGone   func(error)
	logger   *slog.Logger

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (s *Scribe) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	audioURL := strings.TrimSpace(r.URL.Query().Get("audioUrl"))
	if audioURL == "" {
		s.writeError(w, badRequest("audioUrl query parameter is required", nil))
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	in := acquire.Input{URL: audioURL}
	job, ctx := s.startJob(r.Context(), in)
	defer s.endJob(job)

	wsConn := &wsConnection{
		conn:     conn,
		jobID:    job.ID.String(),
		send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
		sendWait: writeWait,
		onGone:   func(error) { job.Cancel(errClientGone) },
		logger:   s.logger,
	}
	go wsConn.writePump()
	go wsConn.readPump()

	relay := stream.NewRelay(wsConn, stream.Options{
		Heartbeat:    s.config.Heartbeat,
		OnDisconnect: wsConn.onGone,
		Logger:       s.logger.With("jobID", job.ID.String()),
	})

	res, err := s.execute(ctx, job, in, jobHooks{progress: relay.Progress})
	s.deliver(relay, job, job.settle(ctx, err), res)
	relay.Close()
	wsConn.finish()
}

func (c *wsConnection) Send(f stream.Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}
	select {
	case <-c.done:
		return errConnectionClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
	}

	timer := time.NewTimer(c.sendWait)
	defer timer.Stop()
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errConnectionClosed
	case <-timer.C:
		return errSlowConsumer
	}
}

// Heartbeat only reports liveness; writePump sends the pings.
func (c *wsConnection) Heartbeat() error {
	select {
	case <-c.done:
		return errConnectionClosed
	default:
		return nil
	}
}

// finish flushes queued frames, sends a close message and waits for
// writePump to exit.
func (c *wsConnection) finish() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *wsConnection) close() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
		close(c.done)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write failed", "jobID", c.jobID, "error", err)
				c.onGone(err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.onGone(err)
				return
			}
		}
	}
}

func (c *wsConnection) readPump() {
	defer c.close()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("websocket read error", "jobID", c.jobID, "error", err)
			}
			c.onGone(err)
			return
		}
	}
}
