package scribe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosley/relayscribe/progress"
	"github.com/bosley/relayscribe/stream"
)

func newQueuedConnection(wait time.Duration) *wsConnection {
	return &wsConnection{
		send:     make(chan []byte, 1),
		done:     make(chan struct{}),
		sendWait: wait,
	}
}

func TestWebSocketSendWaitsForFullQueue(t *testing.T) {
	c := newQueuedConnection(5 * time.Second)
	frame := stream.ProgressFrame(progress.Event{Percentage: 10, Stage: progress.StageLoadingModel})
	require.NoError(t, c.Send(frame))

	errCh := make(chan error, 1)
	go func() { errCh <- c.Send(frame) }()

	select {
	case err := <-errCh:
		t.Fatalf("send returned early with a full queue: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	<-c.send
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("send did not resume after the queue drained")
	}
	assert.Len(t, c.send, 1)
}

func TestWebSocketSendGivesUp(t *testing.T) {
	frame := stream.ErrorFrame("boom")

	t.Run("peer stalled", func(t *testing.T) {
		c := newQueuedConnection(30 * time.Millisecond)
		require.NoError(t, c.Send(frame))
		assert.ErrorIs(t, c.Send(frame), errSlowConsumer)
	})

	t.Run("connection closed", func(t *testing.T) {
		c := newQueuedConnection(5 * time.Second)
		require.NoError(t, c.Send(frame))
		time.AfterFunc(20*time.Millisecond, func() { close(c.done) })
		assert.ErrorIs(t, c.Send(frame), errConnectionClosed)
	})
}
