package broadcast

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/pixelwall/internal/adapter/metrics"
)

const (
	writeDeadline      = 5 * time.Second
	closeFrameDeadline = time.Second
	pingInterval       = 30 * time.Second
	messageBufferSize  = 16
)

// sendResult classifies a single enqueue attempt. Anything but sendDelivered
// means the registry drops the connection.
type sendResult int

const (
	sendDelivered     sendResult = iota
	sendSkippedClosed            // writer already failed or stopped
	sendFailed                   // queue full, client too slow
)

func (r sendResult) String() string {
	switch r {
	case sendDelivered:
		return "delivered"
	case sendSkippedClosed:
		return "skipped_closed"
	case sendFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type clientWriter struct {
	connection   Conn
	clock        clockwork.Clock
	sendChannel  chan []byte
	doneChannel  chan struct{}
	closed       atomic.Bool
	stopOnce     sync.Once
	wg           sync.WaitGroup
	onWriteError func(cw *clientWriter)
	metrics      *metrics.WebSocketMetrics
}

func newClientWriter(connection Conn, clock clockwork.Clock, onWriteError func(*clientWriter), m *metrics.WebSocketMetrics) *clientWriter {
	cw := &clientWriter{
		connection:   connection,
		clock:        clock,
		sendChannel:  make(chan []byte, messageBufferSize),
		doneChannel:  make(chan struct{}),
		onWriteError: onWriteError,
		metrics:      m,
	}
	cw.wg.Add(1)
	go cw.run()
	return cw
}

// enqueue hands msg to the writer goroutine without blocking.
func (cw *clientWriter) enqueue(msg []byte) sendResult {
	if cw.closed.Load() {
		return sendSkippedClosed
	}
	select {
	case cw.sendChannel <- msg:
		return sendDelivered
	default:
		return sendFailed
	}
}

func (cw *clientWriter) run() {
	ticker := cw.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer cw.wg.Done()

	for {
		select {
		case msg := <-cw.sendChannel:
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				cw.fail()
				return
			}
			if cw.metrics != nil {
				cw.metrics.MessagesSent.Inc()
			}
		case <-ticker.Chan():
			cw.updateWriteDeadline()
			if err := cw.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				cw.fail()
				return
			}
		case <-cw.doneChannel:
			return
		}
	}
}

func (cw *clientWriter) fail() {
	if cw.closed.CompareAndSwap(false, true) && cw.onWriteError != nil {
		cw.onWriteError(cw)
	}
}

func (cw *clientWriter) stop() {
	cw.stopOnce.Do(func() {
		cw.closed.Store(true)
		close(cw.doneChannel)
		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// stopGraceful sends a WebSocket close frame with reason before closing.
// A writer still stuck on a stalled client after closeFrameDeadline gets the
// connection closed under it and no close frame.
func (cw *clientWriter) stopGraceful(reason string) {
	cw.stopOnce.Do(func() {
		cw.closed.Store(true)
		close(cw.doneChannel)

		// The run goroutine must exit before the close frame is written; the
		// connection supports one concurrent writer.
		if !cw.waitWriter(closeFrameDeadline) {
			_ = cw.connection.Close()
			return
		}

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		_ = cw.connection.SetWriteDeadline(time.Now().Add(closeFrameDeadline))
		_ = cw.connection.WriteMessage(websocket.CloseMessage, closeMsg)

		_ = cw.connection.Close()
	})
	cw.wg.Wait()
}

// waitWriter reports whether the run goroutine exited within timeout.
func (cw *clientWriter) waitWriter(timeout time.Duration) bool {
	exited := make(chan struct{})
	go func() {
		cw.wg.Wait()
		close(exited)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-exited:
		return true
	case <-timer.C:
		return false
	}
}

// Network deadlines follow the wall clock, not the injected one.
func (cw *clientWriter) updateWriteDeadline() {
	deadline := time.Now().Add(writeDeadline)
	_ = cw.connection.SetWriteDeadline(deadline)
}
