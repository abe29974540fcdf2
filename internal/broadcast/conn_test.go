package broadcast

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

var errFakeClosed = errors.New("fake connection closed")

type fakeMessage struct {
	messageType int
	data        []byte
}

// fakeConn records writes. A blocking fakeConn stalls every write until Close,
// which simulates a client that stopped reading.
type fakeConn struct {
	mu        sync.Mutex
	messages  []fakeMessage
	closed    bool
	writeErr  error
	blocking  bool
	delay     time.Duration
	unblock   chan struct{}
	closeOnce sync.Once
	writes    atomic.Int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{unblock: make(chan struct{})}
}

func newBlockingConn() *fakeConn {
	c := newFakeConn()
	c.blocking = true
	return c
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.writes.Add(1)
	if c.blocking {
		<-c.unblock
	}
	c.mu.Lock()
	delay := c.delay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errFakeClosed
	}
	if c.writeErr != nil {
		return c.writeErr
	}
	c.messages = append(c.messages, fakeMessage{messageType: messageType, data: append([]byte(nil), data...)})
	return nil
}

func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.unblock)
	})
	return nil
}

// slowWrites makes every later write take d, like a client whose deadline expires.
func (c *fakeConn) slowWrites(d time.Duration) {
	c.mu.Lock()
	c.delay = d
	c.mu.Unlock()
}

func (c *fakeConn) failWrites(err error) {
	c.mu.Lock()
	c.writeErr = err
	c.mu.Unlock()
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []string
	for _, m := range c.messages {
		if m.messageType == ws.TextMessage {
			out = append(out, string(m.data))
		}
	}
	return out
}

func (c *fakeConn) lastText() string {
	texts := c.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

func (c *fakeConn) hasCloseFrame() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if m.messageType == ws.CloseMessage {
			return true
		}
	}
	return false
}

// newTestConnPair returns both ends of a real websocket connection.
func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}
