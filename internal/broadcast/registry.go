package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pscheid92/pixelwall/internal/adapter/metrics"
	"github.com/pscheid92/pixelwall/internal/domain"
)

const (
	commandTimeout = 5 * time.Second  // Actor command timeout
	stopTimeout    = 10 * time.Second // Graceful shutdown timeout
	commandBuffer  = 256
)

// Conn is the write side of a client connection. *websocket.Conn satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// PresenceFormatter renders the message announced to every client whenever the
// number of registered connections changes. Returning nil disables announcements.
type PresenceFormatter func(count int) []byte

// registryCmd is the command interface for the Registry actor.
type registryCmd interface{ isRegistryCmd() }

type baseRegistryCmd struct{}

func (baseRegistryCmd) isRegistryCmd() {}

type registerCmd struct {
	baseRegistryCmd
	connection   Conn
	errorChannel chan error
}

type unregisterCmd struct {
	baseRegistryCmd
	connection Conn
}

type broadcastCmd struct {
	baseRegistryCmd
	data []byte
}

type sendToCmd struct {
	baseRegistryCmd
	connection Conn
	data       []byte
}

type countCmd struct {
	baseRegistryCmd
	replyChannel chan int
}

type writerFailedCmd struct {
	baseRegistryCmd
	connection Conn
	writer     *clientWriter
}

type stopCmd struct {
	baseRegistryCmd
}

// Registry tracks live client connections and fans messages out to them.
// All delivery is best effort: a connection that cannot keep up or fails a
// write is dropped, and the remaining clients learn the new online count.
type Registry struct {
	cmdCh       chan registryCmd
	clock       clockwork.Clock
	clients     map[Conn]*clientWriter
	presence    PresenceFormatter
	maxClients  int
	metrics     *metrics.WebSocketMetrics
	done        chan struct{}
	stopOnce    sync.Once
	stopTimeout time.Duration
}

// NewRegistry creates a registry and starts its actor goroutine.
// maxClients of 0 means unlimited.
func NewRegistry(clock clockwork.Clock, maxClients int, presence PresenceFormatter, m *metrics.WebSocketMetrics) *Registry {
	r := &Registry{
		cmdCh:       make(chan registryCmd, commandBuffer),
		clock:       clock,
		clients:     make(map[Conn]*clientWriter),
		presence:    presence,
		maxClients:  maxClients,
		metrics:     m,
		done:        make(chan struct{}),
		stopTimeout: stopTimeout,
	}
	go r.run()
	return r
}

func (r *Registry) send(cmd registryCmd) bool {
	select {
	case r.cmdCh <- cmd:
		return true
	case <-r.done:
		return false
	}
}

// Register adds conn and announces the new count to every client, conn included.
func (r *Registry) Register(conn Conn) error {
	errCh := make(chan error, 1)
	if !r.send(registerCmd{connection: conn, errorChannel: errCh}) {
		return domain.ErrRegistryStopped
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case err := <-errCh:
		return err
	case <-r.done:
		return domain.ErrRegistryStopped
	case <-timer.Chan():
		return fmt.Errorf("register command timed out after %v", commandTimeout)
	}
}

// Unregister removes conn and closes it. Unknown connections are ignored.
func (r *Registry) Unregister(conn Conn) {
	r.send(unregisterCmd{connection: conn})
}

// Broadcast queues message for every registered connection.
func (r *Registry) Broadcast(message []byte) {
	r.send(broadcastCmd{data: message})
}

// SendTo queues message for conn only.
func (r *Registry) SendTo(conn Conn, message []byte) {
	r.send(sendToCmd{connection: conn, data: message})
}

// Count returns the number of registered connections, or 0 once stopped.
func (r *Registry) Count() int {
	replyCh := make(chan int, 1)
	if !r.send(countCmd{replyChannel: replyCh}) {
		return 0
	}

	timer := r.clock.NewTimer(commandTimeout)
	defer timer.Stop()

	select {
	case count := <-replyCh:
		return count
	case <-r.done:
		return 0
	case <-timer.Chan():
		slog.Warn("Registry count timed out", "timeout", commandTimeout)
		return 0
	}
}

// Ping round-trips a command through the actor. It fails once the registry
// has stopped or when the actor does not answer before ctx ends.
func (r *Registry) Ping(ctx context.Context) error {
	replyCh := make(chan int, 1)
	select {
	case r.cmdCh <- countCmd{replyChannel: replyCh}:
	case <-r.done:
		return domain.ErrRegistryStopped
	case <-ctx.Done():
		return fmt.Errorf("registry busy: %w", ctx.Err())
	}

	select {
	case <-replyCh:
		return nil
	case <-r.done:
		return domain.ErrRegistryStopped
	case <-ctx.Done():
		return fmt.Errorf("registry did not answer: %w", ctx.Err())
	}
}

// Stop closes every connection with a normal-closure frame and stops the actor.
// Blocks until the actor goroutine has exited or the stop timeout is reached.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		if !r.send(stopCmd{}) {
			return
		}

		timeout := r.clock.NewTimer(r.stopTimeout)
		defer timeout.Stop()

		select {
		case <-r.done:
			slog.Info("Registry stopped gracefully")
		case <-timeout.Chan():
			slog.Warn("Registry stop timeout exceeded", "timeout", r.stopTimeout)
		}
	})
}

func (r *Registry) run() {
	defer close(r.done)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("Registry panic recovered", "panic", rec)
			r.closeAllClients("registry failure")
		}
	}()

	for cmd := range r.cmdCh {
		switch c := cmd.(type) {
		case registerCmd:
			c.errorChannel <- r.handleRegister(c.connection)
		case unregisterCmd:
			r.handleUnregister(c.connection)
		case broadcastCmd:
			r.deliver(c.data)
		case sendToCmd:
			r.handleSendTo(c)
		case countCmd:
			c.replyChannel <- len(r.clients)
		case writerFailedCmd:
			if cw, ok := r.clients[c.connection]; ok && cw == c.writer {
				r.drop(c.connection, "write_error")
				r.deliver(r.presenceMessage())
			}
		case stopCmd:
			r.handleStop()
			return
		default:
			slog.Warn("Registry received unknown command type", "command_type", fmt.Sprintf("%T", cmd))
		}
	}
}

func (r *Registry) handleRegister(conn Conn) error {
	if _, exists := r.clients[conn]; exists {
		return nil
	}

	if r.maxClients > 0 && len(r.clients) >= r.maxClients {
		slog.Warn("Rejecting client: max clients reached", "max_clients", r.maxClients)
		return fmt.Errorf("%w: limit %d", domain.ErrRegistryFull, r.maxClients)
	}

	r.clients[conn] = newClientWriter(conn, r.clock, r.notifyWriteError, r.metrics)
	r.updateGauge()
	slog.Debug("Client registered", "total_clients", len(r.clients))

	r.deliver(r.presenceMessage())
	return nil
}

func (r *Registry) handleUnregister(conn Conn) {
	cw, exists := r.clients[conn]
	if !exists {
		return
	}

	cw.stop()
	delete(r.clients, conn)
	r.updateGauge()
	slog.Debug("Client unregistered", "remaining_clients", len(r.clients))

	r.deliver(r.presenceMessage())
}

func (r *Registry) handleSendTo(c sendToCmd) {
	cw, exists := r.clients[c.connection]
	if !exists {
		return
	}

	if result := cw.enqueue(c.data); result != sendDelivered {
		r.drop(c.connection, evictionReason(result))
		r.deliver(r.presenceMessage())
	}
}

// deliver fans data out to every client. Clients that could not take it are
// dropped, and the survivors receive the updated count; this repeats until a
// round completes without casualties.
func (r *Registry) deliver(data []byte) {
	for data != nil {
		var dead []Conn
		var reasons []string
		for conn, cw := range r.clients {
			if result := cw.enqueue(data); result != sendDelivered {
				dead = append(dead, conn)
				reasons = append(reasons, evictionReason(result))
			}
		}

		if len(dead) == 0 {
			return
		}

		for i, conn := range dead {
			r.drop(conn, reasons[i])
		}
		data = r.presenceMessage()
	}
}

func (r *Registry) drop(conn Conn, reason string) {
	cw, exists := r.clients[conn]
	if !exists {
		return
	}

	slog.Warn("Dropping client", "reason", reason, "remaining_clients", len(r.clients)-1)
	cw.stop()
	delete(r.clients, conn)
	r.updateGauge()

	if r.metrics != nil {
		r.metrics.ClientsEvicted.WithLabelValues(reason).Inc()
	}
}

// notifyWriteError runs on a writer goroutine. If the command queue is full the
// failure surfaces on the next enqueue as sendSkippedClosed instead.
func (r *Registry) notifyWriteError(cw *clientWriter) {
	select {
	case r.cmdCh <- writerFailedCmd{connection: cw.connection, writer: cw}:
	default:
	}
}

func (r *Registry) presenceMessage() []byte {
	if r.presence == nil {
		return nil
	}
	return r.presence(len(r.clients))
}

func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.ActiveConnections.Set(float64(len(r.clients)))
	}
}

func (r *Registry) handleStop() {
	total := len(r.clients)
	slog.Info("Registry shutting down", "total_clients", total)

	r.closeAllClients("server shutting down")

	slog.Info("Registry shutdown complete", "disconnected_clients", total)
}

// closeAllClients closes all client connections with the given reason.
// Used during panic recovery and graceful shutdown. Clients are closed in
// parallel so one stalled client does not delay the others.
func (r *Registry) closeAllClients(reason string) {
	var wg sync.WaitGroup
	for conn, cw := range r.clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cw.stopGraceful(reason)
		}()
		delete(r.clients, conn)
	}
	wg.Wait()
	r.updateGauge()
}

func evictionReason(result sendResult) string {
	if result == sendFailed {
		return "slow"
	}
	return "write_error"
}
