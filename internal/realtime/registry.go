// Package realtime keeps the server-push connections of signed-in users and
// delivers frames to them.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"picshare/internal/pkg/idgen"
)

const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Second
	DefaultQueueSize         = 32
)

var ErrRegistryClosed = errors.New("realtime: registry closed")

// Transport is one client stream (SSE response, WebSocket). The registry
// serializes calls: WriteFrame is only ever called from the connection's own
// writer goroutine and Close is called once after the last write.
type Transport interface {
	WriteFrame(ctx context.Context, frame []byte) error
	Close() error
}

// Conn is a registered connection. Handlers block on Done and then Wait for
// the writer to let go of the transport.
type Conn struct {
	id       string
	ownerID  int64
	openedAt time.Time

	transport Transport
	send      chan encodedFrame // never closed

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) OwnerID() int64 { return c.ownerID }

// Done is closed once the registry has closed the connection.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Wait blocks until the writer goroutine exited and the transport was closed.
func (c *Conn) Wait() { <-c.stopped }

type Options struct {
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	QueueSize         int
	Logger            *slog.Logger
	Metrics           *Metrics
}

// Registry maps recipient ids to their open connections. Every connection
// gets a writer goroutine that owns its heartbeat ticker.
type Registry struct {
	heartbeatEvery time.Duration
	writeTimeout   time.Duration
	queueSize      int
	log            *slog.Logger
	metrics        *Metrics

	mu     sync.RWMutex
	conns  map[int64]map[string]*Conn
	closed bool
}

func NewRegistry(opts Options) *Registry {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Registry{
		heartbeatEvery: opts.HeartbeatInterval,
		writeTimeout:   opts.WriteTimeout,
		queueSize:      opts.QueueSize,
		log:            opts.Logger.With("component", "realtime"),
		metrics:        opts.Metrics,
		conns:          make(map[int64]map[string]*Conn),
	}
}

// Open registers t for ownerID and starts its writer, which sends a
// heartbeat right away and then every heartbeat interval.
func (r *Registry) Open(ownerID int64, t Transport) (*Conn, error) {
	c := &Conn{
		id:        idgen.New(),
		ownerID:   ownerID,
		openedAt:  time.Now(),
		transport: t,
		send:      make(chan encodedFrame, r.queueSize),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	set, ok := r.conns[ownerID]
	if !ok {
		set = make(map[string]*Conn)
		r.conns[ownerID] = set
	}
	set[c.id] = c
	r.mu.Unlock()

	r.metrics.connOpened()
	r.log.Debug("connection opened", "conn_id", c.id, "user_id", ownerID)

	go r.writeLoop(c)
	return c, nil
}

// Close removes c and stops its heartbeat. Safe to call any number of times
// from any goroutine.
func (r *Registry) Close(c *Conn) {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		r.mu.Lock()
		if set, ok := r.conns[c.ownerID]; ok {
			delete(set, c.id)
			if len(set) == 0 {
				delete(r.conns, c.ownerID)
			}
		}
		r.mu.Unlock()

		close(c.done)
		r.metrics.connClosed()
		r.log.Debug("connection closed", "conn_id", c.id, "user_id", c.ownerID,
			"duration", time.Since(c.openedAt))
	})
}

// Push queues payload as a notification frame on every connection of
// ownerID and returns how many accepted it. No connections is not an error.
// A connection whose queue is full is closed; its siblings still get the frame.
func (r *Registry) Push(ownerID int64, payload any) int {
	targets := r.snapshot(ownerID)
	if len(targets) == 0 {
		return 0
	}

	frame, err := encode(Frame{Type: FrameNotification, Payload: payload})
	if err != nil {
		r.log.Error("encode push frame", "user_id", ownerID, "err", err)
		return 0
	}

	delivered := 0
	for _, c := range targets {
		select {
		case <-c.done:
			continue
		default:
		}

		select {
		case c.send <- frame:
			delivered++
		default:
			r.metrics.slowConsumer()
			r.log.Warn("send queue full, dropping connection", "conn_id", c.id, "user_id", ownerID)
			r.Close(c)
		}
	}
	return delivered
}

func (r *Registry) snapshot(ownerID int64) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[ownerID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Count returns the open connections of ownerID.
func (r *Registry) Count(ownerID int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[ownerID])
}

// Len returns the number of open connections across all users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}

// Shutdown refuses new connections, closes the open ones and waits for
// their writers until ctx is done.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	var all []*Conn
	for _, set := range r.conns {
		for _, c := range set {
			all = append(all, c)
		}
	}
	r.mu.Unlock()

	for _, c := range all {
		r.Close(c)
	}
	for _, c := range all {
		select {
		case <-c.stopped:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (r *Registry) writeLoop(c *Conn) {
	ticker := time.NewTicker(r.heartbeatEvery)
	defer func() {
		ticker.Stop()
		r.Close(c)
		if err := c.transport.Close(); err != nil {
			r.log.Debug("close transport", "conn_id", c.id, "err", err)
		}
		close(c.stopped)
	}()

	if !r.write(c, heartbeat) {
		return
	}
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if !r.write(c, heartbeat) {
				return
			}
		case f := <-c.send:
			if !r.write(c, f) {
				return
			}
		}
	}
}

func (r *Registry) write(c *Conn, f encodedFrame) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	if err := c.transport.WriteFrame(ctx, f.data); err != nil {
		r.metrics.writeFailed()
		r.log.Info("push write failed", "conn_id", c.id, "user_id", c.ownerID, "frame", f.kind, "err", err)
		return false
	}
	r.metrics.frameSent(f.kind)
	return true
}
