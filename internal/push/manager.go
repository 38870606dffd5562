package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hobbymatch/hobbymatch/internal/proto"
)

// Handler consumes the payload of a named push event.
type Handler func(data json.RawMessage)

// DialFunc opens a websocket connection. Injectable for tests.
type DialFunc func(ctx context.Context) (*websocket.Conn, error)

// Options tune the reconnect policy.
type Options struct {
	// Attempts caps reconnection tries after a lost connection.
	Attempts int
	// Delay is the first backoff step; it doubles up to DelayMax.
	Delay    time.Duration
	DelayMax time.Duration
}

// ErrClosed is returned by Emit after Close.
var ErrClosed = errors.New("push channel closed")

// Manager owns the push-channel connection lifecycle: dialing, reconnection
// with capped backoff, the event handler registry, and an emission queue for
// messages issued before the channel is open.
//
// The registry persists across reconnects, so handlers are always in place
// before the read loop delivers anything; session-resuming emissions issued
// from "connect" handlers therefore cannot miss the server's immediate reply.
type Manager struct {
	dial  DialFunc
	opts  Options
	clock clockwork.Clock
	log   *zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	closed    bool
	handlers  map[string][]*handlerEntry
	nextID    int
	pending   []proto.Envelope

	writeMu sync.Mutex
	ctx     context.Context
}

// New builds a manager dialing the given websocket URL.
func New(socketURL string, opts Options, clock clockwork.Clock, logger *zerolog.Logger) *Manager {
	dial := func(ctx context.Context) (*websocket.Conn, error) {
		conn, _, err := websocket.Dial(ctx, socketURL, nil)
		return conn, err
	}
	return NewWithDialer(dial, opts, clock, logger)
}

// NewWithDialer builds a manager with a custom dial function.
func NewWithDialer(dial DialFunc, opts Options, clock clockwork.Clock, logger *zerolog.Logger) *Manager {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.Delay <= 0 {
		opts.Delay = time.Second
	}
	if opts.DelayMax < opts.Delay {
		opts.DelayMax = opts.Delay
	}
	return &Manager{
		dial:     dial,
		opts:     opts,
		clock:    clock,
		log:      logger,
		handlers: make(map[string][]*handlerEntry),
	}
}

type handlerEntry struct {
	id int
	h  Handler
}

// On registers a handler for the named event and returns a function that
// detaches exactly that handler. Multiple handlers per event are invoked in
// registration order; detaching one leaves the others in place.
func (m *Manager) On(event string, h Handler) (off func()) {
	m.mu.Lock()
	m.nextID++
	entry := &handlerEntry{id: m.nextID, h: h}
	m.handlers[event] = append(m.handlers[event], entry)
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		entries := m.handlers[event]
		for i, e := range entries {
			if e.id == entry.id {
				m.handlers[event] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Connected reports whether the channel is currently open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// Emit sends a named event to the backend. While the channel is down the
// envelope is queued and flushed on the next successful connect, so a join
// racing the dial is deferred instead of silently dropped. A write that
// fails because the connection tore down mid-flight re-queues the envelope
// for the same flush.
func (m *Manager) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	env := proto.Envelope{Event: event, Data: data}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if !m.connected {
		m.pending = append(m.pending, env)
		m.mu.Unlock()
		m.log.Debug().Str("event", event).Msg("push channel down, emission queued")
		return nil
	}
	conn := m.conn
	ctx := m.ctx
	m.mu.Unlock()

	for {
		if err := m.write(ctx, conn, env); err == nil {
			return nil
		}

		// The connection tore down under the write. If the read loop has
		// already replaced it, retry on the new one; otherwise queue the
		// envelope for the reconnect flush.
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		if !m.connected || m.conn == conn {
			m.pending = append(m.pending, env)
			m.mu.Unlock()
			m.log.Debug().Str("event", event).Msg("write failed, emission re-queued")
			return nil
		}
		conn = m.conn
		ctx = m.ctx
		m.mu.Unlock()
	}
}

// Connect dials the backend, retrying with backoff, and starts the read
// loop. It returns once the first connection is up or attempts are
// exhausted. Failure is not fatal to the process: polling fallbacks keep
// working, so callers log and continue.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.ctx = ctx
	m.mu.Unlock()

	conn, err := m.dialWithRetry(ctx)
	if err != nil {
		m.dispatch(proto.EventConnectError, nil)
		return err
	}

	m.resume(ctx, conn)
	go m.readLoop(ctx)
	return nil
}

// Close tears the connection down and rejects further emissions.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.connected = false
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

// resume installs a fresh connection: flush the queued emissions first, then
// fire the synthetic connect event so resume handlers run against an
// already-drained queue.
func (m *Manager) resume(ctx context.Context, conn *websocket.Conn) {
	m.mu.Lock()
	m.conn = conn
	m.connected = true
	queued := m.pending
	m.pending = nil
	m.mu.Unlock()

	for i, env := range queued {
		if err := m.write(ctx, conn, env); err != nil {
			// The fresh connection died already; keep the rest of the
			// queue for the next reconnect, in order, ahead of anything
			// queued since.
			m.log.Warn().Err(err).Str("event", env.Event).Msg("flush queued emission failed, keeping queue")
			m.mu.Lock()
			m.pending = append(append([]proto.Envelope{}, queued[i:]...), m.pending...)
			m.mu.Unlock()
			break
		}
	}

	m.dispatch(proto.EventConnect, nil)
}

func (m *Manager) readLoop(ctx context.Context) {
	for {
		m.mu.Lock()
		conn := m.conn
		closed := m.closed
		m.mu.Unlock()
		if closed || conn == nil {
			return
		}

		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			if ctx.Err() != nil || m.isClosed() {
				return
			}
			m.log.Warn().Err(err).Msg("push channel lost")
			m.markDisconnected(conn)
			m.dispatch(proto.EventDisconnect, nil)

			next, dialErr := m.dialWithRetry(ctx)
			if dialErr != nil {
				m.log.Error().Err(dialErr).Msg("push reconnect exhausted, polling only")
				m.dispatch(proto.EventConnectError, nil)
				return
			}
			m.resume(ctx, next)
			continue
		}

		m.dispatch(env.Event, env.Data)
	}
}

func (m *Manager) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	delay := m.opts.Delay
	for attempt := 1; ; attempt++ {
		conn, err := m.dial(ctx)
		if err == nil {
			if attempt > 1 {
				m.log.Info().Int("attempt", attempt).Msg("push channel reconnected")
			}
			return conn, nil
		}
		if attempt >= m.opts.Attempts {
			return nil, fmt.Errorf("dial push channel after %d attempts: %w", attempt, err)
		}
		m.log.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("push dial failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-m.clock.After(delay):
		}
		delay *= 2
		if delay > m.opts.DelayMax {
			delay = m.opts.DelayMax
		}
	}
}

func (m *Manager) dispatch(event string, data json.RawMessage) {
	m.mu.Lock()
	entries := append([]*handlerEntry(nil), m.handlers[event]...)
	m.mu.Unlock()

	for _, e := range entries {
		e.h(data)
	}
}

func (m *Manager) write(ctx context.Context, conn *websocket.Conn, env proto.Envelope) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := wsjson.Write(ctx, conn, env); err != nil {
		return fmt.Errorf("emit %s: %w", env.Event, err)
	}
	return nil
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) markDisconnected(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.connected = false
	}
	m.mu.Unlock()
}
