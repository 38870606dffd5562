// Package pushtest runs an in-process push-channel backend for tests:
// it accepts websocket connections, records client emissions, and can
// broadcast events or drop connections to exercise reconnect paths.
package pushtest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/hobbymatch/hobbymatch/internal/proto"
)

// Server is a fake push backend.
type Server struct {
	ts       *httptest.Server
	received chan proto.Envelope

	mu    sync.Mutex
	conns []*websocket.Conn
}

// NewServer starts the fake backend. It is shut down with the test.
func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{received: make(chan proto.Envelope, 64)}
	s.ts = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// address clients dial.
func (s *Server) URL() string {
	return strings.Replace(s.ts.URL, "http", "ws", 1)
}

// Received delivers every envelope clients emit, in arrival order.
func (s *Server) Received() <-chan proto.Envelope {
	return s.received
}

// Broadcast sends an event to every connected client.
func (s *Server) Broadcast(t *testing.T, event string, payload any) {
	t.Helper()

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal broadcast payload: %v", err)
	}
	env := proto.Envelope{Event: event, Data: data}

	s.mu.Lock()
	conns := append([]*websocket.Conn(nil), s.conns...)
	s.mu.Unlock()

	for _, conn := range conns {
		if err := wsjson.Write(context.Background(), conn, env); err != nil {
			t.Logf("broadcast to one conn failed: %v", err)
		}
	}
}

// DropConnections severs every live connection so clients reconnect.
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "dropped")
	}
}

// ConnCount reports live connections.
func (s *Server) ConnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close stops the server.
func (s *Server) Close() {
	s.DropConnections()
	s.ts.Close()
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conns = append(s.conns, conn)
	s.mu.Unlock()

	ctx := context.Background()
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			s.remove(conn)
			return
		}
		select {
		case s.received <- env:
		default:
		}
	}
}

func (s *Server) remove(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.conns {
		if c == conn {
			s.conns = append(s.conns[:i:i], s.conns[i+1:]...)
			return
		}
	}
}
