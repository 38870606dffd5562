package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hobbymatch/hobbymatch/internal/api"
	"github.com/hobbymatch/hobbymatch/internal/chat"
	"github.com/hobbymatch/hobbymatch/internal/log"
	"github.com/hobbymatch/hobbymatch/internal/proto"
	"github.com/hobbymatch/hobbymatch/internal/push"
	"github.com/hobbymatch/hobbymatch/internal/push/pushtest"
	"github.com/hobbymatch/hobbymatch/internal/state"
)

const (
	testRoom = "room_1"
	testName = "alice"
)

// chatBackend fakes the chat REST endpoints. Messages are stored oldest
// first and served newest first, the way the real message store delivers.
type chatBackend struct {
	ts *httptest.Server

	mu          sync.Mutex
	msgs        []api.Message
	failHistory bool
	endCalls    int
	sendCalls   int
}

func newChatBackend(t *testing.T) *chatBackend {
	t.Helper()

	b := &chatBackend{}
	b.ts = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.ts.Close)
	return b
}

func (b *chatBackend) handle(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasPrefix(r.URL.Path, "/api/chat/messages/"):
		if b.failHistory {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"detail": "Sunucu hatası."}`))
			return
		}
		since := 0.0
		if raw := r.URL.Query().Get("since"); raw != "" {
			since, _ = strconv.ParseFloat(raw, 64)
		}
		var out []api.Message
		for i := len(b.msgs) - 1; i >= 0; i-- {
			if b.msgs[i].Timestamp > since {
				out = append(out, b.msgs[i])
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": out})
	case r.URL.Path == "/api/chat/send-message":
		b.sendCalls++
		var req struct {
			Sender string `json:"sender"`
			Body   string `json:"message"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.msgs = append(b.msgs, api.Message{Sender: req.Sender, Body: req.Body, Timestamp: float64(len(b.msgs) + 1)})
		_, _ = w.Write([]byte(`{"message": "ok"}`))
	case r.URL.Path == "/api/chat/end":
		b.endCalls++
		_, _ = w.Write([]byte(`{"message": "ok"}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (b *chatBackend) addMessage(sender, body string, ts float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, api.Message{Sender: sender, Body: body, Timestamp: ts})
}

func (b *chatBackend) ends() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.endCalls
}

type roomFixture struct {
	room    *chat.Room
	store   *state.Store
	clock   *clockwork.FakeClock
	backend *chatBackend
	srv     *pushtest.Server
}

func newRoomFixture(t *testing.T) *roomFixture {
	t.Helper()

	backend := newChatBackend(t)
	srv := pushtest.NewServer(t)
	logger := log.NewWithOutput("error", io.Discard)
	clock := clockwork.NewFakeClock()

	st, err := state.Open(":memory:")
	if err != nil {
		t.Fatalf("open state store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	pm := push.New(srv.URL(), push.Options{Attempts: 5, Delay: 10 * time.Millisecond}, clockwork.NewRealClock(), logger)
	if err := pm.Connect(context.Background()); err != nil {
		t.Fatalf("connect push: %v", err)
	}
	t.Cleanup(pm.Close)

	room := chat.NewRoom(testRoom, testName, chat.RoomDeps{
		API:          api.New(backend.ts.URL, 2*time.Second, logger),
		Push:         pm,
		Store:        st,
		Clock:        clock,
		Log:          logger,
		PollInterval: time.Second,
	})
	return &roomFixture{room: room, store: st, clock: clock, backend: backend, srv: srv}
}

func waitRoomEvent(t *testing.T, room *chat.Room, kind chat.EventKind) chat.Event {
	t.Helper()

	for {
		select {
		case ev := <-room.Events():
			if ev.Kind == kind {
				return ev
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %v event", kind)
		}
	}
}

func waitWireEvent(t *testing.T, srv *pushtest.Server, event string) proto.Envelope {
	t.Helper()

	for {
		select {
		case env := <-srv.Received():
			if env.Event == event {
				return env
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %s on the wire", event)
		}
	}
}

func TestJoinLoadsHistoryAndAnnounces(t *testing.T) {
	f := newRoomFixture(t)
	f.backend.addMessage("bob", "first", 10)
	f.backend.addMessage("bob", "second", 20)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := f.room.Membership(); got != chat.Joined {
		t.Fatalf("membership = %v", got)
	}

	msgs := f.room.Messages()
	if len(msgs) != 2 || msgs[0].Body != "first" || msgs[1].Body != "second" {
		t.Fatalf("timeline = %v", msgs)
	}
	if got := f.room.HighWater(); got != 20 {
		t.Fatalf("high water = %v, want 20", got)
	}

	env := waitWireEvent(t, f.srv, proto.EventJoinRoom)
	var data proto.JoinRoomData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode join-room: %v", err)
	}
	if data.Room != testRoom || data.Username != testName {
		t.Fatalf("join-room payload = %+v", data)
	}

	room, _ := f.store.LastRoomID(context.Background())
	if room != testRoom {
		t.Fatalf("persisted pointer = %q", room)
	}
}

func TestJoinEmptyHistorySeedsCursorFromLocalClock(t *testing.T) {
	f := newRoomFixture(t)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}

	want := float64(f.clock.Now().UnixNano()) / float64(time.Second)
	if got := f.room.HighWater(); got != want {
		t.Fatalf("high water = %v, want local now %v", got, want)
	}
}

func TestJoinSurvivesHistoryFetchFailure(t *testing.T) {
	f := newRoomFixture(t)
	f.backend.failHistory = true

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := f.room.Membership(); got != chat.Joined {
		t.Fatalf("membership = %v", got)
	}
	if msgs := f.room.Messages(); len(msgs) != 0 {
		t.Fatalf("timeline = %v, want empty", msgs)
	}
}

func TestJoinIsSingleUse(t *testing.T) {
	f := newRoomFixture(t)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := f.room.Join(context.Background()); !errors.Is(err, chat.ErrAlreadyJoined) {
		t.Fatalf("second join = %v, want ErrAlreadyJoined", err)
	}
}

func TestPollMergesNewMessagesExactlyOnce(t *testing.T) {
	f := newRoomFixture(t)
	f.backend.addMessage("bob", "hello", 10)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}

	f.clock.BlockUntil(1)
	f.backend.addMessage("bob", "are you there?", 30)
	f.clock.Advance(time.Second)

	ev := waitRoomEvent(t, f.room, chat.EventMessages)
	if len(ev.Messages) != 1 || ev.Messages[0].Body != "are you there?" {
		t.Fatalf("poll delivered %v", ev.Messages)
	}
	if got := f.room.HighWater(); got != 30 {
		t.Fatalf("high water = %v, want 30", got)
	}

	// Another tick with nothing new stays silent.
	f.clock.Advance(time.Second)
	select {
	case ev := <-f.room.Events():
		t.Fatalf("unexpected event after idle poll: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
	if msgs := f.room.Messages(); len(msgs) != 2 {
		t.Fatalf("timeline = %v", msgs)
	}
}

func TestSendRequiresJoinedRoom(t *testing.T) {
	f := newRoomFixture(t)

	if err := f.room.Send(context.Background(), "hello"); err != chat.ErrNotJoined {
		t.Fatalf("send before join = %v, want ErrNotJoined", err)
	}

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := f.room.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send after join: %v", err)
	}
}

func TestRemoteUserLeftEndsRoomAndClearsPointer(t *testing.T) {
	f := newRoomFixture(t)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitWireEvent(t, f.srv, proto.EventJoinRoom)

	f.srv.Broadcast(t, proto.EventUserLeft, "bob sohbetten ayrıldı.")

	waitRoomEvent(t, f.room, chat.EventEnded)
	if got := f.room.Membership(); got != chat.Ended {
		t.Fatalf("membership = %v", got)
	}
	if room, _ := f.store.LastRoomID(context.Background()); room != "" {
		t.Fatalf("pointer survived counterparty leave: %q", room)
	}

	msgs := f.room.Messages()
	last := msgs[len(msgs)-1]
	if last.Sender != chat.SystemSender || last.Body != "bob sohbetten ayrıldı." {
		t.Fatalf("closing notice = %+v", last)
	}
}

func TestChatEndedNoticeEndsRoom(t *testing.T) {
	f := newRoomFixture(t)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitWireEvent(t, f.srv, proto.EventJoinRoom)

	f.srv.Broadcast(t, proto.EventChatEnded, proto.ChatEndedData{Message: "Sohbet sonlandırıldı."})

	waitRoomEvent(t, f.room, chat.EventEnded)
	if room, _ := f.store.LastRoomID(context.Background()); room != "" {
		t.Fatalf("pointer survived chat_ended: %q", room)
	}
}

func TestChatEndedOverlappingJoinStaysEnded(t *testing.T) {
	// The chat can be ended remotely while the join sequence is still in
	// flight. Whichever side of the Joined transition the teardown lands
	// on, the room must come to rest Ended with the pointer cleared, never
	// resurrected by the tail of Join.
	for i := 0; i < 5; i++ {
		f := newRoomFixture(t)

		go func() {
			waitWireEvent(t, f.srv, proto.EventJoinRoom)
			f.srv.Broadcast(t, proto.EventChatEnded, proto.ChatEndedData{Message: "Sohbet sonlandırıldı."})
		}()

		if err := f.room.Join(context.Background()); err != nil {
			t.Fatalf("join: %v", err)
		}

		waitRoomEvent(t, f.room, chat.EventEnded)
		if got := f.room.Membership(); got != chat.Ended {
			t.Fatalf("membership = %v, want ended", got)
		}
		if room, _ := f.store.LastRoomID(context.Background()); room != "" {
			t.Fatalf("pointer survived chat_ended during join: %q", room)
		}
	}
}

func TestLocalLeaveKeepsPointerForResume(t *testing.T) {
	f := newRoomFixture(t)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitWireEvent(t, f.srv, proto.EventJoinRoom)

	if err := f.room.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := f.room.Membership(); got != chat.Left {
		t.Fatalf("membership = %v", got)
	}

	waitWireEvent(t, f.srv, proto.EventLeaveRoom)

	// Stepping out locally is resumable; the pointer stays.
	if room, _ := f.store.LastRoomID(context.Background()); room != testRoom {
		t.Fatalf("pointer after local leave = %q, want %q", room, testRoom)
	}
}

func TestEndClearsPointerAndCallsBackend(t *testing.T) {
	f := newRoomFixture(t)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}

	if err := f.room.End(context.Background()); err != nil {
		t.Fatalf("end: %v", err)
	}
	if got := f.room.Membership(); got != chat.Ended {
		t.Fatalf("membership = %v", got)
	}
	if got := f.backend.ends(); got != 1 {
		t.Fatalf("end calls = %d, want 1", got)
	}
	if room, _ := f.store.LastRoomID(context.Background()); room != "" {
		t.Fatalf("pointer survived End: %q", room)
	}
}

func TestReconnectResubscribesJoinedRoom(t *testing.T) {
	f := newRoomFixture(t)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitWireEvent(t, f.srv, proto.EventJoinRoom)

	f.srv.DropConnections()

	// The reconnect handler re-announces the subscription.
	env := waitWireEvent(t, f.srv, proto.EventJoinRoom)
	var data proto.JoinRoomData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode re-join: %v", err)
	}
	if data.Room != testRoom {
		t.Fatalf("re-join room = %q", data.Room)
	}
}

func TestUserJoinedNoticeLandsInTimeline(t *testing.T) {
	f := newRoomFixture(t)

	if err := f.room.Join(context.Background()); err != nil {
		t.Fatalf("join: %v", err)
	}
	waitWireEvent(t, f.srv, proto.EventJoinRoom)

	f.srv.Broadcast(t, proto.EventUserJoined, "bob sohbete katıldı.")

	ev := waitRoomEvent(t, f.room, chat.EventNotice)
	if ev.Notice.Sender != chat.SystemSender || ev.Notice.Body != "bob sohbete katıldı." {
		t.Fatalf("notice = %+v", ev.Notice)
	}
}
