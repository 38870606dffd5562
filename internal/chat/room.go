package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/hobbymatch/hobbymatch/internal/api"
	"github.com/hobbymatch/hobbymatch/internal/proto"
	"github.com/hobbymatch/hobbymatch/internal/push"
	"github.com/hobbymatch/hobbymatch/internal/state"
)

var (
	// ErrAlreadyJoined is returned when Join is called twice on one Room.
	ErrAlreadyJoined = errors.New("already joined")
	// ErrNotJoined is returned for operations that need a live room.
	ErrNotJoined = errors.New("not in a joined room")
)

// Room reconciles one chat room's membership and timeline across the push
// channel and the message poll. One Room value covers one room instance;
// rejoining after Left means constructing a new Room.
type Room struct {
	id       string
	username string

	api          *api.Client
	push         *push.Manager
	store        *state.Store
	clock        clockwork.Clock
	log          *zerolog.Logger
	pollInterval time.Duration

	mu         sync.Mutex
	membership Membership
	timeline   *Timeline
	offs       []func()
	stopPoll   context.CancelFunc
	events     chan Event
}

// RoomDeps bundles the collaborators a Room needs.
type RoomDeps struct {
	API          *api.Client
	Push         *push.Manager
	Store        *state.Store
	Clock        clockwork.Clock
	Log          *zerolog.Logger
	PollInterval time.Duration
}

// NewRoom constructs an unjoined room.
func NewRoom(id, username string, deps RoomDeps) *Room {
	return &Room{
		id:           id,
		username:     username,
		api:          deps.API,
		push:         deps.Push,
		store:        deps.Store,
		clock:        deps.Clock,
		log:          deps.Log,
		pollInterval: deps.PollInterval,
		membership:   Unjoined,
		timeline:     NewTimeline(),
		events:       make(chan Event, 16),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Membership returns the current membership state.
func (r *Room) Membership() Membership {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.membership
}

// Events is the notification stream for the UI layer. Slow consumers drop
// events; the timeline snapshot stays authoritative.
func (r *Room) Events() <-chan Event {
	return r.events
}

// Messages returns a timeline snapshot, oldest first.
func (r *Room) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeline.Messages()
}

// HighWater returns the poll cursor, for diagnostics.
func (r *Room) HighWater() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timeline.HighWater()
}

// Join runs the full entry sequence: bulk history fetch first, then the
// join-room emission, then Joined with the poll ticker running. The fetch
// coming first guarantees the timeline is populated before live or polled
// updates start arriving. A failed fetch is tolerated: joining with an empty
// timeline beats staying unresponsive.
func (r *Room) Join(ctx context.Context) error {
	r.mu.Lock()
	if r.membership != Unjoined {
		r.mu.Unlock()
		return fmt.Errorf("join %s: %w", r.id, ErrAlreadyJoined)
	}
	r.membership = Joining
	r.mu.Unlock()

	history, err := r.api.Messages(ctx, r.id, 0)
	if err != nil {
		r.log.Warn().Err(err).Str("room", r.id).Msg("history fetch failed, joining with empty timeline")
		history = nil
	}
	now := r.nowUnix()

	r.mu.Lock()
	r.timeline.LoadHistory(toTimeline(history), now)
	r.offs = []func(){
		r.push.On(proto.EventUserJoined, r.handleUserJoined),
		r.push.On(proto.EventUserLeft, r.handleUserLeft),
		r.push.On(proto.EventChatEnded, r.handleChatEnded),
		r.push.On(proto.EventConnect, r.handleReconnect),
	}
	r.mu.Unlock()

	if err := r.push.Emit(proto.EventJoinRoom, proto.JoinRoomData{Room: r.id, Username: r.username}); err != nil {
		r.log.Warn().Err(err).Str("room", r.id).Msg("join-room emission failed")
	}

	r.mu.Lock()
	if r.membership != Joining {
		// A terminal push event (chat_ended, user_left) won the race while
		// the join emission was in flight. finish already cleared the
		// pointer; resurrecting the room here would undo that.
		r.mu.Unlock()
		r.log.Info().Str("room", r.id).Msg("room ended during join")
		return nil
	}
	// Pointer persist happens under the lock, before Joined, so a terminal
	// handler can never slip between the write and the transition.
	if err := r.store.SetLastRoomID(ctx, r.id); err != nil {
		r.log.Warn().Err(err).Str("room", r.id).Msg("persist room pointer")
	}
	r.membership = Joined
	pollCtx, cancel := context.WithCancel(ctx)
	r.stopPoll = cancel
	r.mu.Unlock()

	go r.pollLoop(pollCtx)

	r.log.Info().Str("room", r.id).Str("user", r.username).Msg("joined room")
	return nil
}

// Send posts a message through the message store. The room state does not
// change on failure; the error is surfaced to the caller.
func (r *Room) Send(ctx context.Context, body string) error {
	r.mu.Lock()
	joined := r.membership == Joined
	r.mu.Unlock()
	if !joined {
		return ErrNotJoined
	}
	if err := r.api.SendMessage(ctx, r.id, r.username, body); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Leave is the local user stepping out. The persisted room pointer survives
// so the chat can be resumed later.
func (r *Room) Leave(ctx context.Context) error {
	if r.push.Connected() {
		if err := r.push.Emit(proto.EventLeaveRoom, proto.LeaveRoomData{Room: r.id, Username: r.username}); err != nil {
			r.log.Warn().Err(err).Str("room", r.id).Msg("leave_room emission failed")
		}
	}
	if !r.finish(ctx, Left, "") {
		return ErrNotJoined
	}
	r.log.Info().Str("room", r.id).Msg("left room")
	return nil
}

// End terminates the chat for both parties. The pointer is cleared before
// the backend call so a failure cannot leave a stale "continue chat" hint.
func (r *Room) End(ctx context.Context) error {
	if err := r.store.ClearLastRoomID(ctx); err != nil {
		r.log.Warn().Err(err).Msg("clear room pointer")
	}

	err := r.api.EndChat(ctx, r.id, r.username)
	if err != nil {
		r.log.Warn().Err(err).Str("room", r.id).Msg("end chat call failed")
	}

	r.finish(ctx, Ended, "Sohbet sonlandırıldı.")
	return err
}

func (r *Room) handleUserJoined(data json.RawMessage) {
	r.appendNotice(proto.Notice(data))
}

// handleUserLeft fires when the counterparty walks away. The room is over:
// the pointer is cleared in the same reconciliation step so no stale
// "continue chat" affordance survives.
func (r *Room) handleUserLeft(data json.RawMessage) {
	r.finish(context.Background(), Ended, proto.Notice(data))
}

func (r *Room) handleChatEnded(data json.RawMessage) {
	var payload proto.ChatEndedData
	if err := json.Unmarshal(data, &payload); err != nil {
		r.log.Warn().Err(err).Msg("decode chat_ended")
		payload.Message = "Sohbet sonlandırıldı."
	}
	r.finish(context.Background(), Ended, payload.Message)
}

// handleReconnect re-subscribes the room after the push channel comes back:
// server-side routing may have forgotten this connection entirely.
func (r *Room) handleReconnect(json.RawMessage) {
	r.mu.Lock()
	joined := r.membership == Joined
	r.mu.Unlock()
	if !joined {
		return
	}
	r.log.Info().Str("room", r.id).Msg("push channel back, re-joining room")
	if err := r.push.Emit(proto.EventJoinRoom, proto.JoinRoomData{Room: r.id, Username: r.username}); err != nil {
		r.log.Warn().Err(err).Str("room", r.id).Msg("re-join emission failed")
	}
}

func (r *Room) appendNotice(body string) {
	r.mu.Lock()
	if r.membership != Joined {
		r.mu.Unlock()
		return
	}
	msg := r.timeline.AppendSystem(body, r.nowUnix())
	r.mu.Unlock()

	r.emit(Event{Kind: EventNotice, Notice: msg})
}

// finish moves the room into a terminal state exactly once: stop the poll
// ticker, detach every push handler, surface the closing notice. Ended also
// clears the persisted pointer; Left never does.
func (r *Room) finish(ctx context.Context, terminal Membership, notice string) bool {
	r.mu.Lock()
	if r.membership != Joining && r.membership != Joined {
		r.mu.Unlock()
		return false
	}
	r.membership = terminal
	stop := r.stopPoll
	r.stopPoll = nil
	offs := r.offs
	r.offs = nil

	var noticeMsg Message
	if notice != "" {
		noticeMsg = r.timeline.AppendSystem(notice, r.nowUnix())
	}
	r.mu.Unlock()

	if stop != nil {
		stop()
	}
	for _, off := range offs {
		off()
	}

	if terminal == Ended {
		if err := r.store.ClearLastRoomID(ctx); err != nil {
			r.log.Warn().Err(err).Msg("clear room pointer")
		}
	}

	if notice != "" {
		r.emit(Event{Kind: EventNotice, Notice: noticeMsg})
	}
	if terminal == Ended {
		r.emit(Event{Kind: EventEnded})
	}
	return true
}

func (r *Room) pollLoop(ctx context.Context) {
	ticker := r.clock.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			r.pollOnce(ctx)
		}
	}
}

// pollOnce fetches messages past the high-water mark and merges them. Poll
// errors leave the room exactly as it was; the next tick retries.
func (r *Room) pollOnce(ctx context.Context) {
	r.mu.Lock()
	if r.membership != Joined {
		r.mu.Unlock()
		return
	}
	since := r.timeline.HighWater()
	r.mu.Unlock()

	batch, err := r.api.Messages(ctx, r.id, since)
	if err != nil {
		r.log.Debug().Err(err).Str("room", r.id).Msg("message poll failed")
		return
	}
	if len(batch) == 0 {
		return
	}

	r.mu.Lock()
	if r.membership != Joined {
		r.mu.Unlock()
		return
	}
	added := r.timeline.MergePoll(toTimeline(batch))
	r.mu.Unlock()

	if len(added) > 0 {
		r.emit(Event{Kind: EventMessages, Messages: added})
	}
}

// emit pushes an event to the UI without ever blocking a reconciliation step.
func (r *Room) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		// Drop if slow consumer.
	}
}

func (r *Room) nowUnix() float64 {
	return float64(r.clock.Now().UnixNano()) / float64(time.Second)
}

func toTimeline(msgs []api.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Sender: m.Sender, Body: m.Body, Timestamp: m.Timestamp}
	}
	return out
}
