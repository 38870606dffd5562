package chat

// SystemSender marks synthesized notices (join/leave/end).
const SystemSender = "system"

// Message is one entry of the room timeline. Timestamp is the fractional
// unix-seconds value assigned by the external message store; system notices
// carry the local clock instead.
type Message struct {
	Sender    string
	Body      string
	Timestamp float64
}

type dedupeKey struct {
	sender    string
	body      string
	timestamp float64
}

// Timeline merges bulk history, incremental polls, and push-delivered system
// notices into one ordered, de-duplicated sequence, oldest first. The
// high-water mark tracks the largest store timestamp already incorporated so
// repeated polls never re-deliver the same window. It is advanced only by
// store-delivered messages: system notices are stamped with the local clock,
// which is not the store's timestamp domain.
type Timeline struct {
	msgs      []Message
	seen      map[dedupeKey]struct{}
	highWater float64
}

// NewTimeline returns an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{seen: make(map[dedupeKey]struct{})}
}

// LoadHistory replaces the timeline with the bulk fetch result. The store
// delivers newest-first; the timeline keeps oldest-first. now is the local
// fallback high-water mark used when the room has no history yet.
func (t *Timeline) LoadHistory(newestFirst []Message, now float64) {
	t.msgs = t.msgs[:0]
	t.seen = make(map[dedupeKey]struct{})
	t.highWater = 0

	for i := len(newestFirst) - 1; i >= 0; i-- {
		t.append(newestFirst[i], true)
	}
	if t.highWater == 0 {
		t.highWater = now
	}
}

// MergePoll folds an incremental poll batch (newest-first) into the timeline
// and returns the messages that were actually new, oldest first.
func (t *Timeline) MergePoll(newestFirst []Message) []Message {
	var added []Message
	for i := len(newestFirst) - 1; i >= 0; i-- {
		if t.append(newestFirst[i], true) {
			added = append(added, newestFirst[i])
		}
	}
	return added
}

// AppendSystem inserts a synthesized system notice at the current end of the
// timeline. ts is the local clock reading.
func (t *Timeline) AppendSystem(body string, ts float64) Message {
	msg := Message{Sender: SystemSender, Body: body, Timestamp: ts}
	t.append(msg, false)
	return msg
}

// Messages returns a snapshot of the timeline, oldest first.
func (t *Timeline) Messages() []Message {
	out := make([]Message, len(t.msgs))
	copy(out, t.msgs)
	return out
}

// Len returns the number of timeline entries.
func (t *Timeline) Len() int {
	return len(t.msgs)
}

// HighWater returns the poll cursor.
func (t *Timeline) HighWater() float64 {
	return t.highWater
}

// append adds a message unless its (sender, body, timestamp) key was already
// seen. Equal timestamps keep arrival order. Returns true when added.
func (t *Timeline) append(msg Message, advance bool) bool {
	key := dedupeKey{sender: msg.Sender, body: msg.Body, timestamp: msg.Timestamp}
	if _, dup := t.seen[key]; dup {
		return false
	}
	t.seen[key] = struct{}{}
	t.msgs = append(t.msgs, msg)

	if advance && msg.Timestamp > t.highWater {
		t.highWater = msg.Timestamp
	}
	return true
}
