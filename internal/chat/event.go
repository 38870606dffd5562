package chat

// EventKind identifies a room notification for the UI layer.
type EventKind int

const (
	// EventMessages delivers newly merged chat messages.
	EventMessages EventKind = iota
	// EventNotice delivers one synthesized system notice.
	EventNotice
	// EventEnded signals that the room reached Ended.
	EventEnded
)

// Event is sent to the UI layer to describe what happened in the room.
type Event struct {
	Kind     EventKind
	Messages []Message
	Notice   Message
}
