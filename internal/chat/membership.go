package chat

// Membership tracks the local user's relation to one room instance.
// Transitions only move forward; Left and Ended are terminal. A new room id
// always starts a fresh Room with a fresh Membership.
type Membership int

const (
	// Unjoined is the initial state before any join attempt.
	Unjoined Membership = iota
	// Joining covers the bulk history fetch up to the join emission.
	Joining
	// Joined means the room is live: poll ticker running, push handlers attached.
	Joined
	// Left is the terminal state after a local leave. The persisted room
	// pointer survives so the user may rejoin.
	Left
	// Ended is the terminal state after the chat is over, locally or
	// remotely. The persisted room pointer is cleared.
	Ended
)

func (m Membership) String() string {
	switch m {
	case Unjoined:
		return "unjoined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	case Left:
		return "left"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}
