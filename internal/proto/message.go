package proto

import "encoding/json"

// Envelope is the wire frame for the push channel, both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Events emitted by the client.
const (
	EventJoinRoom     = "join-room"
	EventLeaveRoom    = "leave_room"
	EventJoinUserRoom = "join_user_room"
)

// Events delivered by the backend.
const (
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventChatEnded  = "chat_ended"
	EventMatchFound = "match_found"
)

// Lifecycle events synthesized by the connection manager. They carry no
// backend payload and exist so session/room controllers can react to the
// channel itself.
const (
	EventConnect      = "connect"
	EventDisconnect   = "disconnect"
	EventConnectError = "connect_error"
)

// JoinRoomData subscribes the connection to a chat room.
type JoinRoomData struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// LeaveRoomData announces the local user leaving a room.
type LeaveRoomData struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// JoinUserRoomData subscribes the connection to the per-user notification
// channel used for match delivery.
type JoinUserRoomData struct {
	UserID string `json:"userId"`
}

// MatchFoundData announces a completed match. The channel is shared, so
// TargetUser identifies the addressee; foreign notifications are ignored.
type MatchFoundData struct {
	TargetUser    string `json:"targetUser"`
	RoomID        string `json:"roomId"`
	CommonHobbies int    `json:"commonHobbies"`
	Partner       string `json:"partner,omitempty"`
}

// ChatEndedData carries the end-of-chat notice shown in the timeline.
type ChatEndedData struct {
	Message string `json:"message"`
}

// Notice decodes the bare string payload of user_joined / user_left events.
func Notice(data json.RawMessage) string {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return string(data)
	}
	return s
}
