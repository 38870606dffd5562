package api

// Message is a chat message as delivered by the message store.
// Timestamps are fractional unix seconds assigned server-side.
type Message struct {
	Sender    string  `json:"sender"`
	Body      string  `json:"message"`
	Timestamp float64 `json:"timestamp"`
}

// LoginResult is the successful login payload.
type LoginResult struct {
	Message string   `json:"message"`
	UserID  string   `json:"userId"`
	Hobbies []string `json:"hobbies"`
}

// Match statuses returned by /api/chat/request.
const (
	MatchStatusMatched = "matched"
	MatchStatusWaiting = "waiting"
)

// MatchResult is the response to a match request.
type MatchResult struct {
	Status        string `json:"status"`
	RoomID        string `json:"roomId,omitempty"`
	CommonHobbies int    `json:"commonHobbies,omitempty"`
	Message       string `json:"message,omitempty"`
}

type messagesResponse struct {
	Messages []Message `json:"messages"`
}

type checkActiveResponse struct {
	HasActiveChat bool `json:"hasActiveChat"`
}

type roomResponse struct {
	RoomID *string `json:"roomId"`
}

type detailResponse struct {
	Detail string `json:"detail"`
}
