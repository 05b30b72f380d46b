package agent

import "time"

// Event types sent from the relay to attached clients.
const (
	EventStatus     = "status"
	EventWelcome    = "welcome"
	EventTranscript = "transcript"
	EventResponse   = "response"
	EventError      = "error"
	EventPong       = "pong"
	EventShutdown   = "shutdown"
)

// Event is a server-to-client message on the session channel.
type Event struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	IsFinal   bool   `json:"isFinal,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// NewEvent stamps an event with the current unix timestamp.
func NewEvent(eventType, text string) Event {
	return Event{Type: eventType, Text: text, Timestamp: time.Now().Unix()}
}

// Summary is the operational view of a live session.
type Summary struct {
	ID              string    `json:"id"`
	Role            Role      `json:"role"`
	RoomURL         string    `json:"roomUrl"`
	UserName        string    `json:"userName"`
	ConnectionCount int       `json:"connectionCount"`
	CreatedAt       time.Time `json:"createdAt"`
}
