// Package chat defines the transport-neutral event and reply types the
// session engine exchanges with a messaging gateway.
package chat

import "context"

type EventType string

const (
	EventText   EventType = "text"
	EventVoice  EventType = "voice"
	EventFile   EventType = "file"
	EventSelect EventType = "select"
	EventCancel EventType = "cancel"
)

// Event is one inbound user interaction. Text carries the message body for
// text events and the chosen option for select events.
type Event struct {
	UserID   string    `json:"user_id"`
	Type     EventType `json:"type"`
	Text     string    `json:"text,omitempty"`
	Audio    []byte    `json:"audio,omitempty"`
	FileName string    `json:"file_name,omitempty"`
	FileData []byte    `json:"file_data,omitempty"`
}

// Reply is one outbound message. Keyboard lists quick-reply options; Image
// is a PNG chart; FileName/FileData carry a document attachment.
type Reply struct {
	Text     string   `json:"text,omitempty"`
	Keyboard []string `json:"keyboard,omitempty"`
	Image    []byte   `json:"image,omitempty"`
	FileName string   `json:"file_name,omitempty"`
	FileData []byte   `json:"file_data,omitempty"`
}

// Sink delivers replies back to the user through whatever transport hosts
// the conversation.
type Sink interface {
	Send(ctx context.Context, userID string, reply Reply) error
}
