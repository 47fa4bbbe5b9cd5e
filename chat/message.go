// Package chat drives a conversational session: greeting, send/receive
// cycles with a per-session message cap, automatic conversation naming,
// and the sidebar's multi-select conversation management.
package chat

import (
	"time"

	"github.com/google/uuid"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one entry in the session log. Messages are append-only;
// the log is never mutated after a message lands.
type Message struct {
	ID        string
	Text      string
	Sender    Sender
	ImageRef  string // opaque reference to an attached image, if any
	Timestamp time.Time
}

func newMessage(sender Sender, text, imageRef string) Message {
	return Message{
		ID:        uuid.NewString(),
		Text:      text,
		Sender:    sender,
		ImageRef:  imageRef,
		Timestamp: time.Now(),
	}
}
