package store

import "time"

// Conversation is the client-side projection of the backend's conversation
// resource. Messages are session-local and never cached here.
type Conversation struct {
	ID          string
	Name        string
	Icon        string
	Description string
	CreatedAt   time.Time
}
