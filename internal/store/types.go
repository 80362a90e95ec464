package store

import (
	"time"

	"github.com/pe2pia/chatsync/internal/status"
)

// Attachment describes a binary attachment carried by a message.
type Attachment struct {
	URI      string
	MimeType string
}

// UserSummary is the resolved profile of a conversation member.
// A member whose profile could not be resolved carries only the ID.
type UserSummary struct {
	ID        string
	FirstName string
	LastName  string
	AvatarURL string
}

// Message represents a chat message held by the engine. Identity is the
// local id, which is replaced by the server id once the send is confirmed.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Text           string
	Attachments    []Attachment
	CreatedAt      time.Time
	Status         status.Status
}

// Conversation represents a conversation snapshot. Members are unique by
// user id. LastMessage is nil for conversations with no messages yet.
type Conversation struct {
	ID          string
	Members     []UserSummary
	LastMessage *Message
	UnreadCount int
}

// lastMessageID returns the id of the conversation's last message, or ""
// when there is none.
func (c *Conversation) lastMessageID() string {
	if c.LastMessage == nil {
		return ""
	}
	return c.LastMessage.ID
}
