package transport

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/pe2pia/chatsync/internal/status"
	"github.com/pe2pia/chatsync/internal/store"
)

// ServerMessage is the authoritative message record as returned by the API.
// Fields outside this schema are discarded rather than propagated.
type ServerMessage struct {
	ID             string       `json:"_id"`
	ConversationID string       `json:"conversationId"`
	SenderID       string       `json:"senderId"`
	Text           string       `json:"text"`
	Files          []ServerFile `json:"files"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// ServerFile describes an uploaded attachment.
type ServerFile struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
}

// Validate rejects records missing the fields the engine depends on.
// Invalid records are quarantined by the caller, never merged.
func (m *ServerMessage) Validate() error {
	if m.ID == "" {
		return errors.New("message record missing _id")
	}
	if m.ConversationID == "" {
		return errors.New("message record missing conversationId")
	}
	if m.SenderID == "" {
		return errors.New("message record missing senderId")
	}
	return nil
}

// ToMessage converts the record into a store entity. Server-acknowledged
// messages are always sent, including those authored by the counterpart.
func (m *ServerMessage) ToMessage() store.Message {
	out := store.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
		Status:         status.Sent,
	}
	for _, f := range m.Files {
		out.Attachments = append(out.Attachments, store.Attachment{URI: f.URL, MimeType: f.MimeType})
	}
	return out
}

// ServerUser is a user record as returned by the profile endpoint.
type ServerUser struct {
	ID             string `json:"_id"`
	FirstName      string `json:"FirstName"`
	LastName       string `json:"LastName"`
	ProfilePicture struct {
		URL string `json:"url"`
	} `json:"profilePicture"`
}

// Summary converts the record into the engine's member representation.
func (u *ServerUser) Summary() store.UserSummary {
	return store.UserSummary{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		AvatarURL: u.ProfilePicture.URL,
	}
}

// MemberRef is a conversation member that arrives either as a bare user id
// or as a full embedded user record, depending on the endpoint.
type MemberRef struct {
	ID   string
	User *ServerUser
}

// UnmarshalJSON accepts both member encodings.
func (r *MemberRef) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		r.ID = id
		return nil
	}
	var user ServerUser
	if err := json.Unmarshal(data, &user); err != nil {
		return err
	}
	r.ID = user.ID
	r.User = &user
	return nil
}

// ServerConversation is a conversation snapshot as returned by the API.
type ServerConversation struct {
	ID          string         `json:"_id"`
	Members     []MemberRef    `json:"members"`
	LastMessage *ServerMessage `json:"lastMessage"`
	UnreadCount int            `json:"unreadCount"`
}

// Validate rejects snapshots the engine cannot key or display.
func (c *ServerConversation) Validate() error {
	if c.ID == "" {
		return errors.New("conversation record missing _id")
	}
	if len(c.Members) == 0 {
		return errors.New("conversation record has no members")
	}
	if c.UnreadCount < 0 {
		return errors.New("conversation record has negative unreadCount")
	}
	return nil
}
