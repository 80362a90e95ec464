package store

import (
	"sort"
	"sync"
)

// ConversationStore holds the conversation list in memory, keyed by
// conversation id. It is populated exclusively by the sync layer; sending a
// message never touches it (conversation-list freshness comes from the next
// poll).
type ConversationStore struct {
	mu   sync.RWMutex
	byID map[string]*Conversation
}

// NewConversationStore creates an empty conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		byID: make(map[string]*Conversation),
	}
}

// Merge applies a fetched conversation snapshot. Unknown conversations are
// inserted. A known conversation is overwritten only when the snapshot
// actually carries news: its last message changed, it has unread messages,
// or its unread count differs from the local one (the last case covers the
// count dropping back to zero after the conversation was read). Redundant
// snapshots leave the local entry untouched to avoid churn on every poll.
// Reports whether the local entry changed.
func (s *ConversationStore) Merge(c Conversation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	local, ok := s.byID[c.ID]
	if !ok {
		s.byID[c.ID] = &c
		return true
	}
	if c.UnreadCount > 0 || c.UnreadCount != local.UnreadCount || c.lastMessageID() != local.lastMessageID() {
		s.byID[c.ID] = &c
		return true
	}
	return false
}

// Get returns a copy of the conversation with the given id.
func (s *ConversationStore) Get(id string) (Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byID[id]
	if !ok {
		return Conversation{}, false
	}
	return *c, true
}

// Len returns the number of stored conversations.
func (s *ConversationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// List returns copies of all conversations, most recently active first.
// Conversations without messages sort last.
func (s *ConversationStore) List() []Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Conversation, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].LastMessage, out[j].LastMessage
		switch {
		case a == nil && b == nil:
			return out[i].ID < out[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.CreatedAt.Equal(b.CreatedAt):
			return a.CreatedAt.After(b.CreatedAt)
		default:
			return out[i].ID < out[j].ID
		}
	})
	return out
}
