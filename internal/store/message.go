package store

import (
	"fmt"
	"sync"

	"github.com/elliotchance/orderedmap/v3"
	"github.com/pe2pia/chatsync/internal/status"
)

// MessageStore holds the messages of the session in memory, keyed by local
// message id in insertion order. It is mutated only by the send pipeline and
// the sync coordinator; every mutation runs to completion under one lock, so
// readers never observe a half-applied state.
type MessageStore struct {
	mu   sync.RWMutex
	byID *orderedmap.OrderedMap[string, *Message]
}

// NewMessageStore creates an empty message store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		byID: orderedmap.NewOrderedMap[string, *Message](),
	}
}

// Put inserts a new message. The id must not already exist.
func (s *MessageStore) Put(m Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID.Get(m.ID); ok {
		return fmt.Errorf("message %q already exists", m.ID)
	}
	s.byID.Set(m.ID, &m)
	return nil
}

// Get returns a copy of the message with the given id.
func (s *MessageStore) Get(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID.Get(id)
	if !ok {
		return Message{}, false
	}
	return *m, true
}

// Has reports whether a message with the given id exists.
func (s *MessageStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byID.Get(id)
	return ok
}

// Len returns the number of stored messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID.Len()
}

// List returns copies of all messages in insertion order.
func (s *MessageStore) List() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, 0, s.byID.Len())
	for el := s.byID.Front(); el != nil; el = el.Next() {
		out = append(out, *el.Value)
	}
	return out
}

// Clear removes all messages. Used when the active conversation changes.
func (s *MessageStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID = orderedmap.NewOrderedMap[string, *Message]()
}

// Confirm replaces the entry under tempID with the server-confirmed message
// in a single mutation: at no observable point do both ids exist, nor
// neither. If the server id is already present (a poll merged it before the
// send call returned), the temporary entry is simply dropped.
func (s *MessageStore) Confirm(tempID string, confirmed Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID.Get(tempID); !ok {
		return fmt.Errorf("message %q not found", tempID)
	}
	s.byID.Delete(tempID)
	s.byID.Set(confirmed.ID, &confirmed)
	return nil
}

// MarkFailed transitions a message to failed in place. The entry is kept
// under its id so the user can retry it.
func (s *MessageStore) MarkFailed(id string) error {
	return s.transition(id, status.Failed)
}

// MarkSending resets a failed message to sending for a retry attempt. The
// id is unchanged: a retry is a new attempt under the same local id.
func (s *MessageStore) MarkSending(id string) error {
	return s.transition(id, status.Sending)
}

func (s *MessageStore) transition(id string, to status.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID.Get(id)
	if !ok {
		return fmt.Errorf("message %q not found", id)
	}
	if err := status.Transition(m.Status, to); err != nil {
		return fmt.Errorf("message %q: %w", id, err)
	}
	m.Status = to
	return nil
}

// MergeAuthoritative reconciles the store with the server's full message
// list for a conversation. The merged result is the authoritative list plus
// any local message still sending whose id the server does not know yet
// (an in-flight optimistic send must never be erased by a poll that raced
// ahead of it). Local sent or failed messages absent from the list are
// superseded by server truth and dropped. Messages of other conversations
// are untouched. Deduplication is by id only.
func (s *MessageStore) MergeAuthoritative(conversationID string, authoritative []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	known := make(map[string]struct{}, len(authoritative))
	for i := range authoritative {
		known[authoritative[i].ID] = struct{}{}
	}

	var drop []string
	for el := s.byID.Front(); el != nil; el = el.Next() {
		m := el.Value
		if m.ConversationID != conversationID {
			continue
		}
		if m.Status == status.Sending {
			continue
		}
		if _, ok := known[m.ID]; !ok {
			drop = append(drop, m.ID)
		}
	}
	for _, id := range drop {
		s.byID.Delete(id)
	}

	// Upsert keeps the position of already-known ids and appends new ones.
	for i := range authoritative {
		m := authoritative[i]
		s.byID.Set(m.ID, &m)
	}
}
