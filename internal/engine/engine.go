package engine

import (
	"time"

	"github.com/pe2pia/chatsync/internal/bus"
	"github.com/pe2pia/chatsync/internal/pipeline"
	"github.com/pe2pia/chatsync/internal/store"
	intsync "github.com/pe2pia/chatsync/internal/sync"
	"github.com/pe2pia/chatsync/internal/view"
	"go.uber.org/zap"
)

// Engine is the surface the UI layer talks to: fire-and-forget sends,
// retries, conversation lifecycle, and read-only views of the stores.
// All state lives in the stores; the UI observes outcomes by re-reading
// them, prompted by bus events.
type Engine struct {
	messages      *store.MessageStore
	conversations *store.ConversationStore
	sender        *pipeline.Sender
	coordinator   *intsync.Coordinator
	roster        *intsync.Roster
	bus           *bus.Bus
	logger        *zap.Logger
}

// New assembles the engine from its components.
func New(
	messages *store.MessageStore,
	conversations *store.ConversationStore,
	sender *pipeline.Sender,
	coordinator *intsync.Coordinator,
	roster *intsync.Roster,
	b *bus.Bus,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		messages:      messages,
		conversations: conversations,
		sender:        sender,
		coordinator:   coordinator,
		roster:        roster,
		bus:           b,
		logger:        logger,
	}
}

// Send submits a message to the active conversation. Completion is
// observed through the message store, not a return value.
func (e *Engine) Send(conversationID, senderID, text string, attachments []store.Attachment) {
	e.sender.Send(conversationID, senderID, text, attachments)
}

// Retry re-submits a failed message under its existing local id.
func (e *Engine) Retry(id string) error {
	return e.sender.Retry(id)
}

// OpenConversation makes a conversation the active one: any previous
// polling stops, the message store is cleared, and polling starts for the
// new conversation with an immediate fetch.
func (e *Engine) OpenConversation(conversationID string) {
	e.coordinator.Stop()
	e.messages.Clear()
	e.coordinator.Start(conversationID)
	e.logger.Info("conversation opened", zap.String("conversation_id", conversationID))
}

// CloseConversation stops polling for the active conversation. Must be
// called when the conversation view goes away. Safe to call repeatedly.
func (e *Engine) CloseConversation() {
	e.coordinator.Stop()
}

// Timeline projects the current message store into its renderable form.
func (e *Engine) Timeline() []view.Entry {
	return view.Project(e.messages.List(), time.Now())
}

// Messages returns a snapshot of the active conversation's messages.
func (e *Engine) Messages() []store.Message {
	return e.messages.List()
}

// Conversations returns the conversation list, most recently active first.
func (e *Engine) Conversations() []store.Conversation {
	return e.conversations.List()
}

// Subscribe returns a read-only subscription to engine events under the
// given kind prefix ("message.", "conversation.", "sync.").
func (e *Engine) Subscribe(namespace string, bufSize int) *bus.Subscription {
	return e.bus.Subscribe(namespace, bufSize)
}
