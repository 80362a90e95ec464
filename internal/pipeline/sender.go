package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/pe2pia/chatsync/internal/bus"
	"github.com/pe2pia/chatsync/internal/status"
	"github.com/pe2pia/chatsync/internal/store"
	"github.com/pe2pia/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Sender is the optimistic send pipeline. A send inserts the message into
// the store immediately under a temporary id, then reconciles it against
// the server's record (or marks it failed) when the network call completes.
// Callers never receive an error from Send; outcomes are store mutations
// observed through the store and the bus.
type Sender struct {
	store  *store.MessageStore
	client transport.Client
	bus    *bus.Bus
	logger *zap.Logger
}

// NewSender creates a new send pipeline.
func NewSender(st *store.MessageStore, client transport.Client, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		store:  st,
		client: client,
		bus:    b,
		logger: logger,
	}
}

// Send submits a message. The optimistic entry appears in the store with
// status "sending" before Send returns; the network attempt runs in the
// background and produces exactly one request.
func (s *Sender) Send(conversationID, senderID, text string, attachments []store.Attachment) {
	m := store.Message{
		ID:             s.newLocalID(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		Attachments:    attachments,
		CreatedAt:      time.Now(),
		Status:         status.Sending,
	}
	if err := s.store.Put(m); err != nil {
		s.logger.Error("optimistic insert failed", zap.Error(err), zap.String("local_msg_id", m.ID))
		return
	}
	s.publish("message.upserted", map[string]string{
		"conversation_id": conversationID,
		"msg_id":          m.ID,
	})

	go s.attempt(m)
}

// Retry re-submits a failed message. The payload and the local id are the
// ones of the original attempt; the status resets to "sending" before Retry
// returns.
func (s *Sender) Retry(id string) error {
	m, ok := s.store.Get(id)
	if !ok {
		return fmt.Errorf("message %q not found", id)
	}
	if err := s.store.MarkSending(id); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	s.publish("message.upserted", map[string]string{
		"conversation_id": m.ConversationID,
		"msg_id":          m.ID,
	})

	go s.attempt(m)
	return nil
}

func (s *Sender) attempt(m store.Message) {
	resp, err := s.client.SendMessage(context.Background(), transport.SendRequest{
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Text:           m.Text,
		Attachments:    m.Attachments,
	})
	if err != nil {
		s.logger.Error("send failed",
			zap.Error(err),
			zap.String("local_msg_id", m.ID),
			zap.String("conversation_id", m.ConversationID))
		if markErr := s.store.MarkFailed(m.ID); markErr != nil {
			s.logger.Warn("mark failed", zap.Error(markErr), zap.String("local_msg_id", m.ID))
		}
		s.publish("message.send_failed", map[string]string{
			"conversation_id": m.ConversationID,
			"local_msg_id":    m.ID,
			"error":           err.Error(),
		})
		return
	}

	confirmed := resp.ToMessage()
	if confirmed.CreatedAt.IsZero() {
		// Server omitted its timestamp; keep the optimistic one rather than
		// dropping the message to the epoch.
		confirmed.CreatedAt = m.CreatedAt
	}
	if err := s.store.Confirm(m.ID, confirmed); err != nil {
		s.logger.Warn("reconcile failed", zap.Error(err), zap.String("local_msg_id", m.ID))
		return
	}

	s.logger.Info("message sent",
		zap.String("local_msg_id", m.ID),
		zap.String("server_msg_id", confirmed.ID))
	s.publish("message.upserted", map[string]string{
		"conversation_id": m.ConversationID,
		"msg_id":          confirmed.ID,
	})
	s.publish("message.send_ack", map[string]string{
		"conversation_id": m.ConversationID,
		"local_msg_id":    m.ID,
		"server_msg_id":   confirmed.ID,
	})
}

func (s *Sender) publish(kind string, payload map[string]string) {
	s.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}

// newLocalID generates a temporary message id: base-36 of a random 32-bit
// value, re-rolled on the off chance it collides with a live entry.
func (s *Sender) newLocalID() string {
	for {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			return strconv.FormatInt(time.Now().UnixNano(), 36)
		}
		id := strconv.FormatUint(uint64(binary.BigEndian.Uint32(b[:])), 36)
		if !s.store.Has(id) {
			return id
		}
	}
}
