package sync

import (
	"context"
	"sync"
	"time"

	"github.com/pe2pia/chatsync/internal/bus"
	"github.com/pe2pia/chatsync/internal/store"
	"github.com/pe2pia/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Roster polls the server for the user's conversation list, resolves member
// ids to profiles, and merges the snapshots into the conversation store.
// Same lifecycle contract as Coordinator: one timer, idempotent Start,
// repeat-safe Stop.
type Roster struct {
	store    *store.ConversationStore
	client   transport.Client
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewRoster creates a conversation-list poller.
func NewRoster(st *store.ConversationStore, client transport.Client, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Roster {
	return &Roster{
		store:    st,
		client:   client,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start begins polling the conversation list for a user. Idempotent while
// running.
func (r *Roster) Start(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.logger.Debug("conversation sync already running", zap.String("user_id", userID))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	go r.loop(ctx, userID)
}

// Stop halts the polling timer. Safe to call repeatedly.
func (r *Roster) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}

func (r *Roster) loop(ctx context.Context, userID string) {
	r.pollOnce(ctx, userID)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.pollOnce(ctx, userID)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Roster) pollOnce(ctx context.Context, userID string) {
	if ctx.Err() != nil {
		return
	}

	records, err := r.client.FetchConversations(context.Background(), userID)
	if err != nil {
		r.logger.Warn("conversation fetch failed",
			zap.Error(err),
			zap.String("user_id", userID))
		return
	}

	for i := range records {
		conv := r.resolve(&records[i])
		if r.store.Merge(conv) {
			r.bus.Publish(bus.Event{
				Kind:      "conversation.updated",
				Timestamp: time.Now(),
				Payload: map[string]string{
					"conversation_id": conv.ID,
				},
			})
		}
	}
}

// resolve turns a fetched snapshot into a store entity, fetching the
// profile of every member that arrived as a bare id. A member whose
// resolution fails is kept with partial data (id only) rather than
// aborting the conversation.
func (r *Roster) resolve(rec *transport.ServerConversation) store.Conversation {
	conv := store.Conversation{
		ID:          rec.ID,
		UnreadCount: rec.UnreadCount,
	}
	if rec.LastMessage != nil {
		m := rec.LastMessage.ToMessage()
		conv.LastMessage = &m
	}

	seen := make(map[string]bool, len(rec.Members))
	for _, member := range rec.Members {
		if member.ID == "" || seen[member.ID] {
			continue
		}
		seen[member.ID] = true

		if member.User != nil {
			conv.Members = append(conv.Members, member.User.Summary())
			continue
		}
		u, err := r.client.FetchUser(context.Background(), member.ID)
		if err != nil {
			r.logger.Warn("member resolution failed",
				zap.Error(err),
				zap.String("conversation_id", rec.ID),
				zap.String("member_id", member.ID))
			conv.Members = append(conv.Members, store.UserSummary{ID: member.ID})
			continue
		}
		conv.Members = append(conv.Members, u.Summary())
	}
	return conv
}
