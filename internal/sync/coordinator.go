package sync

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pe2pia/chatsync/internal/bus"
	"github.com/pe2pia/chatsync/internal/store"
	"github.com/pe2pia/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Coordinator polls the server for the active conversation's messages and
// merges each authoritative snapshot into the message store. It owns a
// single timer: starting it again without stopping is a no-op, and Stop is
// safe to call any number of times. The owner must call Stop when the
// conversation view goes away so no timer keeps mutating state for a screen
// nobody observes.
type Coordinator struct {
	store    *store.MessageStore
	client   transport.Client
	bus      *bus.Bus
	logger   *zap.Logger
	interval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewCoordinator creates a coordinator polling at the given interval.
func NewCoordinator(st *store.MessageStore, client transport.Client, b *bus.Bus, logger *zap.Logger, interval time.Duration) *Coordinator {
	return &Coordinator{
		store:    st,
		client:   client,
		bus:      b,
		logger:   logger,
		interval: interval,
	}
}

// Start begins polling for a conversation: an immediate fetch-and-merge,
// then one per interval. Idempotent while running.
func (c *Coordinator) Start(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.logger.Debug("message sync already running", zap.String("conversation_id", conversationID))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.loop(ctx, conversationID)
}

// Stop halts the polling timer. A fetch already in flight completes and
// applies its merge; no new fetch is scheduled afterwards.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// loop runs every tick in one goroutine, so two fetches for the same
// conversation can never overlap; if a fetch outlasts the interval the
// ticker simply drops the missed ticks.
func (c *Coordinator) loop(ctx context.Context, conversationID string) {
	c.pollOnce(ctx, conversationID)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.pollOnce(ctx, conversationID)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator) pollOnce(ctx context.Context, conversationID string) {
	if ctx.Err() != nil {
		return
	}

	// The request itself runs on a background context: a Stop that lands
	// mid-flight lets the fetch complete and apply (the transport's own
	// timeout still bounds it).
	records, err := c.client.FetchMessages(context.Background(), conversationID)
	if err != nil {
		// Swallowed: the store is left as is and the timer stays on
		// schedule; the next tick retries.
		c.logger.Warn("message fetch failed",
			zap.Error(err),
			zap.String("conversation_id", conversationID))
		return
	}

	msgs := make([]store.Message, 0, len(records))
	for i := range records {
		msgs = append(msgs, records[i].ToMessage())
	}
	c.store.MergeAuthoritative(conversationID, msgs)

	c.bus.Publish(bus.Event{
		Kind:      "sync.merged",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"conversation_id": conversationID,
			"count":           strconv.Itoa(len(msgs)),
		},
	})
}
