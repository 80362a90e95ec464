package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pe2pia/chatsync/internal/bus"
	"github.com/pe2pia/chatsync/internal/status"
	"github.com/pe2pia/chatsync/internal/store"
	"github.com/pe2pia/chatsync/internal/transport"
	"go.uber.org/zap"
)

// mockClient records send calls and returns configurable results.
type mockClient struct {
	mu    sync.Mutex
	calls []transport.SendRequest
	err   error
	delay time.Duration // artificial delay to observe intermediate states
	next  int           // counter for generated server ids
}

func (m *mockClient) SendMessage(_ context.Context, req transport.SendRequest) (*transport.ServerMessage, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.next++
	id := fmt.Sprintf("srv-%d", m.next)
	delay, errOut := m.delay, m.err
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if errOut != nil {
		return nil, errOut
	}
	return &transport.ServerMessage{
		ID:             id,
		ConversationID: req.ConversationID,
		SenderID:       req.SenderID,
		Text:           req.Text,
		CreatedAt:      time.Now(),
	}, nil
}

func (m *mockClient) FetchMessages(context.Context, string) ([]transport.ServerMessage, error) {
	return nil, nil
}

func (m *mockClient) FetchConversations(context.Context, string) ([]transport.ServerConversation, error) {
	return nil, nil
}

func (m *mockClient) FetchUser(context.Context, string) (*transport.ServerUser, error) {
	return nil, nil
}

func (m *mockClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestSender(mock *mockClient) (*Sender, *store.MessageStore, *bus.Bus) {
	st := store.NewMessageStore()
	b := bus.New()
	logger, _ := zap.NewDevelopment()
	return NewSender(st, mock, b, logger), st, b
}

func waitFor(t *testing.T, sub *bus.Subscription, kind string) bus.Event {
	t.Helper()
	select {
	case evt := <-sub.C:
		if evt.Kind != kind {
			t.Fatalf("event kind = %q, want %q", evt.Kind, kind)
		}
		return evt
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s event", kind)
		return bus.Event{}
	}
}

func TestSendOptimisticInsert(t *testing.T) {
	mock := &mockClient{delay: 300 * time.Millisecond}
	s, st, b := newTestSender(mock)

	sub := b.Subscribe("message.send_ack", 10)
	defer sub.Cancel()

	s.Send("c1", "u1", "hi", nil)

	// Entry is visible synchronously, before the mock's delay elapses.
	msgs := st.List()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (optimistic insert)", len(msgs))
	}
	if msgs[0].Status != status.Sending {
		t.Errorf("status = %q, want sending", msgs[0].Status)
	}
	if msgs[0].Text != "hi" {
		t.Errorf("text = %q, want hi", msgs[0].Text)
	}
	tempID := msgs[0].ID

	evt := waitFor(t, sub, "message.send_ack")
	payload := evt.Payload.(map[string]string)
	if payload["local_msg_id"] != tempID {
		t.Errorf("ack local_msg_id = %q, want %q", payload["local_msg_id"], tempID)
	}

	// Temp id swapped for the server id, status sent, no duplicate.
	if st.Has(tempID) {
		t.Error("temporary id still in store after ack")
	}
	msgs = st.List()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages after ack, want 1", len(msgs))
	}
	if msgs[0].ID != payload["server_msg_id"] || msgs[0].Status != status.Sent {
		t.Errorf("got %+v, want server id with status sent", msgs[0])
	}
}

func TestSendFailureKeepsEntry(t *testing.T) {
	mock := &mockClient{err: fmt.Errorf("network error")}
	s, st, b := newTestSender(mock)

	sub := b.Subscribe("message.send_failed", 10)
	defer sub.Cancel()

	s.Send("c1", "u1", "hi", nil)
	waitFor(t, sub, "message.send_failed")

	msgs := st.List()
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (failed entry is kept)", len(msgs))
	}
	if msgs[0].Status != status.Failed {
		t.Errorf("status = %q, want failed", msgs[0].Status)
	}
}

// TestRetrySameIDThenNewServerID: a failed message retried under the same
// local id transitions to sending synchronously, then to sent under the
// server id; the temporary id never reappears.
func TestRetrySameIDThenNewServerID(t *testing.T) {
	mock := &mockClient{err: fmt.Errorf("timeout")}
	s, st, b := newTestSender(mock)

	failed := b.Subscribe("message.send_failed", 10)
	defer failed.Cancel()

	s.Send("c1", "u1", "try me", nil)
	waitFor(t, failed, "message.send_failed")

	tempID := st.List()[0].ID

	// Heal the network and retry.
	mock.mu.Lock()
	mock.err = nil
	mock.delay = 200 * time.Millisecond
	mock.mu.Unlock()

	acked := b.Subscribe("message.send_ack", 10)
	defer acked.Cancel()

	if err := s.Retry(tempID); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	// Synchronous reset to sending, same id.
	m, ok := st.Get(tempID)
	if !ok {
		t.Fatal("retried message missing")
	}
	if m.Status != status.Sending {
		t.Errorf("status = %q immediately after Retry, want sending", m.Status)
	}

	evt := waitFor(t, acked, "message.send_ack")
	payload := evt.Payload.(map[string]string)

	if st.Has(tempID) {
		t.Error("temporary id reappeared after successful retry")
	}
	m, ok = st.Get(payload["server_msg_id"])
	if !ok || m.Status != status.Sent {
		t.Errorf("server entry = %+v, ok = %v, want sent", m, ok)
	}
	if m.Text != "try me" {
		t.Errorf("text = %q, retry must resend the original payload", m.Text)
	}

	if mock.callCount() != 2 {
		t.Errorf("send calls = %d, want 2 (one per attempt)", mock.callCount())
	}
}

func TestRetryRejectsNonFailed(t *testing.T) {
	mock := &mockClient{delay: 500 * time.Millisecond}
	s, st, _ := newTestSender(mock)

	s.Send("c1", "u1", "hi", nil)
	id := st.List()[0].ID

	// Still sending: not retryable.
	if err := s.Retry(id); err == nil {
		t.Error("Retry() of a sending message should fail")
	}
	if err := s.Retry("unknown"); err == nil {
		t.Error("Retry() of an unknown id should fail")
	}
}

// TestConcurrentSendsGetDistinctIDs: simultaneous sends to the same
// conversation must not interfere.
func TestConcurrentSendsGetDistinctIDs(t *testing.T) {
	mock := &mockClient{delay: 200 * time.Millisecond}
	s, st, b := newTestSender(mock)

	sub := b.Subscribe("message.send_ack", 32)
	defer sub.Cancel()

	const n = 8
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Send("c1", "u1", fmt.Sprintf("msg-%d", i), nil)
		}()
	}
	wg.Wait()

	if st.Len() != n {
		t.Fatalf("got %d optimistic entries, want %d distinct ids", st.Len(), n)
	}
	seen := make(map[string]bool)
	for _, m := range st.List() {
		if seen[m.ID] {
			t.Errorf("duplicate temporary id %q", m.ID)
		}
		seen[m.ID] = true
	}

	for range n {
		waitFor(t, sub, "message.send_ack")
	}
	if st.Len() != n {
		t.Errorf("got %d entries after acks, want %d", st.Len(), n)
	}
}

func TestSendPassesAttachments(t *testing.T) {
	mock := &mockClient{}
	s, _, b := newTestSender(mock)

	sub := b.Subscribe("message.send_ack", 10)
	defer sub.Cancel()

	atts := []store.Attachment{{URI: "file:///tmp/a.jpg", MimeType: "image/jpeg"}}
	s.Send("c1", "u1", "photo", atts)
	waitFor(t, sub, "message.send_ack")

	mock.mu.Lock()
	defer mock.mu.Unlock()
	if len(mock.calls) != 1 {
		t.Fatalf("send calls = %d, want 1", len(mock.calls))
	}
	if len(mock.calls[0].Attachments) != 1 || mock.calls[0].Attachments[0].MimeType != "image/jpeg" {
		t.Errorf("attachments = %+v", mock.calls[0].Attachments)
	}
}
