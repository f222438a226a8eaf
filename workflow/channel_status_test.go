package workflow

import (
	"sync"
	"testing"

	"bitbucket.org/mmdatafocus/procurement_backend/models"
)

func TestParseDeliveryStatus(t *testing.T) {
	valid := map[string]models.CommunicationDeliveryStatus{
		"Sent":      models.CommunicationDeliveryStatusSent,
		"Delivered": models.CommunicationDeliveryStatusDelivered,
		"Read":      models.CommunicationDeliveryStatusRead,
		"Failed":    models.CommunicationDeliveryStatusFailed,
	}
	for in, want := range valid {
		got, err := parseDeliveryStatus(in)
		if err != nil {
			t.Fatalf("parseDeliveryStatus(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("parseDeliveryStatus(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "sent", "DELIVERED", "Bounced"} {
		if _, err := parseDeliveryStatus(in); err == nil {
			t.Fatalf("parseDeliveryStatus(%q) should fail", in)
		}
	}
}

// DB-free check of the channel-status dedupe semantics: at-least-once
// delivery is safe because the durable idempotency key collapses redelivered
// pubsub messages into one status transition.
type fakeStatusConsumer struct {
	mu      sync.Mutex
	seen    map[string]bool
	applied int
}

func (c *fakeStatusConsumer) consume(businessID, messageID string, fn func()) {
	key := businessID + "|" + channelStatusHandlerName + "|" + messageID
	c.mu.Lock()
	if c.seen == nil {
		c.seen = map[string]bool{}
	}
	if c.seen[key] {
		c.mu.Unlock()
		return
	}
	c.seen[key] = true
	c.mu.Unlock()

	fn()

	c.mu.Lock()
	c.applied++
	c.mu.Unlock()
}

func TestChannelStatusDuplicateDeliveryAppliedOnce(t *testing.T) {
	c := &fakeStatusConsumer{}

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.consume("biz-1", "msg-42", func() {})
		}()
	}
	wg.Wait()

	if c.applied != 1 {
		t.Fatalf("expected exactly 1 applied transition, got %d", c.applied)
	}

	// distinct message ids for the same entry each apply
	c.consume("biz-1", "msg-43", func() {})
	if c.applied != 2 {
		t.Fatalf("expected 2 applied transitions after a new message id, got %d", c.applied)
	}
}
