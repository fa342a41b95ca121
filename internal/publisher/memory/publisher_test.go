package memory

import (
	"context"
	"testing"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "run-summaries", map[string]int{"new": 2})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "alerts", "payload")
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Topic != "run-summaries" || msgs[1].Topic != "alerts" {
		t.Fatalf("topics not recorded correctly: %+v", msgs)
	}
	if string(msgs[0].Data) != `{"new":2}` {
		t.Fatalf("unexpected encoding %s", msgs[0].Data)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}

func TestBoundedPublisherDropsOldest(t *testing.T) {
	t.Parallel()

	pub := NewBounded(2)
	for i := 0; i < 3; i++ {
		if _, err := pub.Publish(context.Background(), "t", i); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	msgs := pub.Messages()
	if len(msgs) != 2 || msgs[0].ID != "memory-2" || msgs[1].ID != "memory-3" {
		t.Fatalf("unexpected retained messages: %+v", msgs)
	}
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	if _, err := New().Publish(context.Background(), "t", make(chan int)); err == nil {
		t.Fatal("expected marshal error")
	}
	if got := len(New().Messages()); got != 0 {
		t.Fatalf("expected no messages, got %d", got)
	}
}
