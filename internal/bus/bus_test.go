package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chatlist.", 10)
	defer unsub()

	b.Publish(Event{Kind: "chatlist.updated", Timestamp: time.Now(), Payload: "c1"})

	select {
	case evt := <-ch:
		if evt.Kind != "chatlist.updated" {
			t.Errorf("got kind %q, want chatlist.updated", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Publish(Event{Kind: "chatlist.updated"})
	b.Publish(Event{Kind: "message.send_ack"})

	select {
	case evt := <-ch:
		if evt.Kind != "message.send_ack" {
			t.Errorf("got kind %q, want message.send_ack", evt.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// The chatlist event must not have been delivered here.
	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("membership.", 10)
	unsub()
	unsub() // calling twice is a no-op

	b.Publish(Event{Kind: "membership.changed"})

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 1)
	defer unsub()

	b.Publish(Event{Kind: "message.upserted"})
	// Buffer is full, this one is dropped rather than blocking the publisher.
	b.Publish(Event{Kind: "message.send_ack"})

	evt := <-ch
	if evt.Kind != "message.upserted" {
		t.Errorf("got %q, want message.upserted", evt.Kind)
	}
}
